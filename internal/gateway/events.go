package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/flemzord/warden/internal/event"
)

const (
	eventBuffer       = 64
	eventWriteTimeout = 5 * time.Second
)

// handleEvents streams bus events to a websocket client as JSON text
// frames. Events are dropped for clients that fall behind.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, ok := g.eventSource()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "bot not running"})
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}()

		// Reads are discarded; the returned context ends when the client leaves.
		ctx := conn.CloseRead(r.Context())

		ch := make(chan event.Event, eventBuffer)
		unsubscribe := src.SubscribeAll(func(_ context.Context, ev event.Event) error {
			select {
			case ch <- ev:
			default:
				g.logger.Debug("event stream client lagging, dropping event", "type", ev.Type)
			}
			return nil
		})
		defer unsubscribe()

		g.logger.Info("event stream client connected", "remote_addr", r.RemoteAddr)
		for {
			select {
			case <-ctx.Done():
				g.logger.Info("event stream client disconnected", "remote_addr", r.RemoteAddr)
				return
			case ev := <-ch:
				if err := writeEvent(ctx, conn, ev); err != nil {
					g.logger.Warn("event stream write failed", "error", err)
					return
				}
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
