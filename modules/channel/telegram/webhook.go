package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/flemzord/warden/internal/security"
)

// SecretTokenHeader carries the secret set with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSource is the gateway dispatcher source name.
const WebhookSource = "telegram"

// webhookError is returned to the gateway with an explicit status.
type webhookError struct {
	code    int
	errCode string
	msg     string
}

func (e *webhookError) Error() string     { return e.msg }
func (e *webhookError) StatusCode() int   { return e.code }
func (e *webhookError) ErrorCode() string { return e.errCode }

// WebhookReceiver processes Telegram webhook payloads delivered by the
// gateway dispatcher. It implements gateway.WebhookHandler.
type WebhookReceiver struct {
	handler UpdateHandler
	logger  *slog.Logger
	secret  string
	ctx     context.Context
}

// NewWebhookReceiver creates a WebhookReceiver. Updates are routed with
// ctx rather than the request context, so work started by an update
// outlives the HTTP response.
func NewWebhookReceiver(ctx context.Context, handler UpdateHandler, logger *slog.Logger, secret string) *WebhookReceiver {
	return &WebhookReceiver{
		handler: handler,
		logger:  logger,
		secret:  secret,
		ctx:     ctx,
	}
}

// HandleWebhook checks the secret token header, parses the update and
// routes it.
func (w *WebhookReceiver) HandleWebhook(_ context.Context, _ string, body []byte, headers http.Header) error {
	if w.secret != "" {
		token := headers.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(w.secret), []byte(token)) != 1 {
			return &webhookError{code: http.StatusUnauthorized, errCode: "INVALID_SECRET_TOKEN", msg: "telegram: invalid webhook secret token"}
		}
	}

	if err := security.ValidatePayload(body, security.PayloadLimits{}); err != nil {
		return &webhookError{code: http.StatusBadRequest, errCode: "INVALID_UPDATE", msg: "telegram: rejected update: " + err.Error()}
	}

	var update gotgbot.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return &webhookError{code: http.StatusBadRequest, errCode: "INVALID_UPDATE", msg: "telegram: invalid update JSON: " + err.Error()}
	}

	if !route(w.ctx, w.handler, &update) {
		w.logger.Debug("skipping webhook update", "update_id", update.UpdateId)
	}
	return nil
}
