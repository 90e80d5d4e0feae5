package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/flemzord/warden/internal/platform"
)

const testToken = "123456:TEST-token_value"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// apiCall is one request received by fakeAPI.
type apiCall struct {
	Method string
	Params map[string]string
}

// fakeAPI is a minimal Bot API server. Results are keyed by method name;
// methods without a result answer true.
type fakeAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	calls   []apiCall
	results map[string]any
	fail    map[string]string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		t:       t,
		results: make(map[string]any),
		fail:    make(map[string]string),
	}
	f.results["getMe"] = map[string]any{"id": 111, "is_bot": true, "first_name": "Warden", "username": "warden_bot"}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) URL() string { return f.srv.URL }

func (f *fakeAPI) setResult(method string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[method] = v
}

func (f *fakeAPI) setError(method, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = description
}

// callsTo returns the recorded calls of method in order.
func (f *fakeAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)
	params := readParams(r)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Params: params})
	failure, failed := f.fail[method]
	result, ok := f.results[method]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failed {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": failure})
		return
	}
	if method == "getUpdates" && !ok {
		result = []any{}
	} else if !ok {
		result = true
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

// readParams flattens form or JSON request parameters to strings.
func readParams(r *http.Request) map[string]string {
	out := make(map[string]string)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for k, v := range body {
				switch val := v.(type) {
				case string:
					out[k] = val
				case float64:
					out[k] = fmt.Sprintf("%.0f", val)
				default:
					raw, _ := json.Marshal(val)
					out[k] = string(raw)
				}
			}
		}
		return out
	}
	_ = r.ParseMultipartForm(1 << 20)
	for k, v := range r.Form {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	c, err := NewClient(testToken, api.URL())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// recordingHandler implements UpdateHandler.
type recordingHandler struct {
	mu        sync.Mutex
	messages  []platform.Message
	callbacks []platform.Callback
}

func (h *recordingHandler) HandleMessage(_ context.Context, msg platform.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *recordingHandler) HandleCallback(_ context.Context, cb platform.Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, cb)
}
