package security

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"testing"
)

const botToken = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"

func TestRedactingHandler(t *testing.T) {
	t.Parallel()

	apiURL, err := url.Parse("https://api.telegram.org/bot" + botToken + "/setWebhook")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		log     func(l *slog.Logger)
		leaks   []string
		mustSee []string
	}{
		{
			name:    "message",
			log:     func(l *slog.Logger) { l.Info("polling with " + botToken) },
			leaks:   []string{botToken},
			mustSee: []string{RedactPlaceholder},
		},
		{
			name:    "literal in plain attribute",
			log:     func(l *slog.Logger) { l.Info("delivery", "body", "sig gh-webhook-value", "source", "github") },
			leaks:   []string{"gh-webhook-value"},
			mustSee: []string{"source=github"},
		},
		{
			name:  "secret-named attribute",
			log:   func(l *slog.Logger) { l.Info("configured", "webhook_secret", "short") },
			leaks: []string{"short"},
		},
		{
			name:  "With attributes",
			log:   func(l *slog.Logger) { l.With("bearer_token", "ops-token").Info("admin api enabled") },
			leaks: []string{"ops-token"},
		},
		{
			name:    "WithGroup",
			log:     func(l *slog.Logger) { l.WithGroup("telegram").Info("getMe", "url", "bot"+botToken) },
			leaks:   []string{botToken},
			mustSee: []string{"telegram.url="},
		},
		{
			name: "group attribute",
			log: func(l *slog.Logger) {
				l.Info("request", slog.Group("http", slog.String("authorization", "gh-webhook-value"), slog.String("path", "/webhooks/github")))
			},
			leaks:   []string{"gh-webhook-value"},
			mustSee: []string{"http.path=/webhooks/github"},
		},
		{
			name: "error value",
			log: func(l *slog.Logger) {
				l.Error("telegram call failed", "error", errors.New(`Post "https://api.telegram.org/bot`+botToken+`/getMe": timeout`))
			},
			leaks:   []string{"AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"},
			mustSee: []string{"getMe"},
		},
		{
			name:    "Stringer value",
			log:     func(l *slog.Logger) { l.Info("webhook set", "endpoint", apiURL, "mode", "webhook") },
			leaks:   []string{"AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"},
			mustSee: []string{"mode=webhook"},
		},
		{
			name:    "nothing secret",
			log:     func(l *slog.Logger) { l.Info("member verified", "chat_id", "-1001", "user_id", 42) },
			leaks:   []string{RedactPlaceholder},
			mustSee: []string{"member verified", "chat_id=-1001", "user_id=42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			r := NewRedactor()
			r.AddLiteral("gh-webhook-value")
			tt.log(slog.New(NewRedactingHandler(slog.NewTextHandler(&buf, nil), r)))

			out := buf.String()
			for _, s := range tt.leaks {
				if strings.Contains(out, s) {
					t.Errorf("output contains %q: %s", s, out)
				}
			}
			for _, s := range tt.mustSee {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q: %s", s, out)
				}
			}
		})
	}
}

func TestRedactingHandler_Enabled(t *testing.T) {
	t.Parallel()

	h := NewRedactingHandler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}), NewRedactor())
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}
