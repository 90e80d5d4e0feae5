package security

import (
	"reflect"
	"strings"
	"testing"
)

func TestRedactor_DefaultPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "telegram bot token",
			input: "token is 123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw",
			want:  "token is " + RedactPlaceholder,
		},
		{
			name:  "telegram token in api url",
			input: "Post https://api.telegram.org/bot123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw/sendMessage",
			want:  "Post https://api.telegram.org/bot" + RedactPlaceholder + "/sendMessage",
		},
		{
			name:  "github personal access token",
			input: "auth ghp_abcdefghijklmnopqrstuvwxyz",
			want:  "auth " + RedactPlaceholder,
		},
		{
			name:  "github fine-grained pat",
			input: "github_pat_abcdefghijklmnopqrstuvwxyz is mine",
			want:  RedactPlaceholder + " is mine",
		},
		{
			name:  "hmac signature",
			input: "sig sha256=" + strings.Repeat("ab", 32),
			want:  "sig " + RedactPlaceholder,
		},
		{
			name:  "no secrets",
			input: "this is a normal message",
			want:  "this is a normal message",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "multiple secrets",
			input: "keys: ghs_abcdefghijklmnopqrstuvwxyz and 123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw",
			want:  "keys: " + RedactPlaceholder + " and " + RedactPlaceholder,
		},
	}

	r := NewRedactor()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := r.Redact(tt.input)
			if got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactor_Literals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		literals []string
		input    string
		want     string
	}{
		{"bot token", []string{"hook-key-1"}, "GET /webhooks?k=hook-key-1 failed", "GET /webhooks?k=" + RedactPlaceholder + " failed"},
		{"empty ignored", []string{""}, "nothing here", "nothing here"},
		{"longest wins", []string{"abc123", "abc123-longer"}, "x abc123-longer y abc123", "x " + RedactPlaceholder + " y " + RedactPlaceholder},
		{"registration order irrelevant", []string{"abc123-longer", "abc123"}, "abc123-longer", RedactPlaceholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &Redactor{}
			for _, l := range tt.literals {
				r.AddLiteral(l)
			}
			if got := r.Redact(tt.input); got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactor_LiteralDedup(t *testing.T) {
	t.Parallel()

	r := &Redactor{}
	r.AddLiteral("webhook-secret")
	r.AddLiteral("webhook-secret")

	if n := len(r.load().literals); n != 1 {
		t.Fatalf("literals = %d, want 1", n)
	}
}

func TestRedactor_AddExpr(t *testing.T) {
	t.Parallel()

	r := &Redactor{}
	if err := r.AddExpr(`chat-[0-9]+`); err != nil {
		t.Fatalf("AddExpr: %v", err)
	}
	if got := r.Redact("in chat-42"); got != "in "+RedactPlaceholder {
		t.Errorf("got %q", got)
	}
	if err := r.AddExpr(`(`); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestRedactor_RedactMap(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("gh-webhook-value")

	doc := map[string]any{
		"channel.telegram": map[string]any{
			"token":        "123:abc",
			"poll_timeout": "30s",
			"whitelist":    []any{"-1001", map[string]any{"api_key": "k"}},
		},
		"gateway.http": map[string]any{
			"auth":     map[string]any{"basic_user": "ops", "basic_pass": "pw", "bearer_token": ""},
			"webhooks": map[string]any{"github": map[string]any{"secret": "gh-webhook-value"}},
			"bind":     "127.0.0.1:8080",
		},
		"note": "rotated gh-webhook-value yesterday",
	}
	r.RedactMap(doc)

	want := map[string]any{
		"channel.telegram": map[string]any{
			"token":        RedactPlaceholder,
			"poll_timeout": "30s",
			"whitelist":    []any{"-1001", map[string]any{"api_key": RedactPlaceholder}},
		},
		"gateway.http": map[string]any{
			"auth":     map[string]any{"basic_user": "ops", "basic_pass": RedactPlaceholder, "bearer_token": ""},
			"webhooks": map[string]any{"github": map[string]any{"secret": RedactPlaceholder}},
			"bind":     "127.0.0.1:8080",
		},
		"note": "rotated " + RedactPlaceholder + " yesterday",
	}
	if !reflect.DeepEqual(doc, want) {
		t.Errorf("RedactMap =\n%v\nwant\n%v", doc, want)
	}
}

func TestRedactor_AddPattern(t *testing.T) {
	t.Parallel()

	r := &Redactor{}
	r.AddPattern(DefaultPatterns()[0])

	if got := r.Redact("123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"); got != RedactPlaceholder {
		t.Errorf("got %q, want %q", got, RedactPlaceholder)
	}
	if got := r.Redact("ghp_abcdefghijklmnopqrstuvwxyz"); got == RedactPlaceholder {
		t.Error("only the added pattern should apply")
	}
}

func FuzzRedactor(f *testing.F) {
	f.Add("user 42 joined -1001234")
	f.Add("123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw")
	f.Add("sha256=00")
	f.Add("")

	r := NewRedactor()
	r.AddLiteral("gh-webhook-value")

	f.Fuzz(func(t *testing.T, input string) {
		once := r.Redact(input)
		if strings.Contains(once, "gh-webhook-value") {
			t.Errorf("literal survived in %q", once)
		}
		if twice := r.Redact(once); twice != once {
			t.Errorf("Redact not idempotent: %q then %q", once, twice)
		}
	})
}
