package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/security"
)

// EventHeader names the GitHub event of a delivery.
const EventHeader = "X-GitHub-Event"

// Dispatcher triggers a build workflow.
type Dispatcher interface {
	Dispatch(ctx context.Context, req BuildRequest) error
}

type account struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

type issueCommentPayload struct {
	Action  string `json:"action"`
	Comment struct {
		ID   int64  `json:"id"`
		Body string `json:"body"`
	} `json:"comment"`
	Issue struct {
		Number int `json:"number"`
		// PullRequest is only present on pull request comments.
		PullRequest *struct{} `json:"pull_request"`
	} `json:"issue"`
	Repository struct {
		Name     string  `json:"name"`
		FullName string  `json:"full_name"`
		Owner    account `json:"owner"`
	} `json:"repository"`
	Sender account `json:"sender"`
}

type activityPayload struct {
	Action     string `json:"action"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender account `json:"sender"`
}

// Handler turns issue_comment deliveries into workflow dispatches. It
// implements gateway.WebhookHandler.
type Handler struct {
	mu      sync.RWMutex
	parser  *CommandParser
	senders []int64
	mention string

	dispatcher Dispatcher
	events     event.Emitter
	logger     *slog.Logger
}

// NewHandler returns a handler configured from cfg. A nil emitter drops
// events.
func NewHandler(cfg Config, d Dispatcher, events event.Emitter, logger *slog.Logger) *Handler {
	if events == nil {
		events = event.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{dispatcher: d, events: events, logger: logger}
	h.Update(cfg)
	return h
}

// Update swaps the mention and the allowed senders.
func (h *Handler) Update(cfg Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cfg.Mention != h.mention || h.parser == nil {
		h.parser = NewCommandParser(cfg.Mention)
		h.mention = cfg.Mention
	}
	h.senders = append([]int64(nil), cfg.AllowedSenders...)
}

// HandleWebhook implements gateway.WebhookHandler.
func (h *Handler) HandleWebhook(ctx context.Context, _ string, body []byte, headers http.Header) error {
	if err := security.ValidatePayload(body, security.PayloadLimits{}); err != nil {
		return fmt.Errorf("github: %w", err)
	}

	switch name := headers.Get(EventHeader); name {
	case "ping":
		h.logger.Info("github ping received")
		return nil
	case "issue_comment":
		return h.handleIssueComment(ctx, body)
	default:
		h.recordActivity(ctx, name, body)
		return nil
	}
}

func (h *Handler) handleIssueComment(ctx context.Context, body []byte) error {
	var p issueCommentPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("github: decode issue_comment: %w", err)
	}
	if p.Action != "created" {
		h.logger.Debug("comment action skipped", "action", p.Action)
		return nil
	}

	h.mu.RLock()
	parser, senders := h.parser, h.senders
	h.mu.RUnlock()

	cmd, ok := parser.Parse(p.Comment.Body)
	if !ok {
		return nil
	}

	logger := h.logger.With(
		"repo", p.Repository.FullName,
		"pr", p.Issue.Number,
		"sender", p.Sender.Login,
		"command", cmd.Name,
	)

	err := h.run(ctx, p, cmd, senders, logger)
	h.emit(ctx, p, cmd, err)
	return err
}

func (h *Handler) run(ctx context.Context, p issueCommentPayload, cmd Command, senders []int64, logger *slog.Logger) error {
	cfg := Config{AllowedSenders: senders}
	if !cfg.senderAllowed(p.Sender.ID) {
		logger.Info("sender not allowed to run commands", "sender_id", p.Sender.ID)
		return commandError(CodeUnauthorizedUser,
			fmt.Sprintf("user %s is not allowed to run commands", p.Sender.Login), nil)
	}
	if p.Issue.PullRequest == nil {
		logger.Info("command on a plain issue skipped")
		return commandError(CodeNotAPR, "commands only run on pull requests", nil)
	}

	switch cmd.Name {
	case "build":
		return h.build(ctx, p, cmd.Args, logger)
	default:
		logger.Info("unknown command")
		return commandError(CodeUnknownCommand, "unknown command: "+cmd.Name, nil)
	}
}

func (h *Handler) build(ctx context.Context, p issueCommentPayload, args string, logger *slog.Logger) error {
	if args == "" {
		return commandError(CodeMissingPackageName, "build needs a package name", nil)
	}

	pkg, opts := ParseBuildArgs(args)
	req := BuildRequest{
		Repo:     p.Repository.Owner.Login + "/" + p.Repository.Name,
		PRNumber: p.Issue.Number,
		Package:  pkg,
		Options:  opts,
	}
	if err := h.dispatcher.Dispatch(ctx, req); err != nil {
		logger.Error("build workflow dispatch failed", "package", pkg, "error", err)
		return commandError(CodeWorkflowTriggerFailed,
			"could not trigger the build workflow for "+pkg, err)
	}
	logger.Info("build workflow triggered", "package", pkg, "options", map[string]any(opts))
	return nil
}

func (h *Handler) emit(ctx context.Context, p issueCommentPayload, cmd Command, err error) {
	data := map[string]any{
		"repo":    p.Repository.FullName,
		"pr":      p.Issue.Number,
		"sender":  p.Sender.Login,
		"command": cmd.Name,
		"args":    cmd.Args,
		"success": err == nil,
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		data["error_code"] = ce.Code
	}
	h.events.Emit(ctx, event.RepoCommand, data)
}

func (h *Handler) recordActivity(ctx context.Context, name string, body []byte) {
	var p activityPayload
	if err := json.Unmarshal(body, &p); err != nil {
		h.logger.Debug("ignoring undecodable github event", "event", name, "error", err)
		return
	}
	h.events.Emit(ctx, event.RepoActivity, map[string]any{
		"event":  name,
		"action": p.Action,
		"repo":   p.Repository.FullName,
		"sender": p.Sender.Login,
	})
}
