package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/guard"
	"github.com/flemzord/warden/internal/platform"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout is how long a new member has to answer.
const DefaultTimeout = 60 * time.Second

// Outcome labels passed to Recorder.
const (
	OutcomeVerified = "verified"
	OutcomeRejected = "rejected"
	OutcomeExpired  = "expired"
)

// Recorder receives verification metrics.
type Recorder interface {
	ChallengeIssued()
	VerificationCompleted(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ChallengeIssued()             {}
func (nopRecorder) VerificationCompleted(string) {}

var tracer = otel.Tracer("github.com/flemzord/warden/internal/verify")

// Options configures an Engine. Client and Store are required.
type Options struct {
	Client   platform.Client
	Store    Store
	Events   event.Emitter
	Metrics  Recorder
	Logger   *slog.Logger
	Timeout  time.Duration
	Now      func() time.Time
	Detached func() context.Context
}

// Engine drives each new member through
// pending → verified | rejected | expired.
// All exclusion between the timeout and answer paths comes from Store.Take.
type Engine struct {
	client  platform.Client
	store   Store
	events  event.Emitter
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
	timeout atomic.Int64
	// detached supplies the context used by eviction timers, which outlive
	// the update that armed them.
	detached func() context.Context
}

// NewEngine creates an Engine from opts.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		client:   opts.Client,
		store:    opts.Store,
		events:   opts.Events,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
		detached: opts.Detached,
	}
	if e.events == nil {
		e.events = event.Discard
	}
	if e.metrics == nil {
		e.metrics = nopRecorder{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.detached == nil {
		e.detached = context.Background
	}
	e.SetTimeout(opts.Timeout)
	return e
}

// SetTimeout changes the answer window for challenges issued afterwards.
// A non-positive value restores DefaultTimeout.
func (e *Engine) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	e.timeout.Store(int64(d))
}

// Timeout returns the current answer window.
func (e *Engine) Timeout() time.Duration {
	return time.Duration(e.timeout.Load())
}

// Store returns the backing record store.
func (e *Engine) Store() Store { return e.store }

// HandleJoin challenges each new member independently; a failure for one
// member is logged and does not affect the others.
func (e *Engine) HandleJoin(ctx context.Context, chatID int64, members []platform.User) {
	ctx, span := tracer.Start(ctx, "verify.HandleJoin", trace.WithAttributes(
		attribute.Int64("chat.id", chatID),
		attribute.Int("members", len(members)),
	))
	defer span.End()

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	e.events.Emit(ctx, event.VerificationStarted, map[string]any{
		"chatId":     chatID,
		"newMembers": ids,
	})

	for _, m := range members {
		if err := e.IssueChallenge(ctx, chatID, m); err != nil {
			e.logger.Error("verify: challenge failed",
				"chat_id", chatID,
				"user_id", m.ID,
				"error", err,
			)
		}
	}
}

// IssueChallenge sends the challenge to member unless it is a bot or a chat
// administrator. A failed administrator lookup is logged and the member is
// challenged anyway.
func (e *Engine) IssueChallenge(ctx context.Context, chatID int64, member platform.User) error {
	if member.IsBot {
		e.logger.Debug("verify: skipping bot", "chat_id", chatID, "user_id", member.ID)
		return nil
	}

	_, isAdmin, err := guard.FindAdmin(ctx, e.client, chatID, member.ID)
	if err != nil {
		e.logger.Warn("verify: admin lookup failed, challenging anyway",
			"chat_id", chatID,
			"user_id", member.ID,
			"error", err,
		)
	}
	if isAdmin {
		e.logger.Debug("verify: skipping administrator", "chat_id", chatID, "user_id", member.ID)
		return nil
	}
	return e.issue(ctx, chatID, member)
}

// IssueChallengeUnchecked sends the challenge without the administrator
// exemption.
func (e *Engine) IssueChallengeUnchecked(ctx context.Context, chatID int64, member platform.User) error {
	return e.issue(ctx, chatID, member)
}

func (e *Engine) issue(ctx context.Context, chatID int64, member platform.User) error {
	ctx, span := tracer.Start(ctx, "verify.IssueChallenge", trace.WithAttributes(
		attribute.Int64("chat.id", chatID),
		attribute.Int64("user.id", member.ID),
	))
	defer span.End()

	// A failed send leaves any earlier challenge and its timer in place.
	timeout := e.Timeout()
	text := ChallengeText(member.FirstName, int(timeout/time.Second))
	msgID, err := e.client.SendChallenge(ctx, chatID, text, ChallengeKeyboard(member.ID))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("verify: sending challenge: %w", err)
	}

	if old, ok := e.store.Take(ctx, member.ID); ok {
		e.logger.Info("verify: replacing pending challenge",
			"user_id", member.ID,
			"old_chat_id", old.ChatID,
		)
		e.deleteMessage(ctx, old.ChatID, old.MessageID)
	}

	created := e.now()
	p := Pending{
		UserID:       member.ID,
		ChatID:       chatID,
		FirstName:    member.FirstName,
		CorrectIndex: CorrectIndex,
		MessageID:    msgID,
		CreatedAt:    created,
		Deadline:     created.Add(timeout),
	}
	if err := e.store.Set(ctx, p); err != nil {
		e.deleteMessage(ctx, chatID, msgID)
		return fmt.Errorf("verify: storing challenge: %w", err)
	}

	userID := member.ID
	e.store.ScheduleEviction(userID, timeout, func() {
		e.HandleTimeout(e.detached(), chatID, userID, msgID)
	})
	e.metrics.ChallengeIssued()

	e.logger.Info("verify: challenge issued",
		"chat_id", chatID,
		"user_id", userID,
		"message_id", msgID,
		"deadline", p.Deadline,
	)
	return nil
}

// HandleTimeout evicts a member who did not answer in time. It is a no-op
// unless the stored record still matches chatID and messageID.
func (e *Engine) HandleTimeout(ctx context.Context, chatID, userID, messageID int64) {
	current, ok := e.store.Get(ctx, userID)
	if !ok || current.ChatID != chatID || current.MessageID != messageID {
		return
	}
	p, ok := e.store.Take(ctx, userID)
	if !ok {
		return
	}
	e.expire(ctx, p)
}

func (e *Engine) expire(ctx context.Context, p Pending) {
	ctx, span := tracer.Start(ctx, "verify.HandleTimeout", trace.WithAttributes(
		attribute.Int64("chat.id", p.ChatID),
		attribute.Int64("user.id", p.UserID),
	))
	defer span.End()

	e.deleteMessage(ctx, p.ChatID, p.MessageID)

	name := displayName(p.FirstName)
	text := fmt.Sprintf("⏰ 验证超时，%s 已被移除。", name)
	if err := e.client.KickChatMember(ctx, p.ChatID, p.UserID); err != nil {
		e.logger.Warn("verify: kick after timeout failed",
			"chat_id", p.ChatID,
			"user_id", p.UserID,
			"error", err,
		)
		text = fmt.Sprintf("❗️ 无法移除 %s，TA 可能拥有管理员权限或我不是群组管理员。", name)
	}
	e.send(ctx, p.ChatID, text)

	e.metrics.VerificationCompleted(OutcomeExpired)
	e.events.Emit(ctx, event.VerificationCompleted, map[string]any{
		"userId":  p.UserID,
		"chatId":  p.ChatID,
		"success": false,
		"reason":  "timeout",
	})
	e.logger.Info("verify: challenge expired", "chat_id", p.ChatID, "user_id", p.UserID)
}

// SweepExpired evicts every record whose deadline is at or before now and
// returns how many were evicted. Records replaced since listing are skipped.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) int {
	n := 0
	for _, p := range e.store.Expired(ctx, now) {
		current, ok := e.store.Get(ctx, p.UserID)
		if !ok || current.MessageID != p.MessageID || current.ChatID != p.ChatID {
			continue
		}
		taken, ok := e.store.Take(ctx, p.UserID)
		if !ok {
			continue
		}
		e.expire(ctx, taken)
		n++
	}
	return n
}

// HandleAnswer processes an answer button press. handled is false when the
// payload is not a challenge answer.
func (e *Engine) HandleAnswer(ctx context.Context, cb platform.Callback) (handled bool) {
	userID, index, ok := ParseCallbackData(cb.Data)
	if !ok {
		return false
	}

	ctx, span := tracer.Start(ctx, "verify.HandleAnswer", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("from.id", cb.From.ID),
	))
	defer span.End()

	if cb.From.ID != userID {
		e.answer(ctx, cb.ID, "这不是你的问题，请不要干扰验证！", true)
		return true
	}

	// A press on a stale message from another chat must not settle the
	// challenge pending elsewhere.
	current, ok := e.store.Get(ctx, userID)
	if !ok || (cb.ChatID != 0 && cb.ChatID != current.ChatID) {
		e.answer(ctx, cb.ID, "验证已过期或不存在。", true)
		return true
	}
	p, ok := e.store.Take(ctx, userID)
	if !ok {
		e.answer(ctx, cb.ID, "验证已过期或不存在。", true)
		return true
	}

	name := cb.From.FirstName
	if name == "" {
		name = displayName(p.FirstName)
	}

	success := index == p.CorrectIndex
	if success {
		e.send(ctx, p.ChatID, fmt.Sprintf("🎉 恭喜 %s，答对了，验证通过！欢迎加入～", name))
		e.deleteMessage(ctx, p.ChatID, p.MessageID)
		e.answer(ctx, cb.ID, "验证成功！", false)
		e.metrics.VerificationCompleted(OutcomeVerified)
	} else {
		e.send(ctx, p.ChatID, fmt.Sprintf("❌ %s 答错了，已被移出群组。", name))
		if err := e.client.KickChatMember(ctx, p.ChatID, p.UserID); err != nil {
			e.logger.Warn("verify: kick after wrong answer failed",
				"chat_id", p.ChatID,
				"user_id", p.UserID,
				"error", err,
			)
		}
		e.deleteMessage(ctx, p.ChatID, p.MessageID)
		e.answer(ctx, cb.ID, "验证失败，已被移除。", true)
		e.metrics.VerificationCompleted(OutcomeRejected)
	}

	reason := "wrong_answer"
	if success {
		reason = "correct_answer"
	}
	e.events.Emit(ctx, event.VerificationCompleted, map[string]any{
		"userId":  p.UserID,
		"chatId":  p.ChatID,
		"success": success,
		"reason":  reason,
	})
	e.logger.Info("verify: answer processed",
		"chat_id", p.ChatID,
		"user_id", p.UserID,
		"success", success,
	)
	return true
}

func (e *Engine) send(ctx context.Context, chatID int64, text string) {
	if _, err := e.client.SendMessage(ctx, chatID, text, nil); err != nil {
		e.logger.Warn("verify: send failed", "chat_id", chatID, "error", err)
	}
}

func (e *Engine) deleteMessage(ctx context.Context, chatID, messageID int64) {
	if messageID == 0 {
		return
	}
	if err := e.client.DeleteMessage(ctx, chatID, messageID); err != nil {
		e.logger.Warn("verify: delete challenge failed",
			"chat_id", chatID,
			"message_id", messageID,
			"error", err,
		)
	}
}

func (e *Engine) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := e.client.AnswerCallbackQuery(ctx, callbackID, platform.AnswerOptions{Text: text, ShowAlert: alert}); err != nil {
		e.logger.Warn("verify: answer callback failed", "callback_id", callbackID, "error", err)
	}
}
