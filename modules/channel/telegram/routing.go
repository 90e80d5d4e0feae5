package telegram

import (
	"context"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/flemzord/warden/internal/platform"
)

// UpdateHandler consumes converted updates. *bot.Router implements it.
type UpdateHandler interface {
	HandleMessage(ctx context.Context, msg platform.Message)
	HandleCallback(ctx context.Context, cb platform.Callback)
}

// route hands one update to h. It reports false for update kinds the bot
// does not process.
func route(ctx context.Context, h UpdateHandler, u *gotgbot.Update) bool {
	switch {
	case u.Message != nil:
		h.HandleMessage(ctx, convertMessage(u.Message))
		return true
	case u.CallbackQuery != nil:
		cb, ok := convertCallback(u.CallbackQuery)
		if !ok {
			return false
		}
		h.HandleCallback(ctx, cb)
		return true
	default:
		return false
	}
}
