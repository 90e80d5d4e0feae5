package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/flemzord/warden/internal/platform"
)

// requestTimeout bounds every Bot API call except long polls.
const requestTimeout = 30 * time.Second

// Compile-time interface guard.
var _ platform.Client = (*Client)(nil)

// Client implements platform.Client on top of a gotgbot bot. Calls are not
// retried; failures are wrapped and returned to the caller.
type Client struct {
	bot *gotgbot.Bot
}

// NewClient creates a Client for token against apiURL. The token is not
// checked here; Start calls GetMe.
func NewClient(token, apiURL string) (*Client, error) {
	b, err := gotgbot.NewBot(token, &gotgbot.BotOpts{
		DisableTokenCheck: true,
		BotClient: &gotgbot.BaseBotClient{
			Client: http.Client{},
			DefaultRequestOpts: &gotgbot.RequestOpts{
				Timeout: requestTimeout,
				APIURL:  apiURL,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Client{bot: b}, nil
}

// Bot returns the underlying gotgbot bot.
func (c *Client) Bot() *gotgbot.Bot { return c.bot }

// SendMessage implements platform.Client.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *platform.SendOptions) (int64, error) {
	msg, err := c.bot.SendMessageWithContext(ctx, chatID, text, sendMessageOpts(opts))
	if err != nil {
		return 0, fmt.Errorf("telegram: sendMessage: %w", err)
	}
	return msg.MessageId, nil
}

// SendChallenge implements platform.Client.
func (c *Client) SendChallenge(ctx context.Context, chatID int64, text string, keyboard platform.Keyboard) (int64, error) {
	return c.SendMessage(ctx, chatID, text, &platform.SendOptions{
		ParseMode: platform.ParseModeMarkdown,
		Keyboard:  keyboard,
	})
}

// DeleteMessage implements platform.Client.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if _, err := c.bot.DeleteMessageWithContext(ctx, chatID, messageID, nil); err != nil {
		return fmt.Errorf("telegram: deleteMessage: %w", err)
	}
	return nil
}

// KickChatMember implements platform.Client. The user is banned, then
// unbanned so they may join again later.
func (c *Client) KickChatMember(ctx context.Context, chatID, userID int64) error {
	if _, err := c.bot.BanChatMemberWithContext(ctx, chatID, userID, nil); err != nil {
		return fmt.Errorf("telegram: banChatMember: %w", err)
	}
	if _, err := c.bot.UnbanChatMemberWithContext(ctx, chatID, userID, &gotgbot.UnbanChatMemberOpts{
		OnlyIfBanned: true,
	}); err != nil {
		return fmt.Errorf("telegram: unbanChatMember: %w", err)
	}
	return nil
}

// GetChatAdministrators implements platform.Client.
func (c *Client) GetChatAdministrators(ctx context.Context, chatID int64) ([]platform.Member, error) {
	admins, err := c.bot.GetChatAdministratorsWithContext(ctx, chatID, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: getChatAdministrators: %w", err)
	}
	out := make([]platform.Member, 0, len(admins))
	for _, m := range admins {
		out = append(out, convertMember(m.MergeChatMember()))
	}
	return out, nil
}

// AnswerCallbackQuery implements platform.Client.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string, opts platform.AnswerOptions) error {
	if _, err := c.bot.AnswerCallbackQueryWithContext(ctx, callbackID, &gotgbot.AnswerCallbackQueryOpts{
		Text:      opts.Text,
		ShowAlert: opts.ShowAlert,
	}); err != nil {
		return fmt.Errorf("telegram: answerCallbackQuery: %w", err)
	}
	return nil
}

// GetMe implements platform.Client.
func (c *Client) GetMe(ctx context.Context) (platform.User, error) {
	u, err := c.bot.GetMeWithContext(ctx, nil)
	if err != nil {
		return platform.User{}, fmt.Errorf("telegram: getMe: %w", err)
	}
	return convertUser(*u), nil
}

// SendDice implements platform.Client.
func (c *Client) SendDice(ctx context.Context, chatID int64, emoji string) error {
	if _, err := c.bot.SendDiceWithContext(ctx, chatID, &gotgbot.SendDiceOpts{Emoji: emoji}); err != nil {
		return fmt.Errorf("telegram: sendDice: %w", err)
	}
	return nil
}

// GetMyCommands implements platform.Client.
func (c *Client) GetMyCommands(ctx context.Context) ([]platform.CommandInfo, error) {
	cmds, err := c.bot.GetMyCommandsWithContext(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: getMyCommands: %w", err)
	}
	out := make([]platform.CommandInfo, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, platform.CommandInfo{Command: cmd.Command, Description: cmd.Description})
	}
	return out, nil
}

// SetMyCommands implements platform.Client.
func (c *Client) SetMyCommands(ctx context.Context, commands []platform.CommandInfo) error {
	if _, err := c.bot.SetMyCommandsWithContext(ctx, botCommands(commands), nil); err != nil {
		return fmt.Errorf("telegram: setMyCommands: %w", err)
	}
	return nil
}

// SetWebhook points Telegram at url.
func (c *Client) SetWebhook(ctx context.Context, url, secret string, allowedUpdates []string) error {
	if _, err := c.bot.SetWebhookWithContext(ctx, url, &gotgbot.SetWebhookOpts{
		SecretToken:    secret,
		AllowedUpdates: allowedUpdates,
	}); err != nil {
		return fmt.Errorf("telegram: setWebhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes the webhook so polling can be used again.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if _, err := c.bot.DeleteWebhookWithContext(ctx, nil); err != nil {
		return fmt.Errorf("telegram: deleteWebhook: %w", err)
	}
	return nil
}
