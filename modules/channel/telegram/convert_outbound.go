package telegram

import (
	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/flemzord/warden/internal/platform"
)

// sendMessageOpts maps platform send options to gotgbot options.
func sendMessageOpts(opts *platform.SendOptions) *gotgbot.SendMessageOpts {
	if opts == nil {
		return nil
	}
	out := &gotgbot.SendMessageOpts{ParseMode: opts.ParseMode}
	if len(opts.Keyboard) > 0 {
		out.ReplyMarkup = inlineKeyboard(opts.Keyboard)
	}
	if opts.DisableWebPagePreview {
		out.LinkPreviewOptions = &gotgbot.LinkPreviewOptions{IsDisabled: true}
	}
	return out
}

// inlineKeyboard converts button rows to callback buttons.
func inlineKeyboard(kb platform.Keyboard) gotgbot.InlineKeyboardMarkup {
	rows := make([][]gotgbot.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]gotgbot.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, gotgbot.InlineKeyboardButton{
				Text:         b.Text,
				CallbackData: b.Data,
			})
		}
		rows = append(rows, buttons)
	}
	return gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func botCommands(commands []platform.CommandInfo) []gotgbot.BotCommand {
	out := make([]gotgbot.BotCommand, 0, len(commands))
	for _, c := range commands {
		out = append(out, gotgbot.BotCommand{Command: c.Command, Description: c.Description})
	}
	return out
}

// convertMember flattens a chat member into the platform view.
func convertMember(m gotgbot.MergedChatMember) platform.Member {
	return platform.Member{
		User:   convertUser(m.User),
		Status: m.Status,
		Rights: platform.AdminRights{
			CanManageChat:       m.CanManageChat,
			CanDeleteMessages:   m.CanDeleteMessages,
			CanRestrictMembers:  m.CanRestrictMembers,
			CanInviteUsers:      m.CanInviteUsers,
			CanPinMessages:      m.CanPinMessages,
			CanPromoteMembers:   m.CanPromoteMembers,
			CanChangeInfo:       m.CanChangeInfo,
			CanManageVideoChats: m.CanManageVideoChats,
			CanManageTopics:     m.CanManageTopics,
			CanPostStories:      m.CanPostStories,
			CanEditStories:      m.CanEditStories,
			CanDeleteStories:    m.CanDeleteStories,
			CanBeEdited:         m.CanBeEdited,
			IsAnonymous:         m.IsAnonymous,
		},
	}
}
