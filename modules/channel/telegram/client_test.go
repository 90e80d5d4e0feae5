package telegram

import (
	"context"
	"strings"
	"testing"

	"github.com/flemzord/warden/internal/platform"
)

func TestClient_GetMe(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	c := newTestClient(t, api)

	me, err := c.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe: %v", err)
	}
	if me.ID != 111 || me.Username != "warden_bot" || !me.IsBot {
		t.Errorf("GetMe = %+v", me)
	}
}

func TestClient_SendChallenge(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.setResult("sendMessage", map[string]any{
		"message_id": 77,
		"date":       0,
		"chat":       map[string]any{"id": -100, "type": "supergroup"},
	})
	c := newTestClient(t, api)

	id, err := c.SendChallenge(context.Background(), -100, "pick", platform.Keyboard{
		{{Text: "3", Data: "verify_123_0"}, {Text: "4", Data: "verify_123_1"}},
	})
	if err != nil {
		t.Fatalf("SendChallenge: %v", err)
	}
	if id != 77 {
		t.Errorf("message id = %d, want 77", id)
	}

	calls := api.callsTo("sendMessage")
	if len(calls) != 1 {
		t.Fatalf("sendMessage calls = %d, want 1", len(calls))
	}
	p := calls[0].Params
	if p["chat_id"] != "-100" || p["text"] != "pick" || p["parse_mode"] != platform.ParseModeMarkdown {
		t.Errorf("params = %v", p)
	}
	if !strings.Contains(p["reply_markup"], `"callback_data":"verify_123_1"`) {
		t.Errorf("reply_markup = %s", p["reply_markup"])
	}
}

func TestClient_KickBansThenUnbans(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	c := newTestClient(t, api)

	if err := c.KickChatMember(context.Background(), -100, 42); err != nil {
		t.Fatalf("KickChatMember: %v", err)
	}

	got := api.methods()
	if len(got) != 2 || got[0] != "banChatMember" || got[1] != "unbanChatMember" {
		t.Fatalf("methods = %v, want ban then unban", got)
	}
	unban := api.callsTo("unbanChatMember")[0].Params
	if unban["user_id"] != "42" || unban["only_if_banned"] != "true" {
		t.Errorf("unban params = %v", unban)
	}
}

func TestClient_KickStopsOnBanFailure(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.setError("banChatMember", "Bad Request: not enough rights")
	c := newTestClient(t, api)

	err := c.KickChatMember(context.Background(), -100, 42)
	if err == nil || !strings.Contains(err.Error(), "banChatMember") {
		t.Fatalf("err = %v, want banChatMember failure", err)
	}
	if n := len(api.callsTo("unbanChatMember")); n != 0 {
		t.Errorf("unban calls = %d, want 0", n)
	}
}

func TestClient_GetChatAdministrators(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.setResult("getChatAdministrators", []any{
		map[string]any{
			"status": "creator",
			"user":   map[string]any{"id": 1, "is_bot": false, "first_name": "Owner"},
		},
		map[string]any{
			"status":               "administrator",
			"user":                 map[string]any{"id": 111, "is_bot": true, "first_name": "Warden"},
			"can_delete_messages":  true,
			"can_restrict_members": true,
		},
	})
	c := newTestClient(t, api)

	admins, err := c.GetChatAdministrators(context.Background(), -100)
	if err != nil {
		t.Fatalf("GetChatAdministrators: %v", err)
	}
	if len(admins) != 2 {
		t.Fatalf("admins = %d, want 2", len(admins))
	}
	if admins[0].Status != "creator" || admins[0].User.ID != 1 {
		t.Errorf("admins[0] = %+v", admins[0])
	}
	bot := admins[1]
	if !bot.User.IsBot || !bot.Rights.CanDeleteMessages || !bot.Rights.CanRestrictMembers || bot.Rights.CanPinMessages {
		t.Errorf("admins[1] = %+v", bot)
	}
}

func TestClient_Commands(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.setResult("getMyCommands", []any{
		map[string]any{"command": "help", "description": "帮助"},
	})
	c := newTestClient(t, api)

	got, err := c.GetMyCommands(context.Background())
	if err != nil {
		t.Fatalf("GetMyCommands: %v", err)
	}
	if len(got) != 1 || got[0].Command != "help" {
		t.Errorf("GetMyCommands = %+v", got)
	}

	if err := c.SetMyCommands(context.Background(), []platform.CommandInfo{{Command: "dice", Description: "掷骰子"}}); err != nil {
		t.Fatalf("SetMyCommands: %v", err)
	}
	set := api.callsTo("setMyCommands")
	if len(set) != 1 || !strings.Contains(set[0].Params["commands"], `"command":"dice"`) {
		t.Errorf("setMyCommands calls = %+v", set)
	}
}

func TestClient_AnswerAndDelete(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	c := newTestClient(t, api)

	if err := c.AnswerCallbackQuery(context.Background(), "cb-1", platform.AnswerOptions{Text: "✅", ShowAlert: true}); err != nil {
		t.Fatalf("AnswerCallbackQuery: %v", err)
	}
	if err := c.DeleteMessage(context.Background(), -100, 77); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}

	answer := api.callsTo("answerCallbackQuery")[0].Params
	if answer["callback_query_id"] != "cb-1" || answer["show_alert"] != "true" {
		t.Errorf("answer params = %v", answer)
	}
	del := api.callsTo("deleteMessage")[0].Params
	if del["message_id"] != "77" {
		t.Errorf("delete params = %v", del)
	}
}
