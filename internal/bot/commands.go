package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/warden/internal/command"
	"github.com/flemzord/warden/internal/event"
	"github.com/flemzord/warden/internal/guard"
	"github.com/flemzord/warden/internal/platform"
	"github.com/flemzord/warden/internal/plugin"
)

// DiceEmoji is the animated emoji sent by /dice.
const DiceEmoji = "🎲"

func (r *Router) registerBuiltins() {
	r.registry.
		Register("/checkbot", r.checkBot, command.Policy{RequiresGroup: true}, "检查机器人权限").
		Register("/hello", r.hello, command.Policy{RequiresWhitelist: true}, "问候命令").
		Register("/testverify", r.testVerify, command.Policy{}, "测试验证逻辑").
		Register("/dice", r.dice, command.Policy{RequiresWhitelist: true}, "掷骰子").
		Register("/plugins", r.managePlugins, command.Policy{}, "")
}

func (r *Router) checkBot(ctx context.Context, client platform.Client, msg platform.Message) error {
	member, err := guard.RequireBotAdmin(ctx, client, msg.Chat.ID)
	if err != nil {
		return err
	}
	r.bus.Emit(ctx, event.PermissionChecked, map[string]any{
		"chatId":  msg.Chat.ID,
		"granted": guard.GrantedCount(member.Rights),
	})
	_, err = client.SendMessage(ctx, msg.Chat.ID, guard.PermissionReport(member.Rights), &platform.SendOptions{
		ParseMode: platform.ParseModeMarkdown,
	})
	return err
}

func (r *Router) hello(ctx context.Context, client platform.Client, msg platform.Message) error {
	text := fmt.Sprintf("✅ Thanks for your message: *\"%s\"*\nHave a great day! 👋🏻", platform.EscapeMarkdown(msg.Text))
	_, err := client.SendMessage(ctx, msg.Chat.ID, text, &platform.SendOptions{
		ParseMode: platform.ParseModeMarkdown,
	})
	return err
}

func (r *Router) testVerify(ctx context.Context, client platform.Client, msg platform.Message) error {
	if err := r.guard.CheckGroup(msg.Chat); err != nil {
		return err
	}
	if _, err := guard.RequireBotAdmin(ctx, client, msg.Chat.ID); err != nil {
		return err
	}
	return r.engine.IssueChallengeUnchecked(ctx, msg.Chat.ID, msg.From)
}

func (r *Router) dice(ctx context.Context, client platform.Client, msg platform.Message) error {
	return client.SendDice(ctx, msg.Chat.ID, DiceEmoji)
}

// managePlugins lists plugins, or toggles one with
// "/plugins enable <name>" and "/plugins disable <name>". Restricted to the
// configured admin users.
func (r *Router) managePlugins(ctx context.Context, client platform.Client, msg platform.Message) error {
	reply := func(text string) error {
		_, err := client.SendMessage(ctx, msg.Chat.ID, text, nil)
		return err
	}

	if !r.guard.IsAdminUser(msg.From.ID) {
		return reply("❌ 只有机器人管理员可以管理插件。")
	}

	args := strings.Fields(command.Args(msg.Text))
	if len(args) == 0 {
		return reply(renderPluginList(r.plugins.List()))
	}
	if len(args) != 2 || (args[0] != "enable" && args[0] != "disable") {
		return reply("用法：/plugins [enable|disable <名称>]")
	}

	action, name := args[0], args[1]
	err := r.SetPluginEnabled(ctx, name, action == "enable")
	switch {
	case errors.Is(err, plugin.ErrPluginNotFound):
		return reply(fmt.Sprintf("❌ 未找到插件 %s", name))
	case err != nil:
		return err
	}
	if action == "enable" {
		return reply(fmt.Sprintf("✅ 插件 %s 已启用", name))
	}
	return reply(fmt.Sprintf("⏸ 插件 %s 已停用", name))
}

// SetPluginEnabled enables or disables a loaded plugin and re-publishes the
// command menu. A failed menu sync is logged, not returned.
func (r *Router) SetPluginEnabled(ctx context.Context, name string, enabled bool) error {
	var err error
	if enabled {
		err = r.plugins.Enable(ctx, name)
	} else {
		err = r.plugins.Disable(ctx, name)
	}
	if err != nil {
		return err
	}
	if _, syncErr := r.SyncCommands(ctx); syncErr != nil {
		r.logger.Warn("command menu sync failed", "error", syncErr)
	}
	return nil
}

// PluginStatus lists loaded plugins in load order.
func (r *Router) PluginStatus() []plugin.Status { return r.plugins.List() }

func renderPluginList(list []plugin.Status) string {
	if len(list) == 0 {
		return "没有已加载的插件。"
	}
	var b strings.Builder
	b.WriteString("🧩 插件列表\n\n")
	for _, s := range list {
		mark := "⏸"
		if s.Enabled {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s - %s\n", mark, s.Name, s.Description)
	}
	return b.String()
}
