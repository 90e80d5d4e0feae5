package builtin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/flemzord/warden/internal/command"
	"github.com/flemzord/warden/internal/platform"
	"github.com/flemzord/warden/internal/plugin"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Help answers /help with the command list, or with the commands closest
// to a query for /help <query>.
type Help struct {
	client   platform.Client
	commands func() []platform.CommandInfo
}

var (
	_ plugin.Initializer    = (*Help)(nil)
	_ plugin.CommandHandler = (*Help)(nil)
)

func (h *Help) Name() string        { return "help" }
func (h *Help) Description() string { return "帮助插件 - 提供 /help 命令" }

func (h *Help) Commands() []platform.CommandInfo {
	return []platform.CommandInfo{{Command: "help", Description: "显示帮助信息"}}
}

func (h *Help) Init(_ context.Context, deps plugin.Deps) error {
	if deps.Client == nil {
		return errors.New("help: platform client is required")
	}
	h.client = deps.Client
	h.commands = deps.Commands
	if h.commands == nil {
		h.commands = h.Commands
	}
	return nil
}

func (h *Help) HandleCommand(ctx context.Context, cmd string, msg platform.Message) (bool, error) {
	if cmd != "/help" {
		return false, nil
	}

	text := h.render(command.Args(msg.Text))
	for _, chunk := range platform.SplitText(text, platform.MaxMessageLength) {
		if _, err := h.client.SendMessage(ctx, msg.Chat.ID, chunk, nil); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (h *Help) render(query string) string {
	cmds := dedupe(h.commands())

	var b strings.Builder
	b.WriteString("🤖 机器人帮助信息\n\n")

	if query == "" {
		b.WriteString("可用命令：\n")
		writeCommands(&b, cmds)
		return b.String()
	}

	query = strings.TrimPrefix(strings.ToLower(query), "/")
	byName := make(map[string]platform.CommandInfo, len(cmds))
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		byName[c.Command] = c
		names = append(names, c.Command)
	}

	ranks := fuzzy.RankFindFold(query, names)
	if len(ranks) == 0 {
		fmt.Fprintf(&b, "没有找到与 %q 匹配的命令。\n", query)
		return b.String()
	}
	sort.Sort(ranks)

	matches := make([]platform.CommandInfo, 0, len(ranks))
	for _, r := range ranks {
		matches = append(matches, byName[r.Target])
	}
	fmt.Fprintf(&b, "与 %q 匹配的命令：\n", query)
	writeCommands(&b, matches)
	return b.String()
}

func writeCommands(b *strings.Builder, cmds []platform.CommandInfo) {
	for _, c := range cmds {
		fmt.Fprintf(b, "/%s - %s\n", c.Command, c.Description)
	}
}

func dedupe(cmds []platform.CommandInfo) []platform.CommandInfo {
	seen := make(map[string]struct{}, len(cmds))
	out := make([]platform.CommandInfo, 0, len(cmds))
	for _, c := range cmds {
		if _, ok := seen[c.Command]; ok {
			continue
		}
		seen[c.Command] = struct{}{}
		out = append(out, c)
	}
	return out
}
