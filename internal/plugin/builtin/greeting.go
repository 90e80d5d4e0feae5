package builtin

import (
	"context"
	"errors"

	"github.com/flemzord/warden/internal/platform"
	"github.com/flemzord/warden/internal/plugin"
)

// Greeting answers /greet.
type Greeting struct {
	client platform.Client
}

var (
	_ plugin.Initializer    = (*Greeting)(nil)
	_ plugin.CommandHandler = (*Greeting)(nil)
)

func (g *Greeting) Name() string        { return "greeting" }
func (g *Greeting) Description() string { return "问候插件 - 提供 /greet 命令" }

func (g *Greeting) Commands() []platform.CommandInfo {
	return []platform.CommandInfo{{Command: "greet", Description: "提供个性化问候"}}
}

func (g *Greeting) Init(_ context.Context, deps plugin.Deps) error {
	if deps.Client == nil {
		return errors.New("greeting: platform client is required")
	}
	g.client = deps.Client
	return nil
}

func (g *Greeting) HandleCommand(ctx context.Context, command string, msg platform.Message) (bool, error) {
	if command != "/greet" {
		return false, nil
	}
	if _, err := g.client.SendMessage(ctx, msg.Chat.ID, "👋 你好！欢迎使用机器人插件系统！", nil); err != nil {
		return false, err
	}
	return true, nil
}
