package builtin

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/flemzord/warden/internal/platform"
	"github.com/flemzord/warden/internal/plugin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is a snapshot of the machine running the bot.
type HostStats struct {
	Hostname   string
	Platform   string
	Uptime     time.Duration
	CPUCount   int
	CPUPercent float64
	MemUsed    uint64
	MemTotal   uint64
	MemPercent float64
}

// Sysinfo answers /status with host statistics.
type Sysinfo struct {
	client  platform.Client
	collect func(ctx context.Context) (HostStats, error)
	started time.Time
}

var (
	_ plugin.Initializer    = (*Sysinfo)(nil)
	_ plugin.CommandHandler = (*Sysinfo)(nil)
)

// NewSysinfo returns a Sysinfo reading live host statistics.
func NewSysinfo() *Sysinfo {
	return &Sysinfo{collect: collectHostStats}
}

func (s *Sysinfo) Name() string        { return "sysinfo" }
func (s *Sysinfo) Description() string { return "系统信息插件 - 提供 /status 命令" }

func (s *Sysinfo) Commands() []platform.CommandInfo {
	return []platform.CommandInfo{{Command: "status", Description: "显示运行状态"}}
}

func (s *Sysinfo) Init(_ context.Context, deps plugin.Deps) error {
	if deps.Client == nil {
		return errors.New("sysinfo: platform client is required")
	}
	s.client = deps.Client
	s.started = time.Now()
	if s.collect == nil {
		s.collect = collectHostStats
	}
	return nil
}

func (s *Sysinfo) HandleCommand(ctx context.Context, command string, msg platform.Message) (bool, error) {
	if command != "/status" {
		return false, nil
	}
	stats, err := s.collect(ctx)
	if err != nil {
		return false, fmt.Errorf("sysinfo: collecting host stats: %w", err)
	}
	if _, err := s.client.SendMessage(ctx, msg.Chat.ID, s.render(stats), nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Sysinfo) render(st HostStats) string {
	var b strings.Builder
	b.WriteString("📊 运行状态\n\n")
	fmt.Fprintf(&b, "🖥 主机: %s (%s)\n", st.Hostname, st.Platform)
	fmt.Fprintf(&b, "⏱ 系统运行: %s\n", st.Uptime.Truncate(time.Second))
	fmt.Fprintf(&b, "🤖 机器人运行: %s\n", time.Since(s.started).Truncate(time.Second))
	fmt.Fprintf(&b, "🔥 CPU: %d 核, %.1f%%\n", st.CPUCount, st.CPUPercent)
	fmt.Fprintf(&b, "🧠 内存: %.1f%% (%d MB / %d MB)\n", st.MemPercent, st.MemUsed/1024/1024, st.MemTotal/1024/1024)
	fmt.Fprintf(&b, "🐹 Goroutines: %d", runtime.NumGoroutine())
	return b.String()
}

func collectHostStats(ctx context.Context) (HostStats, error) {
	var st HostStats

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return st, err
	}
	st.Hostname = info.Hostname
	st.Platform = info.Platform
	st.Uptime = time.Duration(info.Uptime) * time.Second

	if st.CPUCount, err = cpu.CountsWithContext(ctx, true); err != nil {
		return st, err
	}
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return st, err
	}
	if len(percents) > 0 {
		st.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return st, err
	}
	st.MemUsed = vm.Used
	st.MemTotal = vm.Total
	st.MemPercent = vm.UsedPercent
	return st, nil
}
