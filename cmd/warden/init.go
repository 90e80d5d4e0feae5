package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{5,}$`)

// answers collects the init wizard input.
type answers struct {
	Token        string
	Mode         string
	WebhookURL   string
	Store        string
	Groups       string
	Admins       string
	Gateway      bool
	Bind         string
	GitHubRelay  bool
	GitHubToken  string
	GitHubSecret string
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter configuration interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", out)
			}

			a := answers{Mode: "polling", Store: "bolt", Bind: "127.0.0.1:8080", Gateway: true}
			if err := runWizard(&a); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}

			cfg, env, err := renderConfig(a)
			if err != nil {
				return err
			}
			if err := writeStarter(out, cfg, env); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s\n", out, filepath.Join(filepath.Dir(out), ".env"))
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "warden.yaml", "Configuration file to write")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

func runWizard(a *answers) error {
	base := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				Description("From @BotFather").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if !tokenPattern.MatchString(strings.TrimSpace(s)) {
						return errors.New("expected <digits>:<secret>")
					}
					return nil
				}).
				Value(&a.Token),
			huh.NewSelect[string]().
				Title("Update delivery").
				Options(
					huh.NewOption("Long polling", "polling"),
					huh.NewOption("Webhook (needs the HTTP gateway)", "webhook"),
				).
				Value(&a.Mode),
			huh.NewSelect[string]().
				Title("Verification store").
				Options(
					huh.NewOption("Bolt file", "bolt"),
					huh.NewOption("SQLite", "sqlite"),
					huh.NewOption("Memory (lost on restart)", "memory"),
				).
				Value(&a.Store),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Whitelisted group IDs").
				Description("Comma separated, empty allows every group").
				Validate(validateIDs).
				Value(&a.Groups),
			huh.NewInput().
				Title("Bot admin user IDs").
				Description("Comma separated").
				Validate(validateIDs).
				Value(&a.Admins),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Enable the HTTP gateway?").Value(&a.Gateway),
			huh.NewConfirm().Title("Relay GitHub build commands?").Value(&a.GitHubRelay),
		),
	)
	if err := base.Run(); err != nil {
		return err
	}

	var extra []huh.Field
	if a.Mode == "webhook" {
		a.Gateway = true
		extra = append(extra, huh.NewInput().
			Title("Public webhook URL").
			Placeholder("https://bot.example.com/webhooks/telegram").
			Validate(func(s string) error {
				if !strings.HasPrefix(s, "https://") {
					return errors.New("must be an https URL")
				}
				return nil
			}).
			Value(&a.WebhookURL))
	}
	if a.Gateway || a.GitHubRelay {
		a.Gateway = true
		extra = append(extra, huh.NewInput().Title("Gateway bind address").Value(&a.Bind))
	}
	if a.GitHubRelay {
		extra = append(extra,
			huh.NewInput().Title("GitHub token").EchoMode(huh.EchoModePassword).Value(&a.GitHubToken),
			huh.NewInput().Title("GitHub webhook secret").EchoMode(huh.EchoModePassword).Value(&a.GitHubSecret),
		)
	}
	if len(extra) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(extra...)).Run()
}

func validateIDs(s string) error {
	_, err := parseIDs(s)
	return err
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a numeric ID", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func randomSecret() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// renderConfig builds the starter YAML. Secrets go to the returned env map
// and are referenced as ${VAR} from the YAML.
func renderConfig(a answers) ([]byte, map[string]string, error) {
	groups, err := parseIDs(a.Groups)
	if err != nil {
		return nil, nil, err
	}
	admins, err := parseIDs(a.Admins)
	if err != nil {
		return nil, nil, err
	}

	env := map[string]string{"WARDEN_TELEGRAM_TOKEN": strings.TrimSpace(a.Token)}

	telegram := map[string]any{
		"token": "${WARDEN_TELEGRAM_TOKEN}",
		"mode":  a.Mode,
	}
	if a.Mode == "webhook" {
		env["WARDEN_WEBHOOK_SECRET"] = randomSecret()
		telegram["webhook_url"] = a.WebhookURL
		telegram["webhook_secret"] = "${WARDEN_WEBHOOK_SECRET}"
	}
	if a.Store == "memory" {
		telegram["verification"] = map[string]any{"store": "memory"}
	}
	if len(groups) > 0 {
		telegram["whitelist"] = map[string]any{"enabled": true, "groups": groups}
	}
	if len(admins) > 0 {
		telegram["admin_users"] = admins
	}

	modules := map[string]any{"channel.telegram": telegram}
	switch a.Store {
	case "bolt":
		modules["store.bolt"] = map[string]any{}
	case "sqlite":
		modules["store.sqlite"] = map[string]any{}
	}
	if a.Gateway {
		env["WARDEN_ADMIN_TOKEN"] = randomSecret()
		modules["gateway.http"] = map[string]any{
			"bind": a.Bind,
			"auth": map[string]any{"bearer_token": "${WARDEN_ADMIN_TOKEN}"},
		}
	}
	if a.GitHubRelay {
		env["WARDEN_GITHUB_TOKEN"] = a.GitHubToken
		env["WARDEN_GITHUB_SECRET"] = a.GitHubSecret
		modules["relay.github"] = map[string]any{
			"token":  "${WARDEN_GITHUB_TOKEN}",
			"secret": "${WARDEN_GITHUB_SECRET}",
		}
	}

	doc := map[string]any{
		"version": "1",
		"log":     map[string]any{"level": "info", "format": "text"},
		"modules": modules,
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode config: %w", err)
	}
	return out, env, nil
}

func writeStarter(path string, cfg []byte, env map[string]string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, cfg, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Write(env, envPath); err != nil {
		return fmt.Errorf("write %s: %w", envPath, err)
	}
	return os.Chmod(envPath, 0o600)
}
