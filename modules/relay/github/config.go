package github

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Config holds the GitHub relay configuration.
type Config struct {
	// Secret is the webhook HMAC secret checked by the gateway.
	Secret string `yaml:"secret"`
	// Token authenticates workflow dispatches.
	Token  string `yaml:"token"`
	APIURL string `yaml:"api_url"`

	// Mention is the bot handle commands are addressed to.
	Mention        string  `yaml:"mention"`
	AllowedSenders []int64 `yaml:"allowed_senders"`

	Workflow WorkflowConfig `yaml:"workflow"`

	Timeout time.Duration `yaml:"timeout"`
}

// WorkflowConfig names the workflow triggered by build commands.
type WorkflowConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	File  string `yaml:"file"`
	Ref   string `yaml:"ref"`
}

func (c *Config) defaults() {
	if c.APIURL == "" {
		c.APIURL = "https://api.github.com"
	}
	if c.Mention == "" {
		c.Mention = "@loneros-bot"
	}
	if c.Workflow.Owner == "" {
		c.Workflow.Owner = "lonerOrz"
	}
	if c.Workflow.Repo == "" {
		c.Workflow.Repo = "nixpkgs-review-gha"
	}
	if c.Workflow.File == "" {
		c.Workflow.File = "build-pr.yml"
	}
	if c.Workflow.Ref == "" {
		c.Workflow.Ref = "main"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("github: api_url must be a valid http/https URL, got %q", c.APIURL)
	}
	if !strings.HasPrefix(c.Mention, "@") || len(c.Mention) < 2 {
		return fmt.Errorf("github: mention must look like @name, got %q", c.Mention)
	}
	for field, v := range map[string]string{
		"workflow.owner": c.Workflow.Owner,
		"workflow.repo":  c.Workflow.Repo,
		"workflow.file":  c.Workflow.File,
	} {
		if strings.ContainsAny(v, "/ ") {
			return fmt.Errorf("github: %s must be a single path segment, got %q", field, v)
		}
	}
	if c.Token == "" {
		return errors.New("github: token is required to dispatch workflows")
	}
	return nil
}

// senderAllowed reports whether id may run commands. An empty list
// allows everyone.
func (c *Config) senderAllowed(id int64) bool {
	return len(c.AllowedSenders) == 0 || slices.Contains(c.AllowedSenders, id)
}
