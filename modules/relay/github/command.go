package github

import (
	"regexp"
	"strings"
)

// Option keys sent as workflow inputs, in dispatch order.
const (
	OptX86Linux    = "x86_64-linux"
	OptAarchLinux  = "aarch64-linux"
	OptX86Darwin   = "x86_64-darwin"
	OptAarchDarwin = "aarch64-darwin"
	OptUpterm      = "upterm"
	OptPostResult  = "post-result"
)

var optionKeys = []string{OptX86Linux, OptAarchLinux, OptX86Darwin, OptAarchDarwin, OptUpterm, OptPostResult}

// sandboxRelaxed is the default darwin build mode.
const sandboxRelaxed = "yes_sandbox_relaxed"

var shorthands = map[string]string{
	"x86":    OptX86Linux,
	"aarch":  OptAarchLinux,
	"x86d":   OptX86Darwin,
	"aarchd": OptAarchDarwin,
	"term":   OptUpterm,
	"result": OptPostResult,
}

// BuildOptions maps option keys to a bool or a string mode.
type BuildOptions map[string]any

// DefaultBuildOptions returns a fresh copy of the default options.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		OptX86Linux:    true,
		OptAarchLinux:  true,
		OptX86Darwin:   sandboxRelaxed,
		OptAarchDarwin: sandboxRelaxed,
		OptUpterm:      false,
		OptPostResult:  true,
	}
}

// Command is a bot command found in a comment.
type Command struct {
	Name string
	Args string
}

// CommandParser finds "<mention> <command> [args]" in comment bodies.
type CommandParser struct {
	re *regexp.Regexp
}

// NewCommandParser builds a parser for mention, e.g. "@loneros-bot".
func NewCommandParser(mention string) *CommandParser {
	return &CommandParser{
		re: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(mention) + `\s+(\w+)(?:\s+(.+))?`),
	}
}

// Parse returns the first command in body. The name is lower-cased and
// the arguments trimmed.
func (p *CommandParser) Parse(body string) (Command, bool) {
	m := p.re.FindStringSubmatch(body)
	if m == nil {
		return Command{}, false
	}
	return Command{
		Name: strings.ToLower(m[1]),
		Args: strings.TrimSpace(m[2]),
	}, true
}

// ParseBuildArgs splits build arguments into the package name and options.
//
//	+key         enable (bool true, or the default mode)
//	-key         disable (bool false, or "no")
//	--key=value  set
//	--key value  set
//	--key        set true
//
// Keys may be shorthands. Unknown keys are ignored.
func ParseBuildArgs(args string) (string, BuildOptions) {
	tokens := strings.Fields(args)
	opts := DefaultBuildOptions()
	if len(tokens) == 0 {
		return "", opts
	}
	defaults := DefaultBuildOptions()

	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case strings.HasPrefix(tok, "--"):
			key, value, hasValue := strings.Cut(tok[2:], "=")
			key = resolveKey(key)
			switch {
			case hasValue:
				opts.set(key, parseOptionValue(value))
			case i+1 < len(tokens) && !isFlag(tokens[i+1]):
				opts.set(key, parseOptionValue(tokens[i+1]))
				i++
			default:
				opts.set(key, true)
			}
		case strings.HasPrefix(tok, "+"):
			key := resolveKey(tok[1:])
			if _, ok := defaults[key].(bool); ok {
				opts.set(key, true)
			} else {
				opts.set(key, defaults[key])
			}
		case strings.HasPrefix(tok, "-"):
			key := resolveKey(tok[1:])
			if _, ok := defaults[key].(bool); ok {
				opts.set(key, false)
			} else {
				opts.set(key, "no")
			}
		}
	}
	return tokens[0], opts
}

func (o BuildOptions) set(key string, v any) {
	if _, known := o[key]; known {
		o[key] = v
	}
}

func resolveKey(key string) string {
	if full, ok := shorthands[key]; ok {
		return full
	}
	return key
}

func isFlag(tok string) bool {
	return strings.HasPrefix(tok, "-") || strings.HasPrefix(tok, "+")
}

// parseOptionValue maps true/1/yes and false/0/no to booleans and keeps
// anything else as a string.
func parseOptionValue(v string) any {
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return v
	}
}
