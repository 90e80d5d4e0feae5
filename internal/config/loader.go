package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DotEnvFile is read from the config file's directory on every Load.
const DotEnvFile = ".env"

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads the YAML file at path, expands ${VAR} references and decodes
// it. Variables resolve from the process environment first, then from a
// .env file beside the config. The .env file is re-read on each call and
// never copied into the process environment, so a reload picks up a
// rotated secret. Unknown top-level keys are rejected.
func Load(path string) (*Config, error) {
	dotenv, err := readDotEnv(filepath.Join(filepath.Dir(path), DotEnvFile))
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw, lookupWith(dotenv))
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: %s is empty", path)
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(path)
	}
	return &cfg, nil
}

// readDotEnv parses a .env file. A missing file yields no variables.
func readDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	return vars, nil
}

// lookupWith resolves a variable from the environment, then from dotenv.
func lookupWith(dotenv map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := dotenv[name]
		return v, ok
	}
}

// expandEnv replaces ${VAR} and ${VAR:-default} in raw. Every variable
// that has neither a value nor a default is reported.
func expandEnv(raw []byte, lookup func(string) (string, bool)) ([]byte, error) {
	var errs []error

	out := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])

		if value, ok := lookup(name); ok {
			return []byte(value)
		}
		if subs[2] != nil {
			return subs[2]
		}
		errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return out, errors.Join(errs...)
}
