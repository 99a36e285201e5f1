package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the termbridge config file: named contexts, one per supervisor
// (workspace), and the context used when none is named.
//
//	currentContext: dev
//	contexts:
//	  dev:
//	    supervisor: localhost:22999
//	    recordDir: ~/.termbridge/transcripts
type Config struct {
	CurrentContext string              `yaml:"currentContext"`
	Contexts       map[string]*Context `yaml:"contexts"`
}

// Context holds everything needed to mirror one workspace's terminals.
type Context struct {
	Supervisor     string `yaml:"supervisor"`
	TLS            bool   `yaml:"tls,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
	RecordDir      string `yaml:"recordDir,omitempty"`
	NATSURL        string `yaml:"natsURL,omitempty"`
	NATSSubject    string `yaml:"natsSubject,omitempty"`
	NATSUser       string `yaml:"natsUser,omitempty"`
	NATSPassword   string `yaml:"natsPassword,omitempty"`
	ForwardInput   bool   `yaml:"forwardInput,omitempty"`
}

// ErrContextNotFound indicates the requested context is missing.
var ErrContextNotFound = errors.New("context not found")

// Load reads and validates the config at path. A missing file is not an
// error: it yields a nil Config. Relative record directories are taken
// relative to the file.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := expandPath(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(file)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, err
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	for _, c := range cfg.Contexts {
		switch {
		case c.RecordDir == "" || filepath.IsAbs(c.RecordDir):
		case strings.HasPrefix(c.RecordDir, "~"):
			if c.RecordDir, err = expandPath(c.RecordDir); err != nil {
				return nil, err
			}
		default:
			c.RecordDir = filepath.Join(filepath.Dir(file), c.RecordDir)
		}
	}
	return cfg, nil
}

// Validate checks values the CLI cannot repair on its own.
func (c *Config) Validate() error {
	for name, ctx := range c.Contexts {
		if ctx == nil {
			return fmt.Errorf("context %q is empty", name)
		}
		if ctx.TimeoutSeconds < 0 {
			return fmt.Errorf("context %q: timeoutSeconds must not be negative", name)
		}
		if ctx.NATSPassword != "" && ctx.NATSUser == "" {
			return fmt.Errorf("context %q: natsPassword needs natsUser", name)
		}
		if strings.ContainsAny(ctx.NATSSubject, " \t*>") {
			return fmt.Errorf("context %q: natsSubject %q must be a literal subject", name, ctx.NATSSubject)
		}
	}
	if c.CurrentContext != "" {
		if _, ok := c.Contexts[c.CurrentContext]; !ok {
			return fmt.Errorf("currentContext: %w: %s", ErrContextNotFound, c.CurrentContext)
		}
	}
	return nil
}

// Save writes the config atomically, creating the directory if needed.
func (c *Config) Save(path string) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	file, err := expandPath(path)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), file)
}

// Resolve returns the named context, or the current one when name is
// empty. Neither being set is not an error; the context is then nil.
func (c *Config) Resolve(name string) (*Context, string, error) {
	if c == nil {
		return nil, "", nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = c.CurrentContext
	}
	if name == "" {
		return nil, "", nil
	}
	if ctx, ok := c.Contexts[name]; ok {
		return ctx, name, nil
	}
	return nil, name, fmt.Errorf("%w: %s", ErrContextNotFound, name)
}

// ContextNames lists the configured contexts, sorted.
func (c *Config) ContextNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// expandPath resolves "~" and makes path absolute.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return filepath.Abs(path)
}
