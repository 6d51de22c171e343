// Package config loads node configuration from YAML and validates it
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/dynamoRando/rcd-sub004/internal/notify"
)

//go:embed schema.cue
var schemaSource string

// Config is a node's configuration file.
type Config struct {
	Name       string    `yaml:"name" json:"name"`
	DataDir    string    `yaml:"data_dir" json:"data_dir"`
	Listen     string    `yaml:"listen" json:"listen"`
	Addresses  []string  `yaml:"addresses" json:"addresses"`
	BcryptCost int       `yaml:"bcrypt_cost" json:"bcrypt_cost"`
	Transport  Transport `yaml:"transport" json:"transport"`
	Log        Log       `yaml:"log" json:"log"`
}

// Transport selects how this node reaches others.
type Transport struct {
	Kind    string `yaml:"kind" json:"kind"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Defaults.
const (
	DefaultName    = "coop"
	DefaultDataDir = "./data"
	DefaultListen  = "127.0.0.1:7400"
)

// Default returns a configuration with every default applied.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads path. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, fills defaults and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if len(c.Addresses) == 0 {
		c.Addresses = []string{c.Listen}
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = notify.KindHTTP.String()
	}
	if c.Transport.Timeout == "" {
		c.Transport.Timeout = notify.DefaultTimeout.String()
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks c against the schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Node"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		msgs := make([]string, 0, 1)
		for _, e := range cueerrors.Errors(err) {
			msgs = append(msgs, e.Error())
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	if _, err := c.Timeout(); err != nil {
		return fmt.Errorf("invalid config: transport.timeout: %w", err)
	}
	return nil
}

// Timeout parses Transport.Timeout.
func (c Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Transport.Timeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

// TransportKind parses Transport.Kind.
func (c Config) TransportKind() (notify.Kind, error) {
	return notify.ParseKind(c.Transport.Kind)
}

// Level returns the configured slog level, or debug when verbose.
func (c Config) Level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the logger described by c, writing to w.
func (c Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level(verbose)}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
