// Package config loads querytree settings from defaults, a YAML file, the
// environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/templates"
)

// Supported engines.
const (
	EnginePostgres = "postgres"
	EngineMySQL    = "mysql"
	EngineSQLite   = "sqlite"
)

// Engines lists the supported engines in display order.
var Engines = []string{EnginePostgres, EngineMySQL, EngineSQLite}

// Defaults.
const (
	DefaultEngine   = EnginePostgres
	DefaultLogLevel = "info"
	DefaultMaxRows  = 1000
)

// FileNames are searched, in order, when no config file is given.
var FileNames = []string{"querytree.yaml", "querytree.yml"}

// Config holds the resolved settings.
type Config struct {
	Engine    string             `koanf:"engine"`
	DSN       string             `koanf:"dsn"`
	Dialect   string             `koanf:"dialect"`
	LogLevel  string             `koanf:"log_level"`
	Pretty    bool               `koanf:"pretty"`
	Strict    bool               `koanf:"strict"`
	MaxRows   int                `koanf:"max_rows"`
	Templates []TemplateOverride `koanf:"templates"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// TemplateOverride replaces or adds the template of one operator in a
// dialect.
type TemplateOverride struct {
	Dialect    string `koanf:"dialect"`
	Operator   string `koanf:"operator"`
	Pattern    string `koanf:"pattern"`
	Precedence int    `koanf:"precedence"`
}

// ErrUnknownEngine is returned for an engine outside Engines.
var ErrUnknownEngine = errors.New("unknown engine")

// Validate checks the engine, log level and template overrides.
func (c *Config) Validate() error {
	if !slices.Contains(Engines, c.Engine) {
		return fmt.Errorf("%w %q (want one of %s)", ErrUnknownEngine, c.Engine, strings.Join(Engines, ", "))
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.MaxRows < 0 {
		return fmt.Errorf("max_rows must not be negative, got %d", c.MaxRows)
	}
	for i, o := range c.Templates {
		if o.Operator == "" || o.Pattern == "" {
			return fmt.Errorf("templates[%d]: operator and pattern are required", i)
		}
	}
	return nil
}

// DialectName is the configured dialect, or the dialect matching the engine.
func (c *Config) DialectName() string {
	if c.Dialect != "" {
		return c.Dialect
	}
	switch c.Engine {
	case EngineMySQL:
		return templates.MySQLName
	case EngineSQLite:
		return templates.SQLiteName
	case EnginePostgres:
		return templates.PostgresName
	}
	return templates.ANSIName
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Registry returns the built-in dialects with the template overrides
// applied. A missing override dialect means the selected one.
func (c *Config) Registry() (*templates.Registry, error) {
	r := templates.NewRegistry()
	for i, o := range c.Templates {
		dialect := o.Dialect
		if dialect == "" {
			dialect = c.DialectName()
		}
		op := nodes.Operator(strings.ToUpper(o.Operator))
		if err := r.RegisterTemplate(dialect, op, o.Pattern, o.Precedence); err != nil {
			return nil, fmt.Errorf("templates[%d]: %w", i, err)
		}
	}
	return r, nil
}

// SelectedDialect resolves DialectName against Registry.
func (c *Config) SelectedDialect() (*templates.Dialect, error) {
	r, err := c.Registry()
	if err != nil {
		return nil, err
	}
	return r.Dialect(c.DialectName())
}
