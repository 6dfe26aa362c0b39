package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Logging   LoggingConfig   `toml:"logging"`
	Database  DatabaseConfig  `toml:"database"`
	Scripting ScriptingConfig `toml:"scripting"`
	Bootstrap BootstrapConfig `toml:"bootstrap"`
}

type EngineConfig struct {
	QueueCapacity   int      `toml:"queue_capacity"`    // 0 = unbounded
	QueueFullPolicy string   `toml:"queue_full_policy"` // "block" or "reject"
	FaultPolicy     string   `toml:"fault_policy"`      // "halt" or "skip"
	Extensions      []string `toml:"extensions"`        // registration order
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type DatabaseConfig struct {
	DSN              string        `toml:"dsn"` // empty disables the journal
	MaxOpenConns     int           `toml:"max_open_conns"`
	MaxIdleConns     int           `toml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `toml:"conn_max_lifetime"`
	JournalBatchSize int           `toml:"journal_batch_size"`
}

type ScriptingConfig struct {
	Dir        string   `toml:"dir"`
	Attributes []string `toml:"attributes"`
}

type BootstrapConfig struct {
	Blueprint string `toml:"blueprint"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes TOML over the defaults. name is only used in error messages.
func Parse(data []byte, name string) (*Config, error) {
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Engine.QueueCapacity < 0 {
		return fmt.Errorf("engine.queue_capacity must be >= 0, got %d", c.Engine.QueueCapacity)
	}
	switch c.Engine.QueueFullPolicy {
	case "block", "reject":
	default:
		return fmt.Errorf("engine.queue_full_policy %q: want block or reject", c.Engine.QueueFullPolicy)
	}
	switch c.Engine.FaultPolicy {
	case "halt", "skip":
	default:
		return fmt.Errorf("engine.fault_policy %q: want halt or skip", c.Engine.FaultPolicy)
	}
	seen := make(map[string]bool, len(c.Engine.Extensions))
	for _, name := range c.Engine.Extensions {
		if seen[name] {
			return fmt.Errorf("engine.extensions lists %q twice", name)
		}
		seen[name] = true
	}
	if c.Database.JournalBatchSize <= 0 {
		return fmt.Errorf("database.journal_batch_size must be > 0, got %d", c.Database.JournalBatchSize)
	}
	return nil
}

func Defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			QueueCapacity:   0,
			QueueFullPolicy: "block",
			FaultPolicy:     "halt",
			Extensions:      []string{"logger"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Database: DatabaseConfig{
			MaxOpenConns:     4,
			MaxIdleConns:     1,
			ConnMaxLifetime:  30 * time.Minute,
			JournalBatchSize: 64,
		},
		Scripting: ScriptingConfig{
			Dir: "scripts",
		},
	}
}
