package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultEnvFile = ".env"
	DefaultService = "https://bsky.social"
)

type Config struct {
	Identifier  string // BSKY_IDENTIFIER
	AppPassword string // BSKY_APP_PASSWORD
	Service     string `toml:"service"` // BSKY_SERVICE (default https://bsky.social)

	HTTPTimeout time.Duration `toml:"http_timeout"` // BLUEWAVE_HTTP_TIMEOUT (default 20s)

	// Journal; empty Neo4jURI keeps the journal in memory
	Neo4jURI      string `toml:"neo4j_uri"`      // NEO4J_URI
	Neo4jUser     string `toml:"neo4j_user"`     // NEO4J_USER
	Neo4jPassword string `toml:"neo4j_password"` // NEO4J_PASSWORD

	Engine Engine `toml:"engine"`
}

type Engine struct {
	PageSize       int           `toml:"page_size"`        // BLUEWAVE_PAGE_SIZE (default 100)
	MaxPages       int           `toml:"max_pages"`        // BLUEWAVE_MAX_PAGES (default 1000)
	MaxPerRun      int           `toml:"max_per_run"`      // BLUEWAVE_MAX_PER_RUN (default 500)
	InterItemDelay time.Duration `toml:"inter_item_delay"` // BLUEWAVE_DELAY (default 1s)
	DailyCap       int           `toml:"daily_cap"`        // BLUEWAVE_DAILY_CAP (default 1000, 0 = no cap)
}

func Default() *Config {
	return &Config{
		Service:     DefaultService,
		HTTPTimeout: 20 * time.Second,
		Neo4jUser:   "neo4j",
		Engine: Engine{
			PageSize:       100,
			MaxPages:       1000,
			MaxPerRun:      500,
			InterItemDelay: time.Second,
			DailyCap:       1000,
		},
	}
}

// LoadEnvFile loads path into the environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from defaults, the optional TOML file at path
// and the environment, in that order.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	c.Identifier = envOrDefault("BSKY_IDENTIFIER", c.Identifier)
	c.AppPassword = envOrDefault("BSKY_APP_PASSWORD", c.AppPassword)
	c.Service = envOrDefault("BSKY_SERVICE", c.Service)
	c.Neo4jURI = envOrDefault("NEO4J_URI", c.Neo4jURI)
	c.Neo4jUser = envOrDefault("NEO4J_USER", c.Neo4jUser)
	c.Neo4jPassword = envOrDefault("NEO4J_PASSWORD", c.Neo4jPassword)

	var err error
	if c.HTTPTimeout, err = envDuration("BLUEWAVE_HTTP_TIMEOUT", c.HTTPTimeout); err != nil {
		return nil, err
	}
	if c.Engine.PageSize, err = envInt("BLUEWAVE_PAGE_SIZE", c.Engine.PageSize); err != nil {
		return nil, err
	}
	if c.Engine.MaxPages, err = envInt("BLUEWAVE_MAX_PAGES", c.Engine.MaxPages); err != nil {
		return nil, err
	}
	if c.Engine.MaxPerRun, err = envInt("BLUEWAVE_MAX_PER_RUN", c.Engine.MaxPerRun); err != nil {
		return nil, err
	}
	if c.Engine.InterItemDelay, err = envDuration("BLUEWAVE_DELAY", c.Engine.InterItemDelay); err != nil {
		return nil, err
	}
	if c.Engine.DailyCap, err = envInt("BLUEWAVE_DAILY_CAP", c.Engine.DailyCap); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Service == "" {
		return fmt.Errorf("service host is required")
	}
	if c.Engine.PageSize <= 0 || c.Engine.MaxPages <= 0 {
		return fmt.Errorf("page size and max pages must be positive")
	}
	if c.Engine.MaxPerRun < 0 || c.Engine.DailyCap < 0 || c.Engine.InterItemDelay < 0 {
		return fmt.Errorf("max per run, daily cap and delay must not be negative")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
