package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, merged from file, env and flags.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DBPath   string `yaml:"db_path"`
		MaxBytes uint64 `yaml:"max_bytes"`
	} `yaml:"storage"`
	Retry struct {
		MaxAttempts int `yaml:"max_attempts"`
		BaseDelayMs int `yaml:"base_delay_ms"`
		MaxDelayMs  int `yaml:"max_delay_ms"`
		JitterMs    int `yaml:"jitter_ms"`
	} `yaml:"retry"`
	Drain struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"drain"`
	Sweep struct {
		Enabled       bool   `yaml:"enabled"`
		Cron          string `yaml:"cron"`
		DeadRetention string `yaml:"dead_retention"` // duration, e.g. "168h"
	} `yaml:"sweep"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns the listen address in host:port form. An Address already
// carrying a port (from the -addr flag) is returned verbatim.
func (c *Config) Addr() string {
	host := c.Server.Address
	if strings.Contains(host, ":") {
		return host
	}
	port := c.Server.Port
	if port == 0 {
		port = 8777
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// DeadRetention returns the parsed dead-letter retention period.
func (c *Config) DeadRetention() time.Duration {
	d, err := time.ParseDuration(c.Sweep.DeadRetention)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &c, nil
}

// LoadEffective loads the config file (when present) and applies env
// overrides, then canonical defaults. The second return reports whether
// any RELAYQ_* env override was used.
func LoadEffective(path string) (*Config, bool, error) {
	c := &Config{}
	if path != "" {
		if loaded, err := Load(path); err == nil {
			c = loaded
		} else if !os.IsNotExist(err) {
			return nil, false, err
		}
	}

	envUsed := false
	if v := os.Getenv("RELAYQ_ADDR"); v != "" {
		envUsed = true
		c.Server.Address = v
	}
	if v := os.Getenv("RELAYQ_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			envUsed = true
			c.Server.Port = p
		}
	}
	if v := os.Getenv("RELAYQ_DB_PATH"); v != "" {
		envUsed = true
		c.Storage.DBPath = v
	}
	if v := os.Getenv("RELAYQ_LOG_LEVEL"); v != "" {
		envUsed = true
		c.Logging.Level = v
	}

	ApplyDefaults(c)
	return c, envUsed, nil
}

// ApplyDefaults fills unset fields with canonical defaults. Components
// expect defaults to be applied before they receive the config.
func ApplyDefaults(c *Config) {
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "./relayq-data"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8777
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = 1000
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = 30000
	}
	if c.Retry.JitterMs == 0 {
		c.Retry.JitterMs = 1000
	}
	if c.Drain.RPS == 0 {
		c.Drain.RPS = 5
	}
	if c.Drain.Burst == 0 {
		c.Drain.Burst = 10
	}
	if c.Sweep.Cron == "" {
		c.Sweep.Cron = "*/5 * * * *"
	}
	if c.Sweep.DeadRetention == "" {
		c.Sweep.DeadRetention = "168h"
	}
}

// Validate fails fast on configurations no component can run with.
func Validate(c *Config) error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseDelayMs < 1 {
		return fmt.Errorf("retry.base_delay_ms must be >= 1")
	}
	if c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		return fmt.Errorf("retry.max_delay_ms must be >= retry.base_delay_ms")
	}
	if c.Drain.RPS <= 0 {
		return fmt.Errorf("drain.rps must be > 0")
	}
	if c.Drain.Burst < 1 {
		return fmt.Errorf("drain.burst must be >= 1")
	}
	if _, err := time.ParseDuration(c.Sweep.DeadRetention); err != nil {
		return fmt.Errorf("invalid sweep.dead_retention: %w", err)
	}
	return nil
}

// ParseCommandFlags centralizes daemon flag parsing. It returns the raw
// values plus which flags were explicitly set, so callers can let flags
// win over env and file values.
func ParseCommandFlags() (addr, db, cfg string, set map[string]bool) {
	addrFlag := flag.String("addr", "", "listen address (host:port)")
	dbFlag := flag.String("db", "", "checkpoint database path")
	cfgFlag := flag.String("config", "", "config file path")
	flag.Parse()
	set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return *addrFlag, *dbFlag, *cfgFlag, set
}

// ResolveConfigPath picks the config path: explicit flag wins, then the
// RELAYQ_CONFIG env var, then the conventional local file name.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet && flagVal != "" {
		return flagVal
	}
	if v := os.Getenv("RELAYQ_CONFIG"); v != "" {
		return v
	}
	return "relayq.yaml"
}
