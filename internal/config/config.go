package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for keywatch.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Database    DatabaseConfig    `yaml:"database"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
	CORS        CORSConfig        `yaml:"cors"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ListenConfig defines where the HTTP API listens.
type ListenConfig struct {
	APIPort int    `yaml:"api_port"`
	APIBind string `yaml:"api_bind"`
}

// DatabaseConfig selects and tunes the backing store.
type DatabaseConfig struct {
	URI            string        `yaml:"uri"`
	Name           string        `yaml:"name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// HealthCheckConfig controls the periodic store health check.
type HealthCheckConfig struct {
	Interval         time.Duration `yaml:"interval"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig sets the minimum log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel parses the configured level. Unknown values fall back to info.
func (lc LoggingConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// uriEnvVars are consulted in order when database.uri is empty.
var uriEnvVars = []string{"MONGODB_URI", "MONGO_URI"}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables become empty strings.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// FromEnv returns the default configuration with the database URI taken
// from the environment. It is used where no config file is shipped.
func FromEnv() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.APIPort == 0 {
		cfg.Listen.APIPort = 8080
	}
	if cfg.Listen.APIBind == "" {
		cfg.Listen.APIBind = "0.0.0.0"
	}
	if cfg.Database.URI == "" {
		cfg.Database.URI = uriFromEnv()
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 10 * time.Second
	}
	if cfg.HealthCheck.Interval == 0 {
		cfg.HealthCheck.Interval = 30 * time.Second
	}
	if cfg.HealthCheck.FailureThreshold == 0 {
		cfg.HealthCheck.FailureThreshold = 3
	}
	if cfg.HealthCheck.Timeout == 0 {
		cfg.HealthCheck.Timeout = 5 * time.Second
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func uriFromEnv() string {
	name, ok := lo.Find(uriEnvVars, func(name string) bool {
		return os.Getenv(name) != ""
	})
	if !ok {
		return ""
	}
	return os.Getenv(name)
}

func validate(cfg *Config) error {
	if cfg.Listen.APIPort < 1 || cfg.Listen.APIPort > 65535 {
		return fmt.Errorf("listen.api_port %d out of range", cfg.Listen.APIPort)
	}
	if cfg.Database.ConnectTimeout < 0 {
		return fmt.Errorf("database.connect_timeout must be positive")
	}
	if cfg.HealthCheck.Interval < 0 || cfg.HealthCheck.Timeout < 0 {
		return fmt.Errorf("health_check durations must be positive")
	}
	if cfg.HealthCheck.FailureThreshold < 0 {
		return fmt.Errorf("health_check.failure_threshold must be positive")
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level %q: %w", cfg.Logging.Level, err)
	}
	if lo.ContainsBy(cfg.CORS.AllowedOrigins, func(o string) bool { return strings.TrimSpace(o) == "" }) {
		return fmt.Errorf("cors.allowed_origins must not contain empty entries")
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Debounce timer to avoid rapid reloads
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "err", err)
		case <-cw.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		slog.Error("config hot-reload failed", "path", cw.path, "err", err)
		return
	}

	slog.Info("configuration reloaded", "path", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
