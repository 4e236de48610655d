package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SHEETWATCH"

var hexColor = regexp.MustCompile(`^#?[0-9A-Fa-f]{6}$`)

type Config struct {
	Watch     WatchConfig     `mapstructure:"watch"`
	Highlight HighlightConfig `mapstructure:"highlight"`
	Server    ServerConfig    `mapstructure:"server"`
	Misc      MiscConfig      `mapstructure:"misc"`
}

// ResourceConfig names one watched workbook.
type ResourceConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path" validate:"required"`
}

type WatchConfig struct {
	Resources         []ResourceConfig `mapstructure:"resources" validate:"required,min=1,dive"`
	Trigger           string           `mapstructure:"trigger" validate:"oneof=fsnotify polling callback"`
	Backend           string           `mapstructure:"backend" validate:"oneof=excelize memory"`
	Workers           int              `mapstructure:"workers" validate:"min=1,max=16"`
	Debounce          time.Duration    `mapstructure:"debounce"`
	PollInterval      time.Duration    `mapstructure:"poll_interval"`
	CaptureRetries    int              `mapstructure:"capture_retries" validate:"min=0,max=10"`
	CaptureRetryDelay time.Duration    `mapstructure:"capture_retry_delay"`
	EventHistory      int              `mapstructure:"event_history" validate:"min=1"`
}

type HighlightConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Marker    string `mapstructure:"marker"`
	Condition string `mapstructure:"condition"`
	FillColor string `mapstructure:"fill_color"`
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutDownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CORSOrigins     string        `mapstructure:"cors_origins"`
}

type MiscConfig struct {
	LogLevel string `mapstructure:"log_level"`
	GinMode  string `mapstructure:"gin_mode" validate:"omitempty,oneof=debug release test"`
}

// LoadConfig reads config.yaml from configDir (or SHEETWATCH_CONFIG_PATH), then
// applies env overrides and defaults. A missing config file is not an error.
func LoadConfig(configDir string) (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnvOrDefault(envPrefix+"_CONFIG_PATH", configDir))

	// Environment variables like SHEETWATCH_WATCH_TRIGGER override watch.trigger
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// SHEETWATCH_FILES=a.xlsx,b.xlsx replaces the resource list from the file
	if files := getEnvOrDefault(envPrefix+"_FILES", ""); files != "" {
		cfg.Watch.Resources = nil
		for _, p := range strings.Split(files, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Watch.Resources = append(cfg.Watch.Resources, ResourceConfig{Path: p})
			}
		}
	}

	port, err := getEnvOrViperPort(v, "PORT", "server.port")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port = port

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("watch.trigger", "fsnotify")
	v.SetDefault("watch.backend", "excelize")
	v.SetDefault("watch.workers", 1)
	v.SetDefault("watch.debounce", 200*time.Millisecond)
	v.SetDefault("watch.poll_interval", 2*time.Second)
	v.SetDefault("watch.capture_retries", 3)
	v.SetDefault("watch.capture_retry_delay", 500*time.Millisecond)
	v.SetDefault("watch.event_history", 200)

	v.SetDefault("highlight.enabled", true)
	v.SetDefault("highlight.marker", "触发")
	v.SetDefault("highlight.fill_color", "C6EFCE")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 2*time.Second)
	v.SetDefault("server.cors_origins", "*")

	v.SetDefault("misc.log_level", "info")
	v.SetDefault("misc.gin_mode", "release")
}

// ApplyDefaults resolves resource paths to absolute form and fills missing names.
func (c *Config) ApplyDefaults() error {
	for i := range c.Watch.Resources {
		r := &c.Watch.Resources[i]
		if r.Path == "" {
			continue
		}
		abs, err := filepath.Abs(r.Path)
		if err != nil {
			return fmt.Errorf("resolve resource path %q: %w", r.Path, err)
		}
		r.Path = abs
		if r.Name == "" {
			r.Name = filepath.Base(abs)
		}
	}
	c.Highlight.FillColor = strings.ToUpper(strings.TrimPrefix(c.Highlight.FillColor, "#"))
	return nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	names := make(map[string]struct{}, len(c.Watch.Resources))
	paths := make(map[string]struct{}, len(c.Watch.Resources))
	for _, r := range c.Watch.Resources {
		if _, dup := names[r.Name]; dup {
			return fmt.Errorf("duplicate resource name: %s", r.Name)
		}
		if _, dup := paths[r.Path]; dup {
			return fmt.Errorf("duplicate resource path: %s", r.Path)
		}
		names[r.Name] = struct{}{}
		paths[r.Path] = struct{}{}
	}

	if c.Watch.Debounce < 0 {
		return errors.New("watch.debounce must not be negative")
	}
	if c.Watch.Trigger == "polling" && c.Watch.PollInterval <= 0 {
		return errors.New("watch.poll_interval must be positive")
	}
	if c.Watch.CaptureRetries > 0 && c.Watch.CaptureRetryDelay <= 0 {
		return errors.New("watch.capture_retry_delay must be positive when retries are enabled")
	}

	if c.Highlight.Enabled && c.Highlight.Marker == "" && c.Highlight.Condition == "" {
		return errors.New("highlight needs a marker or a condition")
	}
	if !hexColor.MatchString(c.Highlight.FillColor) {
		return fmt.Errorf("invalid highlight.fill_color: %q", c.Highlight.FillColor)
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid server port: %d", c.Server.Port)
		}
		if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 || c.Server.ShutDownTimeout <= 0 {
			return errors.New("server timeouts must be positive")
		}
		if c.Server.RequestTimeout <= 0 {
			return errors.New("server.request_timeout must be positive")
		}
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvOrViperPort(v *viper.Viper, envKey, viperKey string) (int, error) {
	if raw := os.Getenv(envKey); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", envKey, err)
		}
		return port, nil
	}
	return v.GetInt(viperKey), nil
}
