package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/rain-sensor/internal/model"
	"github.com/thatsimonsguy/rain-sensor/internal/rain"
	"github.com/thatsimonsguy/rain-sensor/internal/weather"
)

const (
	DefaultPollingIntervalSeconds = 60
	DefaultSlidingWindowMinutes   = 30
	DefaultReauthIntervalHours    = 24
	DefaultHTTPPort               = 8080
	DefaultTopicPrefix            = "homebridge"
)

type MQTT struct {
	Broker      string `json:"broker" yaml:"broker"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
}

type Datadog struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	AgentAddr string   `json:"agent_addr" yaml:"agent_addr"`
	Namespace string   `json:"namespace" yaml:"namespace"`
	Tags      []string `json:"tags" yaml:"tags"`
}

type Prometheus struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type Netatmo struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type Config struct {
	ConfigFile     string        `json:"-" yaml:"-"`
	LogLevel       zerolog.Level `json:"-" yaml:"-"`
	InstallService bool          `json:"-" yaml:"-"`

	Name       string `json:"name" yaml:"name"`
	DeviceType string `json:"device_type" yaml:"device_type"`

	PollingIntervalSeconds int    `json:"polling_interval" yaml:"polling_interval"`
	SlidingWindowMinutes   int    `json:"sliding_window_size" yaml:"sliding_window_size"`
	CooldownMinutes        int    `json:"cooldown_interval" yaml:"cooldown_interval"`
	ReauthIntervalHours    int    `json:"reauth_interval_hours" yaml:"reauth_interval_hours"`
	CooldownGate           string `json:"cooldown_gate" yaml:"cooldown_gate"`

	// upstream credentials
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	Username     string `json:"username" yaml:"username"`
	Password     string `json:"password" yaml:"password"`

	LogFile   string `json:"log_file" yaml:"log_file"`
	HTTPPort  *int   `json:"http_port" yaml:"http_port"`
	NtfyTopic string `json:"ntfy_topic" yaml:"ntfy_topic"`

	MQTT       MQTT       `json:"mqtt" yaml:"mqtt"`
	Datadog    Datadog    `json:"datadog" yaml:"datadog"`
	Prometheus Prometheus `json:"prometheus" yaml:"prometheus"`
	Netatmo    Netatmo    `json:"netatmo" yaml:"netatmo"`
}

func Load() Config {
	var configFile, logLevel string
	var install bool

	flag.StringVar(&configFile, "config-file", "config.json", "Path to accessory config file (.json, .yaml)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&install, "install-service", false, "Write a systemd unit for this binary and exit")
	flag.Parse()

	data, err := os.ReadFile(configFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}

	cfg, err := Parse(data, filepath.Ext(configFile))
	if err != nil {
		panic("Failed to parse config file: " + err.Error())
	}
	cfg.ConfigFile = configFile
	cfg.LogLevel = parseLogLevel(logLevel)
	cfg.InstallService = install

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

// Parse decodes a config document. YAML is used for .yaml and .yml, JSON
// otherwise.
func Parse(data []byte, ext string) (Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("json: %w", err)
		}
	}
	return cfg, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.PollingIntervalSeconds == 0 {
		cfg.PollingIntervalSeconds = DefaultPollingIntervalSeconds
	}
	if cfg.SlidingWindowMinutes == 0 {
		cfg.SlidingWindowMinutes = DefaultSlidingWindowMinutes
	}
	if cfg.ReauthIntervalHours == 0 {
		cfg.ReauthIntervalHours = DefaultReauthIntervalHours
	}
	if cfg.HTTPPort == nil {
		port := DefaultHTTPPort
		cfg.HTTPPort = &port
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Datadog.Enabled && cfg.Datadog.AgentAddr == "" {
		cfg.Datadog.AgentAddr = "127.0.0.1:8125"
	}
}

func (cfg *Config) validate() {
	var (
		missingFields []string
		invalid       []string
	)

	required := map[string]string{
		"name":          cfg.Name,
		"client_id":     cfg.ClientID,
		"client_secret": cfg.ClientSecret,
		"username":      cfg.Username,
		"password":      cfg.Password,
	}
	for _, field := range []string{"name", "client_id", "client_secret", "username", "password"} {
		if strings.TrimSpace(required[field]) == "" {
			missingFields = append(missingFields, field)
		}
	}

	nonNegative := []struct {
		field string
		value int
	}{
		{"polling_interval", cfg.PollingIntervalSeconds},
		{"sliding_window_size", cfg.SlidingWindowMinutes},
		{"cooldown_interval", cfg.CooldownMinutes},
		{"reauth_interval_hours", cfg.ReauthIntervalHours},
		{"netatmo.timeout_seconds", cfg.Netatmo.TimeoutSeconds},
	}
	for _, nn := range nonNegative {
		if nn.value < 0 {
			invalid = append(invalid, fmt.Sprintf("%s must not be negative (got %d)", nn.field, nn.value))
		}
	}

	if _, ok := model.ParseCooldownGate(cfg.CooldownGate); !ok {
		invalid = append(invalid, fmt.Sprintf("cooldown_gate %q is not one of polls, reads, both", cfg.CooldownGate))
	}
	if cfg.HTTPPort != nil && (*cfg.HTTPPort < 0 || *cfg.HTTPPort > 65535) {
		invalid = append(invalid, fmt.Sprintf("http_port %d is out of range", *cfg.HTTPPort))
	}

	if len(missingFields) > 0 {
		panic("Missing required config fields: " + strings.Join(missingFields, ", "))
	}
	if len(invalid) > 0 {
		panic("Invalid config: " + strings.Join(invalid, "; "))
	}
}

// Accessory converts the file config into the rain accessory's settings.
func (cfg Config) Accessory() rain.Config {
	gate, _ := model.ParseCooldownGate(cfg.CooldownGate)
	return rain.Config{
		Name:            cfg.Name,
		DeviceType:      model.ParseDeviceType(cfg.DeviceType),
		PollingInterval: time.Duration(cfg.PollingIntervalSeconds) * time.Second,
		SlidingWindow:   time.Duration(cfg.SlidingWindowMinutes) * time.Minute,
		Cooldown:        time.Duration(cfg.CooldownMinutes) * time.Minute,
		ReauthInterval:  time.Duration(cfg.ReauthIntervalHours) * time.Hour,
		CooldownGate:    gate,
		Credentials: weather.Credentials{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Username:     cfg.Username,
			Password:     cfg.Password,
		},
	}
}

func (cfg Config) Port() int {
	if cfg.HTTPPort == nil {
		return DefaultHTTPPort
	}
	return *cfg.HTTPPort
}
