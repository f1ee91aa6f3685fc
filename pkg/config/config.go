// Package config defines MerkleKV-Mobile's immutable configuration
// record: parsed from YAML (mirroring the teacher's WarrenResource
// parsing) or constructed programmatically, validated once at
// construction.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/merklekv-mobile/pkg/merr"
	"github.com/cuemby/merklekv-mobile/pkg/topic"
)

// WarningHook is invoked once at construction for non-fatal security
// concerns, e.g. a password configured without TLS. The embedder supplies
// it; a nil hook means warnings are silently dropped.
type WarningHook func(code, message string)

// BatteryConfig controls the lifecycle adapter's thresholds.
type BatteryConfig struct {
	LowThreshold      int  `yaml:"low_threshold"`
	CriticalThreshold int  `yaml:"critical_threshold"`
	AdaptiveKeepAlive bool `yaml:"adaptive_keep_alive"`
	AdaptiveSync      bool `yaml:"adaptive_sync"`
	Throttle          bool `yaml:"throttle"`
	ReduceBackground  bool `yaml:"reduce_background"`
}

// OfflineQueueConfig controls pkg/queue's bounds.
type OfflineQueueConfig struct {
	MaxOperations   int           `yaml:"max_operations"`
	MaxAge          time.Duration `yaml:"max_age"`
	BatchSize       int           `yaml:"batch_size"`
	MaxRetries      int           `yaml:"max_retries"`
	DefaultPriority string        `yaml:"default_priority"`
}

// Config is the immutable, validated configuration record. Construct via
// Load or New; both run Validate before returning.
type Config struct {
	MQTTHost     string `yaml:"mqtt_host"`
	MQTTPort     int    `yaml:"mqtt_port"`
	MQTTUseTLS   bool   `yaml:"mqtt_use_tls"`
	ClientID     string `yaml:"client_id"`
	NodeID       string `yaml:"node_id"`
	TopicPrefix  string `yaml:"topic_prefix"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`

	KeepAliveSeconds         int `yaml:"keep_alive_seconds"`
	ConnectionTimeoutSeconds int `yaml:"connection_timeout_seconds"`

	PersistenceEnabled bool   `yaml:"persistence_enabled"`
	StoragePath        string `yaml:"storage_path"`

	RequireConnected bool `yaml:"require_connected"`

	BatteryConfig BatteryConfig      `yaml:"battery_config"`
	OfflineQueue  OfflineQueueConfig `yaml:"offline_queue"`

	warningHook WarningHook
}

// Option configures optional fields at construction.
type Option func(*Config)

// WithWarningHook sets the hook invoked for non-fatal security warnings.
func WithWarningHook(hook WarningHook) Option {
	return func(c *Config) { c.warningHook = hook }
}

func defaults() Config {
	return Config{
		MQTTPort:                 1883,
		TopicPrefix:              "merklekv",
		KeepAliveSeconds:         60,
		ConnectionTimeoutSeconds: 30,
		BatteryConfig: BatteryConfig{
			LowThreshold:      20,
			CriticalThreshold: 10,
			AdaptiveKeepAlive: true,
			AdaptiveSync:      true,
			Throttle:          true,
			ReduceBackground:  true,
		},
		OfflineQueue: OfflineQueueConfig{
			MaxOperations:   1000,
			MaxAge:          24 * time.Hour,
			BatchSize:       10,
			MaxRetries:      5,
			DefaultPriority: "normal",
		},
	}
}

// Load reads and parses a YAML config file at path, applying defaults for
// unset fields and running Validate.
func Load(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merr.Wrap(merr.Validation, "read config file", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, merr.Wrap(merr.Validation, "parse config yaml", err)
	}

	return finalize(cfg, opts)
}

// New constructs a Config programmatically, starting from defaults and
// applying the connection, identity and persistence fields set on
// override. BatteryConfig and OfflineQueue are always taken from the
// defaults; override's values for them are not read.
func New(override Config, opts ...Option) (*Config, error) {
	cfg := defaults()
	applyOverride(&cfg, override)
	return finalize(cfg, opts)
}

func applyOverride(cfg *Config, override Config) {
	if override.MQTTHost != "" {
		cfg.MQTTHost = override.MQTTHost
	}
	if override.MQTTPort != 0 {
		cfg.MQTTPort = override.MQTTPort
	}
	cfg.MQTTUseTLS = override.MQTTUseTLS
	if override.ClientID != "" {
		cfg.ClientID = override.ClientID
	}
	if override.NodeID != "" {
		cfg.NodeID = override.NodeID
	}
	if override.TopicPrefix != "" {
		cfg.TopicPrefix = override.TopicPrefix
	}
	cfg.Username = override.Username
	cfg.Password = override.Password
	if override.KeepAliveSeconds != 0 {
		cfg.KeepAliveSeconds = override.KeepAliveSeconds
	}
	if override.ConnectionTimeoutSeconds != 0 {
		cfg.ConnectionTimeoutSeconds = override.ConnectionTimeoutSeconds
	}
	cfg.PersistenceEnabled = override.PersistenceEnabled
	if override.StoragePath != "" {
		cfg.StoragePath = override.StoragePath
	}
	cfg.RequireConnected = override.RequireConnected
}

func finalize(cfg Config, opts []Option) (*Config, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Password != "" && !cfg.MQTTUseTLS && cfg.warningHook != nil {
		cfg.warningHook("SECURITY", "password configured without mqtt_use_tls; credentials travel in cleartext")
	}
	return &cfg, nil
}

// Validate enforces the fields this repo depends on being present and
// internally consistent.
func (c Config) Validate() error {
	if c.MQTTHost == "" {
		return merr.New(merr.Validation, "mqtt_host must not be empty")
	}
	if c.ClientID == "" {
		return merr.New(merr.Validation, "client_id must not be empty")
	}
	if c.NodeID == "" {
		return merr.New(merr.Validation, "node_id must not be empty")
	}
	if c.TopicPrefix == "" {
		return merr.New(merr.Validation, "topic_prefix must not be empty")
	}
	if c.PersistenceEnabled && c.StoragePath == "" {
		return merr.New(merr.Validation, "storage_path is required when persistence_enabled is true")
	}
	return c.validateTopics()
}

// validateTopics runs topic.Validate over every topic this node's
// TopicPrefix/ClientID derive, so a ClientID containing a wildcard
// character fails fast at construction instead of silently producing a
// broken subscribe/publish topic later.
func (c Config) validateTopics() error {
	scheme := topic.Scheme{Prefix: c.TopicPrefix, ClientID: c.ClientID}
	topics := []string{
		scheme.Commands(),
		scheme.Responses(),
		scheme.Replication(),
		scheme.AntiEntropyRequest(c.ClientID),
		scheme.AntiEntropyResponse(),
	}
	for _, t := range topics {
		if err := topic.Validate(t); err != nil {
			return err
		}
	}
	return nil
}
