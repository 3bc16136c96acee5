// Package config provides configuration loading and management for hyperwatch.
// It supports loading configuration from YAML files with defaults for unset values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageMode represents the storage backend mode.
type StorageMode string

const (
	// StorageModeMemory uses in-memory implementations for storage and transport.
	StorageModeMemory StorageMode = "memory"
	// StorageModeStorage uses real backends (PostgreSQL, Redis, Kafka or MQTT).
	StorageModeStorage StorageMode = "storage"
)

// IsValid returns true if the storage mode is valid.
func (m StorageMode) IsValid() bool {
	return m == StorageModeMemory || m == StorageModeStorage
}

// TransportKind selects the message transport used in storage mode.
type TransportKind string

const (
	TransportKafka TransportKind = "kafka"
	TransportMQTT  TransportKind = "mqtt"
)

// Config represents the complete application configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Transport  TransportConfig  `yaml:"transport"`
	Server     ServerConfig     `yaml:"server"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Logger     LoggerConfig     `yaml:"logger"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	EventStore EventStoreConfig `yaml:"eventstore"`
}

// StorageConfig holds the storage mode configuration.
type StorageConfig struct {
	Mode StorageMode `yaml:"mode"`
}

// UseMemory returns true if in-memory storage should be used.
func (c *StorageConfig) UseMemory() bool {
	return c.Mode == StorageModeMemory
}

// UseStorage returns true if real storage backends should be used.
func (c *StorageConfig) UseStorage() bool {
	return c.Mode == StorageModeStorage
}

// TransportConfig selects the broker used when storage mode is "storage".
type TransportConfig struct {
	Kind TransportKind `yaml:"kind"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// KafkaConfig holds Kafka connection settings.
// Topics come from PipelineConfig; each engine gets its own consumer group.
type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	ConsumerGroup  string   `yaml:"consumer_group"`
	PartitionCount int      `yaml:"partition_count"`
}

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// PipelineConfig holds the engine chain settings.
type PipelineConfig struct {
	// BeatInterval is how often engines reload their configuration.
	BeatInterval time.Duration `yaml:"beat_interval"`

	// Workers is the number of instances of each engine. Events sharing a
	// routing key are always delivered to the same instance.
	Workers int `yaml:"workers"`

	Topics TopicsConfig `yaml:"topics"`
}

// TopicsConfig names the queue each engine consumes from.
type TopicsConfig struct {
	Entities    string `yaml:"entities"`
	EventFilter string `yaml:"event_filter"`
	EventStore  string `yaml:"eventstore"`
	Alerts      string `yaml:"alerts"`
}

// EventStoreConfig holds settings of the eventstore engine and its archiver.
type EventStoreConfig struct {
	// Autolog appends a history entry for every changed check event.
	Autolog *bool `yaml:"autolog"`

	LogBulkAmount int           `yaml:"log_bulk_amount"`
	LogBulkDelay  time.Duration `yaml:"log_bulk_delay"`

	Types    []string `yaml:"types"`
	Checks   []string `yaml:"checks"`
	Logs     []string `yaml:"logs"`
	Comments []string `yaml:"comments"`
}

// AutologEnabled reports whether history logging of check changes is on.
func (c *EventStoreConfig) AutologEnabled() bool {
	return c.Autolog == nil || *c.Autolog
}

// Load reads configuration from the specified YAML file path.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if !cfg.Storage.Mode.IsValid() {
		return nil, fmt.Errorf("invalid storage mode %q", cfg.Storage.Mode)
	}
	if cfg.Transport.Kind != TransportKafka && cfg.Transport.Kind != TransportMQTT {
		return nil, fmt.Errorf("invalid transport kind %q", cfg.Transport.Kind)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeMemory
	}
	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = TransportKafka
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	// Kafka defaults
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "hyperwatch"
	}
	if cfg.Kafka.PartitionCount == 0 {
		cfg.Kafka.PartitionCount = 32
	}

	// MQTT defaults
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "hyperwatch"
	}
	if cfg.MQTT.QoS == 0 {
		cfg.MQTT.QoS = 1
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	// Postgres defaults
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}

	// Pipeline defaults
	if cfg.Pipeline.BeatInterval == 0 {
		cfg.Pipeline.BeatInterval = 60 * time.Second
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 1
	}
	if cfg.Pipeline.Topics.Entities == "" {
		cfg.Pipeline.Topics.Entities = "hyperwatch.entities"
	}
	if cfg.Pipeline.Topics.EventFilter == "" {
		cfg.Pipeline.Topics.EventFilter = "hyperwatch.event_filter"
	}
	if cfg.Pipeline.Topics.EventStore == "" {
		cfg.Pipeline.Topics.EventStore = "hyperwatch.eventstore"
	}
	if cfg.Pipeline.Topics.Alerts == "" {
		cfg.Pipeline.Topics.Alerts = "hyperwatch.alerts"
	}

	// Eventstore defaults
	if cfg.EventStore.LogBulkAmount <= 0 {
		cfg.EventStore.LogBulkAmount = 100
	}
	if cfg.EventStore.LogBulkDelay == 0 {
		cfg.EventStore.LogBulkDelay = 3 * time.Second
	}
	if len(cfg.EventStore.Checks) == 0 {
		cfg.EventStore.Checks = []string{"check", "selector", "sla", "topology", "eue"}
	}
	if len(cfg.EventStore.Logs) == 0 {
		cfg.EventStore.Logs = []string{"log", "trap", "snmp", "perf", "calendar"}
	}
	if len(cfg.EventStore.Comments) == 0 {
		cfg.EventStore.Comments = []string{"comment", "user", "ack", "ackremove", "cancel", "uncancel", "downtime"}
	}
	if len(cfg.EventStore.Types) == 0 {
		types := make([]string, 0, len(cfg.EventStore.Checks)+len(cfg.EventStore.Logs)+len(cfg.EventStore.Comments))
		types = append(types, cfg.EventStore.Checks...)
		types = append(types, cfg.EventStore.Logs...)
		types = append(types, cfg.EventStore.Comments...)
		cfg.EventStore.Types = types
	}
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
