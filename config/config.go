package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Robot     RobotConfig     `yaml:"robot"`
	Link      LinkConfig      `yaml:"link"`
	Actions   ActionsConfig   `yaml:"actions"`
	Health    HealthConfig    `yaml:"health"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Messaging MessagingConfig `yaml:"messaging"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
	Points    []PointConfig   `yaml:"points"`
}

type RobotConfig struct {
	ID      string        `yaml:"id"`
	BaseURL string        `yaml:"base_url"`
	WSURL   string        `yaml:"ws_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type LinkConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	Topics            []string      `yaml:"topics"`
}

type ActionsConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	NavigateRetries int           `yaml:"navigate_retries"`
	AlignRetries    int           `yaml:"align_retries"`
	UnloadRetries   int           `yaml:"unload_retries"`
	ChargerRetries  int           `yaml:"charger_retries"`
	JackUpWait      time.Duration `yaml:"jack_up_wait"`
	JackDownWait    time.Duration `yaml:"jack_down_wait"`
	Accuracy        float64       `yaml:"accuracy"`
	ChargerPoint    string        `yaml:"charger_point"`
}

type HealthConfig struct {
	Service           string              `yaml:"service"`
	CheckMethod       string              `yaml:"check_method"`
	CheckPath         string              `yaml:"check_path"`
	CheckInterval     time.Duration       `yaml:"check_interval"`
	RecoveryThreshold int                 `yaml:"recovery_threshold"`
	RecoveryPaths     map[string][]string `yaml:"recovery_paths"`
	PowerCyclePaths   []string            `yaml:"power_cycle_paths"`
	ManualCooldown    time.Duration       `yaml:"manual_cooldown"`
	AutoCooldown      time.Duration       `yaml:"auto_cooldown"`
	RestartRecovery   time.Duration       `yaml:"restart_recovery"`
	ShutdownRecovery  time.Duration       `yaml:"shutdown_recovery"`
}

type WorkflowsConfig struct {
	// TemplatesFile is an optional YAML file of extra templates.
	TemplatesFile string `yaml:"templates_file"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	// FlushInterval bounds how often telemetry views are rewritten.
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type MessagingConfig struct {
	Enabled bool        `yaml:"enabled"`
	Backend string      `yaml:"backend"` // "mqtt" or "kafka"
	MQTT    MQTTConfig  `yaml:"mqtt"`
	Kafka   KafkaConfig `yaml:"kafka"`
	// EventsTopic receives every exported engine event.
	EventsTopic string `yaml:"events_topic"`
	// CommandsTopic carries workflow, stop and power cycle commands.
	CommandsTopic string `yaml:"commands_topic"`
	Site          string `yaml:"site"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

type PointConfig struct {
	ID    string  `yaml:"id"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Theta float64 `yaml:"theta"`
}

func Defaults() *Config {
	return &Config{
		Robot: RobotConfig{
			ID:      "robot-1",
			BaseURL: "http://192.168.25.25:8090",
			WSURL:   "ws://192.168.25.25:8090/ws/v2/topics",
			Timeout: 10 * time.Second,
		},
		Link: LinkConfig{
			HeartbeatInterval: 30 * time.Second,
			HandshakeTimeout:  15 * time.Second,
		},
		Actions: ActionsConfig{
			PollInterval:    time.Second,
			NavigateRetries: 60,
			AlignRetries:    60,
			UnloadRetries:   90,
			ChargerRetries:  90,
			JackUpWait:      8 * time.Second,
			JackDownWait:    3 * time.Second,
			Accuracy:        0.1,
		},
		Health: HealthConfig{
			Service:           "jack",
			CheckMethod:       "GET",
			CheckPath:         "/services/jack/state",
			CheckInterval:     5 * time.Minute,
			RecoveryThreshold: 2,
			RecoveryPaths: map[string][]string{
				"jack": {"/services/jack/reset", "/services/jack_reset", "/api/services/jack/reset"},
			},
			ManualCooldown:   5 * time.Minute,
			AutoCooldown:     10 * time.Minute,
			RestartRecovery:  2 * time.Minute,
			ShutdownRecovery: 5 * time.Minute,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "robotcore.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "robotcore",
				User:     "robotcore",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			TTL:     2 * time.Minute,
		},
		Messaging: MessagingConfig{
			Backend: "mqtt",
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "robotcore",
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "robotcore",
			},
			EventsTopic:   "robotcore.events",
			CommandsTopic: "robotcore.commands",
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8084,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }
