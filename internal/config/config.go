package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	Engine   EngineConfig   `yaml:"engine"`
	Relay    RelayConfig    `yaml:"relay"`
	Auth     AuthConfig     `yaml:"auth"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration for the api service
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and topology configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Jobs       JobsRouteConfig  `yaml:"jobs"`
	Events     EventsConfig     `yaml:"events"`
	Retry      RetryRouteConfig `yaml:"retry"`
	Connection ConnectionConfig `yaml:"connection"`
}

// JobsRouteConfig holds the primary job route
type JobsRouteConfig struct {
	Exchange   string `yaml:"exchange"`
	Queue      string `yaml:"queue"`
	RoutingKey string `yaml:"routing_key"`
}

// EventsConfig holds the domain-events exchange
type EventsConfig struct {
	Exchange string `yaml:"exchange"`
}

// RetryRouteConfig holds the delayed-delivery route
type RetryRouteConfig struct {
	WaitQueue  string `yaml:"wait_queue"`
	RoutingKey string `yaml:"routing_key"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// EngineConfig holds job-engine configuration
type EngineConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	PrefetchCount int           `yaml:"prefetch_count"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	DrainTimeout  time.Duration `yaml:"drain_timeout"`
}

// RelayConfig holds outbox relay configuration
type RelayConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// AuthConfig holds the static token the policy collaborator checks for
// administrative actions
type AuthConfig struct {
	AdminToken string `yaml:"admin_token"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// validateShared checks the sections both services need
func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Jobs.Exchange == "" {
		return fmt.Errorf("rabbitmq jobs exchange is required")
	}

	if c.RabbitMQ.Jobs.Queue == "" {
		return fmt.Errorf("rabbitmq jobs queue is required")
	}

	if c.RabbitMQ.Events.Exchange == "" {
		return fmt.Errorf("rabbitmq events exchange is required")
	}

	if c.RabbitMQ.Retry.WaitQueue == "" {
		return fmt.Errorf("rabbitmq retry wait queue is required")
	}

	return nil
}

// ValidateAPIConfig checks the configuration for the api service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Auth.AdminToken == "" {
		return fmt.Errorf("auth admin_token is required")
	}

	return c.validateShared()
}

// ValidateWorkerConfig checks the configuration for the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine concurrency must be greater than 0")
	}

	if c.Engine.MaxAttempts <= 0 {
		return fmt.Errorf("engine max_attempts must be greater than 0")
	}

	if c.Engine.BaseDelay <= 0 {
		return fmt.Errorf("engine base_delay must be greater than 0")
	}

	if c.Engine.MaxDelay < c.Engine.BaseDelay {
		return fmt.Errorf("engine max_delay must be >= base_delay")
	}

	if c.Engine.DrainTimeout <= 0 {
		return fmt.Errorf("engine drain_timeout must be greater than 0")
	}

	if c.Relay.PollInterval <= 0 {
		return fmt.Errorf("relay poll_interval must be greater than 0")
	}

	if c.Relay.BatchSize <= 0 {
		return fmt.Errorf("relay batch_size must be greater than 0")
	}

	if c.Relay.MaxAttempts <= 0 {
		return fmt.Errorf("relay max_attempts must be greater than 0")
	}

	return nil
}
