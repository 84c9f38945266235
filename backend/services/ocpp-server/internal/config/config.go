package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "csms/backend/libs/config"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config defines OCPP server configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"OCPP_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"OCPP_POSTGRES_DSN"`
	} `yaml:"database"`
	Storage struct {
		Driver string `yaml:"driver" env:"OCPP_STORAGE_DRIVER"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr" env:"OCPP_REDIS_ADDR"`
		Password string `yaml:"password" env:"OCPP_REDIS_PASSWORD"`
	} `yaml:"redis"`
	NATS struct {
		URL           string `yaml:"url" env:"OCPP_NATS_URL"`
		SubjectPrefix string `yaml:"subjectPrefix" env:"OCPP_NATS_SUBJECT_PREFIX"`
	} `yaml:"nats"`
	WebSocket struct {
		PingIntervalSeconds int    `yaml:"pingIntervalSeconds" env:"OCPP_PING_INTERVAL"`
		WriteTimeoutSeconds int    `yaml:"writeTimeoutSeconds" env:"OCPP_WRITE_TIMEOUT"`
		Path                string `yaml:"path" env:"OCPP_WS_PATH"`
	} `yaml:"websocket"`
	OCPP struct {
		HeartbeatIntervalSeconds int `yaml:"heartbeatIntervalSeconds" env:"OCPP_HEARTBEAT_INTERVAL"`
	} `yaml:"ocpp"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"OCPP_JWT_SECRET"`
	} `yaml:"auth"`
	Chargers struct {
		// BasicAuth maps charge point ids to bcrypt password hashes.
		BasicAuth map[string]string `yaml:"basicAuth" env:"OCPP_CHARGERS_BASIC_AUTH"`
	} `yaml:"chargers"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = "8081"
	cfg.Storage.Driver = DriverPostgres
	cfg.WebSocket.PingIntervalSeconds = 30
	cfg.WebSocket.WriteTimeoutSeconds = 15
	cfg.WebSocket.Path = "/ocpp/"
	cfg.OCPP.HeartbeatIntervalSeconds = 300
	return cfg
}

// Load uses shared config loader and validates required fields.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverPostgres
	}
	switch c.Storage.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("config: database DSN is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.WebSocket.PingIntervalSeconds < 0 || c.WebSocket.WriteTimeoutSeconds < 0 || c.OCPP.HeartbeatIntervalSeconds < 0 {
		return errors.New("config: intervals must not be negative")
	}
	return nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8081"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// PingInterval returns websocket ping interval.
func (c *Config) PingInterval() time.Duration {
	if c.WebSocket.PingIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.WebSocket.PingIntervalSeconds) * time.Second
}

// WriteTimeout returns websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	if c.WebSocket.WriteTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.WebSocket.WriteTimeoutSeconds) * time.Second
}

// HeartbeatInterval is the interval handed to charge points in BootNotification.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.OCPP.HeartbeatIntervalSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.OCPP.HeartbeatIntervalSeconds) * time.Second
}

// WebSocketPath returns the charge point endpoint prefix with leading and trailing slashes.
func (c *Config) WebSocketPath() string {
	path := strings.Trim(strings.TrimSpace(c.WebSocket.Path), "/")
	if path == "" {
		return "/ocpp/"
	}
	return "/" + path + "/"
}
