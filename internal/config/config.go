// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"packetforge/internal/model"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Security  SecurityConfig      `mapstructure:"security"`
	Logging   LoggingConfig       `mapstructure:"logging"`
	Transport TransportConfig     `mapstructure:"transport"`
	Sessions  []model.OpenRequest `mapstructure:"sessions"`
	App       AppConfig           `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TLS             TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// TransportConfig holds the transport layer tunables
type TransportConfig struct {
	Serial          SerialDefaults `mapstructure:"serial"`
	BindAttempts    int            `mapstructure:"bind_attempts"`
	BindRetryDelay  time.Duration  `mapstructure:"bind_retry_delay"`
	PinPollInterval time.Duration  `mapstructure:"pin_poll_interval"`
	SerialReadPoll  time.Duration  `mapstructure:"serial_read_poll"`
	CloseTimeout    time.Duration  `mapstructure:"close_timeout"`
	ConnectTimeout  time.Duration  `mapstructure:"connect_timeout"`
	ReadBufferSize  int            `mapstructure:"read_buffer_size"`
	MaxPacketSize   int            `mapstructure:"max_packet_size"`
	QueueLimit      int            `mapstructure:"queue_limit"`
	ReconnectDelay  time.Duration  `mapstructure:"reconnect_delay"`
	ReconnectMax    int            `mapstructure:"reconnect_max_attempts"`
}

// SerialDefaults are applied to serial sessions that leave fields unset
type SerialDefaults struct {
	BaudRate    int     `mapstructure:"baud_rate"`
	DataBits    int     `mapstructure:"data_bits"`
	StopBits    float64 `mapstructure:"stop_bits"`
	Parity      string  `mapstructure:"parity"`
	FlowControl string  `mapstructure:"flow_control"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables.
// configFile may be empty to search the default locations.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/packetforge")
	}

	// Environment variable support
	v.SetEnvPrefix("PACKETFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.tls.enabled", false)

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Transport defaults
	v.SetDefault("transport.serial.baud_rate", 9600)
	v.SetDefault("transport.serial.data_bits", 8)
	v.SetDefault("transport.serial.stop_bits", 1)
	v.SetDefault("transport.serial.parity", "NONE")
	v.SetDefault("transport.serial.flow_control", "NONE")
	v.SetDefault("transport.bind_attempts", 5)
	v.SetDefault("transport.bind_retry_delay", "1s")
	v.SetDefault("transport.pin_poll_interval", "100ms")
	v.SetDefault("transport.serial_read_poll", "100ms")
	v.SetDefault("transport.close_timeout", "2s")
	v.SetDefault("transport.connect_timeout", "5s")
	v.SetDefault("transport.read_buffer_size", 4096)
	v.SetDefault("transport.max_packet_size", 65536)
	v.SetDefault("transport.queue_limit", 10000)
	v.SetDefault("transport.reconnect_delay", "2s")
	v.SetDefault("transport.reconnect_max_attempts", 0)

	// App defaults
	v.SetDefault("app.name", "packetforge")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if config.Transport.BindAttempts < 1 {
		return fmt.Errorf("transport.bind_attempts must be at least 1")
	}
	if config.Transport.CloseTimeout <= 0 {
		return fmt.Errorf("transport.close_timeout must be positive")
	}

	for i, s := range config.Sessions {
		if model.ParseTransportKind(string(s.Parameters.Kind)) == model.KindInvalid {
			return fmt.Errorf("sessions[%d]: unknown transport kind %q", i, s.Parameters.Kind)
		}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
