// Package config provides Viper-based configuration loading for the lobby server.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LobbyConfig holds control-channel listener settings.
type LobbyConfig struct {
	// Host is the bind address for the control listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port clients send login/logoff/finish requests to.
	Port int `mapstructure:"port"`
	// ReadTimeout bounds the single request read; 0 disables the deadline.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout bounds the single reply write; 0 disables the deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxConns caps concurrently handled connections; 0 means unbounded.
	MaxConns int64 `mapstructure:"max_conns"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (l LobbyConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// EngineConfig holds settings for the game engine registry and its rooms.
type EngineConfig struct {
	// RegistryHost is the bind/connect address of the engine gRPC registry.
	RegistryHost string `mapstructure:"registry_host"`
	// RegistryPort is the TCP port of the engine gRPC registry.
	RegistryPort int `mapstructure:"registry_port"`
	// RoomName is the well-known name the active room is bound under.
	RoomName string `mapstructure:"room_name"`
	// BoardSize is the edge length of the mole board each new room gets.
	BoardSize int `mapstructure:"board_size"`
	// CallTimeout bounds every remote call made to the engine.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// Addr returns the "host:port" registry address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (e EngineConfig) Addr() string {
	return fmt.Sprintf("%s:%d", e.RegistryHost, e.RegistryPort)
}

// SessionConfig holds the values published to clients when a session starts.
type SessionConfig struct {
	// GamePort is the port the real-time driver serves the live game on.
	GamePort int `mapstructure:"game_port"`
	// BroadcastGroup is the multicast group for game updates. Empty picks a
	// fresh group in 239.255.0.0/16 for every cycle.
	BroadcastGroup string `mapstructure:"broadcast_group"`
	// AdvertiseHost overrides the detected local IPv4 address.
	AdvertiseHost string `mapstructure:"advertise_host"`
}

// DriverConfig holds settings for the multicast announcer.
type DriverConfig struct {
	// Interval is the delay between two announcements.
	Interval time.Duration `mapstructure:"interval"`
	// TTL is the multicast hop limit.
	TTL int `mapstructure:"ttl"`
	// Loopback enables delivery of announcements to the local host.
	Loopback bool `mapstructure:"loopback"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds PostgreSQL connection settings for the cycle audit log.
type DatabaseConfig struct {
	// Enabled turns the audit log on; when false no connection is attempted.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// StatusConfig holds the read-only HTTP status endpoint settings.
type StatusConfig struct {
	// Enabled starts the status server; when false nothing is bound.
	Enabled bool `mapstructure:"enabled"`
	// Host is the bind address, loopback by default.
	Host string `mapstructure:"host"`
	// Port is the HTTP port; 0 asks the kernel for an ephemeral port.
	Port int `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (s StatusConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Config is the top-level application configuration.
type Config struct {
	Lobby    LobbyConfig    `mapstructure:"lobby"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Session  SessionConfig  `mapstructure:"session"`
	Driver   DriverConfig   `mapstructure:"driver"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Status   StatusConfig   `mapstructure:"status"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateLobby(c.Lobby),
		validateEngine(c.Engine),
		validateSession(c.Session),
		validateDriver(c.Driver),
		validateLogging(c.Logging),
		validateDatabase(c.Database),
		validateStatus(c.Status),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func validateLobby(l LobbyConfig) error {
	var errs []string
	// Port 0 asks the kernel for an ephemeral port.
	if l.Port < 0 || l.Port > 65535 {
		errs = append(errs, fmt.Sprintf("lobby.port must be 0-65535, got %d", l.Port))
	}
	if l.ReadTimeout < 0 {
		errs = append(errs, "lobby.read_timeout must not be negative")
	}
	if l.WriteTimeout < 0 {
		errs = append(errs, "lobby.write_timeout must not be negative")
	}
	if l.MaxConns < 0 {
		errs = append(errs, fmt.Sprintf("lobby.max_conns must be >= 0, got %d", l.MaxConns))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateEngine(e EngineConfig) error {
	var errs []string
	if e.RegistryHost == "" {
		errs = append(errs, "engine.registry_host must not be empty")
	}
	if !validPort(e.RegistryPort) {
		errs = append(errs, fmt.Sprintf("engine.registry_port must be 1-65535, got %d", e.RegistryPort))
	}
	if e.RoomName == "" {
		errs = append(errs, "engine.room_name must not be empty")
	}
	if e.BoardSize < 1 {
		errs = append(errs, fmt.Sprintf("engine.board_size must be >= 1, got %d", e.BoardSize))
	}
	if e.CallTimeout <= 0 {
		errs = append(errs, "engine.call_timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	var errs []string
	if !validPort(s.GamePort) {
		errs = append(errs, fmt.Sprintf("session.game_port must be 1-65535, got %d", s.GamePort))
	}
	if s.BroadcastGroup != "" {
		addr, err := netip.ParseAddr(s.BroadcastGroup)
		if err != nil || !addr.Is4() || !addr.IsMulticast() {
			errs = append(errs, fmt.Sprintf("session.broadcast_group must be an IPv4 multicast address, got %q", s.BroadcastGroup))
		}
	}
	if strings.Contains(s.AdvertiseHost, ",") {
		errs = append(errs, "session.advertise_host must not contain ','")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDriver(d DriverConfig) error {
	var errs []string
	if d.Interval <= 0 {
		errs = append(errs, "driver.interval must be positive")
	}
	if d.TTL < 0 || d.TTL > 255 {
		errs = append(errs, fmt.Sprintf("driver.ttl must be 0-255, got %d", d.TTL))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	if !d.Enabled {
		return nil
	}
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if !validPort(d.Port) {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 || d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must be between 0 and database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStatus(s StatusConfig) error {
	if !s.Enabled {
		return nil
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("status.port must be 0-65535, got %d", s.Port)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path skips the file and uses
// defaults plus environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with ARCADE_ prefix
	v.SetEnvPrefix("ARCADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("lobby.host", "0.0.0.0")
	v.SetDefault("lobby.port", 8888)
	v.SetDefault("lobby.read_timeout", "0s")
	v.SetDefault("lobby.write_timeout", "0s")
	v.SetDefault("lobby.max_conns", 0)

	v.SetDefault("engine.registry_host", "127.0.0.1")
	v.SetDefault("engine.registry_port", 1099)
	v.SetDefault("engine.room_name", "WAM")
	v.SetDefault("engine.board_size", 5)
	v.SetDefault("engine.call_timeout", "5s")

	v.SetDefault("session.game_port", 7777)
	v.SetDefault("session.broadcast_group", "228.229.230.231")
	v.SetDefault("session.advertise_host", "")

	v.SetDefault("driver.interval", "1s")
	v.SetDefault("driver.ttl", 1)
	v.SetDefault("driver.loopback", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "arcade")
	v.SetDefault("database.password", "arcade")
	v.SetDefault("database.name", "arcade")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("status.enabled", true)
	v.SetDefault("status.host", "127.0.0.1")
	v.SetDefault("status.port", 8889)
}
