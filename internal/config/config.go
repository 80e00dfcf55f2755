// internal/config/config.go

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Nearby      NearbyConfig
	Roam        RoamConfig
	Direct      DirectConfig
	Feed        FeedConfig
	Cleanup     CleanupConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// NearbyConfig holds location query configuration
type NearbyConfig struct {
	ZoneRadiusMeters        float64
	ShoutRadiusMeters       float64
	ShoutLifetime           time.Duration
	ZoneLifetime            time.Duration
	RecenterThresholdMeters float64
	ZoneExitBufferMeters    float64
}

// RoamConfig holds roaming item simulation configuration
type RoamConfig struct {
	StateDir string
}

// DirectConfig holds direct conversation configuration
type DirectConfig struct {
	MaxMessageLength int
}

// FeedConfig holds zone feed configuration
type FeedConfig struct {
	MaxPosts int
}

// CleanupConfig holds expired-content sweep configuration
type CleanupConfig struct {
	Schedule string
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "geochat"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Nearby: NearbyConfig{
			ZoneRadiusMeters:        getEnvAsFloat("NEARBY_ZONE_RADIUS_METERS", 50000),
			ShoutRadiusMeters:       getEnvAsFloat("NEARBY_SHOUT_RADIUS_METERS", 2000),
			ShoutLifetime:           getEnvAsDuration("NEARBY_SHOUT_LIFETIME", 24*time.Hour),
			ZoneLifetime:            getEnvAsDuration("NEARBY_ZONE_LIFETIME", 24*time.Hour),
			RecenterThresholdMeters: getEnvAsFloat("NEARBY_RECENTER_THRESHOLD_METERS", 500),
			ZoneExitBufferMeters:    getEnvAsFloat("NEARBY_ZONE_EXIT_BUFFER_METERS", 20),
		},
		Roam: RoamConfig{
			StateDir: getEnv("ROAM_STATE_DIR", "data/roam"),
		},
		Direct: DirectConfig{
			MaxMessageLength: getEnvAsInt("DIRECT_MAX_MESSAGE_LENGTH", 1000),
		},
		Feed: FeedConfig{
			MaxPosts: getEnvAsInt("FEED_MAX_POSTS", 100),
		},
		Cleanup: CleanupConfig{
			Schedule: getEnv("CLEANUP_SCHEDULE", "@every 5m"),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Feed.MaxPosts < 1 {
		return fmt.Errorf("feed max posts must be at least 1")
	}
	if config.Nearby.RecenterThresholdMeters < 0 {
		return fmt.Errorf("recenter threshold must be non-negative")
	}
	if config.Nearby.ZoneLifetime <= 0 {
		return fmt.Errorf("zone lifetime must be positive")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
