package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Backup   BackupConfig
	Kafka    KafkaConfig
	Notify   NotifyConfig
}

type ServerConfig struct {
	Port         string
	PublicDir    string
	RateLimitRPS int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Addr is the listen address for http.Server.
func (s ServerConfig) Addr() string {
	return ":" + s.Port
}

type DatabaseConfig struct {
	Path string
}

type BackupConfig struct {
	Path     string
	Interval time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type NotifyConfig struct {
	Email       bool
	SenderEmail string
}

// Load reads configuration from the environment. Callers load .env first.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnvOrDefault("PORT", "3000"),
			PublicDir:    getEnvOrDefault("PUBLIC_DIR", "public"),
			RateLimitRPS: getIntOrDefault("RATE_LIMIT_RPS", 100),
			ReadTimeout:  getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Path: getEnvOrDefault("DB_PATH", "bookings.db"),
		},
		Backup: BackupConfig{
			Path:     getEnvOrDefault("BACKUP_PATH", "bookings_backup.db"),
			Interval: getDurationOrDefault("BACKUP_INTERVAL", time.Hour),
		},
		Kafka: KafkaConfig{
			Enabled: getBoolOrDefault("KAFKA_ENABLED", false),
			Brokers: splitList(getEnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getEnvOrDefault("KAFKA_TOPIC", "booking-events"),
		},
		Notify: NotifyConfig{
			Email:       getBoolOrDefault("EMAIL_NOTIFICATIONS", true),
			SenderEmail: getEnvOrDefault("EMAIL_SENDER", "bookings@localhost"),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnvOrDefault(key, ""))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(getEnvOrDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnvOrDefault(key, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
