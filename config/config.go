// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port                string
	Environment         string
	DatabaseDriver      string
	DatabaseURL         string
	MasterKey           string
	KMSKeyName          string
	KeyRotationDays     int
	SensitiveFieldsFile string
	RegistryCacheTTL    time.Duration
	GoogleCloudProject  string
	LogLevel            string

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("APP_ENV", "development"),
		DatabaseDriver:      getEnv("DATABASE_DRIVER", "mysql"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		MasterKey:           os.Getenv("MASTER_KEY"),
		KMSKeyName:          os.Getenv("KMS_KEY_NAME"),
		KeyRotationDays:     getEnvInt("KEY_ROTATION_DAYS", 90),
		SensitiveFieldsFile: os.Getenv("SENSITIVE_FIELDS_FILE"),
		RegistryCacheTTL:    getEnvDuration("REGISTRY_CACHE_TTL", 5*time.Minute),
		GoogleCloudProject:  os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		OtelEnabled:         getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:        getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:     getEnv("OTEL_SERVICE_NAME", "field-protection-service"),
		OtelSamplingRate:    getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

// IsProductionLike は本番相当の環境かどうかを返す。
func (c *Config) IsProductionLike() bool {
	switch strings.ToLower(c.Environment) {
	case "production", "prod", "staging":
		return true
	}
	return false
}

// KeyRotationPeriod は鍵のローテーション周期を返す。
func (c *Config) KeyRotationPeriod() time.Duration {
	return time.Duration(c.KeyRotationDays) * 24 * time.Hour
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER: %q", c.DatabaseDriver)
	}
	if c.KeyRotationDays < 1 {
		return fmt.Errorf("KEY_ROTATION_DAYS must be positive: %d", c.KeyRotationDays)
	}
	if c.OtelSamplingRate < 0 || c.OtelSamplingRate > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATE must be within [0, 1]: %v", c.OtelSamplingRate)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}
