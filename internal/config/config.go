package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App       *AppConfig       `yaml:"app"`
	Database  *DatabaseConfig  `yaml:"database"`
	Redis     *RedisConfig     `yaml:"redis"`
	Push      *PushConfig      `yaml:"push"`
	Maps      *MapsConfig      `yaml:"maps"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
	Security  *SecurityConfig  `yaml:"security"`
	Matching  *MatchingConfig  `yaml:"matching"`
	Pricing   *PricingConfig   `yaml:"pricing"`
}

type AppConfig struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	Environment   string `yaml:"environment"`
	Port          int    `yaml:"port"`
	Host          string `yaml:"host"`
	Debug         bool   `yaml:"debug"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogOutput     string `yaml:"log_output"`
	Timezone      string `yaml:"timezone"`
	RunMigrations bool   `yaml:"run_migrations"`
}

type SecurityConfig struct {
	JWTSecret          string   `yaml:"jwt_secret"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	TrustedProxies     []string `yaml:"trusted_proxies"`
}

func Load() (*Config, error) {
	config := &Config{
		App:       loadAppConfig(),
		Database:  loadDatabaseConfig(),
		Redis:     loadRedisConfig(),
		Push:      loadPushConfig(),
		Maps:      loadMapsConfig(),
		WebSocket: loadWebSocketConfig(),
		Security:  loadSecurityConfig(),
		Matching:  loadMatchingConfig(),
		Pricing:   loadPricingConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the matching engine cannot run with.
func (c *Config) Validate() error {
	if c.Database.URI == "" {
		return errors.New("MONGODB_URI is required")
	}
	if c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Matching.MaxOriginDistance <= 0 || c.Matching.MaxDestinationDistance <= 0 {
		return fmt.Errorf("matching distances must be positive, got origin=%v destination=%v",
			c.Matching.MaxOriginDistance, c.Matching.MaxDestinationDistance)
	}
	if c.Matching.MinMatchScore < 0 || c.Matching.MinMatchScore > 100 {
		return fmt.Errorf("MATCH_MIN_SCORE must be within 0-100, got %d", c.Matching.MinMatchScore)
	}
	if c.Pricing.BaseFare < 0 || c.Pricing.PerKmRate < 0 {
		return errors.New("pricing rates must not be negative")
	}
	return nil
}

func loadAppConfig() *AppConfig {
	return &AppConfig{
		Name:          getEnv("APP_NAME", "campusride"),
		Version:       getEnv("APP_VERSION", "1.0.0"),
		Environment:   getEnv("APP_ENV", "development"),
		Port:          getEnvAsInt("APP_PORT", 8080),
		Host:          getEnv("APP_HOST", "0.0.0.0"),
		Debug:         getEnvAsBool("APP_DEBUG", true),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
		Timezone:      getEnv("APP_TIMEZONE", "Asia/Dhaka"),
		RunMigrations: getEnvAsBool("RUN_MIGRATIONS", true),
	}
}

func loadSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		JWTSecret:          getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 100),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func IsProduction() bool {
	return getEnv("APP_ENV", "development") == "production"
}

func IsTest() bool {
	return getEnv("APP_ENV", "development") == "test"
}
