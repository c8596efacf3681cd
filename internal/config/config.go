package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Runner    RunnerConfig    `yaml:"runner"`
	Storage   StorageConfig   `yaml:"storage"`
	Engine    EngineConfig    `yaml:"engine"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig - конфигурация HTTP сервера
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig - конфигурация PostgreSQL
type DatabaseConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Name           string        `yaml:"name"`
	MaxConnections int           `yaml:"max_connections"`
	MaxIdle        int           `yaml:"max_idle"`
	MaxLifetime    time.Duration `yaml:"max_lifetime"`
}

// DSN возвращает строку подключения к PostgreSQL (формат key=value)
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name,
	)
}

// DSNURL возвращает строку подключения в URL формате (для golang-migrate)
func (c DatabaseConfig) DSNURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name,
	)
}

// RedisConfig - конфигурация Redis
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// Address возвращает адрес Redis
func (c RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RunnerConfig - конфигурация клиента асинхронного исполнителя матчей (Tango)
type RunnerConfig struct {
	Host            string        `yaml:"host"`              // Базовый URL исполнителя
	Key             string        `yaml:"key"`               // Ключ courselab/key в Tango-протоколе
	Timeout         time.Duration `yaml:"timeout"`           // Таймаут HTTP-запросов к исполнителю
	ScratchDir      string        `yaml:"scratch_dir"`       // Временная директория для файлов перед отправкой
	CallbackBaseURL string        `yaml:"callback_base_url"` // Базовый URL этого сервиса, видимый исполнителю
}

// StorageConfig - конфигурация объектного хранилища (реплеи, сетки, логи ошибок)
type StorageConfig struct {
	BasePath        string `yaml:"base_path"`
	ReplayBucket    string `yaml:"replay_bucket"`
	BracketBucket   string `yaml:"bracket_bucket"`
	ErrorLogBucket  string `yaml:"error_log_bucket"`
	PublicURLPrefix string `yaml:"public_url_prefix"`
}

// EngineConfig - конфигурация реестра игрового движка
type EngineConfig struct {
	DataDir string `yaml:"data_dir"` // Директория для персистентного состояния активного движка
}

// WatchdogConfig - конфигурация наблюдателя за потерянными коллбэками
type WatchdogConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

// LoggingConfig - конфигурация логирования
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	Async  bool   `yaml:"async"` // Асинхронное логирование с буферизацией
}

// MetricsConfig - конфигурация метрик
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// CORSConfig - конфигурация CORS
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// RateLimitConfig - конфигурация rate limiting
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Validate валидирует конфигурацию
func (c *Config) Validate() error {
	// Валидация Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Валидация Database
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max_connections must be positive")
	}

	// Валидация Redis
	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis port: %d", c.Redis.Port)
	}

	// Валидация Runner
	if c.Runner.Host == "" {
		return fmt.Errorf("runner host is required")
	}
	if c.Runner.Key == "" {
		return fmt.Errorf("runner key is required")
	}
	if c.Runner.CallbackBaseURL == "" {
		return fmt.Errorf("runner callback_base_url is required")
	}

	// Валидация Storage
	if c.Storage.BasePath == "" {
		return fmt.Errorf("storage base_path is required")
	}

	// Валидация Logging
	validLevels := []string{"debug", "info", "warn", "error"}
	validLevel := false
	for _, level := range validLevels {
		if c.Logging.Level == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	// Загружаем .env файл если существует
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("API_PORT", 8080),
			ReadTimeout:     getEnvDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnvInt("DB_PORT", 5432),
			User:           getEnv("DB_USER", "matchorch"),
			Password:       getEnvOrFile("DB_PASSWORD", "secret"), // Поддержка Docker secrets
			Name:           getEnv("DB_NAME", "matchorch"),
			MaxConnections: getEnvInt("DB_MAX_CONNECTIONS", 50),
			MaxIdle:        getEnvInt("DB_MAX_IDLE", 10),
			MaxLifetime:    getEnvDuration("DB_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvOrFile("REDIS_PASSWORD", ""), // Поддержка Docker secrets
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 100),
		},
		Runner: RunnerConfig{
			Host:            getEnv("RUNNER_HOST", "http://localhost:8090"),
			Key:             getEnvOrFile("RUNNER_KEY", "matchorch"), // Поддержка Docker secrets
			Timeout:         getEnvDuration("RUNNER_TIMEOUT", 30*time.Second),
			ScratchDir:      getEnv("RUNNER_SCRATCH_DIR", "/tmp/matchorch-scratch"),
			CallbackBaseURL: getEnv("RUNNER_CALLBACK_BASE_URL", "http://localhost:8080"),
		},
		Storage: StorageConfig{
			BasePath:        getEnv("STORAGE_BASE_PATH", "/var/lib/matchorch/objects"),
			ReplayBucket:    getEnv("STORAGE_REPLAY_BUCKET", "replays"),
			BracketBucket:   getEnv("STORAGE_BRACKET_BUCKET", "brackets"),
			ErrorLogBucket:  getEnv("STORAGE_ERROR_LOG_BUCKET", "error-logs"),
			PublicURLPrefix: getEnv("STORAGE_PUBLIC_URL_PREFIX", "http://localhost:8080/objects"),
		},
		Engine: EngineConfig{
			DataDir: getEnv("ENGINE_DATA_DIR", "/var/lib/matchorch/engine"),
		},
		Watchdog: WatchdogConfig{
			Enabled:       getEnvBool("WATCHDOG_ENABLED", false),
			SweepInterval: getEnvDuration("WATCHDOG_SWEEP_INTERVAL", 1*time.Minute),
			StaleAfter:    getEnvDuration("WATCHDOG_STALE_AFTER", 30*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
			Async:  getEnvBool("LOG_ASYNC", true), // По умолчанию async для production
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         getEnvInt("CORS_MAX_AGE", 3600),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getEnvInt("RATE_LIMIT_RPM", 100),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 200),
		},
	}

	// Валидируем конфигурацию
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvOrFile читает значение из переменной окружения или из файла
// Сначала проверяет KEY, затем KEY_FILE
// Это поддерживает Docker secrets
func getEnvOrFile(key, defaultValue string) string {
	// Сначала проверяем обычную переменную
	if value := os.Getenv(key); value != "" {
		return value
	}

	// Затем проверяем переменную с суффиксом _FILE
	fileKey := key + "_FILE"
	if filePath := os.Getenv(fileKey); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err == nil {
			// Убираем trailing newline
			return strings.TrimSpace(string(content))
		}
	}

	return defaultValue
}
