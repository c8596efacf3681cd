package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// OperationType определяет тип операции для настройки таймаута
type OperationType string

const (
	OperationDefault  OperationType = "default"
	OperationDatabase OperationType = "database"
	OperationCache    OperationType = "cache"
	OperationHeavy    OperationType = "heavy" // Тяжёлые операции (bracket dispatch, callback upload)
)

// TimeoutConfig конфигурация таймаутов для разных типов операций
type TimeoutConfig struct {
	Default  time.Duration
	Database time.Duration
	Cache    time.Duration
	Heavy    time.Duration
}

// DefaultTimeoutConfig возвращает конфигурацию таймаутов по умолчанию
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Default:  10 * time.Second,
		Database: 15 * time.Second,
		Cache:    5 * time.Second,
		Heavy:    60 * time.Second,
	}
}

// SmartTimeout создаёт middleware с умными таймаутами.
// Определяет тип операции по URL и применяет соответствующий таймаут.
func SmartTimeout(config TimeoutConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timeout := getTimeoutForRequest(r, config)
			if timeout == 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)
			next.ServeHTTP(w, r)
		})
	}
}

// getTimeoutForRequest определяет таймаут на основе запроса
func getTimeoutForRequest(r *http.Request, config TimeoutConfig) time.Duration {
	path := r.URL.Path
	method := r.Method

	// Колбэки от раннера несут реплей целиком и запускают начисление Elo
	// или розыгрыш следующего раунда турнира.
	if strings.Contains(path, "_callback") {
		return config.Heavy
	}

	// Постановка серии матчей турнира в очередь на раунд укладывается в тот
	// же бюджет: обработчик лишь диспетчеризует задания раннеру.
	if strings.HasPrefix(path, "/tournament") && method == "POST" {
		return config.Heavy
	}

	// Списки и выборки из БД
	if method == "GET" &&
		(strings.HasPrefix(path, "/match") ||
			strings.HasPrefix(path, "/scrimmage") ||
			strings.HasPrefix(path, "/tournament")) {
		return config.Database
	}

	// Прочие операции записи (быстрые)
	if method == "POST" || method == "PUT" || method == "DELETE" {
		return config.Cache
	}

	return config.Default
}

// WithOperationTimeout создаёт контекст с таймаутом для конкретного типа операции.
// Используется в сервисах для ручного управления таймаутами.
func WithOperationTimeout(ctx context.Context, op OperationType, config TimeoutConfig) (context.Context, context.CancelFunc) {
	var timeout time.Duration

	switch op {
	case OperationDatabase:
		timeout = config.Database
	case OperationCache:
		timeout = config.Cache
	case OperationHeavy:
		timeout = config.Heavy
	default:
		timeout = config.Default
	}

	return context.WithTimeout(ctx, timeout)
}
