package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Check reports one subsystem's health detail. A false verdict marks the
// whole response unhealthy; the detail is included either way.
type Check func(ctx context.Context) (detail interface{}, ok bool)

// PoolStats is the connection pool snapshot included in the health payload.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// runChecks merges every check's detail into the body under its registered
// name and reports whether all of them passed.
func runChecks(ctx context.Context, body map[string]interface{}, checks map[string]Check) bool {
	healthy := true
	for name, check := range checks {
		detail, ok := check(ctx)
		body[name] = detail
		if !ok {
			healthy = false
		}
	}
	return healthy
}

// HealthHandler pings the database, snapshots the pool, and runs the
// registered subsystem checks (closure rebuild state, search index
// generation). Any failure turns the response into a 503 while still
// reporting the sections that passed.
func HealthHandler(pool *pgxpool.Pool, checks map[string]Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body := make(map[string]interface{}, len(checks)+3)
		healthy := true

		stats := GetPoolStats(pool)
		if err := pool.Ping(ctx); err != nil {
			healthy = false
			stats.Healthy = false
			body["error"] = err.Error()
		}
		body["pool"] = stats

		if !runChecks(ctx, body, checks) {
			healthy = false
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		body["status"] = status
		return c.JSON(code, body)
	}
}
