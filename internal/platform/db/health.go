package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// HealthStatus is the payload of the database health endpoint. Operators
// watch acquired_conns against max_conns: the consumers and both sweeps
// share the pool, so sustained saturation here shows up as MLLP backlog.
type HealthStatus struct {
	Status        string `json:"status"`
	PingLatency   string `json:"ping_latency"`
	Error         string `json:"error,omitempty"`
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
}

// HealthHandler reports database reachability and pool pressure.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		start := time.Now()
		err := pool.Ping(ctx)
		latency := time.Since(start)

		stat := pool.Stat()
		status := HealthStatus{
			Status:        "healthy",
			PingLatency:   latency.String(),
			TotalConns:    stat.TotalConns(),
			IdleConns:     stat.IdleConns(),
			AcquiredConns: stat.AcquiredConns(),
			MaxConns:      stat.MaxConns(),
		}

		if err != nil {
			status.Status = "unhealthy"
			status.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, status)
		}
		return c.JSON(http.StatusOK, status)
	}
}
