// internal/api/health.go
package api

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// initHealthRoutes registers the readiness probe. No authentication so
// load balancers and uptime monitors can reach it.
func (c *Controller) initHealthRoutes() {
	c.Group.GET("/v1/health", c.HealthCheck)
}

// HealthCheck returns readiness information. The status degrades to 503
// when the datastore probe fails. Oracle trouble is reported but keeps
// the service ready, since detections degrade to null verdicts and are
// retried in the background.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	status := http.StatusOK
	health := map[string]any{
		"status":     "healthy",
		"version":    c.Settings.Version,
		"build_date": c.Settings.BuildDate,
		"timestamp":  time.Now().Format(time.RFC3339),
	}

	environment := "production"
	if c.Settings.WebServer.Debug {
		environment = "development"
	}
	health["environment"] = environment

	if _, err := c.DS.CountDetections(nil); err != nil {
		health["status"] = "degraded"
		health["database_status"] = "error"
		status = http.StatusServiceUnavailable
	} else {
		health["database_status"] = "connected"
	}

	if c.Ingest != nil {
		streak := c.Ingest.OracleFailureStreak()
		oracleStatus := "ok"
		if streak > 0 {
			oracleStatus = "degraded"
		}
		health["oracle_status"] = oracleStatus
		health["oracle_failure_streak"] = streak
	}

	if c.startTime != nil {
		health["uptime_seconds"] = int64(time.Since(*c.startTime).Seconds())
	}

	health["system"] = c.systemStats()

	return ctx.JSON(status, health)
}

// systemStats samples host resources. Sampling failures leave fields
// absent rather than failing the probe.
func (c *Controller) systemStats() map[string]any {
	stats := make(map[string]any)

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["memory_total"] = vm.Total
		stats["memory_used"] = vm.Used
		stats["memory_used_percent"] = vm.UsedPercent
	}
	if du, err := disk.Usage(filepath.Dir(c.Settings.Output.SQLite.Path)); err == nil {
		stats["disk_total"] = du.Total
		stats["disk_used"] = du.Used
		stats["disk_used_percent"] = du.UsedPercent
	}
	return stats
}
