package handler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/mstgnz/academypay/infra/response"
	"github.com/mstgnz/academypay/notify"
)

const healthCheckTimeout = 5 * time.Second

// Pinger is anything that can answer a liveness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// NotifierStatsInterface exposes notification dispatcher counters
type NotifierStatsInterface interface {
	Stats() notify.Stats
}

// HealthDeps are the components the health check pings. All are optional.
type HealthDeps struct {
	DB           *sql.DB
	DatabasePath string
	Search       Pinger
	Gateways     []string
	Notifier     NotifierStatsInterface
	Environment  string
	Version      string
}

// HealthHandler handles health check requests
type HealthHandler struct {
	deps      HealthDeps
	startTime time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Database    *DatabaseHealth           `json:"database"`
	Gateways    []string                  `json:"gateways"`
	System      *SystemHealth             `json:"system"`
	Services    map[string]*ServiceHealth `json:"services"`
}

// DatabaseHealth represents database health status
type DatabaseHealth struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	ResponseTime int64  `json:"response_time_ms"`
	OpenConns    int    `json:"open_connections"`
	InUseConns   int    `json:"in_use_connections"`
	WaitCount    int64  `json:"wait_count"`
	Error        string `json:"error,omitempty"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Memory     *MemoryHealth `json:"memory"`
	Disk       *DiskHealth   `json:"disk,omitempty"`
	GoRoutines int           `json:"goroutines"`
}

// MemoryHealth represents memory usage
type MemoryHealth struct {
	Alloc        string  `json:"alloc"`
	Sys          string  `json:"sys"`
	GCRuns       uint32  `json:"gc_runs"`
	UsagePercent float64 `json:"usage_percent"`
}

// DiskHealth represents usage of the volume holding the database
type DiskHealth struct {
	Available    string  `json:"available"`
	Total        string  `json:"total"`
	UsagePercent float64 `json:"usage_percent"`
	Status       string  `json:"status"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string `json:"status"`
	Healthy     bool   `json:"healthy"`
	Critical    bool   `json:"critical"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
	Details     any    `json:"details,omitempty"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(deps HealthDeps) *HealthHandler {
	if deps.Version == "" {
		deps.Version = "1.0.0"
	}
	if deps.Environment == "" {
		deps.Environment = "development"
	}
	return &HealthHandler{
		deps:      deps,
		startTime: time.Now(),
	}
}

// CheckHealth handles GET /health
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	health := &HealthStatus{
		Version:     h.deps.Version,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: h.deps.Environment,
		Database:    h.checkDatabaseHealth(ctx),
		Gateways:    h.deps.Gateways,
		System:      h.checkSystemHealth(),
		Services:    h.checkServicesHealth(ctx),
	}
	if health.Gateways == nil {
		health.Gateways = []string{}
	}
	health.Status = determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

// checkDatabaseHealth pings the SQLite database
func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	dbHealth := &DatabaseHealth{Status: "unknown"}

	if h.deps.DB == nil {
		dbHealth.Status = "unhealthy"
		dbHealth.Error = "Database not configured"
		return dbHealth
	}

	start := time.Now()
	err := h.deps.DB.PingContext(ctx)
	dbHealth.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		dbHealth.Status = "unhealthy"
		dbHealth.Error = err.Error()
		return dbHealth
	}

	dbHealth.Connected = true
	stats := h.deps.DB.Stats()
	dbHealth.OpenConns = stats.OpenConnections
	dbHealth.InUseConns = stats.InUse
	dbHealth.WaitCount = stats.WaitCount

	if dbHealth.ResponseTime > time.Second.Milliseconds() {
		dbHealth.Status = "degraded"
	} else {
		dbHealth.Status = "healthy"
	}
	return dbHealth
}

// checkSystemHealth checks system resource health
func (h *HealthHandler) checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	system := &SystemHealth{
		Memory: &MemoryHealth{
			Alloc:        formatBytes(memStats.Alloc),
			Sys:          formatBytes(memStats.Sys),
			GCRuns:       memStats.NumGC,
			UsagePercent: float64(memStats.Alloc) / float64(memStats.Sys) * 100,
		},
		GoRoutines: runtime.NumGoroutine(),
	}
	if h.deps.DatabasePath != "" {
		system.Disk = diskUsage(filepath.Dir(h.deps.DatabasePath))
	}
	return system
}

// checkServicesHealth checks the optional collaborators
func (h *HealthHandler) checkServicesHealth(ctx context.Context) map[string]*ServiceHealth {
	services := make(map[string]*ServiceHealth)

	gateways := &ServiceHealth{Critical: true, Description: "Registered gateway drivers"}
	if len(h.deps.Gateways) > 0 {
		gateways.Status, gateways.Healthy = "healthy", true
	} else {
		gateways.Status, gateways.Error = "unhealthy", "no gateway drivers registered"
	}
	services["gateway_registry"] = gateways

	search := &ServiceHealth{Description: "Audit trail and log shipping to OpenSearch"}
	switch {
	case h.deps.Search == nil:
		search.Status, search.Healthy = "not_configured", true
	default:
		if err := h.deps.Search.Ping(ctx); err != nil {
			search.Status, search.Error = "unhealthy", err.Error()
		} else {
			search.Status, search.Healthy = "healthy", true
		}
	}
	services["opensearch"] = search

	if h.deps.Notifier != nil {
		stats := h.deps.Notifier.Stats()
		notifier := &ServiceHealth{
			Status:      "healthy",
			Healthy:     true,
			Description: "Payment status notifications",
			Details:     stats,
		}
		if stats.Dropped > 0 || stats.Failed > 0 {
			notifier.Status = "degraded"
		}
		services["notifications"] = notifier
	}

	return services
}

// determineOverallStatus folds component results into one status
func determineOverallStatus(health *HealthStatus) string {
	if health.Database == nil || health.Database.Status == "unhealthy" {
		return "unhealthy"
	}
	for _, service := range health.Services {
		if service.Critical && !service.Healthy {
			return "unhealthy"
		}
	}

	if health.Database.Status == "degraded" {
		return "degraded"
	}
	for _, service := range health.Services {
		if !service.Healthy || service.Status == "degraded" {
			return "degraded"
		}
	}
	if health.System != nil && health.System.Disk != nil && health.System.Disk.UsagePercent > 90 {
		return "degraded"
	}
	return "healthy"
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func diskUsage(dir string) *DiskHealth {
	var stat syscall.Statfs_t
	disk := &DiskHealth{Status: "unknown"}

	if err := syscall.Statfs(dir, &stat); err != nil {
		disk.Status = "error"
		return disk
	}

	available := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return disk
	}
	used := total - stat.Bfree*uint64(stat.Bsize)

	disk.Available = formatBytes(available)
	disk.Total = formatBytes(total)
	disk.UsagePercent = float64(used) / float64(total) * 100

	switch {
	case disk.UsagePercent > 90:
		disk.Status = "critical"
	case disk.UsagePercent > 80:
		disk.Status = "warning"
	default:
		disk.Status = "healthy"
	}
	return disk
}
