package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"callcoach-server/pkg/version"
)

// HealthStatus represents the health of the service and its collaborators.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckResult represents an individual health check result.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfo contains process resource information.
type SystemInfo struct {
	GoRoutines int    `json:"goroutines"`
	MemoryMB   uint64 `json:"memory_mb"`
	CPUCount   int    `json:"cpu_count"`
	WSClients  int    `json:"ws_clients"`
	QueueDepth int    `json:"queue_depth"`
}

// HealthHandler reports overall service health. A broken database marks the
// service unhealthy; a disconnected broker or hub only degrades it, since
// analysis keeps working without them.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    make(map[string]CheckResult),
	}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			health.Checks["database"] = CheckResult{
				Status:  "unhealthy",
				Message: fmt.Sprintf("database unreachable: %v", err),
			}
			health.Status = "unhealthy"
		} else {
			health.Checks["database"] = CheckResult{Status: "healthy", Message: "database operational"}
		}
	} else {
		health.Checks["database"] = CheckResult{Status: "unhealthy", Message: "database not configured"}
		health.Status = "unhealthy"
	}

	if s.queue != nil {
		depth, err := s.queue.Size(ctx)
		if err != nil {
			health.Checks["queue"] = CheckResult{
				Status:  "degraded",
				Message: fmt.Sprintf("queue stats unavailable: %v", err),
			}
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		} else {
			health.Checks["queue"] = CheckResult{
				Status:  "healthy",
				Message: fmt.Sprintf("%d jobs queued", depth),
			}
			health.System.QueueDepth = depth
		}
	}

	if s.amqp != nil && s.amqp.Enabled() {
		if s.amqp.IsConnected() {
			health.Checks["amqp"] = CheckResult{Status: "healthy", Message: "broker connected"}
		} else {
			health.Checks["amqp"] = CheckResult{Status: "degraded", Message: "broker disconnected"}
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}
	}

	if s.hub != nil {
		health.Checks["websocket"] = CheckResult{Status: "healthy", Message: "analysis hub running"}
		health.System.WSClients = s.hub.ClientCount()
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	health.System.GoRoutines = runtime.NumGoroutine()
	health.System.MemoryMB = m.Alloc / 1024 / 1024
	health.System.CPUCount = runtime.NumCPU()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// LivenessHandler handles the kubernetes liveness probe.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ReadinessHandler handles the kubernetes readiness probe. The service is
// ready once persistence is reachable.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.db.Ping(ctx) != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
