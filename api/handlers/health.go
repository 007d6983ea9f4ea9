package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// Health checks
// =============================================================================

// HealthHandler serves liveness, readiness, and version endpoints.
type HealthHandler struct {
	logger *zap.Logger
	checks []HealthCheck
	mu     sync.RWMutex
}

// HealthCheck is a named dependency probe registered with HealthHandler.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus is the readiness/health response body.
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy" or "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of a single registered HealthCheck.
type CheckResult struct {
	Status  string `json:"status"` // "pass" or "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler builds a HealthHandler with no checks registered.
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		logger: logger,
		checks: make([]HealthCheck, 0),
	}
}

// RegisterCheck adds a dependency probe evaluated by HandleReady.
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// HTTP handlers
// =============================================================================

// HandleHealth serves /health: an unconditional liveness response.
// @Summary Health check
// @Description Simple unconditional liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus "service is healthy"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleHealthz serves /healthz: the Kubernetes-style liveness probe.
// @Summary Kubernetes liveness probe
// @Description Kubernetes liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus "service is alive"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	// liveness: no dependency checks, just confirms the process is up
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleReady serves /ready and /readyz: runs every registered HealthCheck
// and reports unhealthy if any fail.
// @Summary Readiness check
// @Description Runs registered dependency checks and reports readiness
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus "service is ready"
// @Failure 503 {object} HealthStatus "service is not ready"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult),
	}

	allHealthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{
			Status:  "pass",
			Latency: latency.String(),
		}

		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false

			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion serves /version with build metadata.
// @Summary Version info
// @Description Returns build version, time, and commit
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string "build metadata"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		}

		WriteSuccess(w, info)
	}
}

// =============================================================================
// Built-in health check implementations
// =============================================================================

// DatabaseHealthCheck probes database connectivity via a ping function.
type DatabaseHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewDatabaseHealthCheck builds a DatabaseHealthCheck.
func NewDatabaseHealthCheck(name string, ping func(ctx context.Context) error) *DatabaseHealthCheck {
	return &DatabaseHealthCheck{
		name: name,
		ping: ping,
	}
}

func (c *DatabaseHealthCheck) Name() string {
	return c.name
}

func (c *DatabaseHealthCheck) Check(ctx context.Context) error {
	return c.ping(ctx)
}

// RedisHealthCheck probes Redis connectivity via a ping function.
type RedisHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewRedisHealthCheck builds a RedisHealthCheck.
func NewRedisHealthCheck(name string, ping func(ctx context.Context) error) *RedisHealthCheck {
	return &RedisHealthCheck{
		name: name,
		ping: ping,
	}
}

func (c *RedisHealthCheck) Name() string {
	return c.name
}

func (c *RedisHealthCheck) Check(ctx context.Context) error {
	return c.ping(ctx)
}

// WorkerPoolHealthCheck reports unhealthy once a bounded worker pool's
// submission-rejection count exceeds a threshold, a sign the pool is
// chronically saturated rather than absorbing a momentary burst.
type WorkerPoolHealthCheck struct {
	name      string
	rejected  func() int64
	threshold int64
}

// NewWorkerPoolHealthCheck builds a WorkerPoolHealthCheck. rejected should
// return the pool's cumulative rejected-submission count.
func NewWorkerPoolHealthCheck(name string, rejected func() int64, threshold int64) *WorkerPoolHealthCheck {
	return &WorkerPoolHealthCheck{name: name, rejected: rejected, threshold: threshold}
}

func (c *WorkerPoolHealthCheck) Name() string {
	return c.name
}

func (c *WorkerPoolHealthCheck) Check(ctx context.Context) error {
	if n := c.rejected(); n > c.threshold {
		return fmt.Errorf("%d rejected submissions exceeds threshold %d", n, c.threshold)
	}
	return nil
}
