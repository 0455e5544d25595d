package health

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"ourchants/internal/metrics"
)

// Dependency statuses
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Probe checks one dependency
type Probe struct {
	Name string
	// Degraded is the latency above which a passing check reports degraded
	Degraded time.Duration
	Check    func(ctx context.Context) error
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
}

// Checker runs every probe for /healthz
type Checker struct {
	probes  []Probe
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewChecker creates a checker. Each probe gets timeout to finish.
func NewChecker(timeout time.Duration, m *metrics.Metrics, probes ...Probe) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{probes: probes, timeout: timeout, metrics: m}
}

// Check runs all probes and aggregates their status
func (h *Checker) Check(ctx context.Context) HealthResponse {
	resp := HealthResponse{Status: StatusOK, Dependencies: make(map[string]DependencyStatus, len(h.probes))}

	for _, probe := range h.probes {
		dep := h.run(ctx, probe)
		resp.Dependencies[probe.Name] = dep
		h.metrics.SetHealth(probe.Name, dep.Status != StatusDown)

		switch {
		case dep.Status == StatusDown:
			resp.Status = StatusDown
		case dep.Status == StatusDegraded && resp.Status == StatusOK:
			resp.Status = StatusDegraded
		}
	}
	return resp
}

func (h *Checker) run(ctx context.Context, probe Probe) DependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := probe.Check(ctx)
	latency := time.Since(start)

	status := StatusOK
	if err != nil {
		status = StatusDown
	} else if probe.Degraded > 0 && latency > probe.Degraded {
		status = StatusDegraded
	}
	return DependencyStatus{Status: status, LatencyMs: latency.Milliseconds()}
}

// Handler serves the health check. Anything but ok answers 503.
func (h *Checker) Handler(c *fiber.Ctx) error {
	resp := h.Check(c.UserContext())

	if resp.Status == StatusOK {
		c.Status(fiber.StatusOK)
	} else {
		c.Status(fiber.StatusServiceUnavailable)
	}

	c.Set("Cache-Control", "no-store")
	return c.JSON(resp)
}

// RegisterHealthRoutes registers the health check routes
func RegisterHealthRoutes(app *fiber.App, checker *Checker) {
	app.Get("/healthz", checker.Handler)
}
