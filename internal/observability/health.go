package observability

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// HealthStatus is the state of one dependency or of the whole service
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// severity orders statuses so the worst one can be picked
func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusHealthy:
		return 0
	case HealthStatusDegraded:
		return 1
	default:
		return 2
	}
}

// HealthCheck is the outcome of one probe
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration_ms"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// HealthCheckFunc probes one dependency
type HealthCheckFunc func(context.Context) *HealthCheck

// checkTimeout bounds a single probe
const checkTimeout = 2 * time.Second

// HealthChecker runs registered probes concurrently and caches each result for a short TTL
// so a busy /health endpoint does not hammer the warehouse.
type HealthChecker struct {
	service string
	version string
	ttl     time.Duration

	mu     sync.Mutex
	probes map[string]HealthCheckFunc
	last   map[string]*HealthCheck
}

// NewHealthChecker returns a checker with no probes
func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		service: service,
		version: version,
		ttl:     5 * time.Second,
		probes:  make(map[string]HealthCheckFunc),
		last:    make(map[string]*HealthCheck),
	}
}

// Register adds or replaces the probe called name and forgets its cached result
func (hc *HealthChecker) Register(name string, check HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.probes[name] = check
	delete(hc.last, name)
}

// Check returns one result per probe, running only the probes whose cached result expired
func (hc *HealthChecker) Check(ctx context.Context) map[string]*HealthCheck {
	hc.mu.Lock()
	now := time.Now()
	results := make(map[string]*HealthCheck, len(hc.probes))
	stale := make(map[string]HealthCheckFunc)
	for name, probe := range hc.probes {
		if cached, ok := hc.last[name]; ok && now.Sub(cached.LastChecked) < hc.ttl {
			results[name] = cached
			continue
		}
		stale[name] = probe
	}
	hc.mu.Unlock()

	var wg sync.WaitGroup
	var resultsMu sync.Mutex
	for name, probe := range stale {
		wg.Add(1)
		go func(name string, probe HealthCheckFunc) {
			defer wg.Done()
			result := runProbe(ctx, name, probe)

			resultsMu.Lock()
			results[name] = result
			resultsMu.Unlock()
		}(name, probe)
	}
	wg.Wait()

	hc.mu.Lock()
	for name := range stale {
		hc.last[name] = results[name]
	}
	hc.mu.Unlock()

	return results
}

func runProbe(ctx context.Context, name string, probe HealthCheckFunc) *HealthCheck {
	start := time.Now()
	result := probe(ctx)
	if result == nil {
		result = &HealthCheck{Name: name, Status: HealthStatusUnhealthy, Message: "check returned no result"}
	}
	if result.Name == "" {
		result.Name = name
	}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	result.LastChecked = time.Now()
	return result
}

// worstStatus is the most severe status among checks, healthy when there are none
func worstStatus(checks map[string]*HealthCheck) HealthStatus {
	worst := HealthStatusHealthy
	for _, check := range checks {
		if check.Status.severity() > worst.severity() {
			worst = check.Status
		}
	}
	return worst
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    HealthStatus            `json:"status"`
	Service   string                  `json:"service"`
	Version   string                  `json:"version"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*HealthCheck `json:"checks"`
}

// GetHealthResponse runs the checks and folds them into one status
func (hc *HealthChecker) GetHealthResponse(ctx context.Context) *HealthResponse {
	checks := hc.Check(ctx)
	return &HealthResponse{
		Status:    worstStatus(checks),
		Service:   hc.service,
		Version:   hc.version,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
}

// PingHealthCheck turns a ping into a probe. A failed ping reports failStatus.
func PingHealthCheck(name string, failStatus HealthStatus, ping func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		start := time.Now()
		err := ping(ctx)
		elapsed := time.Since(start)

		check := &HealthCheck{Name: name, Duration: elapsed}
		if err != nil {
			check.Status = failStatus
			check.Message = fmt.Sprintf("ping failed: %v", err)
			return check
		}
		check.Status = HealthStatusHealthy
		check.Message = "reachable"
		check.Metadata = map[string]interface{}{"response_time_ms": elapsed.Milliseconds()}
		return check
	}
}

// WarehouseHealthCheck makes an unreachable warehouse unhealthy; no question can be answered
func WarehouseHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return PingHealthCheck("warehouse", HealthStatusUnhealthy, ping)
}

// RedisHealthCheck makes unreachable history storage degraded; asks still succeed without it
func RedisHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return PingHealthCheck("redis", HealthStatusDegraded, ping)
}

// IndexHealthCheck makes an empty catalog index degraded: every ask becomes a no-data answer
func IndexHealthCheck(objectCount func() int) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		count := objectCount()
		if count == 0 {
			return &HealthCheck{
				Name:     "catalog_index",
				Status:   HealthStatusDegraded,
				Message:  "catalog index is empty",
				Metadata: map[string]interface{}{"objects": 0},
			}
		}
		return &HealthCheck{
			Name:     "catalog_index",
			Status:   HealthStatusHealthy,
			Message:  fmt.Sprintf("%d catalog objects indexed", count),
			Metadata: map[string]interface{}{"objects": count},
		}
	}
}

// RuntimeMemoryUsage reports heap in use against memory obtained from the OS
func RuntimeMemoryUsage() (used, total uint64) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapInuse, stats.Sys
}

// Memory thresholds, in percent of total
const (
	memoryDegradedPercent  = 75.0
	memoryUnhealthyPercent = 90.0
)

// MemoryHealthCheck grades memory pressure; the index lives on the heap
func MemoryHealthCheck(usage func() (used, total uint64)) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		used, total := usage()
		var percent float64
		if total > 0 {
			percent = float64(used) / float64(total) * 100
		}

		check := &HealthCheck{
			Name:    "memory",
			Status:  HealthStatusHealthy,
			Message: "memory usage normal",
			Metadata: map[string]interface{}{
				"used_bytes":    used,
				"total_bytes":   total,
				"usage_percent": percent,
			},
		}
		switch {
		case percent > memoryUnhealthyPercent:
			check.Status = HealthStatusUnhealthy
			check.Message = "memory usage critical"
		case percent > memoryDegradedPercent:
			check.Status = HealthStatusDegraded
			check.Message = "memory usage high"
		}
		return check
	}
}
