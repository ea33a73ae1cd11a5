// Package health reports the state of the broker connection and the publishing resources.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string                 `json:"name"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
}

// OverallHealth combines the results of all checks
type OverallHealth struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Checker is a single health check
type Checker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

// Registry runs a set of checkers
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewRegistry creates a registry holding the given checkers
func NewRegistry(checkers ...Checker) *Registry {
	r := &Registry{checkers: make(map[string]Checker, len(checkers))}
	for _, c := range checkers {
		r.Register(c)
	}
	return r
}

// Register adds a checker, replacing one with the same name
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[checker.Name()] = checker
}

// Names returns the registered checker names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs all checkers concurrently. Checks still running when ctx ends count as unhealthy.
func (r *Registry) Check(ctx context.Context) OverallHealth {
	start := time.Now()

	r.mu.RLock()
	checkers := make(map[string]Checker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	r.mu.RUnlock()

	type named struct {
		name   string
		result CheckResult
	}
	results := make(chan named, len(checkers))
	for name, checker := range checkers {
		go func(name string, checker Checker) {
			results <- named{name: name, result: checker.Check(ctx)}
		}(name, checker)
	}

	health := OverallHealth{Status: StatusHealthy, Checks: make(map[string]CheckResult, len(checkers))}

collect:
	for range checkers {
		select {
		case res := <-results:
			health.Checks[res.name] = res.result
			health.Status = worse(health.Status, res.result.Status)
		case <-ctx.Done():
			for name := range checkers {
				if _, done := health.Checks[name]; !done {
					health.Checks[name] = CheckResult{
						Name:      name,
						Status:    StatusUnhealthy,
						Message:   "check timed out",
						Duration:  time.Since(start),
						Timestamp: time.Now(),
						Error:     ctx.Err().Error(),
					}
				}
			}
			health.Status = StatusUnhealthy
			break collect
		}
	}

	health.Timestamp = time.Now()
	health.Duration = time.Since(start)
	return health
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Handler serves the registry as a JSON health endpoint
type Handler struct {
	registry *Registry
	timeout  time.Duration
}

// NewHandler creates a new health check HTTP handler
func NewHandler(registry *Registry, timeout time.Duration) *Handler {
	return &Handler{registry: registry, timeout: timeout}
}

// ServeHTTP implements http.Handler; unhealthy results answer 503
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	health := h.registry.Check(ctx)

	body, err := sonic.ConfigStd.MarshalIndent(health, "", "  ")
	if err != nil {
		http.Error(w, "failed to encode health response", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if health.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
