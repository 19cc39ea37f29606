package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/knowledgehub/backend/pkg/logger"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyStatus is the probe outcome for one named dependency.
type DependencyStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Status is one point-in-time view of the service's dependencies. Degraded
// means at least one dependency is down; callers decide which operations to
// refuse based on which ones.
type Status struct {
	Healthy      bool               `json:"healthy"`
	Degraded     bool               `json:"degraded"`
	Dependencies []DependencyStatus `json:"dependencies"`
	CheckedAt    time.Time          `json:"checked_at"`
}

// Unavailable reports whether the named dependency failed its probe.
func (s *Status) Unavailable(name string) bool {
	for _, dep := range s.Dependencies {
		if dep.Name == name {
			return !dep.Healthy
		}
	}
	return false
}

type dependency struct {
	name   string
	pinger Pinger
}

// Checker probes registered dependencies concurrently with a per-probe
// timeout.
type Checker struct {
	deps    []dependency
	timeout time.Duration
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{timeout: timeout}
}

func (c *Checker) Register(name string, pinger Pinger) {
	c.deps = append(c.deps, dependency{name: name, pinger: pinger})
}

func (c *Checker) Check(ctx context.Context) *Status {
	statuses := make([]DependencyStatus, len(c.deps))

	var wg sync.WaitGroup
	for i, dep := range c.deps {
		wg.Add(1)
		go func(i int, dep dependency) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			status := DependencyStatus{Name: dep.name, Healthy: true}
			if err := dep.pinger.Ping(probeCtx); err != nil {
				status.Healthy = false
				status.Error = err.Error()
				logger.Warn("Dependency health check failed",
					zap.String("dependency", dep.name),
					zap.Error(err),
				)
			}
			statuses[i] = status
		}(i, dep)
	}
	wg.Wait()

	result := &Status{
		Healthy:      true,
		Dependencies: statuses,
		CheckedAt:    time.Now(),
	}
	for _, s := range statuses {
		if !s.Healthy {
			result.Healthy = false
			result.Degraded = true
		}
	}
	return result
}
