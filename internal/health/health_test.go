package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func TestChecker_AllHealthy(t *testing.T) {
	checker := NewChecker(time.Second)
	checker.Register("index", &fakePinger{})
	checker.Register("embedding", &fakePinger{})

	status := checker.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.False(t, status.Degraded)
	require.Len(t, status.Dependencies, 2)
	assert.False(t, status.Unavailable("index"))
}

func TestChecker_OneFailureMeansDegraded(t *testing.T) {
	checker := NewChecker(time.Second)
	checker.Register("index", &fakePinger{err: errors.New("connection refused")})
	checker.Register("embedding", &fakePinger{})

	status := checker.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Degraded)
	assert.True(t, status.Unavailable("index"))
	assert.False(t, status.Unavailable("embedding"))

	for _, dep := range status.Dependencies {
		if dep.Name == "index" {
			assert.Contains(t, dep.Error, "connection refused")
		}
	}
}

func TestChecker_UnknownDependency(t *testing.T) {
	checker := NewChecker(time.Second)
	status := checker.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.False(t, status.Unavailable("nonexistent"))
}
