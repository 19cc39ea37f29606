package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

type Config struct {
	// FailureThreshold consecutive failures trip the breaker.
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	Logger      *zap.Logger
}

// Breaker is a three-state circuit breaker guarding one external dependency.
// Safe for concurrent use.
type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	logger           *zap.Logger

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Breaker{
		name:             name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		openTimeout:      cfg.OpenTimeout,
		logger:           cfg.Logger,
	}
}

// Execute runs fn if the breaker admits the call and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.currentState(time.Now()) == StateOpen {
		return ErrOpen
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState(time.Now())

	if success {
		b.failures = 0
		if state == StateHalfOpen {
			b.successes++
			if b.successes >= b.successThreshold {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.successes = 0
	b.failures++
	if state == StateHalfOpen || b.failures >= b.failureThreshold {
		b.transition(StateOpen)
	}
}

// currentState resolves the open to half-open transition lazily. Callers must
// hold b.mu.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.openTimeout {
		b.transition(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.failures = 0
	b.successes = 0
	if next == StateOpen {
		b.openedAt = time.Now()
	}
	b.logger.Info("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
}
