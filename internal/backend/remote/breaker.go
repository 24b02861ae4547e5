package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchmap/internal/backend"
	"github.com/kailas-cloud/searchmap/internal/db"
)

// ErrCircuitOpen is returned while the breaker rejects calls to Redis.
var ErrCircuitOpen = errors.New("redis circuit breaker is open")

// BreakerConfig controls when calls to Redis are short-circuited.
type BreakerConfig struct {
	// MaxRequests is the number of trial calls let through while half-open.
	MaxRequests uint32
	// Interval clears the failure counts while closed; zero never clears them.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// MinRequests and FailureRatio decide when the breaker trips.
	MinRequests  uint32
	FailureRatio float64
}

func (c *BreakerConfig) applyDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MinRequests == 0 {
		c.MinRequests = 5
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0.6
	}
}

// breaker guards every store call of one backend.
type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(name string, cfg BreakerConfig, logger *zap.Logger, observer backend.Observer) *breaker {
	cfg.applyDefaults()
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
			observer.ObserveBreaker(name, to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !unavailable(err)
		},
	}
	observer.ObserveBreaker(name, gobreaker.StateClosed.String())
	return &breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// do runs fn unless the breaker is open.
func (b *breaker) do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return translate(err)
}

// call runs fn unless the breaker is open and returns its result.
func call[T any](b *breaker, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, translate(err)
	}
	v, _ := res.(T)
	return v, nil
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

// unavailable reports whether err means Redis could not be reached. Server
// replies such as syntax errors and caller cancellations do not count.
func unavailable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var re *rueidis.RedisError
	if errors.As(err, &re) {
		return false
	}
	for _, sentinel := range []error{db.ErrKeyNotFound, db.ErrIndexExists, db.ErrIndexNotFound} {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	return true
}
