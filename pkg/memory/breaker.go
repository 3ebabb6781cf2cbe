package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/sony/gobreaker"
)

type BreakerConfig struct {
	// MaxFailures is the number of consecutive write failures that opens
	// the breaker.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
}

// BreakerStore guards a long-term store with a circuit breaker so a failing
// backend is skipped quickly instead of stalling every turn.
type BreakerStore struct {
	inner   LongTermStore
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerStore(inner LongTermStore, cfg BreakerConfig) *BreakerStore {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "long-term-store",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WarnCF("memory", "Long-term store breaker changed state", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	}
	return &BreakerStore{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (s *BreakerStore) StoreMessage(ctx context.Context, msg *Message) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.inner.StoreMessage(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("store message %s: %w", msg.ID, ErrBreakerOpen)
	}
	return err
}

// State reports the breaker state as "closed", "half-open" or "open".
func (s *BreakerStore) State() string {
	return s.breaker.State().String()
}

func (s *BreakerStore) Unwrap() LongTermStore { return s.inner }

func (s *BreakerStore) Close() error { return s.inner.Close() }
