package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig tunes when a failing backend is taken out of rotation.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration
}

// BreakerKV guards a backend with a circuit breaker. A missing key is a
// normal answer and never counts as a failure.
type BreakerKV struct {
	next    KVStore
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerKV(name string, next KVStore, cfg BreakerConfig) *BreakerKV {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "kv-" + name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("kv circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerKV{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerKV) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Get(ctx, key)
	})
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	value, _ := out.([]byte)
	return value, nil
}

func (b *BreakerKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.Set(ctx, key, value)
	})
	return wrapBreakerErr(err)
}

// State exposes the breaker state for health reporting.
func (b *BreakerKV) State() string {
	return b.breaker.State().String()
}

func wrapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("kv backend unavailable: %w", err)
	}
	return err
}
