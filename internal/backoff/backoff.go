// Package backoff runs an operation until it succeeds, fails with an error
// the caller does not consider retryable, or runs out of attempts. Delays
// grow exponentially with optional jitter and respect context cancellation.
//
// The final error is returned as is, never wrapped, so its kind survives.
package backoff

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           `yaml:"max_attempts" toml:"max_attempts"`   // total attempts, first one included
	InitialDelay time.Duration `yaml:"initial_delay" toml:"initial_delay"` // delay before the second attempt
	MaxDelay     time.Duration `yaml:"max_delay" toml:"max_delay"`         // upper bound of any delay
	Multiplier   float64       `yaml:"multiplier" toml:"multiplier"`       // growth factor, typically 2.0
	AddJitter    bool          `yaml:"jitter" toml:"jitter"`               // add up to 25% random delay
}

// DefaultConfig returns sensible defaults for storage calls
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Validate reports configuration values Do would reject.
func (c Config) Validate() error {
	if c.InitialDelay < 0 {
		return errors.New("backoff: InitialDelay cannot be negative")
	}
	if c.MaxDelay < 0 {
		return errors.New("backoff: MaxDelay cannot be negative")
	}
	if c.Multiplier < 0 {
		return errors.New("backoff: Multiplier cannot be negative")
	}
	if c.MaxDelay > 0 && c.InitialDelay > 0 && c.MaxDelay < c.InitialDelay {
		return errors.New("backoff: MaxDelay must be >= InitialDelay")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	// Prevent overflow with extremely large multipliers
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	return c
}

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Hook is told about every failed attempt that will be retried.
type Hook func(attempt int, err error, delay time.Duration)

// Do calls fn until it returns nil, returns an error retryable rejects, or
// cfg.MaxAttempts calls have been made. The last error of fn is returned
// unchanged. A cancelled ctx stops the loop during backoff and returns the
// last error of fn.
func Do(ctx context.Context, cfg Config, retryable Classifier, onRetry Hook, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	delay := cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxAttempts || (retryable != nil && !retryable(err)) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		sleep := delay
		if cfg.AddJitter && delay >= 4 {
			randMu.Lock()
			sleep += time.Duration(randSource.Int63n(int64(delay / 4)))
			randMu.Unlock()
		}
		if onRetry != nil {
			onRetry(attempt, err, sleep)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		next := float64(delay) * cfg.Multiplier
		if next > float64(cfg.MaxDelay) {
			delay = cfg.MaxDelay
		} else {
			delay = time.Duration(next)
		}
	}
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, retryable Classifier, onRetry Hook, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, retryable, onRetry, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
