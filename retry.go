package main

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig configures exponential backoff for snapshot loading and push
// channel reconnects.
type RetryConfig struct {
	// InitialInterval is the wait before the first retry
	InitialInterval time.Duration `yaml:"initial_interval"`
	// MaxInterval caps the wait between attempts
	MaxInterval time.Duration `yaml:"max_interval"`
	// Multiplier grows the interval after every failed attempt
	Multiplier float64 `yaml:"multiplier"`
	// MaxTries bounds the attempts, 0 means unbounded
	MaxTries uint `yaml:"max_tries"`
}

func defaultSnapshotRetry() RetryConfig {
	return RetryConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		MaxTries:        5,
	}
}

func defaultReconnectRetry() RetryConfig {
	return RetryConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
	}
}

// newBackOff builds the backoff policy. Jitter is kept at the library
// default so reconnecting clients do not stampede the server.
func (c RetryConfig) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	if c.Multiplier >= 1 {
		b.Multiplier = c.Multiplier
	}
	b.Reset()
	return b
}

// retryOptions turns the config into options for backoff.Retry
func (c RetryConfig) retryOptions(notify backoff.Notify) []backoff.RetryOption {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(c.newBackOff()),
		// the loop is bounded by MaxTries or the caller's context only
		backoff.WithMaxElapsedTime(0),
	}
	if c.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(c.MaxTries))
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(notify))
	}
	return opts
}
