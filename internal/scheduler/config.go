package scheduler

import "time"

// Config holds the tunables of the retry and adaptive concurrency
// model. Zero-value fields are backfilled from DefaultConfig by
// withDefaults, except Jitter: a zero Jitter means no jitter, and
// only a negative Jitter is replaced by the default.
type Config struct {
	// Concurrency is the initial dynamic concurrency cap.
	Concurrency int
	// Retries is the scheduler-level default retry ceiling, used only
	// for error kinds with no per-kind override.
	Retries int

	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
	Jitter        float64

	ConcurrencyCheckInterval time.Duration
	MaxIdleTime              time.Duration
	NetworkStabilityWindow   int // sample count for transition counting
}

// DefaultConfig returns the baseline scheduler tunables.
func DefaultConfig() Config {
	return Config{
		Concurrency:              4,
		Retries:                  3,
		InitialDelay:             1000 * time.Millisecond,
		BackoffFactor:            1.5,
		MaxDelay:                 30000 * time.Millisecond,
		Jitter:                   0.2,
		ConcurrencyCheckInterval: 30 * time.Second,
		MaxIdleTime:              30 * time.Second,
		NetworkStabilityWindow:   10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Retries <= 0 {
		c.Retries = d.Retries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Jitter < 0 {
		c.Jitter = d.Jitter
	}
	if c.ConcurrencyCheckInterval <= 0 {
		c.ConcurrencyCheckInterval = d.ConcurrencyCheckInterval
	}
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = d.MaxIdleTime
	}
	if c.NetworkStabilityWindow <= 0 {
		c.NetworkStabilityWindow = d.NetworkStabilityWindow
	}
	return c
}
