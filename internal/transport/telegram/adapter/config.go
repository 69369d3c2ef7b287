package adapter

import "time"

type Config struct {
	Token       string
	PollTimeout time.Duration

	// RatePerSec caps outgoing API calls across all chats. 0 means unlimited.
	RatePerSec int

	Breaker BreakerConfig
}

// BreakerConfig tunes the circuit breaker around API calls. Only transport
// failures count toward tripping it.
type BreakerConfig struct {
	Failures    int
	OpenTimeout time.Duration
	HalfOpenMax int
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	if c.Breaker.Failures <= 0 {
		c.Breaker.Failures = 5
	}
	if c.Breaker.OpenTimeout <= 0 {
		c.Breaker.OpenTimeout = 30 * time.Second
	}
	if c.Breaker.HalfOpenMax <= 0 {
		c.Breaker.HalfOpenMax = 1
	}
	return c
}
