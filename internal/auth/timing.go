package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelay      time.Duration
	RandomDelay    time.Duration // upper bound of the jitter added to BaseDelay
	DelayOnSuccess bool
}

// TimingDelay pads failed credential checks so an unknown username and a wrong
// password take about the same time
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
		sleep:  time.Sleep,
	}
}

// cryptoRandDuration returns a uniformly random duration in [0, max)
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(randomBytes) % uint64(max))
}

func (td *TimingDelay) target(success bool) (time.Duration, bool) {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return 0, false
	}
	return td.config.BaseDelay + cryptoRandDuration(td.config.RandomDelay), true
}

// Wait sleeps for the base delay plus jitter
func (td *TimingDelay) Wait(success bool) {
	if delay, ok := td.target(success); ok && delay > 0 {
		td.sleep(delay)
	}
}

// WaitFrom sleeps until the target delay has elapsed since startTime
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	delay, ok := td.target(success)
	if !ok {
		return
	}
	if remaining := delay - time.Since(startTime); remaining > 0 {
		td.sleep(remaining)
	}
}
