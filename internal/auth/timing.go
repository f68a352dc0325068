package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig sets the minimum latency of a failed login
type TimingConfig struct {
	BaseDelayMs   int
	RandomDelayMs int
}

// TimingDelay pads failed logins so unknown-identifier and wrong-password
// responses take about the same time
type TimingDelay struct {
	config TimingConfig
	sleep  func(ctx context.Context, d time.Duration)
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
		sleep:  sleepContext,
	}
}

// NoTimingDelay returns a TimingDelay that never waits
func NoTimingDelay() *TimingDelay {
	return NewTimingDelay(TimingConfig{})
}

// cryptoRandIntn returns a uniform-ish value in [0, max) from crypto/rand
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	return int(binary.BigEndian.Uint64(randomBytes) % uint64(max)), nil
}

func (td *TimingDelay) target() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if n, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
		delay += time.Duration(n) * time.Millisecond
	}
	return delay
}

// WaitFrom sleeps until at least the target delay has elapsed since start.
// It returns early if ctx is cancelled.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time) {
	if td == nil {
		return
	}
	if remaining := td.target() - time.Since(start); remaining > 0 {
		td.sleep(ctx, remaining)
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
