package session

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig shapes a retry schedule. MaxDelay <= 0 leaves it uncapped;
// Jitter scales each delay by a factor in [0.5, 1.5).
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// maxDelay keeps uncapped schedules inside time.Duration.
const maxDelay = time.Duration(math.MaxInt64)

// NextBackoffDelay returns the delay to wait before retry attempt N (1-based):
// InitialDelay, then InitialDelay*Multiplier^(N-1).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	mult := cfg.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	if delay >= float64(maxDelay) || math.IsInf(delay, 0) {
		return maxDelay
	}
	return time.Duration(delay)
}
