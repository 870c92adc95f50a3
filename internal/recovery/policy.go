// Motor-stop recovery policy: backoff scheduling and degraded mode
package recovery

import (
	"math"
	"time"
)

// Policy holds the tunables of the motor-stop recovery strategy.
type Policy struct {
	MaxRetries          int           `yaml:"max_retries"`
	BaseDelay           time.Duration `yaml:"base_delay"`
	Multiplier          float64       `yaml:"multiplier"`
	MaxDelay            time.Duration `yaml:"max_delay"`
	Jitter              time.Duration `yaml:"jitter"`
	Cooldown            time.Duration `yaml:"cooldown"`
	DegradedDelayFactor float64       `yaml:"degraded_delay_factor"`
}

// DefaultPolicy returns the production recovery policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:          5,
		BaseDelay:           2 * time.Second,
		Multiplier:          1.5,
		MaxDelay:            10 * time.Second,
		Jitter:              500 * time.Millisecond,
		Cooldown:            30 * time.Second,
		DegradedDelayFactor: 3,
	}
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Cooldown <= 0 {
		p.Cooldown = d.Cooldown
	}
	if p.DegradedDelayFactor < 1 {
		p.DegradedDelayFactor = d.DegradedDelayFactor
	}
	return p
}

// BaseBackoff is min(BaseDelay * Multiplier^attempt, MaxDelay), without jitter.
func (p Policy) BaseBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// jittered adds u*Jitter to the base backoff, u in [-1, 1]. The result is
// never negative.
func (p Policy) jittered(attempt int, u float64) time.Duration {
	d := p.BaseBackoff(attempt) + time.Duration(u*float64(p.Jitter))
	if d < 0 {
		return 0
	}
	return d
}
