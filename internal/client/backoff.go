package client

import (
	"math/rand"
	"time"
)

// Reconnect backoff bounds. The delay doubles on every failed attempt,
// capped at MaxBackoff, and resets to MinBackoff after a successful open.
const (
	MinBackoff = 1 * time.Second
	MaxBackoff = 30 * time.Second

	// jitterFraction spreads reconnect attempts ±30% around the base so a
	// fleet of clients does not stampede a recovering server.
	jitterFraction = 0.3
)

// ReconnectPolicy computes jittered reconnect delays. The zero value uses
// the standard bounds and math/rand; tests pin Rand and shrink the bounds.
type ReconnectPolicy struct {
	Min time.Duration
	Max time.Duration

	// Rand returns a uniform value in [0,1). Defaults to rand.Float64.
	Rand func() float64
}

// Next takes the current backoff value and returns the jittered delay to
// wait before the next attempt plus the doubled value to store for the
// attempt after that. The stored value doubles independently of the
// jitter actually applied.
func (p ReconnectPolicy) Next(current time.Duration) (delay, next time.Duration) {
	minB, maxB := p.Min, p.Max
	if minB <= 0 {
		minB = MinBackoff
	}
	if maxB <= 0 {
		maxB = MaxBackoff
	}
	if current < minB {
		current = minB
	}
	if current > maxB {
		current = maxB
	}

	random := p.Rand
	if random == nil {
		random = rand.Float64
	}

	jitter := 1 + (random()*2-1)*jitterFraction
	delay = time.Duration(float64(current) * jitter)
	if delay > maxB {
		delay = maxB
	}

	next = current * 2
	if next > maxB {
		next = maxB
	}
	return delay, next
}

// Floor returns the policy's minimum backoff, the value stored after a
// successful open.
func (p ReconnectPolicy) Floor() time.Duration {
	if p.Min > 0 {
		return p.Min
	}
	return MinBackoff
}
