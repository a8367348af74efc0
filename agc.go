package main

import "time"

// GainAdjustment is the gain step the AGC asks the coordinator to apply.
// The coordinator adds it to the session's reported gain; it is not passed
// on to the Device Source, which has no gain control. The AGC never
// touches device state directly.
type GainAdjustment struct {
	DeltaDB float32
}

// SoftwareAGC nudges device gain toward a target peak level in discrete
// steps, rate-limited and with hysteresis so it doesn't chase noise.
type SoftwareAGC struct {
	enabled       bool
	targetDBFS    float32
	hysteresisDB  float32
	stepDB        float32
	minInterval   time.Duration
	lastAdjust    time.Time
}

// NewSoftwareAGC builds an AGC with the fixed operating points named in
// the design: -20 dBFS target, +/-6 dB hysteresis, 3 dB steps, at most one
// adjustment per second.
func NewSoftwareAGC() *SoftwareAGC {
	return &SoftwareAGC{
		enabled:      true,
		targetDBFS:   -20,
		hysteresisDB: 6,
		stepDB:       3,
		minInterval:  time.Second,
	}
}

func (a *SoftwareAGC) SetEnabled(enabled bool) { a.enabled = enabled }
func (a *SoftwareAGC) Enabled() bool           { return a.enabled }

// Observe inspects the peak dBFS of the most recent spectrum frame and
// returns a non-nil GainAdjustment when the peak falls outside the
// hysteresis band and the rate limit allows another adjustment.
func (a *SoftwareAGC) Observe(peakDBFS float32, now time.Time) *GainAdjustment {
	if !a.enabled {
		return nil
	}
	if now.Sub(a.lastAdjust) < a.minInterval {
		return nil
	}

	upper := a.targetDBFS + a.hysteresisDB
	lower := a.targetDBFS - a.hysteresisDB

	var adj *GainAdjustment
	switch {
	case peakDBFS > upper:
		adj = &GainAdjustment{DeltaDB: -a.stepDB}
	case peakDBFS < lower:
		adj = &GainAdjustment{DeltaDB: a.stepDB}
	default:
		return nil
	}
	a.lastAdjust = now
	return adj
}
