package main

import (
	"testing"
	"time"
)

func TestSoftwareAGCNoAdjustmentWithinHysteresisBand(t *testing.T) {
	a := NewSoftwareAGC()
	now := time.Now()
	if adj := a.Observe(-20, now); adj != nil {
		t.Fatalf("Observe(-20) = %+v, want nil (at target)", adj)
	}
	if adj := a.Observe(-24, now.Add(2*time.Second)); adj != nil {
		t.Fatalf("Observe(-24) = %+v, want nil (inside +/-6dB band)", adj)
	}
}

func TestSoftwareAGCReducesGainWhenTooHot(t *testing.T) {
	a := NewSoftwareAGC()
	now := time.Now()
	adj := a.Observe(-5, now) // above target+hysteresis (-14)
	if adj == nil {
		t.Fatal("Observe(-5) = nil, want a gain-reduction adjustment")
	}
	if adj.DeltaDB >= 0 {
		t.Fatalf("DeltaDB = %v, want negative", adj.DeltaDB)
	}
}

func TestSoftwareAGCIncreasesGainWhenTooCold(t *testing.T) {
	a := NewSoftwareAGC()
	now := time.Now()
	adj := a.Observe(-40, now) // below target-hysteresis (-26)
	if adj == nil {
		t.Fatal("Observe(-40) = nil, want a gain-increase adjustment")
	}
	if adj.DeltaDB <= 0 {
		t.Fatalf("DeltaDB = %v, want positive", adj.DeltaDB)
	}
}

func TestSoftwareAGCRateLimited(t *testing.T) {
	a := NewSoftwareAGC()
	now := time.Now()
	if adj := a.Observe(-5, now); adj == nil {
		t.Fatal("first Observe() = nil, want an adjustment")
	}
	if adj := a.Observe(-5, now.Add(100*time.Millisecond)); adj != nil {
		t.Fatalf("second Observe() within min interval = %+v, want nil", adj)
	}
	if adj := a.Observe(-5, now.Add(2*time.Second)); adj == nil {
		t.Fatal("Observe() after min interval elapsed = nil, want an adjustment")
	}
}

func TestSoftwareAGCDisabledNeverAdjusts(t *testing.T) {
	a := NewSoftwareAGC()
	a.SetEnabled(false)
	if a.Enabled() {
		t.Fatal("Enabled() = true after SetEnabled(false)")
	}
	if adj := a.Observe(-5, time.Now()); adj != nil {
		t.Fatalf("Observe() on disabled AGC = %+v, want nil", adj)
	}
}
