package main

import (
	"testing"
	"time"
)

func newTestDetector(thresholdDB float64, tolHz uint64, maxMiss int) *Detector {
	return NewDetector(DetectorConfig{
		Enabled:         true,
		ThresholdDB:     thresholdDB,
		FreqToleranceHz: tolHz,
		MaxMissCount:    maxMiss,
	})
}

func frameWithSpike(centerHz uint64, sampleRate uint32, numBins, spikeBin int, floorDBFS, spikeDBFS float32, ts time.Time) SpectrumFrame {
	bins := make([]float32, numBins)
	for i := range bins {
		bins[i] = floorDBFS
	}
	bins[spikeBin] = spikeDBFS
	return SpectrumFrame{
		CenterHz:       centerHz,
		SampleRate:     sampleRate,
		BinCount:       numBins,
		BinsDBFS:       bins,
		NoiseFloorDBFS: floorDBFS,
		Timestamp:      ts,
	}
}

func TestDetectorDisabledEmitsNothing(t *testing.T) {
	d := NewDetector(DetectorConfig{Enabled: false})
	frame := frameWithSpike(100_000_000, 1_000_000, 64, 40, -80, -10, time.Now())
	if events := d.Detect(frame); events != nil {
		t.Fatalf("Detect() on disabled detector = %v, want nil", events)
	}
}

func TestDetectorFindsNewSignal(t *testing.T) {
	d := newTestDetector(10, 5000, 3)
	frame := frameWithSpike(100_000_000, 1_000_000, 64, 40, -80, -10, time.Now())
	events := d.Detect(frame)
	if len(events) != 1 {
		t.Fatalf("Detect() returned %d events, want 1", len(events))
	}
	if events[0].Kind != SignalNew {
		t.Fatalf("event kind = %v, want SignalNew", events[0].Kind)
	}
}

func TestDetectorTracksSameSignalAcrossFrames(t *testing.T) {
	d := newTestDetector(10, 5000, 3)
	now := time.Now()
	frame1 := frameWithSpike(100_000_000, 1_000_000, 64, 40, -80, -10, now)
	events1 := d.Detect(frame1)
	if events1[0].Kind != SignalNew {
		t.Fatalf("first frame kind = %v, want SignalNew", events1[0].Kind)
	}
	firstID := events1[0].Signal.ID

	frame2 := frameWithSpike(100_000_000, 1_000_000, 64, 40, -80, -9, now.Add(time.Second))
	events2 := d.Detect(frame2)
	if len(events2) != 1 || events2[0].Kind != SignalUpdate {
		t.Fatalf("second frame events = %+v, want one SignalUpdate", events2)
	}
	if events2[0].Signal.ID != firstID {
		t.Fatalf("tracked signal ID changed: %d -> %d", firstID, events2[0].Signal.ID)
	}
}

func TestDetectorExpiresAfterMaxMissCount(t *testing.T) {
	d := newTestDetector(10, 5000, 2)
	now := time.Now()
	frame := frameWithSpike(100_000_000, 1_000_000, 64, 40, -80, -10, now)
	d.Detect(frame)

	quiet := frameWithSpike(100_000_000, 1_000_000, 64, 40, -80, -80, now.Add(time.Second))
	ev1 := d.Detect(quiet)
	if len(ev1) != 0 {
		t.Fatalf("first missed frame events = %+v, want none (miss count below threshold)", ev1)
	}

	ev2 := d.Detect(frameWithSpike(100_000_000, 1_000_000, 64, 40, -80, -80, now.Add(2*time.Second)))
	if len(ev2) != 1 || ev2[0].Kind != SignalLost {
		t.Fatalf("second missed frame events = %+v, want one SignalLost", ev2)
	}
}

func TestDetectorSeparatesSignalsOutsideTolerance(t *testing.T) {
	d := newTestDetector(10, 1000, 3)
	now := time.Now()
	frame1 := frameWithSpike(100_000_000, 1_000_000, 64, 40, -80, -10, now)
	d.Detect(frame1)

	// A spike far enough away (different bin, large tolerance gap) should
	// be tracked as a second signal, not merged into the first.
	frame2 := frameWithSpike(100_000_000, 1_000_000, 64, 10, -80, -10, now.Add(time.Second))
	events := d.Detect(frame2)
	if len(events) != 1 || events[0].Kind != SignalNew {
		t.Fatalf("events = %+v, want one SignalNew for the distinct spike", events)
	}
}

func TestDetectorCenterFreqUsesRunMidpointNotPeak(t *testing.T) {
	d := newTestDetector(10, 5000, 3)
	numBins := 64
	bins := make([]float32, numBins)
	for i := range bins {
		bins[i] = -80
	}
	// An asymmetric run spanning bins [40,44] with the peak pinned at the
	// leading edge (bin 40): the midpoint (42) must drive center_freq, not
	// the peak bin.
	for i := 40; i <= 44; i++ {
		bins[i] = -30
	}
	bins[40] = -10
	frame := SpectrumFrame{
		CenterHz:       100_000_000,
		SampleRate:     1_000_000,
		BinCount:       numBins,
		BinsDBFS:       bins,
		NoiseFloorDBFS: -80,
		Timestamp:      time.Now(),
	}
	events := d.Detect(frame)
	if len(events) != 1 {
		t.Fatalf("Detect() returned %d events, want 1", len(events))
	}
	binHz := float64(frame.SampleRate) / float64(numBins)
	halfBins := float64(numBins) / 2
	midBin := (40.0 + 44.0) / 2
	wantOffset := (midBin - halfBins) * binHz
	wantCenterHz := uint64(int64(frame.CenterHz) + int64(wantOffset))
	if events[0].Signal.CenterHz != wantCenterHz {
		t.Fatalf("CenterHz = %d, want %d (run midpoint, not peak bin 40)", events[0].Signal.CenterHz, wantCenterHz)
	}
}

func TestMovingAverageShrinksAtEdges(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	out := movingAverage(x, 3)
	if len(out) != len(x) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(x))
	}
	// out[0] averages x[0..1] = (1+2)/2 = 1.5 (window shrinks at the edge)
	if out[0] != 1.5 {
		t.Fatalf("out[0] = %v, want 1.5", out[0])
	}
	// out[2] is a full centered window: (2+3+4)/3 = 3
	if out[2] != 3 {
		t.Fatalf("out[2] = %v, want 3", out[2])
	}
}
