package main

import (
	"math"
	"testing"
	"time"
)

func TestDownsamplePeakPreservesMax(t *testing.T) {
	bins := []float64{1, 2, 9, 3, 1, 1, 1, 1}
	out := downsamplePeak(bins, 4)
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	if out[0] != 9 {
		t.Fatalf("out[0] = %v, want 9 (the group containing the spike)", out[0])
	}
}

func TestDownsamplePeakOutputLength(t *testing.T) {
	bins := make([]float64, 1024)
	for i := range bins {
		bins[i] = float64(i)
	}
	out := downsamplePeak(bins, 100)
	if len(out) != 100 {
		t.Fatalf("len(out) = %d, want 100", len(out))
	}
}

func TestNoiseFloorPercentileEmpty(t *testing.T) {
	if got := NoiseFloorPercentile(nil, 25); got != PanoramaSentinelDBFS {
		t.Fatalf("NoiseFloorPercentile(nil) = %v, want sentinel %v", got, PanoramaSentinelDBFS)
	}
}

func TestNoiseFloorPercentileSorted(t *testing.T) {
	bins := []float32{-90, -80, -70, -60, -50, -40, -30, -20, -10, 0}
	got := NoiseFloorPercentile(bins, 25)
	// idx = 10*25/100 = 2 -> sorted[2] = -70
	if got != -70 {
		t.Fatalf("NoiseFloorPercentile(25th) = %v, want -70", got)
	}
}

func newTestDSPConfig(fftSize int) DSPConfig {
	return DSPConfig{
		FFTSize: fftSize,
		Window:  WindowRectangular,
	}
}

func silentBlock(n int, sampleRate uint32) SampleBlock {
	return SampleBlock{
		I:           make([]float32, n),
		Q:           make([]float32, n),
		SampleRate:  sampleRate,
		CenterHz:    100000000,
		BandwidthHz: sampleRate,
		Timestamp:   time.Now(),
	}
}

func TestDSPPipelineFramesFromExactlyOneFFTSizeBlock(t *testing.T) {
	cfg := newTestDSPConfig(64)
	p := NewDSPPipeline(cfg)
	blk := silentBlock(64, 1000000)
	frames := p.Process(blk)
	if len(frames) != 1 {
		t.Fatalf("Process() returned %d frames, want 1", len(frames))
	}
	if frames[0].BinCount != 64 {
		t.Fatalf("BinCount = %d, want 64", frames[0].BinCount)
	}
}

func TestDSPPipelineOverlapSaveHopHalvesFrameSpacing(t *testing.T) {
	cfg := newTestDSPConfig(64)
	cfg.OverlapFraction = 0.5
	p := NewDSPPipeline(cfg)
	blk := silentBlock(128, 1000000)
	frames := p.Process(blk)
	// 128 samples, hop 32... wait hop = FFTSize/2 = 32, frames while len>=64:
	// 128 -> frame, drop 32 -> 96 -> frame, drop 32 -> 64 -> frame, drop 32 -> 32 (stop)
	if len(frames) != 3 {
		t.Fatalf("Process() returned %d frames with 50%% overlap, want 3", len(frames))
	}
}

func TestDSPPipelineOutputBinsDownsamples(t *testing.T) {
	cfg := newTestDSPConfig(64)
	cfg.OutputBins = 16
	p := NewDSPPipeline(cfg)
	blk := silentBlock(64, 1000000)
	frames := p.Process(blk)
	if len(frames) != 1 || frames[0].BinCount != 16 {
		t.Fatalf("got %d frames, BinCount=%d; want 1 frame with BinCount=16", len(frames), frames[0].BinCount)
	}
}

func TestDSPPipelineSilenceFloorsAtMinusThreeHundred(t *testing.T) {
	cfg := newTestDSPConfig(32)
	p := NewDSPPipeline(cfg)
	blk := silentBlock(32, 1000000)
	frames := p.Process(blk)
	for _, v := range frames[0].BinsDBFS {
		if v != -300 {
			t.Fatalf("silent bin = %v, want -300", v)
		}
	}
}

func TestDSPPipelinePeakHoldNeverDecreasesWithoutDecay(t *testing.T) {
	cfg := newTestDSPConfig(32)
	cfg.PeakHoldEnable = true
	p := NewDSPPipeline(cfg)

	loud := silentBlock(32, 1000000)
	for i := range loud.I {
		loud.I[i] = float32(math.Sin(2 * math.Pi * float64(i) / 8))
	}
	frames := p.Process(loud)
	firstPeak := frames[0].PeakDBFS[frames[0].PeakBin]

	quiet := silentBlock(32, 1000000)
	quiet.Timestamp = loud.Timestamp // no elapsed time, so no decay
	frames2 := p.Process(quiet)
	secondPeak := frames2[0].PeakDBFS[frames[0].PeakBin]

	if secondPeak < firstPeak {
		t.Fatalf("peak hold dropped from %v to %v with zero elapsed time", firstPeak, secondPeak)
	}
}

func TestDSPPipelineToneAppearsNearExpectedBin(t *testing.T) {
	const n = 256
	cfg := newTestDSPConfig(n)
	p := NewDSPPipeline(cfg)

	sampleRate := uint32(n)
	blk := silentBlock(n, sampleRate)
	// A complex tone at positive-frequency bin 20 maps, after the
	// DC-centered shift, to index n/2+20.
	for i := 0; i < n; i++ {
		phase := 2 * math.Pi * 20 * float64(i) / float64(n)
		blk.I[i] = float32(math.Cos(phase))
		blk.Q[i] = float32(math.Sin(phase))
	}
	frames := p.Process(blk)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	wantBin := n/2 + 20
	if frames[0].PeakBin != wantBin {
		t.Fatalf("PeakBin = %d, want %d", frames[0].PeakBin, wantBin)
	}
}
