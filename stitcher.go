package main

import (
	"math"
	"time"
)

// dbfsToLinear and linearToDBFS convert between emitted dBFS readings and
// a proportional linear-power domain suitable for crossfade arithmetic.
// The Stitcher only ever compares and blends values produced by the same
// DSP configuration, so the proportionality constant cancels out; it never
// needs the pipeline's absolute correction factor.
func dbfsToLinear(db float32) float64 { return math.Pow(10, float64(db)/10) }
func linearToDBFS(lin float64) float32 {
	if lin <= 0 {
		return PanoramaSentinelDBFS
	}
	return float32(10 * math.Log10(lin))
}

// Stitcher crossfade-blends overlapping sweep segments into a contiguous
// panorama, entirely in linear power. Segments are expected in increasing
// segment_idx (== increasing frequency) order, matching the Sweep Engine's
// emission order.
type Stitcher struct {
	sweepID       uint64
	startHz       uint64
	stopHz        uint64
	binHz         float64
	binsLinear    []float64
	touched       []bool
	totalSegments int
	seenSegments  int
	mode          SweepMode
	startedAt     time.Time
}

// NewStitcher allocates a panorama buffer of binCount bins spanning
// [startHz, stopHz), all initially unscanned. startedAt anchors the
// wall-clock duration reported on the eventual Panorama.
func NewStitcher(sweepID, startHz, stopHz uint64, binCount, totalSegments int, mode SweepMode, startedAt time.Time) *Stitcher {
	return &Stitcher{
		sweepID:       sweepID,
		startHz:       startHz,
		stopHz:        stopHz,
		binHz:         float64(stopHz-startHz) / float64(binCount),
		binsLinear:    make([]float64, binCount),
		touched:       make([]bool, binCount),
		totalSegments: totalSegments,
		mode:          mode,
		startedAt:     startedAt,
	}
}

// AddSegment blends one sweep segment into the panorama buffer. Returns
// true once every planned segment has been added (the panorama is then
// complete, though possibly with untouched sentinel bins if a segment was
// skipped).
func (s *Stitcher) AddSegment(seg SweepSegment) bool {
	n := len(seg.Frame.BinsDBFS)
	if n == 0 {
		s.seenSegments++
		return s.seenSegments >= s.totalSegments
	}

	segBinHz := float64(seg.Frame.BandwidthHz)
	if segBinHz == 0 {
		// fall back to the frame's own extent when bandwidth wasn't
		// carried through (synthetic/test callers)
		segBinHz = float64(seg.Frame.SampleRate)
	}

	// Map each segment bin to a panorama bin index by absolute frequency.
	binsStart := seg.Frame.CenterHz - uint64(segBinHz/2)
	width := segBinHz / float64(n)

	// Find the run of leading target indices already touched by a prior
	// segment: that run is the overlap region to crossfade.
	targetIdx := make([]int, n)
	for k := 0; k < n; k++ {
		freq := float64(binsStart) + (float64(k)+0.5)*width
		idx := int((freq - float64(s.startHz)) / s.binHz)
		if idx < 0 {
			idx = 0
		}
		if idx >= len(s.binsLinear) {
			idx = len(s.binsLinear) - 1
		}
		targetIdx[k] = idx
	}

	overlapLen := 0
	for k := 0; k < n; k++ {
		if s.touched[targetIdx[k]] {
			overlapLen++
		} else {
			break
		}
	}

	for k := 0; k < n; k++ {
		idx := targetIdx[k]
		newLin := dbfsToLinear(seg.Frame.BinsDBFS[k])
		if k < overlapLen {
			w := float64(k+1) / float64(overlapLen+1)
			s.binsLinear[idx] = w*newLin + (1-w)*s.binsLinear[idx]
		} else {
			s.binsLinear[idx] = newLin
		}
		s.touched[idx] = true
	}

	s.seenSegments++
	return s.seenSegments >= s.totalSegments
}

// Panorama renders the current buffer to dBFS, marking untouched bins with
// the unscanned sentinel.
func (s *Stitcher) Panorama() Panorama {
	out := make([]float32, len(s.binsLinear))
	for i, v := range s.binsLinear {
		if !s.touched[i] {
			out[i] = PanoramaSentinelDBFS
			continue
		}
		out[i] = linearToDBFS(v)
	}
	return Panorama{
		SweepID:    s.sweepID,
		StartHz:    s.startHz,
		StopHz:     s.stopHz,
		BinHz:      s.binHz,
		BinsDBFS:   out,
		Complete:   s.seenSegments >= s.totalSegments,
		Mode:       s.mode,
		DurationMs: float32(time.Since(s.startedAt).Milliseconds()),
		UpdatedAt:  time.Now(),
	}
}
