package main

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// BuildSweepPlan tiles [startHz, stopHz) into steps of usable bandwidth
// sampleRate*usableFraction, each centered usable_bw apart, terminating
// once a step's usable extent would no longer begin before stopHz.
func BuildSweepPlan(startHz, stopHz uint64, sampleRate uint32, usableFraction float64, settlingSkip, averageCount int) (SweepPlan, error) {
	if stopHz <= startHz {
		return SweepPlan{}, newStatusError(ErrInvalidConfig, "sweep.plan", "freq_start must be < freq_end", nil)
	}
	if usableFraction <= 0 || usableFraction > 1 {
		return SweepPlan{}, newStatusError(ErrInvalidConfig, "sweep.plan", "usable_fraction must be in (0,1]", nil)
	}

	usableBW := uint64(float64(sampleRate) * usableFraction)
	if usableBW == 0 {
		return SweepPlan{}, newStatusError(ErrInvalidConfig, "sweep.plan", "usable bandwidth computed as 0", nil)
	}

	plan := SweepPlan{
		StartHz:        startHz,
		StopHz:         stopHz,
		SampleRate:     sampleRate,
		UsableFraction: usableFraction,
		SettlingSkip:   settlingSkip,
		AverageCount:   averageCount,
	}

	center := startHz + usableBW/2
	idx := 0
	for {
		half := usableBW / 2
		if center >= half && center-half >= stopHz {
			break
		}
		plan.Steps = append(plan.Steps, SweepStep{Index: idx, CenterHz: center})
		idx++
		center += usableBW
	}
	plan.TotalSegments = len(plan.Steps)
	return plan, nil
}

// stepBinWindow returns the central symmetric bin range retained from a
// full-width FFT for one sweep step: ceil(outputBins * usableFraction)
// bins, centered in the FFT output.
func stepBinWindow(fftBins int, usableFraction float64) (lo, hi int) {
	keep := int(math.Ceil(float64(fftBins) * usableFraction))
	if keep > fftBins {
		keep = fftBins
	}
	lo = (fftBins - keep) / 2
	hi = lo + keep
	return lo, hi
}

// SweepState is the Sweep Engine's own state machine, distinct from (but
// gated by) the coordinator's SessionState.
type SweepState int32

const (
	SweepIdle SweepState = iota
	SweepPreparing
	SweepRunning
	SweepDraining
	SweepComplete
	SweepAborted
)

// SweepEngine orchestrates retune/settle/capture/average per step of a
// SweepPlan and emits segments to callbacks supplied by the coordinator,
// which stitches them into the panorama. The coordinator, not the engine, owns
// swapping the Sample Bridge binding back on every exit path.
type SweepEngine struct {
	state   int32 // SweepState, atomic
	sweepID uint64

	stopCh chan struct{}
	once   sync.Once
}

// NewSweepEngine creates an idle engine for one sweep run. A new instance
// is used per sweep; it is not reused.
func NewSweepEngine(sweepID uint64) *SweepEngine {
	return &SweepEngine{sweepID: sweepID, stopCh: make(chan struct{})}
}

func (e *SweepEngine) State() SweepState { return SweepState(atomic.LoadInt32(&e.state)) }
func (e *SweepEngine) setState(s SweepState) { atomic.StoreInt32(&e.state, int32(s)) }

// Stop requests early termination; the run loop transitions to draining at
// the next step boundary rather than mid-capture.
func (e *SweepEngine) Stop() {
	e.once.Do(func() { close(e.stopCh) })
}

// Run drives the plan to completion or abortion. device must already be
// stopped from any live binding; Run retunes it directly for each step.
// bridge is the sweep-local Sample Bridge the coordinator installed before
// calling Run. emit is called once per completed step in order; onDone is
// called exactly once when the run ends, with ok=true for natural
// completion and false for abort/error.
func (e *SweepEngine) Run(ctx context.Context, device DeviceSource, bridge *SampleBridge, plan SweepPlan, dspCfg DSPConfig, emit func(SweepSegment), onDone func(ok bool)) {
	e.setState(SweepPreparing)

	frameBins := dspCfg.OutputBins
	if frameBins == 0 {
		frameBins = dspCfg.FFTSize
	}
	lo, hi := stepBinWindow(frameBins, plan.UsableFraction)

	if err := device.Start(ctx, bridge); err != nil {
		e.setState(SweepAborted)
		onDone(false)
		return
	}
	defer device.Stop()

	e.setState(SweepRunning)

	for _, step := range plan.Steps {
		select {
		case <-ctx.Done():
			e.setState(SweepAborted)
			onDone(false)
			return
		case <-e.stopCh:
			e.setState(SweepDraining)
			onDone(false)
			return
		default:
		}

		if err := device.Retune(step.CenterHz); err != nil {
			e.setState(SweepAborted)
			onDone(false)
			return
		}

		// Force linear power averaging over exactly plan.AverageCount captures
		// for this step, regardless of how the live feed's pipeline is
		// configured: a sweep step's emitted frame must be the average of its
		// own captures, not whatever averaging the live view happens to use.
		stepCfg := dspCfg
		stepCfg.Averaging = AveragingLinear
		stepCfg.AverageCount = plan.AverageCount
		pipeline := NewDSPPipeline(stepCfg)

		// settling_skip: discard this many captured blocks after retune
		// before the averaged window begins.
		skipped := 0
		for skipped < plan.SettlingSkip {
			if _, ok := e.popWithTimeout(bridge); !ok {
				e.setState(SweepAborted)
				onDone(false)
				return
			}
			skipped++
		}

		var lastFrame *SpectrumFrame
		captured := 0
		for captured < plan.AverageCount {
			blk, ok := e.popWithTimeout(bridge)
			if !ok {
				e.setState(SweepAborted)
				onDone(false)
				return
			}
			frames := pipeline.Process(blk)
			for i := range frames {
				f := frames[i]
				lastFrame = &f
				captured++
				if captured >= plan.AverageCount {
					break
				}
			}
		}
		if lastFrame == nil {
			e.setState(SweepAborted)
			onDone(false)
			return
		}

		windowed := *lastFrame
		if hi <= len(windowed.BinsDBFS) {
			windowed.BinsDBFS = append([]float32(nil), windowed.BinsDBFS[lo:hi]...)
			windowed.BinCount = len(windowed.BinsDBFS)
		}

		usableBW := uint64(float64(plan.SampleRate) * plan.UsableFraction)
		segment := SweepSegment{
			SweepID:       e.sweepID,
			SegmentIdx:    step.Index,
			TotalSegments: plan.TotalSegments,
			SweepStartHz:  plan.StartHz,
			SweepStopHz:   plan.StopHz,
			Frame:         windowed,
		}
		segment.Frame.CenterHz = step.CenterHz
		segment.Frame.BandwidthHz = usableBW
		emit(segment)
	}

	e.setState(SweepComplete)
	onDone(true)
}

// popWithTimeout reads one block from the bridge, giving up after a bound
// so a wedged device doesn't hang the sweep forever.
func (e *SweepEngine) popWithTimeout(bridge *SampleBridge) (SampleBlock, bool) {
	type result struct {
		blk SampleBlock
		ok  bool
	}
	ch := make(chan result, 1)
	go func() {
		blk, ok := bridge.Pop()
		ch <- result{blk, ok}
	}()
	select {
	case r := <-ch:
		return r.blk, r.ok
	case <-time.After(5 * time.Second):
		return SampleBlock{}, false
	}
}
