package main

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DSPPipeline turns a stream of SampleBlocks into a stream of power
// spectra: DC removal, windowing, overlap-save framing, a DC-centered FFT,
// linear-power averaging, optional peak-preserving downsampling, dBFS
// conversion, and optional peak hold. One pipeline instance is rebuilt
// whenever its DSPConfig changes; it is never mutated mid-frame.
type DSPPipeline struct {
	cfg DSPConfig

	fft        *fourier.CmplxFFT
	winCoeffs  []float64
	winGain    float64
	hop        int
	ringI      []float64
	ringQ      []float64

	dcI, dcQ float64

	linBuf  [][]float64 // ring of recent linear power spectra, AveragingLinear
	linIdx  int
	linFull bool
	ema     []float64 // AveragingExponential running state

	peakHold   []float32
	peakSetAt  time.Time
	seq        uint64
}

// NewDSPPipeline constructs a pipeline for the given configuration.
func NewDSPPipeline(cfg DSPConfig) *DSPPipeline {
	coeffs, gain := buildWindow(cfg.Window, cfg.FFTSize)
	hop := cfg.FFTSize
	if cfg.OverlapFraction == 0.5 {
		hop = cfg.FFTSize / 2
	}
	p := &DSPPipeline{
		cfg:       cfg,
		fft:       fourier.NewCmplxFFT(cfg.FFTSize),
		winCoeffs: coeffs,
		winGain:   gain,
		hop:       hop,
	}
	if cfg.Averaging == AveragingLinear {
		n := cfg.AverageCount
		if n < 1 {
			n = 1
		}
		p.linBuf = make([][]float64, n)
	}
	return p
}

// Process appends blk's samples to the pipeline's framing buffer and
// returns zero or more spectrum frames: overlap-save framing can complete
// more than one window per block, or none at all if the block is shorter
// than a hop.
func (p *DSPPipeline) Process(blk SampleBlock) []SpectrumFrame {
	n := len(blk.I)
	i := make([]float64, n)
	q := make([]float64, n)
	for k := 0; k < n; k++ {
		i[k] = float64(blk.I[k])
		q[k] = float64(blk.Q[k])
	}
	if p.cfg.DCRemovalEnable {
		pole := p.cfg.DCRemovalPole
		for k := range i {
			p.dcI = pole*p.dcI + (1-pole)*i[k]
			p.dcQ = pole*p.dcQ + (1-pole)*q[k]
			i[k] -= p.dcI
			q[k] -= p.dcQ
		}
	}

	p.ringI = append(p.ringI, i...)
	p.ringQ = append(p.ringQ, q...)

	var frames []SpectrumFrame
	for len(p.ringI) >= p.cfg.FFTSize {
		frames = append(frames, p.computeFrame(p.ringI[:p.cfg.FFTSize], p.ringQ[:p.cfg.FFTSize], blk))
		if p.hop >= len(p.ringI) {
			p.ringI = p.ringI[:0]
			p.ringQ = p.ringQ[:0]
		} else {
			p.ringI = p.ringI[p.hop:]
			p.ringQ = p.ringQ[p.hop:]
		}
	}
	return frames
}

func (p *DSPPipeline) computeFrame(i, q []float64, blk SampleBlock) SpectrumFrame {
	n := p.cfg.FFTSize
	seq := make([]complex128, n)
	for k := 0; k < n; k++ {
		seq[k] = complex(i[k]*p.winCoeffs[k], q[k]*p.winCoeffs[k])
	}

	coeffs := p.fft.Coefficients(nil, seq)

	// DC-centered shift: bin n/2 becomes index 0 of the shifted array, so
	// negative frequencies come first and DC sits in the middle.
	power := make([]float64, n)
	for k := 0; k < n; k++ {
		src := (k + n/2) % n
		re := real(coeffs[src])
		im := imag(coeffs[src])
		power[k] = re*re + im*im
	}

	power = p.average(power)

	out := power
	if p.cfg.OutputBins > 0 && p.cfg.OutputBins < n {
		out = downsamplePeak(power, p.cfg.OutputBins)
	}

	binsDBFS := make([]float32, len(out))
	correction := 10 * math.Log10(float64(n)*float64(n)*p.winGain)
	for k, v := range out {
		if v <= 0 {
			binsDBFS[k] = float32(-300)
			continue
		}
		binsDBFS[k] = float32(10*math.Log10(v) - correction)
	}

	var peak []float32
	if p.cfg.PeakHoldEnable {
		peak = p.updatePeakHold(binsDBFS, blk.Timestamp)
	}

	peakBin := 0
	for k, v := range binsDBFS {
		if v > binsDBFS[peakBin] {
			peakBin = k
		}
	}
	binHz := float64(blk.SampleRate) / float64(len(binsDBFS))
	peakOffsetHz := (float64(peakBin) - float64(len(binsDBFS))/2) * binHz

	p.seq++
	return SpectrumFrame{
		CenterHz:         blk.CenterHz,
		SampleRate:       blk.SampleRate,
		BandwidthHz:      blk.BandwidthHz,
		GainDB:           blk.GainDB,
		FFTSize:          n,
		BinCount:         len(binsDBFS),
		BinsDBFS:         binsDBFS,
		PeakDBFS:         peak,
		NoiseFloorDBFS:   NoiseFloorPercentile(binsDBFS, 25),
		PeakBin:          peakBin,
		PeakPowerDBFS:    binsDBFS[peakBin],
		PeakFreqOffsetHz: peakOffsetHz,
		Timestamp:        blk.Timestamp,
		SeqNum:           p.seq,
	}
}

// average combines this frame's linear power spectrum with prior frames
// per the configured AveragingMode. It never mutates power in place. Linear
// mode returns a new slice; exponential mode returns the pipeline's own
// running-average buffer and none mode returns power itself.
func (p *DSPPipeline) average(power []float64) []float64 {
	switch p.cfg.Averaging {
	case AveragingLinear:
		cp := make([]float64, len(power))
		copy(cp, power)
		p.linBuf[p.linIdx] = cp
		p.linIdx = (p.linIdx + 1) % len(p.linBuf)
		if p.linIdx == 0 {
			p.linFull = true
		}
		count := len(p.linBuf)
		if !p.linFull {
			count = p.linIdx
			if count == 0 {
				count = 1
			}
		}
		out := make([]float64, len(power))
		for _, spec := range p.linBuf {
			if spec == nil {
				continue
			}
			for k, v := range spec {
				out[k] += v
			}
		}
		for k := range out {
			out[k] /= float64(count)
		}
		return out

	case AveragingExponential:
		if p.ema == nil {
			p.ema = make([]float64, len(power))
			copy(p.ema, power)
			return p.ema
		}
		alpha := p.cfg.AverageAlpha
		for k, v := range power {
			p.ema[k] = alpha*v + (1-alpha)*p.ema[k]
		}
		return p.ema

	default:
		return power
	}
}

// downsamplePeak groups bins into outBins fractional-width groups and keeps
// the maximum value per group, preserving narrowband peaks that a naive
// mean-downsample would smear out.
func downsamplePeak(bins []float64, outBins int) []float64 {
	out := make([]float64, outBins)
	n := len(bins)
	groupWidth := float64(n) / float64(outBins)
	for g := 0; g < outBins; g++ {
		start := int(math.Floor(float64(g) * groupWidth))
		end := int(math.Ceil(float64(g+1) * groupWidth))
		if end > n {
			end = n
		}
		if end <= start {
			end = start + 1
		}
		max := bins[start]
		for k := start + 1; k < end; k++ {
			if bins[k] > max {
				max = bins[k]
			}
		}
		out[g] = max
	}
	return out
}

// updatePeakHold merges binsDBFS into the running peak trace, decaying the
// held peak by PeakHoldDecayDB per second since the last update.
func (p *DSPPipeline) updatePeakHold(binsDBFS []float32, ts time.Time) []float32 {
	if p.peakHold == nil {
		p.peakHold = make([]float32, len(binsDBFS))
		copy(p.peakHold, binsDBFS)
		p.peakSetAt = ts
		out := make([]float32, len(p.peakHold))
		copy(out, p.peakHold)
		return out
	}

	elapsed := ts.Sub(p.peakSetAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	decay := float32(p.cfg.PeakHoldDecayDB * elapsed)
	p.peakSetAt = ts
	for k, v := range binsDBFS {
		p.peakHold[k] -= decay
		if v > p.peakHold[k] {
			p.peakHold[k] = v
		}
	}
	out := make([]float32, len(p.peakHold))
	copy(out, p.peakHold)
	return out
}

// NoiseFloorPercentile returns the pth percentile (0-100) of a power
// spectrum in dBFS, the service's standard noise floor estimator.
func NoiseFloorPercentile(binsDBFS []float32, p int) float32 {
	if len(binsDBFS) == 0 {
		return PanoramaSentinelDBFS
	}
	sorted := make([]float32, len(binsDBFS))
	copy(sorted, binsDBFS)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
