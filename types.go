package main

import "time"

// SampleBlock is a fixed-size block of complex baseband IQ samples handed
// from the Device Source to the Sample Bridge. Real and imaginary rails are
// kept as parallel float32 slices rather than []complex64; the DSP pipeline
// copies them into float64 buffers before windowing.
type SampleBlock struct {
	I          []float32
	Q          []float32
	SampleRate uint32
	CenterHz   uint64
	BandwidthHz uint64
	GainDB     float32
	Timestamp  time.Time
	SeqNum     uint64 // monotonically increasing, gaps mean dropped blocks upstream
}

// WindowKind selects the analysis window applied before framing. The three
// Kaiser variants carry fixed beta shape parameters, matching the
// window_kind enum as named.
type WindowKind int

const (
	WindowRectangular WindowKind = iota
	WindowHanning
	WindowBlackman
	WindowBlackmanHarris
	WindowFlatTop
	WindowKaiser6
	WindowKaiser10
	WindowKaiser14
)

func (k WindowKind) String() string {
	switch k {
	case WindowHanning:
		return "hanning"
	case WindowBlackman:
		return "blackman"
	case WindowBlackmanHarris:
		return "blackman_harris"
	case WindowFlatTop:
		return "flat_top"
	case WindowKaiser6:
		return "kaiser_6"
	case WindowKaiser10:
		return "kaiser_10"
	case WindowKaiser14:
		return "kaiser_14"
	default:
		return "rectangular"
	}
}

// AveragingMode selects how successive power spectra are combined before
// emission.
type AveragingMode int

const (
	AveragingNone AveragingMode = iota
	AveragingLinear
	AveragingExponential
)

// DSPConfig governs one FFT pipeline instance. A pipeline is rebuilt
// whenever any field here changes; it is never mutated in place mid-frame.
type DSPConfig struct {
	FFTSize         int
	Window          WindowKind
	OverlapFraction float64 // 0 or 0.5
	Averaging       AveragingMode
	AverageCount    int     // AveragingLinear: number of frames in the running window
	AverageAlpha    float64 // AveragingExponential: new = alpha*new + (1-alpha)*old
	OutputBins      int     // post-downsample bin count, 0 disables downsampling
	DCRemovalEnable bool
	DCRemovalPole   float64 // single-pole IIR high-pass coefficient, (0,1)
	PeakHoldEnable  bool
	PeakHoldDecayDB float64 // dB/second decay applied to the peak-hold trace
}

// SpectrumFrame is one emitted power spectrum: a single sweep step's
// capture, or one frame of a continuous live feed.
type SpectrumFrame struct {
	CenterHz        uint64
	SampleRate      uint32
	BandwidthHz     uint64
	GainDB          float32
	FFTSize         int
	BinCount        int
	BinsDBFS        []float32
	PeakDBFS        []float32 // nil unless peak hold is enabled
	NoiseFloorDBFS  float32   // 25th percentile of BinsDBFS
	PeakBin         int       // argmax(BinsDBFS)
	PeakPowerDBFS   float32
	PeakFreqOffsetHz float64 // peak bin's offset from CenterHz
	Timestamp       time.Time
	SeqNum          uint64
}

// SweepStep is one tile of a sweep plan: a single tuned capture covering
// [CenterHz - bw/2, CenterHz + bw/2) at the plan's sample rate.
type SweepStep struct {
	Index    int
	CenterHz uint64
}

// SweepPlan tiles [StartHz, StopHz) into steps of usable bandwidth
// SampleRate*UsableFraction, with UsableFraction in (0, 1].
type SweepPlan struct {
	StartHz         uint64
	StopHz          uint64
	SampleRate      uint32
	UsableFraction  float64
	SettlingSkip    int // captures discarded after each retune before averaging starts
	AverageCount    int // captures averaged per step before emission
	Steps           []SweepStep
	TotalSegments   int
}

// SweepSegment is one step's emitted spectrum, tagged with its position in
// the overall sweep so a client or the Stitcher can reassemble a panorama.
type SweepSegment struct {
	SweepID       uint64
	SegmentIdx    int
	TotalSegments int
	SweepStartHz  uint64 // the sweep's overall freq_start, carried on every segment
	SweepStopHz   uint64 // the sweep's overall freq_end
	Frame         SpectrumFrame
}

// PanoramaSentinelDBFS marks a bin the current sweep pass has not yet covered.
// Recommended to sit well below any real noise floor so it is visually and
// programmatically distinguishable from a genuine low reading.
const PanoramaSentinelDBFS = float32(-200.0)

// SweepMode tags a sweep as a survey or a band-monitor pass and is carried
// through to the client so it can tell the two apart. The Sweep Engine runs
// a single pass in either mode; a band-monitor sweep is not repeated.
type SweepMode byte

const (
	SweepModeSurvey      SweepMode = 0
	SweepModeBandMonitor SweepMode = 1
)

func sweepModeFromString(s string) SweepMode {
	if s == "band_monitor" {
		return SweepModeBandMonitor
	}
	return SweepModeSurvey
}

// Panorama is the stitched wideband composite of one complete (or
// in-progress) sweep pass.
type Panorama struct {
	SweepID    uint64
	StartHz    uint64
	StopHz     uint64
	BinHz      float64
	BinsDBFS   []float32
	Complete   bool
	Mode       SweepMode
	DurationMs float32 // wall-clock elapsed since the sweep pass began
	UpdatedAt  time.Time
}

// TrackedSignal is a contiguous above-threshold run that has been
// associated across frames by frequency proximity.
type TrackedSignal struct {
	ID          uint64
	CenterHz    uint64
	BandwidthHz uint64
	PeakDBFS    float32
	FirstSeen   time.Time
	LastSeen    time.Time
	MissCount   int
}

// RecordingFormat names the on-disk payload encoding of a recording file.
type RecordingFormat int

const (
	RecordingFormatIQ RecordingFormat = iota
	RecordingFormatSpectrum
)

// RecordingCompression names the payload compression, if any.
type RecordingCompression int

const (
	CompressionNone RecordingCompression = iota
	CompressionZstd
)

// RecordingDescriptor is the sidecar JSON metadata written alongside a
// recording's raw data file.
type RecordingDescriptor struct {
	FormatVersion string               `json:"format_version"`
	Format        RecordingFormat      `json:"format"`
	Compression   RecordingCompression `json:"compression"`
	SampleRate    uint32               `json:"sample_rate"`
	CenterHz      uint64               `json:"center_hz"`
	DSP           *DSPConfig           `json:"dsp,omitempty"` // present for RecordingFormatSpectrum
	StartedAt     time.Time            `json:"started_at"`
	ClosedAt      time.Time            `json:"closed_at,omitempty"`
	ByteCount     int64                `json:"byte_count"`
	FrameCount    int64                `json:"frame_count"`
}

// SessionState is the Session Coordinator's single authoritative mode.
type SessionState int

const (
	StateIdle SessionState = iota
	StateLive
	StateSweepRunning
	StatePlayback
)

func (s SessionState) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateSweepRunning:
		return "sweep_running"
	case StatePlayback:
		return "playback"
	default:
		return "idle"
	}
}
