package main

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Command is the client->server JSON command envelope. Only the fields
// relevant to Type are expected to be populated; Coordinator validates
// before acting on any of them.
type Command struct {
	Type string `json:"type"`

	CenterHz    *uint64  `json:"center_hz,omitempty"`
	GainDB      *float32 `json:"gain_db,omitempty"`
	BandwidthHz *uint64  `json:"bandwidth_hz,omitempty"`
	SampleRate  *uint32  `json:"sample_rate,omitempty"`
	FFTSize     *int     `json:"fft_size,omitempty"`

	Window          string   `json:"window,omitempty"`
	OverlapFraction *float64 `json:"overlap_fraction,omitempty"`
	Averaging       string   `json:"averaging,omitempty"`
	AverageCount    *int     `json:"average_count,omitempty"`
	AverageAlpha    *float64 `json:"average_alpha,omitempty"`
	OutputBins      *int     `json:"output_bins,omitempty"`

	AGCEnabled *bool `json:"agc_enabled,omitempty"`

	FreqStartHz    *uint64  `json:"freq_start_hz,omitempty"`
	FreqEndHz      *uint64  `json:"freq_end_hz,omitempty"`
	UsableFraction *float64 `json:"usable_fraction,omitempty"`
	SettlingSkip   *int     `json:"settling_skip,omitempty"`
	Averages       *int     `json:"averages,omitempty"`
	Mode           string   `json:"mode,omitempty"`

	Enabled         *bool    `json:"enabled,omitempty"`
	ThresholdDB     *float64 `json:"threshold_db,omitempty"`
	FreqToleranceHz *uint64  `json:"freq_tolerance_hz,omitempty"`
	MaxMissCount    *int     `json:"max_miss_count,omitempty"`

	Name  string   `json:"name,omitempty"`
	Rate  *float64 `json:"rate,omitempty"`
	Loop  *bool    `json:"loop,omitempty"`
}

// StatusSnapshot is the server->client state summary. A client receives one
// when it connects and after each command it sends; a client's snapshots
// are queued on its own text queue in the order they were taken.
type StatusSnapshot struct {
	Type        string       `json:"type"`
	State       string       `json:"state"`
	CenterHz    uint64       `json:"center_hz"`
	SampleRate  uint32       `json:"sample_rate"`
	BandwidthHz uint64       `json:"bandwidth_hz"`
	GainDB      float32      `json:"gain_db"`
	FFTSize     int          `json:"fft_size"`
	AGCEnabled  bool         `json:"agc_enabled"`
	SweepActive bool         `json:"sweep_active"`
	Host        HostStats    `json:"host"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ErrorMessage is the server->client error envelope.
type ErrorMessage struct {
	Type  string `json:"type"`
	Kind  string `json:"kind"`
	Op    string `json:"op"`
	Error string `json:"error"`
}

// SignalEventMessage is the server->client wrapper around one Detector
// lifecycle event.
type SignalEventMessage struct {
	Type string       `json:"type"`
	Kind string       `json:"kind"`
	ID   uint64       `json:"id"`
	Signal TrackedSignal `json:"signal"`
}

// Coordinator is the single authoritative owner of session state. Dispatch
// is called from each WebSocket connection's read goroutine and from the MCP
// handlers, so commands from different clients can run concurrently; mu
// guards the state fields but is not held for the whole of a command.
// The Sample Bridge binding swap between
// live and sweep capture is the coordinator's job, not the Sweep Engine's:
// the engine only ever sees the bridge it's handed.
type Coordinator struct {
	cfg Config

	mu          sync.Mutex
	state       SessionState
	device      DeviceSource
	liveBridge  *SampleBridge
	dsp         *DSPPipeline
	dspCfg      DSPConfig
	agc         *SoftwareAGC
	detector    *Detector
	recorder    *Recorder
	hub         *Hub
	mqtt        *MQTTPublisher
	metrics     *Metrics

	sweepEngine *SweepEngine
	sweepCancel context.CancelFunc

	iqRec   *IQRecorder
	specRec *SpectrumRecorder

	playback       *Playback
	playbackCancel context.CancelFunc

	centerHz    uint64
	sampleRate  uint32
	bandwidthHz uint64
	gainDB      float32
	nextSweepID uint64

	liveWG sync.WaitGroup
}

// NewCoordinator wires up a coordinator from configuration; it does not
// start capturing until Start is called.
func NewCoordinator(cfg Config, hub *Hub, rec *Recorder, mqtt *MQTTPublisher, metrics *Metrics) (*Coordinator, error) {
	device, err := NewDeviceSource(cfg.Device)
	if err != nil {
		return nil, err
	}
	dspCfg := DSPConfigFromYAML(cfg.DSP)
	return &Coordinator{
		cfg:         cfg,
		state:       StateIdle,
		device:      device,
		liveBridge:  NewSampleBridge(cfg.Server.ClientQueueDepth),
		dsp:         NewDSPPipeline(dspCfg),
		dspCfg:      dspCfg,
		agc:         NewSoftwareAGC(),
		detector:    NewDetector(cfg.Detector),
		recorder:    rec,
		hub:         hub,
		mqtt:        mqtt,
		metrics:     metrics,
		centerHz:    cfg.Device.CenterHz,
		sampleRate:  cfg.Device.SampleRate,
		bandwidthHz: uint64(cfg.Device.SampleRate),
	}, nil
}

// Start transitions out of idle into live capture and begins the DSP/
// detector/broadcast pump. ctx bounds the whole session's lifetime.
func (co *Coordinator) Start(ctx context.Context) error {
	co.mu.Lock()
	if co.state != StateIdle {
		co.mu.Unlock()
		return newStatusError(ErrBusy, "coordinator.start", "session already active", nil)
	}
	co.state = StateLive
	co.liveBridge = NewSampleBridge(co.cfg.Server.ClientQueueDepth)
	co.mu.Unlock()

	if err := co.device.Start(ctx, co.liveBridge); err != nil {
		co.mu.Lock()
		co.state = StateIdle
		co.mu.Unlock()
		return err
	}

	co.liveWG.Add(1)
	go co.pumpLive(ctx)
	return nil
}

// pumpLive is the live-mode consumer loop: pop a block, run it through the
// DSP pipeline and detector, feed the AGC, broadcast and (if active)
// record the resulting frames. Runs until ctx is canceled or the bridge
// closes.
func (co *Coordinator) pumpLive(ctx context.Context) {
	defer co.liveWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		blk, ok := co.liveBridge.Pop()
		if !ok {
			return
		}

		co.mu.Lock()
		live := co.state == StateLive
		dsp := co.dsp
		iqRec := co.iqRec
		specRec := co.specRec
		agc := co.agc
		detector := co.detector
		co.mu.Unlock()
		if !live {
			continue
		}

		if iqRec != nil {
			if err := iqRec.WriteBlock(blk); err != nil {
				co.emitError(err)
			}
		}

		frames := dsp.Process(blk)
		for _, frame := range frames {
			if adj := agc.Observe(frame.PeakPowerDBFS, frame.Timestamp); adj != nil {
				co.applyGainAdjustment(*adj)
			}
			for _, ev := range detector.Detect(frame) {
				co.emitSignalEvent(ev)
			}
			if specRec != nil {
				if err := specRec.WriteFrame(frame); err != nil {
					co.emitError(err)
				}
			}
			co.hub.BroadcastLiveSpectrum(EncodeSpectrumFrame(frame))
		}
	}
}

func (co *Coordinator) applyGainAdjustment(adj GainAdjustment) {
	co.mu.Lock()
	co.gainDB += adj.DeltaDB
	co.mu.Unlock()
}

func (co *Coordinator) emitError(err error) {
	se, ok := err.(*StatusError)
	if !ok {
		se = newStatusError(ErrInternal, "coordinator", "", err)
	}
	msg := ErrorMessage{Type: "error", Kind: se.Kind.String(), Op: se.Op, Error: se.Error()}
	co.hub.BroadcastText(mustJSON(msg))
}

func (co *Coordinator) emitSignalEvent(ev SignalEvent) {
	msg := SignalEventMessage{Type: "signal_event", Kind: ev.Kind.String(), ID: ev.Signal.ID, Signal: ev.Signal}
	co.hub.BroadcastText(mustJSON(msg))
	if co.mqtt != nil {
		co.mqtt.PublishSignalEvent(ev)
	}
}

// Status returns the current snapshot. Safe to call from any goroutine.
func (co *Coordinator) Status() StatusSnapshot {
	co.mu.Lock()
	defer co.mu.Unlock()
	return StatusSnapshot{
		Type:        "status",
		State:       co.state.String(),
		CenterHz:    co.centerHz,
		SampleRate:  co.sampleRate,
		BandwidthHz: co.bandwidthHz,
		GainDB:      co.gainDB,
		FFTSize:     co.dspCfg.FFTSize,
		AGCEnabled:  co.agc.Enabled(),
		SweepActive: co.sweepEngine != nil,
		Host:        currentHostStats(),
		Timestamp:   time.Now(),
	}
}

// Dispatch validates and executes one client command, returning a value to
// be JSON-encoded as the response (or nil when the status snapshot is the
// only reply needed).
func (co *Coordinator) Dispatch(ctx context.Context, cmd Command) (interface{}, error) {
	switch cmd.Type {
	case "start":
		return nil, co.Start(ctx)
	case "stop":
		return nil, co.Stop()
	case "set_frequency":
		return nil, co.setFrequency(cmd)
	case "set_gain":
		return nil, co.setGain(cmd)
	case "set_bandwidth":
		return nil, co.setBandwidth(cmd)
	case "set_sample_rate":
		return nil, co.setSampleRate(cmd)
	case "set_fft_size":
		return nil, co.setFFTSize(cmd)
	case "set_dsp":
		return nil, co.setDSP(cmd)
	case "set_agc":
		return nil, co.setAGC(cmd)
	case "sweep_start":
		return nil, co.sweepStart(ctx, cmd)
	case "sweep_stop":
		return nil, co.sweepStop()
	case "detection_enable":
		return nil, co.detectionEnable(cmd)
	case "detection_set":
		return nil, co.detectionSet(cmd)
	case "rec_iq_start":
		return nil, co.recIQStart()
	case "rec_iq_stop":
		return nil, co.recIQStop()
	case "rec_spectrum_start":
		return nil, co.recSpectrumStart()
	case "rec_spectrum_stop":
		return nil, co.recSpectrumStop()
	case "rec_list":
		return co.recorder.List()
	case "rec_delete":
		return nil, co.recorder.Delete(cmd.Name)
	case "playback_start":
		return nil, co.playbackStart(ctx, cmd)
	case "playback_pause":
		return nil, co.playbackControl(func(p *Playback) { p.Pause() })
	case "playback_resume":
		return nil, co.playbackControl(func(p *Playback) { p.Resume() })
	case "playback_stop":
		return nil, co.playbackStop()
	case "playback_speed":
		return nil, co.playbackSpeed(cmd)
	case "playback_loop":
		return nil, co.playbackLoop(cmd)
	case "get_status":
		return co.Status(), nil
	case "check_device":
		return co.checkDevice()
	default:
		return nil, newStatusError(ErrProtocol, "coordinator.dispatch", fmt.Sprintf("unknown command %q", cmd.Type), nil)
	}
}

// Stop halts whatever mode is active (live, sweep, or playback) and
// returns to idle.
func (co *Coordinator) Stop() error {
	co.mu.Lock()
	state := co.state
	sweep := co.sweepEngine
	sweepCancel := co.sweepCancel
	pb := co.playback
	pbCancel := co.playbackCancel
	co.mu.Unlock()

	switch state {
	case StateSweepRunning:
		if sweep != nil {
			sweep.Stop()
		}
		if sweepCancel != nil {
			sweepCancel()
		}
	case StatePlayback:
		if pb != nil {
			pb.Close()
		}
		if pbCancel != nil {
			pbCancel()
		}
	}

	co.device.Stop()
	co.liveBridge.Close()
	co.liveWG.Wait()

	co.mu.Lock()
	co.state = StateIdle
	co.mu.Unlock()
	return nil
}

func (co *Coordinator) requireIdleOrLive(op string) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.state == StateSweepRunning || co.state == StatePlayback {
		return newStatusError(ErrBusy, op, "session is busy with a sweep or playback", nil)
	}
	return nil
}

func (co *Coordinator) setFrequency(cmd Command) error {
	if cmd.CenterHz == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.set_frequency", "center_hz required", nil)
	}
	if err := co.requireIdleOrLive("coordinator.set_frequency"); err != nil {
		return err
	}
	if err := co.device.Retune(*cmd.CenterHz); err != nil {
		return err
	}
	co.mu.Lock()
	co.centerHz = *cmd.CenterHz
	co.mu.Unlock()
	return nil
}

func (co *Coordinator) setGain(cmd Command) error {
	if cmd.GainDB == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.set_gain", "gain_db required", nil)
	}
	co.mu.Lock()
	co.gainDB = *cmd.GainDB
	co.mu.Unlock()
	return nil
}

func (co *Coordinator) setBandwidth(cmd Command) error {
	if cmd.BandwidthHz == nil || *cmd.BandwidthHz == 0 {
		return newStatusError(ErrInvalidConfig, "coordinator.set_bandwidth", "bandwidth_hz must be positive", nil)
	}
	co.mu.Lock()
	co.bandwidthHz = *cmd.BandwidthHz
	co.mu.Unlock()
	return nil
}

func (co *Coordinator) setSampleRate(cmd Command) error {
	if cmd.SampleRate == nil || *cmd.SampleRate == 0 {
		return newStatusError(ErrInvalidConfig, "coordinator.set_sample_rate", "sample_rate must be positive", nil)
	}
	if err := co.requireIdleOrLive("coordinator.set_sample_rate"); err != nil {
		return err
	}
	co.mu.Lock()
	co.sampleRate = *cmd.SampleRate
	co.mu.Unlock()
	return nil
}

func (co *Coordinator) setFFTSize(cmd Command) error {
	if cmd.FFTSize == nil || !isPowerOfTwo(*cmd.FFTSize) {
		return newStatusError(ErrInvalidConfig, "coordinator.set_fft_size", "fft_size must be a power of two", nil)
	}
	co.mu.Lock()
	co.dspCfg.FFTSize = *cmd.FFTSize
	dsp := NewDSPPipeline(co.dspCfg)
	co.dsp = dsp
	co.mu.Unlock()
	return nil
}

func (co *Coordinator) setDSP(cmd Command) error {
	co.mu.Lock()
	cfg := co.dspCfg
	co.mu.Unlock()

	if cmd.Window != "" {
		cfg.Window = windowKindFromString(cmd.Window)
	}
	if cmd.OverlapFraction != nil {
		cfg.OverlapFraction = *cmd.OverlapFraction
	}
	if cmd.Averaging != "" {
		cfg.Averaging = averagingModeFromString(cmd.Averaging)
	}
	if cmd.AverageCount != nil {
		cfg.AverageCount = *cmd.AverageCount
	}
	if cmd.AverageAlpha != nil {
		cfg.AverageAlpha = *cmd.AverageAlpha
	}
	if cmd.OutputBins != nil {
		cfg.OutputBins = *cmd.OutputBins
	}

	co.mu.Lock()
	co.dspCfg = cfg
	co.dsp = NewDSPPipeline(cfg)
	co.mu.Unlock()
	return nil
}

func (co *Coordinator) setAGC(cmd Command) error {
	if cmd.AGCEnabled == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.set_agc", "agc_enabled required", nil)
	}
	co.agc.SetEnabled(*cmd.AGCEnabled)
	return nil
}

func (co *Coordinator) sweepStart(ctx context.Context, cmd Command) error {
	if cmd.FreqStartHz == nil || cmd.FreqEndHz == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.sweep_start", "freq_start_hz and freq_end_hz required", nil)
	}
	if *cmd.FreqEndHz <= *cmd.FreqStartHz {
		return newStatusError(ErrInvalidConfig, "coordinator.sweep_start", "freq_start_hz must be < freq_end_hz", nil)
	}

	co.mu.Lock()
	if co.state == StateSweepRunning || co.state == StatePlayback {
		co.mu.Unlock()
		return newStatusError(ErrBusy, "coordinator.sweep_start", "session already busy", nil)
	}
	usableFraction := co.cfg.Sweep.UsableFraction
	settlingSkip := co.cfg.Sweep.SettlingSkip
	averageCount := co.cfg.Sweep.AverageCount
	if cmd.UsableFraction != nil {
		usableFraction = *cmd.UsableFraction
	}
	if cmd.SettlingSkip != nil {
		settlingSkip = *cmd.SettlingSkip
	}
	if cmd.Averages != nil {
		if *cmd.Averages <= 0 {
			co.mu.Unlock()
			return newStatusError(ErrInvalidConfig, "coordinator.sweep_start", "averages must be positive", nil)
		}
		averageCount = *cmd.Averages
	}
	mode := sweepModeFromString(cmd.Mode)
	sampleRate := co.sampleRate
	dspCfg := co.dspCfg
	co.mu.Unlock()

	plan, err := BuildSweepPlan(*cmd.FreqStartHz, *cmd.FreqEndHz, sampleRate, usableFraction, settlingSkip, averageCount)
	if err != nil {
		return err
	}

	// Stop live capture and swap the bridge binding: the coordinator owns
	// this swap, not the Sweep Engine. Join both the producer and the DSP
	// pump before handing the device to the Sweep Engine.
	co.device.Stop()
	co.liveBridge.Close()
	co.liveWG.Wait()
	sweepBridge := NewSampleBridge(co.cfg.Server.ClientQueueDepth)

	co.mu.Lock()
	co.nextSweepID++
	sweepID := co.nextSweepID
	engine := NewSweepEngine(sweepID)
	co.sweepEngine = engine
	co.state = StateSweepRunning
	sweepCtx, cancel := context.WithCancel(ctx)
	co.sweepCancel = cancel
	co.mu.Unlock()

	binCount := dspCfg.OutputBins
	if binCount == 0 {
		binCount = dspCfg.FFTSize
	}
	lo, hi := stepBinWindow(binCount, usableFraction)
	stitcher := NewStitcher(sweepID, plan.StartHz, plan.StopHz, hi-lo, plan.TotalSegments, mode, time.Now())

	emit := func(seg SweepSegment) {
		co.hub.BroadcastSweepSegment(EncodeSweepSegment(seg))
		if stitcher.AddSegment(seg) {
			pano := stitcher.Panorama()
			co.hub.BroadcastSweepSegment(EncodeSweepPanorama(pano))
		}
	}
	onDone := func(ok bool) {
		co.mu.Lock()
		co.sweepEngine = nil
		co.state = StateIdle
		co.mu.Unlock()
		co.liveBridge = NewSampleBridge(co.cfg.Server.ClientQueueDepth)
		if err := co.device.Start(sweepCtx, co.liveBridge); err == nil {
			co.liveWG.Add(1)
			go co.pumpLive(sweepCtx)
		}
	}

	go engine.Run(sweepCtx, co.device, sweepBridge, plan, dspCfg, emit, onDone)
	return nil
}

func (co *Coordinator) sweepStop() error {
	co.mu.Lock()
	engine := co.sweepEngine
	cancel := co.sweepCancel
	co.mu.Unlock()
	if engine == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.sweep_stop", "no sweep in progress", nil)
	}
	engine.Stop()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (co *Coordinator) detectionEnable(cmd Command) error {
	if cmd.Enabled == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.detection_enable", "enabled required", nil)
	}
	co.mu.Lock()
	cfg := co.cfg.Detector
	cfg.Enabled = *cmd.Enabled
	co.cfg.Detector = cfg
	co.detector.SetConfig(cfg)
	co.mu.Unlock()
	return nil
}

func (co *Coordinator) detectionSet(cmd Command) error {
	co.mu.Lock()
	cfg := co.cfg.Detector
	if cmd.ThresholdDB != nil {
		cfg.ThresholdDB = *cmd.ThresholdDB
	}
	if cmd.FreqToleranceHz != nil {
		cfg.FreqToleranceHz = *cmd.FreqToleranceHz
	}
	if cmd.MaxMissCount != nil {
		cfg.MaxMissCount = *cmd.MaxMissCount
	}
	co.cfg.Detector = cfg
	co.detector.SetConfig(cfg)
	co.mu.Unlock()
	return nil
}

func (co *Coordinator) recIQStart() error {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.iqRec != nil {
		return newStatusError(ErrBusy, "coordinator.rec_iq_start", "iq recording already active", nil)
	}
	rec, err := co.recorder.StartIQRecording(co.centerHz, co.sampleRate)
	if err != nil {
		return err
	}
	co.iqRec = rec
	return nil
}

func (co *Coordinator) recIQStop() error {
	co.mu.Lock()
	rec := co.iqRec
	co.iqRec = nil
	co.mu.Unlock()
	if rec == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.rec_iq_stop", "no iq recording active", nil)
	}
	return rec.Close()
}

func (co *Coordinator) recSpectrumStart() error {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.specRec != nil {
		return newStatusError(ErrBusy, "coordinator.rec_spectrum_start", "spectrum recording already active", nil)
	}
	rec, err := co.recorder.StartSpectrumRecording(co.centerHz, co.sampleRate, co.dspCfg)
	if err != nil {
		return err
	}
	co.specRec = rec
	return nil
}

func (co *Coordinator) recSpectrumStop() error {
	co.mu.Lock()
	rec := co.specRec
	co.specRec = nil
	co.mu.Unlock()
	if rec == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.rec_spectrum_stop", "no spectrum recording active", nil)
	}
	return rec.Close()
}

func (co *Coordinator) playbackStart(ctx context.Context, cmd Command) error {
	if cmd.Name == "" {
		return newStatusError(ErrInvalidConfig, "coordinator.playback_start", "name required", nil)
	}
	co.mu.Lock()
	if co.state != StateIdle {
		co.mu.Unlock()
		return newStatusError(ErrBusy, "coordinator.playback_start", "session is busy", nil)
	}
	co.mu.Unlock()

	pb, err := OpenPlayback(co.cfg.Recording.Directory, cmd.Name)
	if err != nil {
		return err
	}

	pbCtx, cancel := context.WithCancel(ctx)
	co.mu.Lock()
	co.playback = pb
	co.playbackCancel = cancel
	co.state = StatePlayback
	co.mu.Unlock()

	go func() {
		pb.Run(pbCtx, func(blk SampleBlock) {
			for _, frame := range co.dsp.Process(blk) {
				co.hub.BroadcastLiveSpectrum(EncodeSpectrumFrame(frame))
			}
		}, func(frame SpectrumFrame) {
			co.hub.BroadcastLiveSpectrum(EncodeSpectrumFrame(frame))
		})
		co.mu.Lock()
		co.playback = nil
		co.state = StateIdle
		co.mu.Unlock()
	}()
	return nil
}

func (co *Coordinator) playbackControl(fn func(*Playback)) error {
	co.mu.Lock()
	pb := co.playback
	co.mu.Unlock()
	if pb == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.playback", "no playback active", nil)
	}
	fn(pb)
	return nil
}

func (co *Coordinator) playbackStop() error {
	co.mu.Lock()
	pb := co.playback
	cancel := co.playbackCancel
	co.mu.Unlock()
	if pb == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.playback_stop", "no playback active", nil)
	}
	if cancel != nil {
		cancel()
	}
	return pb.Close()
}

func (co *Coordinator) playbackSpeed(cmd Command) error {
	if cmd.Rate == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.playback_speed", "rate required", nil)
	}
	return co.playbackControl(func(p *Playback) { p.SetRate(*cmd.Rate) })
}

func (co *Coordinator) playbackLoop(cmd Command) error {
	if cmd.Loop == nil {
		return newStatusError(ErrInvalidConfig, "coordinator.playback_loop", "loop required", nil)
	}
	return co.playbackControl(func(p *Playback) { p.SetLoop(*cmd.Loop) })
}

func (co *Coordinator) checkDevice() (interface{}, error) {
	co.mu.Lock()
	sr := co.device.SampleRate()
	co.mu.Unlock()
	return struct {
		Available  bool   `json:"available"`
		SampleRate uint32 `json:"sample_rate"`
	}{Available: sr > 0, SampleRate: sr}, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
