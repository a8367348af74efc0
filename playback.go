package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"sync"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/klauspost/compress/zstd"
)

// playbackBlockSamples is the fixed chunk size synthesized SampleBlocks
// carry when replaying an IQ recording, which stores no per-block framing
// of its own.
const playbackBlockSamples = 4096

// playbackMinRate and playbackMaxRate bound the speed factor a client may
// request.
const (
	playbackMinRate = 0.25
	playbackMaxRate = 4.0
)

// Playback replays a previously recorded IQ or Spectrum file, pacing
// emission to the recording's own rate scaled by a client-selected factor.
// File access and the read loop share a single lock: there is exactly one
// reader, and control calls (pause/seek/speed) only ever touch state that
// loop observes under the same lock.
type Playback struct {
	mu      sync.Mutex
	path    string
	meta    RecordingDescriptor
	file    *os.File
	dec     *zstd.Decoder
	r       *bufio.Reader
	rate    float64
	paused  bool
	loop    bool
	seekReq *int64 // byte offset for the next loop iteration to seek to, nil if none pending
}

// OpenPlayback opens a recording by its data file name (sidecar is
// name+".meta") and checks the sidecar's format_version is compatible with
// what this build writes: same major version required.
func OpenPlayback(dir, name string) (*Playback, error) {
	base := safeName(name)
	dataPath := dir + "/" + base
	metaPath := dataPath + ".meta"

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, newStatusError(ErrInternal, "playback.open", "read sidecar", err)
	}
	var meta RecordingDescriptor
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, newStatusError(ErrInternal, "playback.open", "parse sidecar", err)
	}

	if err := checkFormatCompatible(meta.FormatVersion); err != nil {
		return nil, err
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, newStatusError(ErrInternal, "playback.open", "open data file", err)
	}

	p := &Playback{path: dataPath, meta: meta, file: f, rate: 1.0}
	if err := p.resetReader(); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

// checkFormatCompatible rejects a recording whose format_version major
// component doesn't match the version this build writes, guarding against
// silently misreading a layout that has since changed incompatibly.
func checkFormatCompatible(recorded string) error {
	want, err := goversion.NewVersion(recordingFormatVersion)
	if err != nil {
		return newStatusError(ErrInternal, "playback.version", "parse build format version", err)
	}
	got, err := goversion.NewVersion(recorded)
	if err != nil {
		return newStatusError(ErrProtocol, "playback.version", "parse recording format version", err)
	}
	if got.Segments()[0] != want.Segments()[0] {
		return newStatusError(ErrProtocol, "playback.version", "incompatible recording format version", nil)
	}
	return nil
}

func (p *Playback) resetReader() error {
	if p.dec != nil {
		p.dec.Close()
		p.dec = nil
	}
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return newStatusError(ErrInternal, "playback.seek", "rewind data file", err)
	}
	if p.meta.Compression == CompressionZstd {
		dec, err := zstd.NewReader(p.file)
		if err != nil {
			return newStatusError(ErrInternal, "playback.open", "init zstd decoder", err)
		}
		p.dec = dec
		p.r = bufio.NewReader(dec)
	} else {
		p.r = bufio.NewReader(p.file)
	}
	return nil
}

// SetRate clamps and applies a new playback speed factor.
func (p *Playback) SetRate(factor float64) {
	if factor < playbackMinRate {
		factor = playbackMinRate
	}
	if factor > playbackMaxRate {
		factor = playbackMaxRate
	}
	p.mu.Lock()
	p.rate = factor
	p.mu.Unlock()
}

func (p *Playback) SetLoop(loop bool) {
	p.mu.Lock()
	p.loop = loop
	p.mu.Unlock()
}

func (p *Playback) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *Playback) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

// Seek restarts the read loop at the beginning of the file. Non-IQ
// compressed streams can't seek to an arbitrary byte offset cheaply, so
// seek is rewind-only; a finer seek would require an index this format
// doesn't keep.
func (p *Playback) Seek() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetReader()
}

func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dec != nil {
		p.dec.Close()
	}
	return p.file.Close()
}

// Run drives the read loop until the file is exhausted (and loop is
// false), the context is canceled, or a read fails. onIQ/onSpectrum are
// called with whichever record type matches the recording's format;
// exactly one of them will ever be invoked for a given Playback.
func (p *Playback) Run(ctx context.Context, onIQ func(SampleBlock), onSpectrum func(SpectrumFrame)) error {
	switch p.meta.Format {
	case RecordingFormatIQ:
		return p.runIQ(ctx, onIQ)
	case RecordingFormatSpectrum:
		return p.runSpectrum(ctx, onSpectrum)
	default:
		return newStatusError(ErrInternal, "playback.run", "unknown recording format", nil)
	}
}

func (p *Playback) waitWhilePaused(ctx context.Context) bool {
	for {
		p.mu.Lock()
		paused := p.paused
		p.mu.Unlock()
		if !paused {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (p *Playback) runIQ(ctx context.Context, onIQ func(SampleBlock)) error {
	frameInterval := time.Duration(float64(playbackBlockSamples) / float64(p.meta.SampleRate) * float64(time.Second))
	for {
		if !p.waitWhilePaused(ctx) {
			return ctx.Err()
		}

		buf := make([]byte, playbackBlockSamples*8)
		n, err := io.ReadFull(p.r, buf)
		if err == io.ErrUnexpectedEOF {
			n = n - n%8
		} else if err == io.EOF {
			n = 0
		} else if err != nil {
			return newStatusError(ErrInternal, "playback.iq.read", "read iq samples", err)
		}
		if n == 0 {
			if p.loopEnabled() {
				if err := p.Seek(); err != nil {
					return err
				}
				continue
			}
			return nil
		}

		count := n / 8
		blk := SampleBlock{
			I:          make([]float32, count),
			Q:          make([]float32, count),
			SampleRate: p.meta.SampleRate,
			CenterHz:   p.meta.CenterHz,
			Timestamp:  time.Now(),
		}
		for k := 0; k < count; k++ {
			blk.I[k] = math.Float32frombits(binary.LittleEndian.Uint32(buf[k*8:]))
			blk.Q[k] = math.Float32frombits(binary.LittleEndian.Uint32(buf[k*8+4:]))
		}
		onIQ(blk)

		if !p.sleepScaled(ctx, frameInterval) {
			return ctx.Err()
		}
	}
}

func (p *Playback) runSpectrum(ctx context.Context, onSpectrum func(SpectrumFrame)) error {
	var lastTS float64
	first := true
	for {
		if !p.waitWhilePaused(ctx) {
			return ctx.Err()
		}

		header := make([]byte, 8)
		if _, err := io.ReadFull(p.r, header); err != nil {
			if err == io.EOF {
				if p.loopEnabled() {
					if err := p.Seek(); err != nil {
						return err
					}
					first = true
					continue
				}
				return nil
			}
			return newStatusError(ErrInternal, "playback.spectrum.read", "read record header", err)
		}
		payloadLen := binary.BigEndian.Uint32(header[0:])
		numBins := binary.BigEndian.Uint32(header[4:])

		payload := make([]byte, int(payloadLen)-4)
		if _, err := io.ReadFull(p.r, payload); err != nil {
			return newStatusError(ErrInternal, "playback.spectrum.read", "read record payload", err)
		}

		ts := math.Float64frombits(binary.BigEndian.Uint64(payload[0:]))
		centerHz := math.Float64frombits(binary.BigEndian.Uint64(payload[8:]))
		sampleRate := math.Float64frombits(binary.BigEndian.Uint64(payload[16:]))

		bins := make([]float32, numBins)
		for i := range bins {
			bins[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[24+i*4:]))
		}

		frame := SpectrumFrame{
			CenterHz:   uint64(centerHz),
			SampleRate: uint32(sampleRate),
			BinCount:   int(numBins),
			BinsDBFS:   bins,
			Timestamp:  time.Now(),
		}

		var wait time.Duration
		if !first {
			delta := ts - lastTS
			if delta > 0 {
				wait = time.Duration(delta * float64(time.Second))
			}
		}
		first = false
		lastTS = ts

		onSpectrum(frame)

		if wait > 0 && !p.sleepScaled(ctx, wait) {
			return ctx.Err()
		}
	}
}

func (p *Playback) loopEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

// sleepScaled waits d/rate, returning false if the context is canceled
// first.
func (p *Playback) sleepScaled(ctx context.Context, d time.Duration) bool {
	p.mu.Lock()
	rate := p.rate
	p.mu.Unlock()
	if rate <= 0 {
		rate = 1
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(float64(d) / rate)):
		return true
	}
}
