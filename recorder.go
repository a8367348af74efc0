package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// recordingFormatVersion is the format_version this build writes. Playback
// checks the version a sidecar names with hashicorp/go-version and rejects
// a recording whose major version differs from this one.
const recordingFormatVersion = "1.0.0"

// Recorder tracks cumulative on-disk usage for one recordings directory and
// hands out IQ/Spectrum writers that enforce the shared storage budget.
// Budget accounting is cumulative across every recording under the
// directory, not per-file: a single long capture can't blow the budget
// just because no other file happens to be open at the time.
type Recorder struct {
	dir          string
	budgetBytes  int64
	compression  RecordingCompression
	formatVer    string

	mu        sync.Mutex
	usedBytes int64
}

// NewRecorder opens (creating if needed) cfg.Directory and seeds usedBytes
// from the data files already present, so a restart doesn't forget what
// prior sessions wrote.
func NewRecorder(cfg RecordingConfig) (*Recorder, error) {
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, newStatusError(ErrInternal, "recorder.open", "create recordings directory", err)
	}
	var compression RecordingCompression
	if cfg.Compression == "zstd" {
		compression = CompressionZstd
	}
	r := &Recorder{
		dir:         cfg.Directory,
		budgetBytes: cfg.StorageBudgetMB * 1024 * 1024,
		compression: compression,
		formatVer:   cfg.FormatVersion,
	}

	entries, err := os.ReadDir(cfg.Directory)
	if err != nil {
		return nil, newStatusError(ErrInternal, "recorder.open", "scan recordings directory", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".meta" {
			continue
		}
		if info, err := e.Info(); err == nil {
			r.usedBytes += info.Size()
		}
	}
	return r, nil
}

// reserve charges n additional bytes against the budget, rejecting the
// write if it would exceed the cumulative cap.
func (r *Recorder) reserve(n int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.budgetBytes > 0 && r.usedBytes+n > r.budgetBytes {
		return newStatusError(ErrStorageExhausted, "recorder.reserve", "storage budget exceeded", nil)
	}
	r.usedBytes += n
	return nil
}

func (r *Recorder) release(n int64) {
	r.mu.Lock()
	r.usedBytes -= n
	r.mu.Unlock()
}

// safeName guards against a client-supplied filename escaping the
// recordings directory: only the base name is ever used.
func safeName(name string) string {
	return filepath.Base(name)
}

// List returns the sidecar descriptors of every recording on disk in file
// name order; names begin with a UTC timestamp, so the oldest comes first.
func (r *Recorder) List() ([]RecordingDescriptor, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, newStatusError(ErrInternal, "recorder.list", "read recordings directory", err)
	}
	var out []RecordingDescriptor
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".meta" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			continue
		}
		var desc RecordingDescriptor
		if err := json.Unmarshal(data, &desc); err != nil {
			continue
		}
		out = append(out, desc)
	}
	return out, nil
}

// Delete removes a recording's data file and sidecar, given a
// client-supplied name that is treated as untrusted input.
func (r *Recorder) Delete(name string) error {
	base := safeName(name)
	dataPath := filepath.Join(r.dir, base)
	metaPath := dataPath + ".meta"

	if info, err := os.Stat(dataPath); err == nil {
		r.release(info.Size())
	}
	os.Remove(dataPath)
	return os.Remove(metaPath)
}

// IQRecorder appends raw interleaved complex float32 little-endian samples
// to a single file, with a JSON sidecar describing the capture.
type IQRecorder struct {
	rec   *Recorder
	mu    sync.Mutex
	path  string
	file  *os.File
	enc   *zstd.Encoder
	w     io.Writer
	meta  RecordingDescriptor
	count int64
}

// StartIQRecording opens a new .iq file under the recorder's directory.
func (r *Recorder) StartIQRecording(centerHz uint64, sampleRate uint32) (*IQRecorder, error) {
	name := time.Now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString() + ".iq"
	path := filepath.Join(r.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, newStatusError(ErrInternal, "recorder.iq.start", "create iq file", err)
	}

	iq := &IQRecorder{
		rec:  r,
		path: path,
		file: f,
		meta: RecordingDescriptor{
			FormatVersion: recordingFormatVersion,
			Format:        RecordingFormatIQ,
			Compression:   r.compression,
			SampleRate:    sampleRate,
			CenterHz:      centerHz,
			StartedAt:     time.Now(),
		},
	}
	if r.compression == CompressionZstd {
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, newStatusError(ErrInternal, "recorder.iq.start", "init zstd encoder", err)
		}
		iq.enc = enc
		iq.w = enc
	} else {
		iq.w = bufio.NewWriter(f)
	}
	return iq, nil
}

// WriteBlock appends one SampleBlock's I/Q pairs, interleaved, little-endian
// float32. Fails with StorageExhausted rather than writing past budget.
func (iq *IQRecorder) WriteBlock(blk SampleBlock) error {
	n := len(blk.I)
	size := int64(n) * 8
	if err := iq.rec.reserve(size); err != nil {
		return err
	}
	iq.mu.Lock()
	defer iq.mu.Unlock()

	buf := make([]byte, size)
	for k := 0; k < n; k++ {
		binary.LittleEndian.PutUint32(buf[k*8:], math.Float32bits(blk.I[k]))
		binary.LittleEndian.PutUint32(buf[k*8+4:], math.Float32bits(blk.Q[k]))
	}
	if _, err := iq.w.Write(buf); err != nil {
		iq.rec.release(size)
		return newStatusError(ErrInternal, "recorder.iq.write", "write iq samples", err)
	}
	iq.meta.ByteCount += size
	iq.meta.FrameCount++
	return nil
}

// Close flushes and finalizes the recording, writing its JSON sidecar.
func (iq *IQRecorder) Close() error {
	iq.mu.Lock()
	defer iq.mu.Unlock()
	if bw, ok := iq.w.(*bufio.Writer); ok {
		bw.Flush()
	}
	if iq.enc != nil {
		iq.enc.Close()
	}
	iq.file.Close()
	iq.meta.ClosedAt = time.Now()
	return writeSidecar(iq.path, iq.meta)
}

// SpectrumRecorder writes length-prefixed spectrum frame records.
type SpectrumRecorder struct {
	rec   *Recorder
	mu    sync.Mutex
	path  string
	file  *os.File
	enc   *zstd.Encoder
	w     io.Writer
	meta  RecordingDescriptor
}

// StartSpectrumRecording opens a new .spec file under the recorder's
// directory, tagging the sidecar with the DSP configuration in effect so
// Playback can reproduce identical bin semantics.
func (r *Recorder) StartSpectrumRecording(centerHz uint64, sampleRate uint32, dsp DSPConfig) (*SpectrumRecorder, error) {
	name := time.Now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString() + ".spec"
	path := filepath.Join(r.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, newStatusError(ErrInternal, "recorder.spectrum.start", "create spectrum file", err)
	}
	dspCopy := dsp
	sr := &SpectrumRecorder{
		rec:  r,
		path: path,
		file: f,
		meta: RecordingDescriptor{
			FormatVersion: recordingFormatVersion,
			Format:        RecordingFormatSpectrum,
			Compression:   r.compression,
			SampleRate:    sampleRate,
			CenterHz:      centerHz,
			DSP:           &dspCopy,
			StartedAt:     time.Now(),
		},
	}
	if r.compression == CompressionZstd {
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, newStatusError(ErrInternal, "recorder.spectrum.start", "init zstd encoder", err)
		}
		sr.enc = enc
		sr.w = enc
	} else {
		sr.w = bufio.NewWriter(f)
	}
	return sr, nil
}

// WriteFrame appends one framed spectrum record:
// [u32 length][u32 num_bins][f64 timestamp][f64 center_freq][f64 sample_rate][num_bins x f32]
// length counts every byte that follows the length field itself.
func (sr *SpectrumRecorder) WriteFrame(frame SpectrumFrame) error {
	numBins := len(frame.BinsDBFS)
	payloadLen := 4 + 8 + 8 + 8 + numBins*4
	total := int64(4 + payloadLen)
	if err := sr.rec.reserve(total); err != nil {
		return err
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()

	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:], uint32(payloadLen))
	binary.BigEndian.PutUint32(buf[4:], uint32(numBins))
	binary.BigEndian.PutUint64(buf[8:], math.Float64bits(float64(frame.Timestamp.UnixNano())/1e9))
	binary.BigEndian.PutUint64(buf[16:], math.Float64bits(float64(frame.CenterHz)))
	binary.BigEndian.PutUint64(buf[24:], math.Float64bits(float64(frame.SampleRate)))
	for i, v := range frame.BinsDBFS {
		binary.BigEndian.PutUint32(buf[32+i*4:], math.Float32bits(v))
	}

	if _, err := sr.w.Write(buf); err != nil {
		sr.rec.release(total)
		return newStatusError(ErrInternal, "recorder.spectrum.write", "write spectrum frame", err)
	}
	sr.meta.ByteCount += total
	sr.meta.FrameCount++
	return nil
}

// Close flushes and finalizes the recording, writing its JSON sidecar.
func (sr *SpectrumRecorder) Close() error {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if bw, ok := sr.w.(*bufio.Writer); ok {
		bw.Flush()
	}
	if sr.enc != nil {
		sr.enc.Close()
	}
	sr.file.Close()
	sr.meta.ClosedAt = time.Now()
	return writeSidecar(sr.path, sr.meta)
}

func writeSidecar(dataPath string, meta RecordingDescriptor) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return newStatusError(ErrInternal, "recorder.sidecar", "marshal sidecar", err)
	}
	return os.WriteFile(dataPath+".meta", data, 0o644)
}
