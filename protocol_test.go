package main

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestEncodeSpectrumFrameHeaderFields(t *testing.T) {
	frame := SpectrumFrame{
		CenterHz:   100_000_000,
		SampleRate: 2_000_000,
		FFTSize:    1024,
		BinsDBFS:   []float32{-80, -70, -60},
		Timestamp:  time.Now(),
	}
	buf := EncodeSpectrumFrame(frame)

	hdr, err := DecodeFrameHeader(buf)
	if err != nil {
		t.Fatalf("DecodeFrameHeader() error = %v", err)
	}
	if hdr.MsgType != msgTypeSpectrum {
		t.Fatalf("MsgType = %v, want %v", hdr.MsgType, msgTypeSpectrum)
	}
	if hdr.Flags != 0 {
		t.Fatalf("Flags = %v, want 0 (no peak hold)", hdr.Flags)
	}
	wantLen := uint32(spectrumPayloadHeaderSize) + 3*4
	if hdr.PayloadLen != wantLen {
		t.Fatalf("PayloadLen = %d, want %d", hdr.PayloadLen, wantLen)
	}
	if got := len(buf); got != frameHeaderSize+int(wantLen) {
		t.Fatalf("len(buf) = %d, want %d", got, frameHeaderSize+int(wantLen))
	}
}

func TestEncodeSpectrumFramePeakHoldFlag(t *testing.T) {
	frame := SpectrumFrame{
		BinsDBFS: []float32{-80},
		PeakDBFS: []float32{-70},
	}
	buf := EncodeSpectrumFrame(frame)
	hdr, err := DecodeFrameHeader(buf)
	if err != nil {
		t.Fatalf("DecodeFrameHeader() error = %v", err)
	}
	if hdr.Flags&flagPeakHold == 0 {
		t.Fatal("flagPeakHold not set despite non-nil PeakDBFS")
	}
	wantLen := uint32(spectrumPayloadHeaderSize) + 4 + 4 // one dbfs bin + one peak bin
	if hdr.PayloadLen != wantLen {
		t.Fatalf("PayloadLen = %d, want %d", hdr.PayloadLen, wantLen)
	}
}

func TestEncodeSpectrumFrameBinValuesRoundTrip(t *testing.T) {
	frame := SpectrumFrame{BinsDBFS: []float32{-81.5, -12.25}}
	buf := EncodeSpectrumFrame(frame)
	binsOffset := frameHeaderSize + spectrumPayloadHeaderSize
	got0 := math.Float32frombits(binary.BigEndian.Uint32(buf[binsOffset:]))
	got1 := math.Float32frombits(binary.BigEndian.Uint32(buf[binsOffset+4:]))
	if got0 != -81.5 || got1 != -12.25 {
		t.Fatalf("bins = %v, %v; want -81.5, -12.25", got0, got1)
	}
}

func TestEncodeSweepSegmentFlagsCompleteOnLastIndex(t *testing.T) {
	seg := SweepSegment{
		SweepID: 7, SegmentIdx: 2, TotalSegments: 3,
		Frame: SpectrumFrame{CenterHz: 1_000_000, BandwidthHz: 200_000, BinsDBFS: []float32{-50}},
	}
	buf := EncodeSweepSegment(seg)
	hdr, err := DecodeFrameHeader(buf)
	if err != nil {
		t.Fatalf("DecodeFrameHeader() error = %v", err)
	}
	if hdr.MsgType != msgTypeSweepSegment {
		t.Fatalf("MsgType = %v, want %v", hdr.MsgType, msgTypeSweepSegment)
	}
	if hdr.Flags&flagSweepComplete == 0 {
		t.Fatal("flagSweepComplete not set on the last segment index")
	}
}

func TestEncodeSweepSegmentFlagsRunningBeforeLastIndex(t *testing.T) {
	seg := SweepSegment{
		SweepID: 7, SegmentIdx: 0, TotalSegments: 3,
		Frame: SpectrumFrame{CenterHz: 1_000_000, BandwidthHz: 200_000, BinsDBFS: []float32{-50}},
	}
	buf := EncodeSweepSegment(seg)
	hdr, _ := DecodeFrameHeader(buf)
	if hdr.Flags&flagSweepRunning == 0 {
		t.Fatal("flagSweepRunning not set before the last segment index")
	}
	if hdr.Flags&flagSweepComplete != 0 {
		t.Fatal("flagSweepComplete set before the last segment index")
	}
}

func TestEncodeSweepSegmentFreqRangeFromBandwidth(t *testing.T) {
	seg := SweepSegment{
		SweepID: 1, SegmentIdx: 0, TotalSegments: 1,
		Frame: SpectrumFrame{CenterHz: 1_000_000, BandwidthHz: 200_000, BinsDBFS: []float32{-50}},
	}
	buf := EncodeSweepSegment(seg)
	payload := buf[frameHeaderSize:]
	loHz := math.Float64frombits(binary.BigEndian.Uint64(payload[8:]))
	hiHz := math.Float64frombits(binary.BigEndian.Uint64(payload[16:]))
	if loHz != 900_000 || hiHz != 1_100_000 {
		t.Fatalf("loHz,hiHz = %v,%v want 900000,1100000", loHz, hiHz)
	}
}

func TestEncodeSweepPanoramaCompleteFlag(t *testing.T) {
	pano := Panorama{SweepID: 3, StartHz: 0, StopHz: 1000, BinsDBFS: []float32{-1, -2}, Complete: true, Mode: SweepModeBandMonitor, DurationMs: 1500, UpdatedAt: time.Now()}
	buf := EncodeSweepPanorama(pano)
	hdr, err := DecodeFrameHeader(buf)
	if err != nil {
		t.Fatalf("DecodeFrameHeader() error = %v", err)
	}
	if hdr.MsgType != msgTypeSweepPanorama {
		t.Fatalf("MsgType = %v, want %v", hdr.MsgType, msgTypeSweepPanorama)
	}
	if hdr.Flags&flagSweepComplete == 0 {
		t.Fatal("flagSweepComplete not set when Panorama.Complete = true")
	}
}

func TestEncodeSweepPanoramaModeAndDuration(t *testing.T) {
	pano := Panorama{SweepID: 3, StartHz: 0, StopHz: 1000, BinsDBFS: []float32{-1}, Mode: SweepModeBandMonitor, DurationMs: 2500}
	buf := EncodeSweepPanorama(pano)
	payload := buf[frameHeaderSize:]
	if payload[4] != byte(SweepModeBandMonitor) {
		t.Fatalf("sweep_mode byte = %d, want %d", payload[4], SweepModeBandMonitor)
	}
	gotMs := math.Float32frombits(binary.BigEndian.Uint32(payload[28:]))
	if gotMs != 2500 {
		t.Fatalf("sweep_time_ms = %v, want 2500", gotMs)
	}
}

func TestEncodeSweepSegmentCarriesOverallSweepRange(t *testing.T) {
	seg := SweepSegment{
		SweepID: 1, SegmentIdx: 0, TotalSegments: 2,
		SweepStartHz: 1_000_000, SweepStopHz: 2_000_000,
		Frame: SpectrumFrame{CenterHz: 1_100_000, BandwidthHz: 200_000, BinsDBFS: []float32{-50}},
	}
	buf := EncodeSweepSegment(seg)
	payload := buf[frameHeaderSize:]
	sweepStart := math.Float64frombits(binary.BigEndian.Uint64(payload[24:]))
	sweepEnd := math.Float64frombits(binary.BigEndian.Uint64(payload[32:]))
	if sweepStart != 1_000_000 || sweepEnd != 2_000_000 {
		t.Fatalf("sweepStart,sweepEnd = %v,%v want 1000000,2000000", sweepStart, sweepEnd)
	}
}

func TestDecodeFrameHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := DecodeFrameHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("DecodeFrameHeader() on a 3-byte buffer: want error")
	}
}

func TestDecodeFrameHeaderRejectsWrongVersion(t *testing.T) {
	buf := make([]byte, frameHeaderSize)
	buf[0] = protocolVersion + 1
	if _, err := DecodeFrameHeader(buf); err == nil {
		t.Fatal("DecodeFrameHeader() with mismatched version: want error")
	}
}
