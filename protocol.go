package main

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Wire format constants, byte-for-byte as negotiated with client
// implementations. Every multi-byte field is big-endian.
const (
	protocolVersion byte = 0x02

	msgTypeSpectrum       byte = 0x01
	msgTypeSweepSegment   byte = 0x03
	msgTypeSweepPanorama  byte = 0x04

	flagPeakHold       uint16 = 0x0001
	flagSweepComplete  uint16 = 0x0002
	flagSweepRunning   uint16 = 0x0004

	frameHeaderSize          = 8
	spectrumPayloadHeaderSize = 56
	segmentPayloadHeaderSize  = 44
	panoramaPayloadHeaderSize = 40
)

// encodeFrameHeader writes the common 8-byte frame header: version, message
// type, flags, and payload length.
func encodeFrameHeader(buf *bytes.Buffer, msgType byte, flags uint16, payloadLen uint32) {
	buf.WriteByte(protocolVersion)
	buf.WriteByte(msgType)
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], flags)
	buf.Write(u16[:])
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], payloadLen)
	buf.Write(u32[:])
}

func putFloat64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func putFloat32(buf *bytes.Buffer, v float32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	buf.Write(b[:])
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

// EncodeSpectrumFrame serializes one live spectrum frame: an 8-byte frame
// header, a 56-byte spectrum header, num_bins x f32 dBFS bins, and
// optionally num_bins x f32 peak-hold bins when the frame carries them.
func EncodeSpectrumFrame(frame SpectrumFrame) []byte {
	numBins := uint32(len(frame.BinsDBFS))
	var flags uint16
	if frame.PeakDBFS != nil {
		flags |= flagPeakHold
	}

	payloadLen := uint32(spectrumPayloadHeaderSize) + numBins*4
	if frame.PeakDBFS != nil {
		payloadLen += numBins * 4
	}

	buf := new(bytes.Buffer)
	buf.Grow(frameHeaderSize + int(payloadLen))
	encodeFrameHeader(buf, msgTypeSpectrum, flags, payloadLen)

	putFloat64(buf, float64(frame.CenterHz))
	putFloat64(buf, float64(frame.SampleRate))
	putFloat64(buf, float64(frame.BandwidthHz))
	putFloat32(buf, frame.GainDB)
	putUint32(buf, uint32(frame.FFTSize))
	putUint32(buf, numBins)
	putFloat32(buf, frame.NoiseFloorDBFS)
	putFloat32(buf, frame.PeakPowerDBFS)
	putFloat32(buf, float32(frame.PeakFreqOffsetHz))
	putFloat64(buf, float64(frame.Timestamp.UnixNano())/1e9)

	for _, v := range frame.BinsDBFS {
		putFloat32(buf, v)
	}
	if frame.PeakDBFS != nil {
		for _, v := range frame.PeakDBFS {
			putFloat32(buf, v)
		}
	}
	return buf.Bytes()
}

// EncodeSweepSegment serializes one sweep segment: frame header, 44-byte
// segment header, num_bins x f32 dBFS bins.
func EncodeSweepSegment(seg SweepSegment) []byte {
	numBins := uint32(len(seg.Frame.BinsDBFS))
	half := seg.Frame.BandwidthHz / 2
	loHz := seg.Frame.CenterHz - half
	hiHz := seg.Frame.CenterHz + half

	var flags uint16
	if seg.SegmentIdx == seg.TotalSegments-1 {
		flags |= flagSweepComplete
	} else {
		flags |= flagSweepRunning
	}

	payloadLen := uint32(segmentPayloadHeaderSize) + numBins*4
	buf := new(bytes.Buffer)
	buf.Grow(frameHeaderSize + int(payloadLen))
	encodeFrameHeader(buf, msgTypeSweepSegment, flags, payloadLen)

	putUint32(buf, uint32(seg.SweepID))
	putUint16(buf, uint16(seg.SegmentIdx))
	putUint16(buf, uint16(seg.TotalSegments))
	putFloat64(buf, float64(loHz))
	putFloat64(buf, float64(hiHz))
	putFloat64(buf, float64(seg.SweepStartHz))
	putFloat64(buf, float64(seg.SweepStopHz))
	putUint32(buf, numBins)

	for _, v := range seg.Frame.BinsDBFS {
		putFloat32(buf, v)
	}
	return buf.Bytes()
}

// EncodeSweepPanorama serializes a stitched wideband panorama: frame
// header, 40-byte panorama header, num_bins x f32 dBFS bins.
func EncodeSweepPanorama(pano Panorama) []byte {
	numBins := uint32(len(pano.BinsDBFS))
	var flags uint16
	if pano.Complete {
		flags |= flagSweepComplete
	} else {
		flags |= flagSweepRunning
	}

	payloadLen := uint32(panoramaPayloadHeaderSize) + numBins*4
	buf := new(bytes.Buffer)
	buf.Grow(frameHeaderSize + int(payloadLen))
	encodeFrameHeader(buf, msgTypeSweepPanorama, flags, payloadLen)

	putUint32(buf, uint32(pano.SweepID))
	buf.WriteByte(byte(pano.Mode))
	buf.Write([]byte{0, 0, 0}) // padding
	putFloat64(buf, float64(pano.StartHz))
	putFloat64(buf, float64(pano.StopHz))
	putUint32(buf, numBins)
	putFloat32(buf, pano.DurationMs)
	putFloat64(buf, float64(pano.UpdatedAt.UnixNano())/1e9)

	for _, v := range pano.BinsDBFS {
		putFloat32(buf, v)
	}
	return buf.Bytes()
}

// FrameHeader is a decoded 8-byte frame header, the first thing read off
// the wire before dispatching on MsgType.
type FrameHeader struct {
	Version    byte
	MsgType    byte
	Flags      uint16
	PayloadLen uint32
}

// DecodeFrameHeader parses the fixed 8-byte header at the start of buf.
func DecodeFrameHeader(buf []byte) (FrameHeader, error) {
	if len(buf) < frameHeaderSize {
		return FrameHeader{}, newStatusError(ErrProtocol, "protocol.decode", "short frame header", nil)
	}
	h := FrameHeader{
		Version:    buf[0],
		MsgType:    buf[1],
		Flags:      binary.BigEndian.Uint16(buf[2:4]),
		PayloadLen: binary.BigEndian.Uint32(buf[4:8]),
	}
	if h.Version != protocolVersion {
		return FrameHeader{}, newStatusError(ErrProtocol, "protocol.decode", "unsupported frame version", nil)
	}
	return h, nil
}
