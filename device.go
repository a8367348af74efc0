package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/pion/rtp"
)

const soReuseport = 15 // Linux SO_REUSEPORT constant

// DeviceSource produces SampleBlocks on its own native thread, pushing them
// into a SampleBridge. It never blocks on the bridge and never holds a lock
// across a blocking I/O call.
type DeviceSource interface {
	// Start begins producing blocks into bridge at centerHz/sampleRate. It
	// returns once production has been launched (or with an error); it does
	// not wait for the first block.
	Start(ctx context.Context, bridge *SampleBridge) error
	// Retune changes center frequency for the next produced block onward.
	// Used by the Sweep Engine between steps.
	Retune(centerHz uint64) error
	SampleRate() uint32
	Stop()
}

// --- synthetic source -------------------------------------------------

// SyntheticSource generates IQ samples containing a handful of fixed tones
// plus noise, entirely in-process. This is the default Device Source: no
// external hardware or network dependency, used for local runs and tests.
type SyntheticSource struct {
	sampleRate uint32
	blockSize  int
	centerHz   uint64
	tonesHz    []float64 // offsets from centerHz
	noiseSigma float64

	seq uint64
	rng *rand.Rand

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSyntheticSource builds a generator with a small fixed constellation of
// tones spread across the configured sample rate, standing in for real
// spectral content during development and tests.
func NewSyntheticSource(sampleRate uint32, blockSize int, centerHz uint64) *SyntheticSource {
	span := float64(sampleRate) * 0.35
	return &SyntheticSource{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		centerHz:   centerHz,
		tonesHz:    []float64{-span, -span / 3, span / 5, span},
		noiseSigma: 0.05,
		rng:        rand.New(rand.NewSource(1)),
	}
}

func (s *SyntheticSource) SampleRate() uint32 { return s.sampleRate }

func (s *SyntheticSource) Retune(centerHz uint64) error {
	s.centerHz = centerHz
	return nil
}

// Stop signals the producer goroutine and blocks until it has exited, so
// the caller can safely reconfigure or restart once Stop returns.
func (s *SyntheticSource) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
	}
	s.wg.Wait()
}

func (s *SyntheticSource) Start(ctx context.Context, bridge *SampleBridge) error {
	stopCh := make(chan struct{})
	s.mu.Lock()
	s.stopCh = stopCh
	s.mu.Unlock()
	s.wg.Add(1)
	go s.run(ctx, bridge, stopCh)
	return nil
}

func (s *SyntheticSource) run(ctx context.Context, bridge *SampleBridge, stopCh chan struct{}) {
	defer s.wg.Done()
	phase := make([]float64, len(s.tonesHz))
	period := time.Duration(float64(s.blockSize) / float64(s.sampleRate) * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
		}

		iq := make([]float32, s.blockSize)
		qq := make([]float32, s.blockSize)
		dt := 1.0 / float64(s.sampleRate)
		for n := 0; n < s.blockSize; n++ {
			var re, im float64
			for ti, off := range s.tonesHz {
				w := 2 * math.Pi * off * dt
				phase[ti] += w
				amp := 0.3
				re += amp * math.Cos(phase[ti])
				im += amp * math.Sin(phase[ti])
			}
			re += s.rng.NormFloat64() * s.noiseSigma
			im += s.rng.NormFloat64() * s.noiseSigma
			iq[n] = float32(re)
			qq[n] = float32(im)
		}

		blk := SampleBlock{
			I:          iq,
			Q:          qq,
			SampleRate: s.sampleRate,
			CenterHz:   s.centerHz,
			Timestamp:  time.Now(),
			SeqNum:     s.seq,
		}
		s.seq++
		bridge.Push(blk)
	}
}

// --- network RTP source -------------------------------------------------

// RTPSource consumes IQ samples carried as RTP payloads from an upstream
// digitizer multicast group, matching the real-world wire format of a
// ka9q-radio-style front end. Each RTP packet's payload is interpreted as
// interleaved little-endian int16 I/Q pairs.
type RTPSource struct {
	sampleRate uint32
	blockSize  int
	centerHz   uint64
	group      string
	iface      string
	port       int

	conn *net.UDPConn
	seq  uint64

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRTPSource configures (but does not open) an RTP-over-multicast Device
// Source.
func NewRTPSource(sampleRate uint32, blockSize int, centerHz uint64, group, iface string, port int) *RTPSource {
	return &RTPSource{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		centerHz:   centerHz,
		group:      group,
		iface:      iface,
		port:       port,
	}
}

func (s *RTPSource) SampleRate() uint32 { return s.sampleRate }

func (s *RTPSource) Retune(centerHz uint64) error {
	s.centerHz = centerHz
	return nil
}

// Stop signals the producer goroutine, closes the socket to unblock any
// in-flight read, and waits for the goroutine to exit before returning.
func (s *RTPSource) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.stopCh = nil
	conn := s.conn
	s.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
	}
	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()
}

// Start joins the configured multicast group with SO_REUSEPORT set (so
// multiple local processes can share the feed, matching the upstream
// digitizer daemon's own listener convention) and begins decoding RTP
// packets into SampleBlocks.
func (s *RTPSource) Start(ctx context.Context, bridge *SampleBridge) error {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", s.group, s.port))
	if err != nil {
		return newStatusError(ErrDeviceUnavailable, "device.rtp.start", "resolve multicast group", err)
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			ctrlErr := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, soReuseport, 1)
			})
			if ctrlErr != nil {
				return ctrlErr
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return newStatusError(ErrDeviceUnavailable, "device.rtp.start", "listen", err)
	}
	udpConn := pc.(*net.UDPConn)

	if addr.IP.IsMulticast() {
		var iface *net.Interface
		if s.iface != "" {
			iface, err = net.InterfaceByName(s.iface)
			if err != nil {
				udpConn.Close()
				return newStatusError(ErrDeviceUnavailable, "device.rtp.start", "interface lookup", err)
			}
		}
		p := ipv4.NewPacketConn(udpConn)
		if err := p.JoinGroup(iface, &net.UDPAddr{IP: addr.IP}); err != nil {
			udpConn.Close()
			return newStatusError(ErrDeviceUnavailable, "device.rtp.start", "join multicast group", err)
		}
	}

	stopCh := make(chan struct{})
	s.mu.Lock()
	s.conn = udpConn
	s.stopCh = stopCh
	s.mu.Unlock()
	log.Printf("RTP device source listening on %s (SO_REUSEPORT)", addr)
	s.wg.Add(1)
	go s.run(ctx, bridge, stopCh)
	return nil
}

func (s *RTPSource) run(ctx context.Context, bridge *SampleBridge, stopCh chan struct{}) {
	defer s.wg.Done()
	buf := make([]byte, 65536)
	i := make([]float32, 0, s.blockSize)
	q := make([]float32, 0, s.blockSize)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			continue // timeout or transient read error, loop back to check for shutdown
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue // malformed packet, drop
		}

		payload := pkt.Payload
		for off := 0; off+4 <= len(payload); off += 4 {
			iSample := int16(uint16(payload[off]) | uint16(payload[off+1])<<8)
			qSample := int16(uint16(payload[off+2]) | uint16(payload[off+3])<<8)
			i = append(i, float32(iSample)/32768.0)
			q = append(q, float32(qSample)/32768.0)
			if len(i) == s.blockSize {
				bridge.Push(SampleBlock{
					I:          i,
					Q:          q,
					SampleRate: s.sampleRate,
					CenterHz:   s.centerHz,
					Timestamp:  time.Now(),
					SeqNum:     s.seq,
				})
				s.seq++
				i = make([]float32, 0, s.blockSize)
				q = make([]float32, 0, s.blockSize)
			}
		}
	}
}

// NewDeviceSource builds the configured Device Source variant.
func NewDeviceSource(cfg DeviceConfig) (DeviceSource, error) {
	switch cfg.Kind {
	case "rtp":
		return NewRTPSource(cfg.SampleRate, cfg.BlockSize, cfg.CenterHz, cfg.RTPGroup, cfg.RTPInterface, cfg.RTPPort), nil
	case "synthetic", "":
		return NewSyntheticSource(cfg.SampleRate, cfg.BlockSize, cfg.CenterHz), nil
	default:
		return nil, newStatusError(ErrInvalidConfig, "device.new", fmt.Sprintf("unknown device kind %q", cfg.Kind), nil)
	}
}
