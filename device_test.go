package main

import (
	"context"
	"testing"
	"time"
)

func TestNewDeviceSourceDispatchesByKind(t *testing.T) {
	src, err := NewDeviceSource(DeviceConfig{Kind: "synthetic", SampleRate: 1_000_000, BlockSize: 64})
	if err != nil {
		t.Fatalf("NewDeviceSource(synthetic) error = %v", err)
	}
	if _, ok := src.(*SyntheticSource); !ok {
		t.Fatalf("NewDeviceSource(synthetic) returned %T, want *SyntheticSource", src)
	}

	src, err = NewDeviceSource(DeviceConfig{Kind: "", SampleRate: 1_000_000, BlockSize: 64})
	if err != nil {
		t.Fatalf("NewDeviceSource(\"\") error = %v", err)
	}
	if _, ok := src.(*SyntheticSource); !ok {
		t.Fatalf("NewDeviceSource(\"\") returned %T, want *SyntheticSource (default)", src)
	}
}

func TestNewDeviceSourceRejectsUnknownKind(t *testing.T) {
	_, err := NewDeviceSource(DeviceConfig{Kind: "bogus"})
	if err == nil {
		t.Fatal("NewDeviceSource(bogus) want error")
	}
	se, ok := err.(*StatusError)
	if !ok || se.Kind != ErrInvalidConfig {
		t.Fatalf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestSyntheticSourceProducesBlocksOfConfiguredSize(t *testing.T) {
	src := NewSyntheticSource(1_000_000, 64, 100_000_000)
	bridge := NewSampleBridge(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := src.Start(ctx, bridge); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	type popResult struct {
		blk SampleBlock
		ok  bool
	}
	resCh := make(chan popResult, 1)
	go func() {
		blk, ok := bridge.Pop()
		resCh <- popResult{blk, ok}
	}()

	select {
	case res := <-resCh:
		if !res.ok {
			t.Fatal("Pop() ok = false, want a delivered block")
		}
		if len(res.blk.I) != 64 || len(res.blk.Q) != 64 {
			t.Fatalf("block len(I)=%d len(Q)=%d, want 64/64", len(res.blk.I), len(res.blk.Q))
		}
		if res.blk.CenterHz != 100_000_000 {
			t.Fatalf("block CenterHz = %d, want 100000000", res.blk.CenterHz)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SyntheticSource's first block")
	}

	src.Stop()
}

func TestSyntheticSourceRetuneChangesCenterHz(t *testing.T) {
	src := NewSyntheticSource(1_000_000, 64, 100_000_000)
	if err := src.Retune(200_000_000); err != nil {
		t.Fatalf("Retune() error = %v", err)
	}
	if src.centerHz != 200_000_000 {
		t.Fatalf("centerHz after Retune = %d, want 200000000", src.centerHz)
	}
}
