package main

import (
	"sync"
	"testing"
	"time"
)

func TestSampleBridgePushPopOrder(t *testing.T) {
	b := NewSampleBridge(4)
	for i := 0; i < 3; i++ {
		b.Push(SampleBlock{SeqNum: uint64(i)})
	}
	for i := 0; i < 3; i++ {
		blk, ok := b.Pop()
		if !ok {
			t.Fatalf("Pop() ok=false, want true")
		}
		if blk.SeqNum != uint64(i) {
			t.Fatalf("Pop() SeqNum = %d, want %d", blk.SeqNum, i)
		}
	}
}

func TestSampleBridgeDropOldest(t *testing.T) {
	b := NewSampleBridge(2)
	b.Push(SampleBlock{SeqNum: 1})
	b.Push(SampleBlock{SeqNum: 2})
	b.Push(SampleBlock{SeqNum: 3}) // should drop seq 1

	blk, ok := b.Pop()
	if !ok || blk.SeqNum != 2 {
		t.Fatalf("Pop() = %+v, ok=%v; want SeqNum=2", blk, ok)
	}
	blk, ok = b.Pop()
	if !ok || blk.SeqNum != 3 {
		t.Fatalf("Pop() = %+v, ok=%v; want SeqNum=3", blk, ok)
	}
	if got := b.DroppedCount(); got != 1 {
		t.Fatalf("DroppedCount() = %d, want 1", got)
	}
}

func TestSampleBridgeCloseUnblocksPop(t *testing.T) {
	b := NewSampleBridge(4)
	done := make(chan struct{})
	var ok bool
	go func() {
		_, ok = b.Pop()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop() did not return after Close()")
	}
	if ok {
		t.Fatal("Pop() ok=true after Close() with nothing queued, want false")
	}
}

func TestSampleBridgePushAfterCloseIsNoop(t *testing.T) {
	b := NewSampleBridge(2)
	b.Close()
	b.Push(SampleBlock{SeqNum: 1})
	if _, ok := b.Pop(); ok {
		t.Fatal("Pop() ok=true after Push() on a closed bridge, want false")
	}
}

func TestSampleBridgeConcurrentProducerConsumer(t *testing.T) {
	b := NewSampleBridge(8)
	const n = 500
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			b.Push(SampleBlock{SeqNum: uint64(i)})
		}
		b.Close()
	}()

	count := 0
	for {
		if _, ok := b.Pop(); !ok {
			break
		}
		count++
	}
	wg.Wait()
	if count > n {
		t.Fatalf("consumed %d blocks, more than the %d produced", count, n)
	}
}
