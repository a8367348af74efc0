package main

import "testing"

// newBareClient builds a Client without starting its write loop or
// requiring a live websocket connection, for testing queue logic in
// isolation. Only safe so long as a test never forces an overflow path
// (those call c.conn.Close()).
func newBareClient(id uint64) *Client {
	return &Client{id: id, wake: make(chan struct{}, 1), done: make(chan struct{})}
}

func TestClientSendLiveSpectrumReplacesPending(t *testing.T) {
	c := newBareClient(1)
	c.SendLiveSpectrum([]byte("first"))
	c.SendLiveSpectrum([]byte("second"))
	out := c.drain()
	if len(out) != 1 {
		t.Fatalf("drain() returned %d messages, want 1 (latest replaces pending)", len(out))
	}
	if string(out[0].binary) != "second" {
		t.Fatalf("drain()[0].binary = %q, want %q", out[0].binary, "second")
	}
}

func TestClientSendSweepSegmentQueuesInOrder(t *testing.T) {
	c := newBareClient(2)
	c.SendSweepSegment([]byte("a"))
	c.SendSweepSegment([]byte("b"))
	c.SendSweepSegment([]byte("c"))
	out := c.drain()
	if len(out) != 3 {
		t.Fatalf("drain() returned %d messages, want 3", len(out))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(out[i].binary) != want {
			t.Fatalf("drain()[%d].binary = %q, want %q", i, out[i].binary, want)
		}
	}
}

func TestClientDrainClearsQueues(t *testing.T) {
	c := newBareClient(3)
	c.SendTextEvent([]byte(`{"type":"status"}`))
	if out := c.drain(); len(out) != 1 {
		t.Fatalf("first drain() returned %d, want 1", len(out))
	}
	if out := c.drain(); len(out) != 0 {
		t.Fatalf("second drain() returned %d, want 0 (queues already cleared)", len(out))
	}
}

func TestClientClosedClientDropsSends(t *testing.T) {
	c := newBareClient(4)
	c.closed = true
	c.SendLiveSpectrum([]byte("x"))
	c.SendSweepSegment([]byte("y"))
	c.SendTextEvent([]byte("z"))
	if out := c.drain(); len(out) != 0 {
		t.Fatalf("drain() on closed client returned %d messages, want 0", len(out))
	}
}

func TestHubRemoveDropsClient(t *testing.T) {
	h := NewHub()
	c := newBareClient(42)
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	if len(h.snapshot()) != 1 {
		t.Fatalf("snapshot() before Remove = %d clients, want 1", len(h.snapshot()))
	}
	h.Remove(c)
	if len(h.snapshot()) != 0 {
		t.Fatalf("snapshot() after Remove = %d clients, want 0", len(h.snapshot()))
	}
}
