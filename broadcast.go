package main

import (
	"sync"

	"github.com/gorilla/websocket"
)

// broadcastKind distinguishes the drop policy applied to a queued message.
type broadcastKind int

const (
	kindLiveSpectrum broadcastKind = iota
	kindSweepSegment
	kindTextEvent
)

// textEventQueueCap bounds how many undelivered text status/event messages
// a client can accumulate before it is disconnected for being too slow.
const textEventQueueCap = 64

// outboundMessage is one item destined for a client's write loop.
type outboundMessage struct {
	kind   broadcastKind
	binary []byte // set for kindLiveSpectrum/kindSweepSegment
	text   []byte // set for kindTextEvent
}

// Client is one connected WebSocket session's outbound side. Three drop
// policies apply depending on message kind:
//   - live spectrum frames: drop-latest, a new frame replaces any pending one
//   - sweep segments: no-drop, a slow client is disconnected rather than
//     silently skipping a segment (a gapped sweep panorama is worse than no
//     sweep at all)
//   - text status/events: queued up to a small cap, disconnected beyond it
type Client struct {
	conn *websocket.Conn
	id   uint64

	mu          sync.Mutex
	pendingLive *outboundMessage
	segmentQ    []outboundMessage
	textQ       []outboundMessage
	closed      bool

	wake chan struct{}
	done chan struct{}
}

// NewClient wraps an upgraded WebSocket connection with its own bounded
// outbound queues and starts its write loop.
func NewClient(id uint64, conn *websocket.Conn) *Client {
	c := &Client{
		conn: conn,
		id:   id,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Client) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// SendLiveSpectrum replaces any not-yet-sent live spectrum frame; the
// client only ever sees the freshest one.
func (c *Client) SendLiveSpectrum(payload []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pendingLive = &outboundMessage{kind: kindLiveSpectrum, binary: payload}
	c.mu.Unlock()
	c.notify()
}

// SendSweepSegment enqueues a segment without dropping it. If the queue is
// already over capacity the client is disconnected instead of silently
// skipping a segment, since a gapped panorama misleads the client more
// than a clean disconnect does.
func (c *Client) SendSweepSegment(payload []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.segmentQ = append(c.segmentQ, outboundMessage{kind: kindSweepSegment, binary: payload})
	overflow := len(c.segmentQ) > textEventQueueCap
	c.mu.Unlock()
	if overflow {
		c.Close(newStatusError(ErrSlowClient, "broadcast.segment", "sweep segment queue overflow", nil))
		return
	}
	c.notify()
}

// SendTextEvent enqueues a status/event JSON message, dropping the client
// if its text queue is already saturated.
func (c *Client) SendTextEvent(payload []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if len(c.textQ) >= textEventQueueCap {
		c.mu.Unlock()
		c.Close(newStatusError(ErrSlowClient, "broadcast.text", "text event queue overflow", nil))
		return
	}
	c.textQ = append(c.textQ, outboundMessage{kind: kindTextEvent, text: payload})
	c.mu.Unlock()
	c.notify()
}

// Close marks the client closed and tears down its connection. err is
// informational only; callers in this package don't currently surface it
// beyond a future logging hook.
func (c *Client) Close(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	c.conn.Close()
}

func (c *Client) drain() []outboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []outboundMessage
	if c.pendingLive != nil {
		out = append(out, *c.pendingLive)
		c.pendingLive = nil
	}
	if len(c.segmentQ) > 0 {
		out = append(out, c.segmentQ...)
		c.segmentQ = nil
	}
	if len(c.textQ) > 0 {
		out = append(out, c.textQ...)
		c.textQ = nil
	}
	return out
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
			for _, msg := range c.drain() {
				var err error
				switch msg.kind {
				case kindTextEvent:
					err = c.conn.WriteMessage(websocket.TextMessage, msg.text)
				default:
					err = c.conn.WriteMessage(websocket.BinaryMessage, msg.binary)
				}
				if err != nil {
					c.Close(err)
					return
				}
			}
		}
	}
}

// Hub fans live spectrum frames, sweep segments, and text events out to
// every connected client, applying each client's own drop policy.
type Hub struct {
	mu      sync.Mutex
	clients map[uint64]*Client
	nextID  uint64
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uint64]*Client)}
}

// Add registers a new client connection and returns its handle.
func (h *Hub) Add(conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	c := NewClient(h.nextID, conn)
	h.clients[c.id] = c
	return c
}

// Remove drops a client from the fan-out set (it must already be closed).
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) BroadcastLiveSpectrum(payload []byte) {
	for _, c := range h.snapshot() {
		c.SendLiveSpectrum(payload)
	}
}

func (h *Hub) BroadcastSweepSegment(payload []byte) {
	for _, c := range h.snapshot() {
		c.SendSweepSegment(payload)
	}
}

func (h *Hub) BroadcastText(payload []byte) {
	for _, c := range h.snapshot() {
		c.SendTextEvent(payload)
	}
}
