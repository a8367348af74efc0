package main

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 65536,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server glues the Hub, Coordinator, and rate limiters to an HTTP mux: one
// endpoint upgrades to a WebSocket command+broadcast connection per
// client.
type Server struct {
	coord       *Coordinator
	hub         *Hub
	cfg         ServerConfig
	cmdLimiters *CommandRateLimiters
	connLimiter *IPConnectionRateLimiter
}

// NewServer wires a Server from its dependencies; call Handler to mount it.
func NewServer(coord *Coordinator, hub *Hub, cfg ServerConfig) *Server {
	return &Server{
		coord:       coord,
		hub:         hub,
		cfg:         cfg,
		cmdLimiters: NewCommandRateLimiters(cfg.CmdRateLimit),
		connLimiter: NewIPConnectionRateLimiter(cfg.ConnRateLimit),
	}
}

// clientIP extracts the source IP, honoring X-Forwarded-For only from a
// configured trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if s.cfg.IsTrustedProxy(host) {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			return fwd
		}
	}
	return host
}

// HandleWebSocket upgrades the connection, registers the client with the
// Hub, publishes an initial status snapshot, and runs the per-connection
// read loop until it errors or the client disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := s.clientIP(r)
	if !s.connLimiter.AllowConnection(ip) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}

	client := s.hub.Add(conn)
	defer func() {
		s.hub.Remove(client)
		s.cmdLimiters.Remove(client.id)
		client.Close(nil)
	}()

	client.SendTextEvent(mustJSON(s.coord.Status()))

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if !s.cmdLimiters.Allow(client.id) {
			client.SendTextEvent(mustJSON(ErrorMessage{
				Type: "error", Kind: ErrBusy.String(), Op: "server.rate_limit", Error: "command rate limit exceeded",
			}))
			continue
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			client.SendTextEvent(mustJSON(ErrorMessage{
				Type: "error", Kind: ErrProtocol.String(), Op: "server.decode", Error: "malformed command JSON",
			}))
			continue
		}

		s.dispatchAndReply(ctx, client, cmd)
	}
}

func (s *Server) dispatchAndReply(ctx context.Context, client *Client, cmd Command) {
	result, err := s.coord.Dispatch(ctx, cmd)
	if err != nil {
		se, ok := err.(*StatusError)
		if !ok {
			se = newStatusError(ErrInternal, "server.dispatch", "", err)
		}
		client.SendTextEvent(mustJSON(ErrorMessage{Type: "error", Kind: se.Kind.String(), Op: se.Op, Error: se.Error()}))
		return
	}
	if result != nil {
		client.SendTextEvent(mustJSON(result))
	} else {
		client.SendTextEvent(mustJSON(s.coord.Status()))
	}
}

// Handler returns the HTTP mux serving the WebSocket command surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	return mux
}
