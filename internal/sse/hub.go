package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"famcal/internal/log"
)

const (
	// keepAliveInterval is how often an idle connection gets a comment
	// line so proxies keep it open.
	keepAliveInterval = 15 * time.Second

	// sendBufferSize bounds the per-client queue; a client that cannot
	// drain it counts as a failed write and is pruned.
	sendBufferSize = 8
)

// Envelope types understood by the display page.
const (
	TypeConnected = "connected"
	TypeReload    = "reload"
)

// Envelope is the JSON message pushed to display clients.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// NewEnvelope builds an envelope of the given type stamped with the
// current time.
func NewEnvelope(typ string) Envelope {
	return Envelope{Type: typ, Timestamp: time.Now().Format(time.RFC3339)}
}

// Client is one connected display. Send must not block indefinitely; a
// returned error marks the client dead and it will be pruned.
type Client interface {
	Send(env Envelope) error
}

// Hub owns the set of connected display clients and fans reload signals
// out to them. All methods are safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	clients map[Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[Client]struct{})}
}

func (h *Hub) Register(c Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends env to every connected client and returns how many were
// reached. It iterates a snapshot of the set and prunes failed clients
// only after the pass completes, so the set is never mutated mid-iteration.
func (h *Hub) Broadcast(env Envelope) int {
	h.mu.Lock()
	snapshot := make([]Client, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	var failed []Client
	reached := 0
	for _, c := range snapshot {
		if err := c.Send(env); err != nil {
			log.Warn("sse send failed; pruning client", "reason", err.Error())
			failed = append(failed, c)
			continue
		}
		reached++
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, c := range failed {
			delete(h.clients, c)
		}
		h.mu.Unlock()
	}

	return reached
}

// streamClient adapts one SSE response to the Client interface.
type streamClient struct {
	ch chan Envelope
}

func (c *streamClient) Send(env Envelope) error {
	select {
	case c.ch <- env:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// ServeHTTP attaches the request as an SSE display connection: it sends a
// "connected" envelope immediately, keep-alive comments while idle, and
// every broadcast envelope until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client := &streamClient{ch: make(chan Envelope, sendBufferSize)}
	h.Register(client)
	defer h.Unregister(client)

	log.Info("sse client connected", "remote", r.RemoteAddr, "clients", h.Count())
	defer log.Info("sse client disconnected", "remote", r.RemoteAddr)

	if err := writeEvent(w, NewEnvelope(TypeConnected)); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case env := <-client.ch:
			if err := writeEvent(w, env); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
