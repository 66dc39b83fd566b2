// Package stream pushes playback frames and fleet updates to dashboard
// clients over WebSocket and accepts their control commands.
package stream

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	ws "github.com/gorilla/websocket"

	"github.com/aquintel/spillwatch/internal/access"
	"github.com/aquintel/spillwatch/internal/dispatcher"
	"github.com/aquintel/spillwatch/internal/filter"
	"github.com/aquintel/spillwatch/internal/fleet"
	"github.com/aquintel/spillwatch/internal/trajectory"
	"github.com/aquintel/spillwatch/pkg/core"
	"github.com/aquintel/spillwatch/pkg/streaming"
)

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	upgrader   ws.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a hub routing client commands through d. An empty
// allowedOrigins list, or one containing "*", accepts any origin.
func NewHub(d *dispatcher.Dispatcher, logger *slog.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		dispatcher: d,
		logger:     logger,
		clients:    make(map[*client]struct{}),
	}
	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			allowed = nil
			break
		}
	}
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP upgrades the request and starts the client's loops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn, string(access.FromRequest(r)))

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Debug("WebSocket client connected", "remote", r.RemoteAddr, "role", c.role)

	go c.writeLoop()
	go c.readLoop()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	c.stop()
	if ok {
		h.logger.Debug("WebSocket client disconnected")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every client. Clients whose buffer is full
// are disconnected.
func (h *Hub) Broadcast(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return err
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow WebSocket client", "type", msgType)
		h.remove(c)
	}
	return nil
}

// PlaybackListener returns an engine listener that pushes a playback_frame
// with the visible sample count of every trajectory in set.
func (h *Hub) PlaybackListener(set *trajectory.Set) func(core.PlaybackSnapshot) {
	return func(snap core.PlaybackSnapshot) {
		frame := streaming.PlaybackFramePayload{
			Snapshot: snap,
			Visible:  filter.VisibleCounts(set.All(), snap.Progress),
		}
		if err := h.Broadcast(streaming.TypePlaybackFrame, frame); err != nil {
			h.logger.Error("Failed to broadcast playback frame", "error", err)
		}
	}
}

// VesselsUpdated pushes a fleet refresh. It matches fleet.UpdateFunc.
func (h *Hub) VesselsUpdated(reports []core.VesselReport) {
	plottable := fleet.Plottable(reports)
	anomalous := 0
	for _, r := range plottable {
		if a, ok := r.Aggregated(); ok && a.Anomalous() {
			anomalous++
		}
	}
	payload := streaming.VesselsUpdatedPayload{
		Count:     len(reports),
		Plottable: len(plottable),
		Anomalous: anomalous,
		Reports:   reports,
	}
	if err := h.Broadcast(streaming.TypeVesselsUpdated, payload); err != nil {
		h.logger.Error("Failed to broadcast vessel update", "error", err)
	}
}

// WriteDetection pushes a finished model run to every client.
func (h *Hub) WriteDetection(d core.Detection) {
	if err := h.Broadcast(streaming.TypeDetection, d); err != nil {
		h.logger.Error("Failed to broadcast detection", "error", err)
	}
}

// Close disconnects every client and waits for their loops to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
	h.wg.Wait()
}
