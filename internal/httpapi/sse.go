package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shahincodev/Sofware-AI-English/internal/otel"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

const streamKeepalive = 30 * time.Second

// frame is one server-sent event: the event name is the task event type.
type frame struct {
	event string
	data  []byte
}

// SSEHub fans task lifecycle and agent activity events out to /stream clients.
// Each client has a bounded queue; a client that falls behind misses events
// rather than stalling the engine.
type SSEHub struct {
	mu      sync.RWMutex
	clients map[chan frame]struct{}
}

func NewSSEHub() *SSEHub {
	return &SSEHub{clients: make(map[chan frame]struct{})}
}

// Subscribe registers a client queue. The returned func detaches it and may be
// called more than once.
func (h *SSEHub) Subscribe() (<-chan frame, func()) {
	ch := make(chan frame, models.DefaultSSEChannelBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	otel.AddSSEConnection()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			close(ch)
			h.mu.Unlock()
			otel.RemoveSSEConnection()
		})
	}
}

// Publish queues ev for every client. It never blocks.
func (h *SSEHub) Publish(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	otel.RecordSSEEvent(context.Background())
	f := frame{event: ev.Type, data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- f:
		default:
		}
	}
}

// Subscribers returns the number of connected streams.
func (h *SSEHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler serves GET /stream until the client goes away or the server shuts down.
func (h *SSEHub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		hdr := w.Header()
		hdr.Set("Content-Type", "text/event-stream")
		hdr.Set("Cache-Control", "no-cache")
		hdr.Set("Connection", "keep-alive")
		hdr.Set("X-Accel-Buffering", "no")

		events, leave := h.Subscribe()
		defer leave()

		writeFrame(w, frame{event: "connected", data: []byte("{}")})
		flusher.Flush()

		tick := time.NewTicker(streamKeepalive)
		defer tick.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-tick.C:
				_, _ = fmt.Fprint(w, ": keepalive\n\n")
			case f, ok := <-events:
				if !ok {
					return
				}
				writeFrame(w, f)
			}
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, f frame) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.event, f.data)
}
