package websocket

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Time allowed for the going-away frame when the hub stops. Shared by all
// connections so one stalled peer cannot hold up the others.
const shutdownWait = time.Second

// Stats is a snapshot of the hub's counters.
type Stats struct {
	Active            int64 `json:"active_connections"`
	Accepted          int64 `json:"accepted_connections"`
	HandshakeFailures int64 `json:"handshake_failures"`
	Messages          int64 `json:"messages_received"`
	Selections        int64 `json:"selections_sent"`
	DecodeFaults      int64 `json:"decode_faults"`
	EmptyFaults       int64 `json:"empty_faults"`
	FrameFaults       int64 `json:"frame_faults"`
	TransportErrors   int64 `json:"transport_errors"`
}

type counters struct {
	accepted          atomic.Int64
	handshakeFailures atomic.Int64
	messages          atomic.Int64
	selections        atomic.Int64
	decodeFaults      atomic.Int64
	emptyFaults       atomic.Int64
	frameFaults       atomic.Int64
	transportErrors   atomic.Int64
}

// Hub keeps track of live connections
type Hub struct {
	// Registered handlers, owned by the Run goroutine
	handlers map[*Handler]bool

	// Register requests from the listener
	register chan *Handler

	// Unregister requests from handlers on teardown
	unregister chan *Handler

	// Closed when Run returns
	done chan struct{}

	active   atomic.Int64
	counters counters
}

// NewHub creates a new connection hub
func NewHub() *Hub {
	return &Hub{
		handlers:   make(map[*Handler]bool),
		register:   make(chan *Handler),
		unregister: make(chan *Handler),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. When ctx ends every live connection is
// closed with a going-away status and Run returns.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case handler := <-h.register:
			h.registerHandler(handler)

		case handler := <-h.unregister:
			h.unregisterHandler(handler)

		case <-ctx.Done():
			deadline := time.Now().Add(shutdownWait)
			var wg sync.WaitGroup
			for handler := range h.handlers {
				wg.Add(1)
				go func(handler *Handler) {
					defer wg.Done()
					handler.shutdown(deadline)
				}(handler)
				delete(h.handlers, handler)
			}
			wg.Wait()
			h.active.Store(0)
			log.Printf("Hub stopped, all connections closed")
			return
		}
	}
}

// Register adds a handler. If the hub has already stopped the handler's
// connection is closed instead.
func (h *Hub) Register(handler *Handler) {
	select {
	case h.register <- handler:
	case <-h.done:
		handler.shutdown(time.Now().Add(shutdownWait))
	}
}

// Unregister removes a handler. It never blocks once the hub has stopped.
func (h *Hub) Unregister(handler *Handler) {
	select {
	case h.unregister <- handler:
	case <-h.done:
	}
}

// Count returns the number of live connections
func (h *Hub) Count() int {
	return int(h.active.Load())
}

// Stats returns a snapshot of the hub's counters
func (h *Hub) Stats() Stats {
	return Stats{
		Active:            h.active.Load(),
		Accepted:          h.counters.accepted.Load(),
		HandshakeFailures: h.counters.handshakeFailures.Load(),
		Messages:          h.counters.messages.Load(),
		Selections:        h.counters.selections.Load(),
		DecodeFaults:      h.counters.decodeFaults.Load(),
		EmptyFaults:       h.counters.emptyFaults.Load(),
		FrameFaults:       h.counters.frameFaults.Load(),
		TransportErrors:   h.counters.transportErrors.Load(),
	}
}

// registerHandler adds a handler to the registry
func (h *Hub) registerHandler(handler *Handler) {
	h.handlers[handler] = true
	h.active.Store(int64(len(h.handlers)))

	if handler.opts.Debug {
		log.Printf("Connection registered from %s (total connections: %d)",
			handler.remoteAddr, len(h.handlers))
	}
}

// unregisterHandler removes a handler from the registry
func (h *Hub) unregisterHandler(handler *Handler) {
	if _, ok := h.handlers[handler]; !ok {
		return
	}
	delete(h.handlers, handler)
	h.active.Store(int64(len(h.handlers)))

	if handler.opts.Debug {
		log.Printf("Connection unregistered from %s (remaining connections: %d)",
			handler.remoteAddr, len(h.handlers))
	}
}
