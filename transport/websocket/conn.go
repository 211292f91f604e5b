package websocket

import (
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/mcp-training/randompick/picker"
)

var (
	// ErrUnsupportedFrame is returned for inbound binary frames.
	ErrUnsupportedFrame = errors.New("binary frames are not supported")

	errWriterClosed = errors.New("connection writer closed")
)

// Handler owns one WebSocket connection and answers its options messages
// in arrival order.
type Handler struct {
	hub        *Hub
	conn       *websocket.Conn
	picker     picker.Picker
	opts       Options
	remoteAddr string

	// Responses waiting for the writer, closed by the reader on exit
	send chan []byte

	// Closed when the writer has exited
	done chan struct{}

	// Set by the reader before send is closed
	closeCode int
	closeText string
}

func newHandler(hub *Hub, conn *websocket.Conn, p picker.Picker, opts Options) *Handler {
	return &Handler{
		hub:        hub,
		conn:       conn,
		picker:     p,
		opts:       opts,
		remoteAddr: conn.RemoteAddr().String(),
		send:       make(chan []byte, opts.SendBuffer),
		done:       make(chan struct{}),
	}
}

// Run serves the connection until it closes. The writer runs on its own
// goroutine, the reader on the caller's.
func (h *Handler) Run() {
	go h.writePump()
	h.readPump()
}

// readPump reads frames one at a time and queues one response per frame
func (h *Handler) readPump() {
	defer func() {
		close(h.send)
		<-h.done
		h.conn.Close()
		h.hub.Unregister(h)
	}()

	h.conn.SetReadLimit(h.opts.ReadLimit)
	h.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	h.conn.SetPongHandler(func(string) error {
		h.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		return nil
	})

	for {
		messageType, payload, err := h.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				// gorilla has already sent 1009
				h.hub.counters.frameFaults.Add(1)
				if h.opts.Debug {
					log.Printf("Frame from %s exceeds %d bytes", h.remoteAddr, h.opts.ReadLimit)
				}
				return
			}
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.hub.counters.transportErrors.Add(1)
				log.Printf("WebSocket error from %s: %v", h.remoteAddr, err)
			}
			return
		}

		h.hub.counters.messages.Add(1)
		if err := h.handleMessage(messageType, payload); err != nil {
			h.fault(err)
			return
		}
	}
}

// handleMessage selects one option from payload and queues it for the writer
func (h *Handler) handleMessage(messageType int, payload []byte) error {
	if messageType != websocket.TextMessage {
		return ErrUnsupportedFrame
	}

	response, err := picker.Select(h.picker, payload)
	if err != nil {
		return err
	}

	select {
	case h.send <- response:
		return nil
	case <-h.done:
		return errWriterClosed
	}
}

// fault records the close status the writer sends before closing
func (h *Handler) fault(err error) {
	switch {
	case errors.Is(err, picker.ErrDecode):
		h.hub.counters.decodeFaults.Add(1)
		h.closeCode, h.closeText = websocket.CloseInvalidFramePayloadData, "options must be a JSON array"
	case errors.Is(err, picker.ErrEmptySelection):
		h.hub.counters.emptyFaults.Add(1)
		h.closeCode, h.closeText = websocket.ClosePolicyViolation, "options must not be empty"
	case errors.Is(err, ErrUnsupportedFrame):
		h.hub.counters.frameFaults.Add(1)
		h.closeCode, h.closeText = websocket.CloseUnsupportedData, "only text frames are accepted"
	default:
		h.hub.counters.transportErrors.Add(1)
		h.closeCode = websocket.CloseInternalServerErr
	}

	if h.opts.Debug {
		log.Printf("Closing connection from %s: %v", h.remoteAddr, err)
	}
}

// writePump sends queued responses in order and keeps the connection alive
func (h *Handler) writePump() {
	ticker := time.NewTicker(h.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		h.conn.Close()
		close(h.done)
	}()

	for {
		select {
		case response, ok := <-h.send:
			h.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if !ok {
				// The reader is done
				if h.closeCode != 0 {
					h.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(h.closeCode, h.closeText))
				}
				return
			}

			if err := h.conn.WriteMessage(websocket.TextMessage, response); err != nil {
				h.hub.counters.transportErrors.Add(1)
				return
			}
			h.hub.counters.selections.Add(1)

		case <-ticker.C:
			h.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shutdown closes the connection from outside the handler's goroutines.
// The going-away frame is abandoned at deadline if the writer is stuck.
func (h *Handler) shutdown(deadline time.Time) {
	h.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		deadline)
	h.conn.Close()
}
