package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/mcp-training/randompick/config"
	"github.com/wricardo/mcp-training/randompick/picker"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Responses buffered per connection before the reader waits on the writer.
	sendBufferSize = 16
)

// Options configures every connection the Listener accepts.
type Options struct {
	ReadLimit         int64
	SendBuffer        int
	WriteWait         time.Duration
	PongWait          time.Duration
	PingPeriod        time.Duration
	AcceptSubprotocol bool
	Debug             bool
}

// DefaultOptions returns the standard keepalive and size limits.
func DefaultOptions() Options {
	return Options{
		ReadLimit:         maxMessageSize,
		SendBuffer:        sendBufferSize,
		WriteWait:         writeWait,
		PongWait:          pongWait,
		PingPeriod:        pingPeriod,
		AcceptSubprotocol: true,
	}
}

// OptionsFromConfig maps server configuration onto connection options.
func OptionsFromConfig(cfg *config.Config, debug bool) Options {
	return Options{
		ReadLimit:         cfg.ReadLimit,
		SendBuffer:        cfg.SendBuffer,
		WriteWait:         time.Duration(cfg.WriteWait),
		PongWait:          time.Duration(cfg.PongWait),
		PingPeriod:        time.Duration(cfg.PingPeriod),
		AcceptSubprotocol: cfg.AcceptSubprotocol,
		Debug:             debug,
	}
}

// Listener upgrades HTTP requests to WebSocket connections and starts one
// Handler per connection. It keeps no per-connection state.
type Listener struct {
	upgrader websocket.Upgrader
	hub      *Hub
	picker   picker.Picker
	opts     Options
}

// withDefaults fills every unset limit or timeout from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	return o
}

// NewListener creates a Listener that registers connections with hub and
// answers them with p. Zero limits and timeouts in opts take their defaults.
func NewListener(hub *Hub, p picker.Picker, opts Options) *Listener {
	return &Listener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origins are not validated
				return true
			},
		},
		hub:    hub,
		picker: p,
		opts:   opts.withDefaults(),
	}
}

// IsUpgradeRequest reports whether r asks for a WebSocket upgrade.
func IsUpgradeRequest(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// ServeHTTP completes the handshake and hands the connection to a new Handler.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !IsUpgradeRequest(r) {
		http.Error(w, "WebSocket upgrade required", http.StatusUpgradeRequired)
		return
	}

	var responseHeader http.Header
	if l.opts.AcceptSubprotocol {
		if offered := websocket.Subprotocols(r); len(offered) > 0 {
			responseHeader = http.Header{"Sec-Websocket-Protocol": {offered[0]}}
		}
	}

	// The upgrader writes the HTTP error response itself
	conn, err := l.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		l.hub.counters.handshakeFailures.Add(1)
		log.Printf("WebSocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	l.hub.counters.accepted.Add(1)
	handler := newHandler(l.hub, conn, l.picker, l.opts)
	l.hub.Register(handler)

	go handler.Run()
}
