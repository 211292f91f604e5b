package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/mcp-training/randompick/picker"
)

// firstPicker always returns the first option
type firstPicker struct{}

func (firstPicker) Pick(opts picker.Options) (json.RawMessage, error) {
	if len(opts) == 0 {
		return nil, picker.ErrEmptySelection
	}
	return opts[0], nil
}

type testServer struct {
	*httptest.Server
	hub    *Hub
	cancel context.CancelFunc
}

func newTestServer(t *testing.T, p picker.Picker, opts Options) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	server := httptest.NewServer(NewListener(hub, p, opts))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	return &testServer{Server: server, hub: hub, cancel: cancel}
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(), nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, payload string) string {
	t.Helper()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if messageType != websocket.TextMessage {
		t.Fatalf("Expected text frame, got type %d", messageType)
	}
	return string(data)
}

// expectClose sends payload and asserts the server closes with code and no data frame.
func expectClose(t *testing.T, conn *websocket.Conn, messageType int, payload string, code int) {
	t.Helper()

	if err := conn.WriteMessage(messageType, []byte(payload)); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected connection to close, got response %s", data)
	}

	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("Expected close error, got %v", err)
	}

	if closeErr.Code != code {
		t.Errorf("Expected close code %d, got %d (%s)", code, closeErr.Code, closeErr.Text)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestRockPaperScissors(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())
	conn := server.dial(t)

	valid := map[string]bool{"rock": true, "paper": true, "scissors": true}
	seen := make(map[string]int)

	for i := 0; i < 100; i++ {
		response := exchange(t, conn, `["rock","paper","scissors"]`)

		var choice string
		if err := json.Unmarshal([]byte(response), &choice); err != nil {
			t.Fatalf("Response %q is not a JSON string: %v", response, err)
		}

		if !valid[choice] {
			t.Fatalf("Unexpected choice %q", choice)
		}
		seen[choice]++
	}

	if len(seen) < 2 {
		t.Errorf("Expected independent draws over 100 messages, got %v", seen)
	}
}

func TestSelectionIsMemberOfInput(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())
	conn := server.dial(t)

	payloads := []string{
		`[1, 2.5, -3]`,
		`[{"piece":{"denomination":"Queen","color":1,"position":[7,3]},"newPosition":[3,7]}]`,
		`["dup", "dup", "dup"]`,
		`[null, true, false]`,
		`[[1,2],[3,4]]`,
	}

	for _, payload := range payloads {
		opts, err := picker.Decode([]byte(payload))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}

		response := exchange(t, conn, payload)

		var got interface{}
		if err := json.Unmarshal([]byte(response), &got); err != nil {
			t.Fatalf("Response %q is not JSON: %v", response, err)
		}

		found := false
		for _, opt := range opts {
			var want interface{}
			json.Unmarshal(opt, &want)
			if reflect.DeepEqual(want, got) {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("Response %s is not an element of %s", response, payload)
		}
	}
}

func TestResponsesKeepArrivalOrder(t *testing.T) {
	server := newTestServer(t, firstPicker{}, DefaultOptions())
	conn := server.dial(t)

	const count = 200
	for i := 0; i < count; i++ {
		payload := fmt.Sprintf(`["m%d"]`, i)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			t.Fatalf("Failed to write message %d: %v", i, err)
		}
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < count; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read response %d: %v", i, err)
		}

		want := fmt.Sprintf(`"m%d"`, i)
		if string(data) != want {
			t.Fatalf("Response %d: expected %s, got %s", i, want, data)
		}
	}
}

func TestConnectionsAreIsolated(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())

	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for c := 0; c < 8; c++ {
		conn := server.dial(t)
		wg.Add(1)
		go func(c int, conn *websocket.Conn) {
			defer wg.Done()

			payload := fmt.Sprintf(`["c%d-a","c%d-b","c%d-c"]`, c, c, c)
			prefix := fmt.Sprintf(`"c%d-`, c)
			for i := 0; i < 100; i++ {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
					errs <- err
					return
				}
				conn.SetReadDeadline(time.Now().Add(5 * time.Second))
				_, data, err := conn.ReadMessage()
				if err != nil {
					errs <- err
					return
				}
				if !strings.HasPrefix(string(data), prefix) {
					errs <- fmt.Errorf("connection %d received foreign option %s", c, data)
					return
				}
			}
		}(c, conn)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestEmptyOptionsClosesOnlyThatConnection(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())
	bystander := server.dial(t)
	faulty := server.dial(t)

	expectClose(t, faulty, websocket.TextMessage, `[]`, websocket.ClosePolicyViolation)

	if got := exchange(t, bystander, `["still","here"]`); got != `"still"` && got != `"here"` {
		t.Errorf("Bystander got unexpected response %s", got)
	}

	// The listener keeps accepting
	fresh := server.dial(t)
	if got := exchange(t, fresh, `["x"]`); got != `"x"` {
		t.Errorf("Expected \"x\", got %s", got)
	}

	waitFor(t, "empty fault counter", func() bool { return server.hub.Stats().EmptyFaults == 1 })
}

func TestMalformedOptionsClosesConnection(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())
	bystander := server.dial(t)

	payloads := []string{`"rock"`, `{"a":1}`, `null`, `[1,2`, `not json at all`, "[\"\xff\xfe\"]"}
	for _, payload := range payloads {
		conn := server.dial(t)
		expectClose(t, conn, websocket.TextMessage, payload, websocket.CloseInvalidFramePayloadData)
	}

	if got := exchange(t, bystander, `["ok"]`); got != `"ok"` {
		t.Errorf("Expected \"ok\", got %s", got)
	}

	waitFor(t, "decode fault counter", func() bool {
		return server.hub.Stats().DecodeFaults == int64(len(payloads))
	})
}

func TestBinaryFrameClosesConnection(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())
	conn := server.dial(t)

	expectClose(t, conn, websocket.BinaryMessage, `["a","b"]`, websocket.CloseUnsupportedData)
}

func TestValidMessagesBeforeFaultAreAnswered(t *testing.T) {
	server := newTestServer(t, firstPicker{}, DefaultOptions())
	conn := server.dial(t)

	conn.WriteMessage(websocket.TextMessage, []byte(`["one"]`))
	conn.WriteMessage(websocket.TextMessage, []byte(`["two"]`))
	conn.WriteMessage(websocket.TextMessage, []byte(`[]`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{`"one"`, `"two"`} {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read response: %v", err)
		}
		if string(data) != want {
			t.Errorf("Expected %s, got %s", want, data)
		}
	}

	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected close after empty options, got %s", data)
	}
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("Expected policy violation close, got %v", err)
	}
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	opts := DefaultOptions()
	opts.ReadLimit = 32
	server := newTestServer(t, picker.NewUniform(), opts)
	conn := server.dial(t)

	payload := `["` + strings.Repeat("x", 256) + `"]`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("Expected connection to close, got %s", data)
	}

	waitFor(t, "connection teardown", func() bool { return server.hub.Count() == 0 })
}

func TestAnyOriginAndSubprotocolAccepted(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())

	dialer := websocket.Dialer{Subprotocols: []string{"chess-v1", "chess-v0"}}
	header := http.Header{"Origin": {"http://somewhere-else.example"}}

	conn, _, err := dialer.Dial(server.wsURL()+"/any/path", header)
	if err != nil {
		t.Fatalf("Handshake failed: %v", err)
	}
	defer conn.Close()

	if conn.Subprotocol() != "chess-v1" {
		t.Errorf("Expected subprotocol chess-v1, got %q", conn.Subprotocol())
	}

	if got := exchange(t, conn, `["e4"]`); got != `"e4"` {
		t.Errorf("Expected \"e4\", got %s", got)
	}
}

func TestSubprotocolNotEchoedWhenDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.AcceptSubprotocol = false
	server := newTestServer(t, picker.NewUniform(), opts)

	dialer := websocket.Dialer{Subprotocols: []string{"chess-v1"}}
	conn, _, err := dialer.Dial(server.wsURL(), nil)
	if err != nil {
		t.Fatalf("Handshake failed: %v", err)
	}
	defer conn.Close()

	if conn.Subprotocol() != "" {
		t.Errorf("Expected no subprotocol, got %q", conn.Subprotocol())
	}
}

func TestPlainRequestRejected(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("Expected 426, got %d", resp.StatusCode)
	}
}

func TestBadHandshakeDoesNotAffectListener(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	// No Sec-WebSocket-Key or version

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad handshake, got %d", resp.StatusCode)
	}

	waitFor(t, "handshake failure counter", func() bool { return server.hub.Stats().HandshakeFailures == 1 })

	conn := server.dial(t)
	if got := exchange(t, conn, `["alive"]`); got != `"alive"` {
		t.Errorf("Expected \"alive\", got %s", got)
	}
}

func TestPeerCloseReleasesConnection(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())

	conn := server.dial(t)
	waitFor(t, "registration", func() bool { return server.hub.Count() == 1 })

	// Close right after sending, without reading the response
	conn.WriteMessage(websocket.TextMessage, []byte(`["a","b"]`))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, "unregistration", func() bool { return server.hub.Count() == 0 })

	other := server.dial(t)
	if got := exchange(t, other, `["next"]`); got != `"next"` {
		t.Errorf("Expected \"next\", got %s", got)
	}
}

func TestHubShutdownClosesConnections(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())

	conn := server.dial(t)
	waitFor(t, "registration", func() bool { return server.hub.Count() == 1 })

	server.cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Expected going-away close, got %v", err)
	}
}

func TestHubShutdownDoesNotWaitOnStalledPeers(t *testing.T) {
	opts := DefaultOptions()
	opts.ReadLimit = 64 << 20
	opts.WriteWait = 30 * time.Second
	server := newTestServer(t, firstPicker{}, opts)

	// Each response is far larger than the loopback socket buffers and the
	// peers never read, so every writer blocks until its write deadline.
	payload := `["` + strings.Repeat("x", 32<<20) + `"]`
	for i := 0; i < 3; i++ {
		conn := server.dial(t)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			t.Fatalf("Failed to write message: %v", err)
		}
	}

	waitFor(t, "messages", func() bool { return server.hub.Stats().Messages == 3 })
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	server.cancel()

	select {
	case <-server.hub.done:
	case <-time.After(5 * time.Second):
		t.Fatal("Hub did not stop while peers were stalled")
	}

	if elapsed := time.Since(start); elapsed > 3*shutdownWait {
		t.Errorf("Expected shutdown within %s, took %s", 3*shutdownWait, elapsed)
	}
}

func TestZeroOptionsUseDefaults(t *testing.T) {
	server := newTestServer(t, firstPicker{}, Options{})
	conn := server.dial(t)

	if got := exchange(t, conn, `["a","b"]`); got != `"a"` {
		t.Errorf("Expected \"a\", got %s", got)
	}
}

func TestStatsCountTraffic(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())
	conn := server.dial(t)

	for i := 0; i < 5; i++ {
		exchange(t, conn, `["a","b","c"]`)
	}

	waitFor(t, "selection counter", func() bool { return server.hub.Stats().Selections == 5 })

	stats := server.hub.Stats()
	if stats.Messages != 5 {
		t.Errorf("Expected 5 messages, got %d", stats.Messages)
	}
	if stats.Accepted != 1 {
		t.Errorf("Expected 1 accepted connection, got %d", stats.Accepted)
	}
	if stats.Active != 1 {
		t.Errorf("Expected 1 active connection, got %d", stats.Active)
	}
}

func TestUniformOverTheWire(t *testing.T) {
	server := newTestServer(t, picker.NewUniform(), DefaultOptions())
	conn := server.dial(t)

	const trials = 2000
	counts := make(map[string]int)
	for i := 0; i < trials; i++ {
		counts[exchange(t, conn, `["a","b","c","d"]`)]++
	}

	if len(counts) != 4 {
		t.Fatalf("Expected 4 distinct responses, got %v", counts)
	}

	// Expected 500 each, standard deviation about 19
	for option, n := range counts {
		if n < 350 || n > 650 {
			t.Errorf("Option %s selected %d times out of %d", option, n, trials)
		}
	}
}
