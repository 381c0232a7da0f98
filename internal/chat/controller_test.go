package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// staticTokens is a TokenSource returning a fixed token.
type staticTokens struct{ tok string }

func (s staticTokens) GetAccessToken(context.Context) string { return s.tok }

// fakeConn is an in-memory Conn driven by the test.
type fakeConn struct {
	inbound chan any // []byte frames or read errors

	mu        sync.Mutex
	sent      [][]byte
	closed    bool
	closeCode int
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan any, 16)}
}

func (f *fakeConn) push(frame string) { f.inbound <- []byte(frame) }
func (f *fakeConn) fail(err error)    { f.inbound <- err }

func (f *fakeConn) ReadMessage() ([]byte, error) {
	switch v := (<-f.inbound).(type) {
	case []byte:
		return v, nil
	case error:
		return nil, v
	default:
		return nil, errors.New("connection torn down")
	}
}

func (f *fakeConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close(code int, reason string) error {
	f.mu.Lock()
	already := f.closed
	f.closed = true
	if !already {
		f.closeCode = code
	}
	f.mu.Unlock()
	if !already {
		// A locally closed socket ends its reader with a plain error,
		// never a *websocket.CloseError, matching the gorilla adapter.
		f.inbound <- errors.New("use of closed network connection")
	}
	return nil
}

func (f *fakeConn) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, b := range f.sent {
		out[i] = string(b)
	}
	return out
}

func (f *fakeConn) closedWith() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode
}

// fakeTransport records dials and hands out fakeConns.
type fakeTransport struct {
	mu      sync.Mutex
	dialErr error
	conns   []*fakeConn
	urls    []string
}

func (tr *fakeTransport) Dial(_ context.Context, url string) (Conn, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.urls = append(tr.urls, url)
	if tr.dialErr != nil {
		return nil, tr.dialErr
	}
	c := newFakeConn()
	tr.conns = append(tr.conns, c)
	return c, nil
}

func (tr *fakeTransport) dialCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.urls)
}

func (tr *fakeTransport) last() *fakeConn {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.conns) == 0 {
		return nil
	}
	return tr.conns[len(tr.conns)-1]
}

func newTestController(tr *fakeTransport) *Controller {
	c := NewController(ControllerOptions{
		Tokens:      staticTokens{tok: "tok"},
		HTTPBaseURL: "http://localhost:8000/api",
		Transport:   tr,
		Logger:      zerolog.Nop(),
	})
	c.delayFn = func(int) time.Duration { return time.Millisecond }
	return c
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectOpensSocket(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr)
	defer c.Close()

	c.Connect(3)
	if !c.Connected() {
		t.Fatal("expected connected after dial")
	}
	if got := tr.urls[0]; got != "ws://localhost:8000/ws/chat/3/?token=tok" {
		t.Errorf("dialed %q", got)
	}
}

func TestConnectWithoutToken(t *testing.T) {
	tr := &fakeTransport{}
	c := NewController(ControllerOptions{
		Tokens:      staticTokens{tok: ""},
		HTTPBaseURL: "http://localhost:8000/api",
		Transport:   tr,
		Logger:      zerolog.Nop(),
	})
	defer c.Close()

	c.Connect(3)
	if c.Connected() {
		t.Error("must not connect without a token")
	}
	if tr.dialCount() != 0 {
		t.Errorf("dial attempted %d times, want 0", tr.dialCount())
	}
	if !strings.Contains(c.Status(), "Authentication required") {
		t.Errorf("status = %q", c.Status())
	}
}

// At most one open socket; switching conversations closes the
// previous socket with a normal closure.
func TestConnectionExclusivity(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr)
	defer c.Close()

	c.Connect(1)
	first := tr.last()
	c.Connect(2)

	closed, code := first.closedWith()
	if !closed {
		t.Fatal("first socket must be closed when the second opens")
	}
	if code != websocket.CloseNormalClosure {
		t.Errorf("first socket closed with %d, want 1000", code)
	}
	if !c.Connected() {
		t.Error("second socket should be open")
	}
	if tr.dialCount() != 2 {
		t.Errorf("dial count = %d, want 2", tr.dialCount())
	}
	if !strings.Contains(tr.urls[1], "/ws/chat/2/") {
		t.Errorf("second dial url = %q", tr.urls[1])
	}
}

// Switching conversations tears down the old socket without treating
// its teardown as a connection loss.
func TestSupersedeSchedulesNoReconnect(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr)
	c.delayFn = func(int) time.Duration { return 5 * time.Millisecond }
	defer c.Close()

	c.Connect(1)
	c.Connect(2)
	if n := tr.dialCount(); n != 2 {
		t.Fatalf("dial count = %d, want 2", n)
	}
	time.Sleep(50 * time.Millisecond)
	if n := tr.dialCount(); n != 2 {
		t.Errorf("dial count = %d, want 2 (superseding must not re-dial)", n)
	}
	if !c.Connected() {
		t.Error("second socket must stay open")
	}
	if got := c.Status(); got != "" {
		t.Errorf("status = %q, want empty after a clean switch", got)
	}
}

// Repeated failures stop after 5 reconnect attempts.
func TestReconnectBound(t *testing.T) {
	tr := &fakeTransport{dialErr: errors.New("connection refused")}
	c := newTestController(tr)
	defer c.Close()

	c.Connect(1)
	// Initial dial + 5 scheduled retries.
	waitFor(t, "reconnect attempts to exhaust", func() bool { return tr.dialCount() == 6 })
	time.Sleep(20 * time.Millisecond)
	if n := tr.dialCount(); n != 6 {
		t.Errorf("dial count = %d, want exactly 6 (1 initial + 5 retries)", n)
	}
	if !strings.Contains(c.Status(), "Giving up") {
		t.Errorf("status = %q", c.Status())
	}
}

// The reconnect budget is restored by a successful open.
func TestReconnectBudgetResetsOnOpen(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr)
	defer c.Close()

	c.Connect(1)
	for i := 0; i < 3; i++ {
		tr.last().fail(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})
		n := i + 2
		waitFor(t, "reconnect", func() bool { return tr.dialCount() == n && c.Connected() })
	}

	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	if attempts != 0 {
		t.Errorf("attempts = %d after successful opens, want 0", attempts)
	}
}

// Teardown cancels pending reconnects.
func TestNoReconnectAfterClose(t *testing.T) {
	tr := &fakeTransport{dialErr: errors.New("connection refused")}
	c := newTestController(tr)
	c.delayFn = func(int) time.Duration { return 50 * time.Millisecond }

	c.Connect(1)
	if tr.dialCount() != 1 {
		t.Fatalf("dial count = %d", tr.dialCount())
	}
	c.Close()
	time.Sleep(120 * time.Millisecond)
	if n := tr.dialCount(); n != 1 {
		t.Errorf("dial count after Close = %d, want 1 (no reconnect may fire)", n)
	}
}

// Send gating: nothing leaves unless the socket is open.
func TestSendGating(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr)
	defer c.Close()

	// Not connected yet: nothing leaves, status explains why.
	if c.SendMessage("hi") {
		t.Error("send must fail before connect")
	}
	if !strings.Contains(c.Status(), "not ready") {
		t.Errorf("status = %q", c.Status())
	}

	c.Connect(1)
	conn := tr.last()

	if c.SendMessage("") {
		t.Error("empty send must be rejected")
	}
	if c.SendMessage("   ") {
		t.Error("whitespace send must be rejected")
	}
	if frames := conn.sentFrames(); len(frames) != 0 {
		t.Fatalf("outbound frames = %v, want none", frames)
	}

	if !c.SendMessage("hi") {
		t.Fatal("send while open must succeed")
	}
	frames := conn.sentFrames()
	if len(frames) != 1 || frames[0] != `{"content":"hi"}` {
		t.Errorf("outbound frames = %v", frames)
	}
	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleUser || msgs[0].Content != "hi" {
		t.Errorf("transcript = %+v, want one optimistic user message", msgs)
	}
	if msgs[0].ID == "" {
		t.Error("optimistic message needs a local id")
	}
	if !c.Sending() {
		t.Error("send-in-flight flag should be set")
	}
}

// An ai_response frame appends exactly one assistant
// message.
func TestAIResponseFrame(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr)
	defer c.Close()

	c.Connect(1)
	c.SendMessage("question")
	conn := tr.last()

	conn.push(`{"type":"status","message":"Processing your message..."}`)
	waitFor(t, "typing indicator", c.Typing)

	conn.push(`{"type":"message_received","chat_id":1,"message_id":"m1"}`)
	waitFor(t, "status cleared", func() bool { return c.Status() == "" })

	conn.push(`{"type":"ai_response","data":{"content":"hello","role":"assistant"}}`)
	waitFor(t, "assistant message", func() bool { return len(c.Messages()) == 2 })

	msgs := c.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != RoleAssistant || last.Content != "hello" {
		t.Errorf("assistant message = %+v", last)
	}
	if c.Typing() {
		t.Error("typing must clear on ai_response")
	}
	if c.Sending() {
		t.Error("send-in-flight must clear on ai_response")
	}
	if c.MessageCount() != 2 {
		t.Errorf("message count = %d, want 2 (optimistic user + assistant)", c.MessageCount())
	}
}

// Close code 4008 shows the archived status and
// schedules no reconnect.
func TestArchivedCloseNoReconnect(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr)
	defer c.Close()

	c.Connect(1)
	tr.last().fail(&websocket.CloseError{Code: CloseArchived})

	waitFor(t, "disconnect", func() bool { return !c.Connected() })
	if !strings.Contains(c.Status(), "archived") {
		t.Errorf("status = %q", c.Status())
	}
	time.Sleep(20 * time.Millisecond)
	if n := tr.dialCount(); n != 1 {
		t.Errorf("dial count = %d, want 1 (no retry on 4008)", n)
	}
}

func TestErrorFrameAppendsSystemMessage(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr)
	defer c.Close()

	c.Connect(1)
	c.SendMessage("question")
	tr.last().push(`{"type":"error","message":"AI response timeout after multiple attempts."}`)

	waitFor(t, "system message", func() bool { return len(c.Messages()) == 2 })
	msgs := c.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != RoleSystem {
		t.Errorf("role = %q, want system", last.Role)
	}
	if !strings.Contains(last.Content, "timeout") {
		t.Errorf("content = %q", last.Content)
	}
	if c.Sending() {
		t.Error("send-in-flight must clear on error frame")
	}
	if !c.Connected() {
		t.Error("protocol errors are not connection-fatal")
	}
}

func TestUnparsableFrameIsIgnored(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr)
	defer c.Close()

	c.Connect(1)
	conn := tr.last()
	conn.push(`this is not json`)
	conn.push(`{"type":"ai_response","data":{"content":"ok"}}`)

	waitFor(t, "followup frame", func() bool { return len(c.Messages()) == 1 })
	if msgs := c.Messages(); msgs[0].Content != "ok" {
		t.Errorf("transcript = %+v", msgs)
	}
}

func TestTitleSuggestionEvent(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr)
	defer c.Close()

	c.Connect(1)
	tr.last().push(`{"type":"ai_response","data":{"content":"hi","ai_response_metadata":{"suggested_title":"Greetings"}}}`)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Type == EventTitle {
				if ev.Title != "Greetings" {
					t.Errorf("title = %q", ev.Title)
				}
				return
			}
		case <-deadline:
			t.Fatal("no title event received")
		}
	}
}

func TestSeedPrimesTranscript(t *testing.T) {
	c := newTestController(&fakeTransport{})
	defer c.Close()

	c.Seed([]Message{{Role: RoleUser, Content: "old"}}, &Conversation{MessageCount: 7})
	if len(c.Messages()) != 1 {
		t.Fatalf("transcript = %+v", c.Messages())
	}
	if c.MessageCount() != 7 {
		t.Errorf("message count = %d, want 7", c.MessageCount())
	}
}

func TestDeriveWSBase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:8000/api", "ws://localhost:8000"},
		{"https://ari.example.com/api", "wss://ari.example.com"},
		{"https://ari.example.com", "wss://ari.example.com"},
		{"", ""},
		{"not a url", ""},
	}
	for _, tt := range tests {
		if got := deriveWSBase(tt.in); got != tt.want {
			t.Errorf("deriveWSBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWSURLEscapesToken(t *testing.T) {
	c := NewController(ControllerOptions{
		Tokens:    staticTokens{tok: "a b+c"},
		WSBaseURL: "wss://ari.example.com",
		Logger:    zerolog.Nop(),
	})
	defer c.Close()
	got := c.wsURL(9, "a b+c")
	if got != "wss://ari.example.com/ws/chat/9/?token=a+b%2Bc" {
		t.Errorf("wsURL = %q", got)
	}
}
