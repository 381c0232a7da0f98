package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// connState is the controller's connection lifecycle state.
type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateOpen
	stateClosing
)

// EventType discriminates controller events.
type EventType int

const (
	// EventConnected: the socket is open and ready to send.
	EventConnected EventType = iota

	// EventDisconnected: the socket closed; Status carries the reason.
	EventDisconnected

	// EventMessage: a transcript entry was appended (any role).
	EventMessage

	// EventTyping: the assistant-typing indicator changed.
	EventTyping

	// EventStatus: the transient status line changed.
	EventStatus

	// EventTitle: the server suggested a conversation title.
	EventTitle
)

// Event is one UI-observable state change emitted by the controller.
type Event struct {
	Type    EventType
	Message *Message
	Typing  bool
	Status  string
	Title   string
}

// TokenSource yields an access token valid at the moment of use.
// auth.Session satisfies this.
type TokenSource interface {
	GetAccessToken(ctx context.Context) string
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Tokens TokenSource

	// WSBaseURL is the WebSocket base ("wss://host"). Empty = derived
	// from HTTPBaseURL by upgrading the scheme and stripping the path.
	WSBaseURL   string
	HTTPBaseURL string

	// Transport overrides the socket implementation (tests).
	Transport Transport

	Logger zerolog.Logger
}

// Controller maintains at most one live WebSocket for the active
// conversation and translates the wire protocol into observable state:
// transcript, typing indicator, status line, connected flag.
type Controller struct {
	tokens    TokenSource
	transport Transport
	wsBase    string
	httpBase  string
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// delayFn computes the reconnect backoff; swapped in tests.
	delayFn func(attempt int) time.Duration

	mu             sync.Mutex
	state          connState
	conn           Conn
	gen            uint64 // connection generation, stale read loops are ignored
	conversationID int64
	attempts       int
	retryTimer     *time.Timer
	closed         bool

	messages     []Message
	typing       bool
	status       string
	connected    bool
	sending      bool
	messageCount int
	lastActivity time.Time

	events chan Event
}

// NewController creates a controller. Call Connect to open a socket and
// Close on teardown.
func NewController(opts ControllerOptions) *Controller {
	tr := opts.Transport
	if tr == nil {
		tr = &WebSocketTransport{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		tokens:    opts.Tokens,
		transport: tr,
		wsBase:    strings.TrimRight(opts.WSBaseURL, "/"),
		httpBase:  opts.HTTPBaseURL,
		log:       opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		delayFn:   reconnectDelay,
		events:    make(chan Event, 64),
	}
}

// Events is the stream of state changes. Closed by Close.
func (c *Controller) Events() <-chan Event { return c.events }

// Connect opens a socket for the given conversation, superseding any
// previous connection. The reconnect budget is reset: Connect is the
// user's explicit intent to (re)join this conversation.
func (c *Controller) Connect(conversationID int64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.conversationID = conversationID
	c.attempts = 0
	c.stopRetryLocked()
	c.mu.Unlock()

	c.dial()
}

// Seed replaces the transcript with history fetched over REST and
// primes the optimistic conversation counters.
func (c *Controller) Seed(messages []Message, conv *Conversation) {
	c.mu.Lock()
	c.messages = append([]Message(nil), messages...)
	if conv != nil {
		c.messageCount = conv.MessageCount
		c.lastActivity = conv.LastActivity
	}
	c.mu.Unlock()
}

// SendMessage sends user text over the open socket, appending a local
// user-role echo first. Nothing is queued: when the socket is not open
// the caller immediately gets a "not ready" status and no frame leaves.
func (c *Controller) SendMessage(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}

	c.mu.Lock()
	if c.closed || c.state != stateOpen || c.conn == nil {
		c.status = "Connection not ready. Please wait."
		c.emitLocked(Event{Type: EventStatus, Status: c.status})
		c.mu.Unlock()
		return false
	}
	conn := c.conn
	msg := Message{
		ID:        FlexID(uuid.NewString()),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
	c.messages = append(c.messages, msg)
	c.sending = true
	c.messageCount++
	c.lastActivity = msg.CreatedAt
	c.emitLocked(Event{Type: EventMessage, Message: &msg})
	c.mu.Unlock()

	if err := conn.WriteJSON(outboundFrame{Content: content}); err != nil {
		c.log.Warn().Err(err).Msg("websocket write failed")
		// The optimistic echo stays; failures surface in the transcript.
		c.appendSystem("Message could not be sent. " + err.Error())
		return false
	}
	return true
}

// Close cancels any pending reconnect, closes the socket with a normal
// closure code, and ends the event stream. No reconnect fires afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = stateClosing
	c.stopRetryLocked()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close(websocket.CloseNormalClosure, "client closed")
	}

	c.mu.Lock()
	c.state = stateIdle
	close(c.events)
	c.mu.Unlock()
}

// ── Observable state ─────────────────────────────────────────────────────────

// Messages returns a copy of the transcript.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Controller) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Sending reports whether a sent message is still awaiting its
// ai_response.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// MessageCount returns the optimistically maintained conversation count.
func (c *Controller) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageCount
}

// LastActivity returns the optimistically maintained activity timestamp.
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// ── Connection lifecycle ─────────────────────────────────────────────────────

// dial obtains a fresh token and opens a new socket, closing any
// previous one first so at most one connection exists per conversation.
func (c *Controller) dial() {
	token := c.tokens.GetAccessToken(c.ctx)
	if token == "" {
		c.mu.Lock()
		c.state = stateIdle
		c.status = "Authentication required. Please sign in."
		c.emitLocked(Event{Type: EventStatus, Status: c.status})
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	id := c.conversationID
	prev := c.conn
	c.conn = nil
	if prev != nil {
		// Invalidate the old read loop before its socket is torn down;
		// the teardown error it reads must not look like a connection loss.
		c.gen++
		c.stopRetryLocked()
	}
	c.state = stateConnecting
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Close(websocket.CloseNormalClosure, "reconnecting")
	}

	conn, err := c.transport.Dial(c.ctx, c.wsURL(id, token))
	if err != nil {
		c.log.Debug().Err(err).Int64("conversation", id).Msg("websocket dial failed")
		c.onClosed(0, err) // gen 0 never matches a live connection, but closed-dial handling is shared
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close(websocket.CloseNormalClosure, "client closed")
		return
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = stateOpen
	c.connected = true
	c.typing = false
	c.status = ""
	c.attempts = 0 // a successful open restores the full reconnect budget
	c.emitLocked(Event{Type: EventConnected})
	c.mu.Unlock()

	go c.readLoop(conn, gen)
}

func (c *Controller) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.onClosed(gen, err)
			return
		}
		c.dispatch(data)
	}
}

// onClosed handles a connection loss: interpret the close code, update
// observable state, and schedule a bounded reconnect when appropriate.
func (c *Controller) onClosed(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if gen != 0 && gen != c.gen {
		return // superseded connection, a newer socket owns the state
	}

	c.conn = nil
	c.connected = false
	c.typing = false
	c.state = stateIdle

	code := closeCode(err)
	status, retry := closeDisposition(code)
	c.status = status

	if retry && c.attempts < maxReconnectAttempts {
		c.attempts++
		delay := c.delayFn(c.attempts)
		c.log.Debug().Int("attempt", c.attempts).Dur("delay", delay).Msg("scheduling reconnect")
		c.retryTimer = time.AfterFunc(delay, c.dial)
	} else if retry {
		c.status = "Connection lost. Giving up after repeated attempts."
	}

	c.emitLocked(Event{Type: EventDisconnected, Status: c.status})
}

func (c *Controller) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// wsURL combines the WebSocket base, conversation id, and token.
func (c *Controller) wsURL(id int64, token string) string {
	base := c.wsBase
	if base == "" {
		base = deriveWSBase(c.httpBase)
	}
	return fmt.Sprintf("%s/ws/chat/%d/?token=%s", strings.TrimRight(base, "/"), id, url.QueryEscape(token))
}

// deriveWSBase upgrades an HTTP origin to its WebSocket counterpart,
// dropping any path (the /api prefix does not apply to sockets).
func deriveWSBase(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}

// ── Frame dispatch ───────────────────────────────────────────────────────────

// dispatch routes one inbound frame. Unparsable frames are dropped.
func (c *Controller) dispatch(data []byte) {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.log.Debug().Err(err).Msg("unparsable frame")
		return
	}

	switch frame.Type {
	case "status":
		c.mu.Lock()
		c.status = frame.Message
		c.typing = frame.Message != ""
		c.emitLocked(Event{Type: EventStatus, Status: c.status})
		c.emitLocked(Event{Type: EventTyping, Typing: c.typing})
		c.mu.Unlock()

	case "message_received":
		c.mu.Lock()
		c.status = ""
		c.emitLocked(Event{Type: EventStatus})
		c.mu.Unlock()

	case "ai_response":
		var msg Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			c.log.Debug().Err(err).Msg("malformed ai_response payload")
			return
		}
		if msg.Role == "" {
			msg.Role = RoleAssistant
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		c.mu.Lock()
		c.messages = append(c.messages, msg)
		c.typing = false
		c.status = ""
		c.sending = false
		c.messageCount++
		c.lastActivity = msg.CreatedAt
		c.emitLocked(Event{Type: EventMessage, Message: &msg})
		c.emitLocked(Event{Type: EventTyping})
		if title := suggestedTitle(msg.Metadata); title != "" {
			c.emitLocked(Event{Type: EventTitle, Title: title})
		}
		c.mu.Unlock()

	case "error":
		c.mu.Lock()
		c.typing = false
		c.sending = false
		c.status = frame.Message
		sys := Message{
			ID:        FlexID(uuid.NewString()),
			Role:      RoleSystem,
			Content:   frame.Message,
			CreatedAt: time.Now(),
		}
		c.messages = append(c.messages, sys)
		c.emitLocked(Event{Type: EventStatus, Status: c.status})
		c.emitLocked(Event{Type: EventMessage, Message: &sys})
		c.mu.Unlock()

	default:
		c.log.Debug().Str("type", frame.Type).Msg("unknown frame type")
	}
}

func (c *Controller) appendSystem(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	sys := Message{
		ID:        FlexID(uuid.NewString()),
		Role:      RoleSystem,
		Content:   text,
		CreatedAt: time.Now(),
	}
	c.messages = append(c.messages, sys)
	c.status = text
	c.emitLocked(Event{Type: EventMessage, Message: &sys})
	c.emitLocked(Event{Type: EventStatus, Status: c.status})
}

// emitLocked delivers an event without ever blocking the caller: when
// the consumer lags, the oldest buffered event is dropped. Caller must
// hold c.mu.
func (c *Controller) emitLocked(ev Event) {
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- ev:
		default:
		}
	}
}
