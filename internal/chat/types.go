// Package chat provides the conversation API client and the WebSocket
// connection controller for live conversations.
package chat

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Message roles as they appear on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// FlexID decodes from a JSON number or string. Server-side messages use
// integer primary keys; optimistic local messages use generated UUIDs.
type FlexID string

func (v *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*v = FlexID(s)
	return nil
}

func (v FlexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(v))
}

// FlexInt decodes from a JSON number or a numeric string. The AI worker
// publishes counters like tokens_used as strings.
type FlexInt int64

func (v *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*v = 0
		return nil // tolerate junk, counters are advisory
	}
	*v = FlexInt(n)
	return nil
}

// FlexFloat decodes from a JSON number or a numeric string.
type FlexFloat float64

func (v *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*v = 0
		return nil
	}
	*v = FlexFloat(f)
	return nil
}

// Message is one transcript entry, either fetched over REST, received as
// an ai_response frame, or appended optimistically on send.
type Message struct {
	ID           FlexID          `json:"id,omitempty"`
	Role         string          `json:"role"`
	Content      string          `json:"content"`
	CreatedAt    time.Time       `json:"created_at"`
	Metadata     json.RawMessage `json:"ai_response_metadata,omitempty"`
	References   json.RawMessage `json:"ai_references,omitempty"`
	TokensUsed   FlexInt         `json:"tokens_used,omitempty"`
	ResponseTime FlexFloat       `json:"response_time,omitempty"`
}

// LastMessage is the preview attached to conversation listings.
type LastMessage struct {
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a server-side chat thread.
type Conversation struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActivity time.Time    `json:"last_activity"`
	IsArchived   bool         `json:"is_archived"`
	MessageCount int          `json:"message_count"`
	LastMessage  *LastMessage `json:"last_message,omitempty"`
}

// serverFrame is an inbound WebSocket frame, discriminated by Type.
type serverFrame struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// outboundFrame is the single outbound frame shape.
type outboundFrame struct {
	Content string `json:"content"`
}

// suggestedTitle extracts metadata.suggested_title from an ai_response.
// The worker sometimes double-encodes the metadata as a JSON string.
func suggestedTitle(meta json.RawMessage) string {
	if len(meta) == 0 {
		return ""
	}
	raw := meta
	var inner string
	if err := json.Unmarshal(meta, &inner); err == nil {
		raw = json.RawMessage(inner)
	}
	var body struct {
		SuggestedTitle string `json:"suggested_title"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.SuggestedTitle
}
