package chat

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// Application close codes assigned by the server.
const (
	CloseForbidden    = 4003
	CloseNotFound     = 4004
	CloseArchived     = 4008
	closeCodeAbnormal = -1
)

const (
	maxReconnectAttempts = 5
	reconnectStep        = 1 * time.Second
	reconnectCap         = 5 * time.Second
)

// reconnectDelay returns the backoff before reconnect attempt n
// (1-indexed): linear growth capped at 5s.
func reconnectDelay(attempt int) time.Duration {
	d := time.Duration(attempt) * reconnectStep
	if d > reconnectCap {
		d = reconnectCap
	}
	return d
}

// closeCode extracts the close code from a read error. Errors that carry
// no close frame (dial failures, dropped TCP) count as abnormal.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return closeCodeAbnormal
}

// closeDisposition maps a close code to the user-facing status and
// whether a reconnect should be scheduled. The 4xxx codes are the
// server telling us retrying cannot help.
func closeDisposition(code int) (status string, retry bool) {
	switch code {
	case websocket.CloseNormalClosure:
		return "", false
	case CloseForbidden:
		return "Access denied. Please sign in again.", false
	case CloseNotFound:
		return "Conversation not found or inaccessible.", false
	case CloseArchived:
		return "This conversation is archived. Unarchive it to continue.", false
	default:
		return "Connection lost. Reconnecting...", true
	}
}
