package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestReconnectDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 3 * time.Second},
		{4, 4 * time.Second},
		{5, 5 * time.Second},
		{6, 5 * time.Second},
		{100, 5 * time.Second},
	}
	prev := time.Duration(0)
	for _, tt := range tests {
		got := reconnectDelay(tt.attempt)
		if got != tt.want {
			t.Errorf("reconnectDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
		if got < prev {
			t.Errorf("delays must be non-decreasing: attempt %d gave %v after %v", tt.attempt, got, prev)
		}
		prev = got
	}
}

func TestCloseDisposition(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		wantRetry bool
	}{
		{"normal closure", websocket.CloseNormalClosure, false},
		{"forbidden", CloseForbidden, false},
		{"not found", CloseNotFound, false},
		{"archived", CloseArchived, false},
		{"going away", websocket.CloseGoingAway, true},
		{"abnormal", closeCodeAbnormal, true},
		{"unknown app code", 4999, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, retry := closeDisposition(tt.code)
			if retry != tt.wantRetry {
				t.Errorf("retry = %v, want %v", retry, tt.wantRetry)
			}
			if tt.code != websocket.CloseNormalClosure && status == "" {
				t.Error("non-clean closes must carry a user-facing status")
			}
		})
	}
}

func TestCloseCode(t *testing.T) {
	if got := closeCode(&websocket.CloseError{Code: CloseArchived}); got != CloseArchived {
		t.Errorf("closeCode(CloseError 4008) = %d", got)
	}
	if got := closeCode(errors.New("dial tcp: connection refused")); got != closeCodeAbnormal {
		t.Errorf("closeCode(plain error) = %d, want abnormal", got)
	}
}
