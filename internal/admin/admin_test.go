package admin

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/arichat-ai/arichat/internal/auth"
)

type stubDoer struct {
	res    auth.Result
	method string
	path   string
	body   any
}

func (d *stubDoer) Do(_ context.Context, method, path string, body any) auth.Result {
	d.method = method
	d.path = path
	d.body = body
	return d.res
}

func ok(body string) auth.Result {
	return auth.Result{OK: true, Status: 200, Data: json.RawMessage(body)}
}

func TestUsersList(t *testing.T) {
	d := &stubDoer{res: ok(`[{
		"id": 1,
		"email": "alice@example.com",
		"full_name": "Alice A",
		"is_active": true,
		"roles": ["admin"],
		"account_status": {"is_active": true, "is_locked": false, "failed_attempts": 2},
		"security_info": {"email_verified": true}
	}]`)}
	users, err := NewClient(d).Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if d.path != "/adminpanel/users/" {
		t.Errorf("path = %s", d.path)
	}
	if len(users) != 1 {
		t.Fatalf("users = %+v", users)
	}
	u := users[0]
	if u.Email != "alice@example.com" || !u.Security.EmailVerified || u.AccountStatus.FailedAttempts != 2 {
		t.Errorf("user = %+v", u)
	}
}

func TestUsersPaginated(t *testing.T) {
	d := &stubDoer{res: ok(`{"count": 1, "results": [{"id": 2, "email": "bob@example.com"}]}`)}
	users, err := NewClient(d).Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(users) != 1 || users[0].ID != 2 {
		t.Errorf("users = %+v", users)
	}
}

func TestToggleActive(t *testing.T) {
	d := &stubDoer{res: ok(`{"status": "success", "is_active": false}`)}
	active, err := NewClient(d).ToggleActive(context.Background(), 4)
	if err != nil {
		t.Fatalf("ToggleActive: %v", err)
	}
	if d.method != "POST" || d.path != "/adminpanel/users/4/toggle_active/" {
		t.Errorf("request = %s %s", d.method, d.path)
	}
	if active {
		t.Error("expected is_active false")
	}
}

func TestResetPassword(t *testing.T) {
	d := &stubDoer{res: ok(`{"status": "success", "email_sent": true}`)}
	sent, err := NewClient(d).ResetPassword(context.Background(), 4, ResetPasswordRequest{
		Password:      "NewPassword123!",
		SendEmail:     true,
		RequireChange: true,
	})
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if !sent {
		t.Error("expected email_sent true")
	}
	req, okCast := d.body.(ResetPasswordRequest)
	if !okCast || !req.RequireChange {
		t.Errorf("body = %+v", d.body)
	}
}

func TestUpdateSecurityPartialPatch(t *testing.T) {
	unlocked := false
	d := &stubDoer{res: ok(`{}`)}
	err := NewClient(d).UpdateSecurity(context.Background(), 4, SecurityPatch{IsLocked: &unlocked})
	if err != nil {
		t.Fatalf("UpdateSecurity: %v", err)
	}
	if d.method != "PATCH" || d.path != "/adminpanel/users/4/security/" {
		t.Errorf("request = %s %s", d.method, d.path)
	}
	// Unset fields must stay out of the payload.
	data, _ := json.Marshal(d.body)
	if string(data) != `{"is_locked":false}` {
		t.Errorf("patch payload = %s", data)
	}
}

func TestDeleteUserRefused(t *testing.T) {
	d := &stubDoer{res: auth.Result{Status: 400, Err: "Superuser accounts cannot be deleted"}}
	err := NewClient(d).DeleteUser(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "Superuser") {
		t.Errorf("err = %v", err)
	}
}

func TestChatDetailIncludesMessages(t *testing.T) {
	d := &stubDoer{res: ok(`{
		"id": 7,
		"user": "alice@example.com",
		"title": "Trip planning",
		"message_count": 1,
		"messages": [{"id": 9, "role": "assistant", "content": "hi", "tokens_used": "120"}]
	}`)}
	ch, err := NewClient(d).Chat(context.Background(), 7)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(ch.Messages) != 1 || ch.Messages[0].TokensUsed.String() != "120" {
		t.Errorf("chat = %+v", ch)
	}
}

func TestEmailLogFilterQuery(t *testing.T) {
	tests := []struct {
		filter EmailLogFilter
		want   string
	}{
		{EmailLogFilter{}, ""},
		{EmailLogFilter{Status: "failed"}, "?status=failed"},
		{EmailLogFilter{UserID: 3, Status: "sent"}, "?status=sent&user_id=3"},
		{EmailLogFilter{Email: "a@b.co"}, "?email=a%40b.co"},
	}
	for _, tt := range tests {
		if got := tt.filter.query(); got != tt.want {
			t.Errorf("query(%+v) = %q, want %q", tt.filter, got, tt.want)
		}
	}
}

func TestEmailLogsWithFilter(t *testing.T) {
	d := &stubDoer{res: ok(`[{"id": 1, "to_email": "a@b.co", "status": "failed"}]`)}
	logs, err := NewClient(d).EmailLogs(context.Background(), EmailLogFilter{Status: "failed"})
	if err != nil {
		t.Fatalf("EmailLogs: %v", err)
	}
	if d.path != "/adminpanel/email-logs/?status=failed" {
		t.Errorf("path = %s", d.path)
	}
	if len(logs) != 1 || logs[0].Status != "failed" {
		t.Errorf("logs = %+v", logs)
	}
}

func TestSendEmailRequiresRecipients(t *testing.T) {
	d := &stubDoer{}
	err := NewClient(d).SendEmail(context.Background(), SendEmailRequest{Subject: "hi", Message: "x"})
	if err == nil {
		t.Fatal("expected error without recipients")
	}
	if d.path != "" {
		t.Error("no request may leave without recipients")
	}
}

func TestSendEmail(t *testing.T) {
	d := &stubDoer{res: ok(`{"status": "queued"}`)}
	err := NewClient(d).SendEmail(context.Background(), SendEmailRequest{
		RecipientIDs: []int64{1, 2},
		Subject:      "Maintenance window",
		Message:      "Back at noon.",
	})
	if err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if d.method != "POST" || d.path != "/adminpanel/send-email/" {
		t.Errorf("request = %s %s", d.method, d.path)
	}
}
