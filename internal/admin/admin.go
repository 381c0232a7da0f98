// Package admin is the client for the superuser panel API. Every
// endpoint here requires a superuser account; the server answers 403
// for anyone else and the CLI refuses to even try.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/arichat-ai/arichat/internal/auth"
)

// Doer issues authenticated API calls. auth.Session satisfies this.
type Doer interface {
	Do(ctx context.Context, method, path string, body any) auth.Result
}

// Client talks to the /adminpanel/ endpoints.
type Client struct {
	d Doer
}

func NewClient(d Doer) *Client {
	return &Client{d: d}
}

// ── Users ────────────────────────────────────────────────────────────────────

// AccountStatus is the lockout summary embedded in a user row.
type AccountStatus struct {
	IsActive       bool       `json:"is_active"`
	IsLocked       bool       `json:"is_locked"`
	FailedAttempts int        `json:"failed_attempts"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login"`
}

// SecurityInfo mirrors the per-user security record.
type SecurityInfo struct {
	EmailVerified    bool   `json:"email_verified"`
	PhoneVerified    bool   `json:"phone_verified"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	LastLoginIP      string `json:"last_login_ip"`
}

// User is one row of the admin user listing.
type User struct {
	ID            int64          `json:"id"`
	Email         string         `json:"email"`
	FullName      string         `json:"full_name"`
	FirstName     string         `json:"first_name"`
	LastName      string         `json:"last_name"`
	PhoneNumber   string         `json:"phone_number"`
	IsActive      bool           `json:"is_active"`
	IsStaff       bool           `json:"is_staff"`
	Roles         []string       `json:"roles"`
	CreatedAt     time.Time      `json:"created_at"`
	AccountStatus *AccountStatus `json:"account_status"`
	Security      *SecurityInfo  `json:"security_info"`
}

// SecurityPatch carries the writable security fields. Nil pointers are
// omitted so a partial PATCH touches only what the caller set.
type SecurityPatch struct {
	IsLocked              *bool `json:"is_locked,omitempty"`
	FailedLoginAttempts   *int  `json:"failed_login_attempts,omitempty"`
	RequirePasswordChange *bool `json:"require_password_change,omitempty"`
	TwoFactorEnabled      *bool `json:"two_factor_enabled,omitempty"`
	LoginNotifications    *bool `json:"login_notifications,omitempty"`
}

// ResetPasswordRequest sets a new password on a user's behalf.
type ResetPasswordRequest struct {
	Password      string `json:"password"`
	SendEmail     bool   `json:"send_email"`
	RequireChange bool   `json:"require_change"`
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	return list[User](ctx, c, "users", "/adminpanel/users/")
}

func (c *Client) User(ctx context.Context, id int64) (*User, error) {
	res := c.d.Do(ctx, http.MethodGet, fmt.Sprintf("/adminpanel/users/%d/", id), nil)
	if !res.OK {
		return nil, resultErr("user", res)
	}
	var u User
	if err := res.Decode(&u); err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	return &u, nil
}

// ToggleActive flips the user's active flag and returns the new value.
func (c *Client) ToggleActive(ctx context.Context, id int64) (bool, error) {
	res := c.d.Do(ctx, http.MethodPost, fmt.Sprintf("/adminpanel/users/%d/toggle_active/", id), nil)
	if !res.OK {
		return false, resultErr("toggle active", res)
	}
	var out struct {
		IsActive bool `json:"is_active"`
	}
	if err := res.Decode(&out); err != nil {
		return false, fmt.Errorf("toggle active: %w", err)
	}
	return out.IsActive, nil
}

// ResetPassword replaces the user's password. EmailSent in the reply
// tells whether the notification went out.
func (c *Client) ResetPassword(ctx context.Context, id int64, req ResetPasswordRequest) (emailSent bool, err error) {
	res := c.d.Do(ctx, http.MethodPost, fmt.Sprintf("/adminpanel/users/%d/reset_password/", id), req)
	if !res.OK {
		return false, resultErr("reset password", res)
	}
	var out struct {
		EmailSent bool `json:"email_sent"`
	}
	if err := res.Decode(&out); err != nil {
		return false, nil
	}
	return out.EmailSent, nil
}

// UpdateSecurity partially updates the user's security record.
func (c *Client) UpdateSecurity(ctx context.Context, id int64, patch SecurityPatch) error {
	res := c.d.Do(ctx, http.MethodPatch, fmt.Sprintf("/adminpanel/users/%d/security/", id), patch)
	if !res.OK {
		return resultErr("update security", res)
	}
	return nil
}

// DeleteUser removes an account. The server refuses to delete
// superusers.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	res := c.d.Do(ctx, http.MethodDelete, fmt.Sprintf("/adminpanel/users/%d/", id), nil)
	if !res.OK {
		return resultErr("delete user", res)
	}
	return nil
}

// ── Chats and messages ───────────────────────────────────────────────────────

// Chat is one conversation as the panel sees it, across all users.
type Chat struct {
	ID           int64     `json:"id"`
	User         string    `json:"user"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IsArchived   bool      `json:"is_archived"`
	MessageCount int       `json:"message_count"`
	Messages     []Message `json:"messages,omitempty"`
}

// Message is the trimmed message shape the panel exposes.
type Message struct {
	ID           json.Number `json:"id"`
	Role         string      `json:"role"`
	Content      string      `json:"content"`
	CreatedAt    time.Time   `json:"created_at"`
	TokensUsed   json.Number `json:"tokens_used"`
	ResponseTime json.Number `json:"response_time"`
}

func (c *Client) Chats(ctx context.Context) ([]Chat, error) {
	return list[Chat](ctx, c, "chats", "/adminpanel/chats/")
}

// Chat fetches one conversation including its messages.
func (c *Client) Chat(ctx context.Context, id int64) (*Chat, error) {
	res := c.d.Do(ctx, http.MethodGet, fmt.Sprintf("/adminpanel/chats/%d/", id), nil)
	if !res.OK {
		return nil, resultErr("chat", res)
	}
	var ch Chat
	if err := res.Decode(&ch); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return &ch, nil
}

func (c *Client) Messages(ctx context.Context) ([]Message, error) {
	return list[Message](ctx, c, "messages", "/adminpanel/messages/")
}

// ── Logs ─────────────────────────────────────────────────────────────────────

// ErrorLog is one captured server-side error.
type ErrorLog struct {
	ID          int64     `json:"id"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	Traceback   string    `json:"traceback"`
	RequestPath string    `json:"request_path"`
	Method      string    `json:"method"`
	IPAddress   string    `json:"ip_address"`
	LoggerName  string    `json:"logger_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// EmailLog is one outbound email record.
type EmailLog struct {
	ID           int64      `json:"id"`
	Subject      string     `json:"subject"`
	ToEmail      string     `json:"to_email"`
	FromEmail    string     `json:"from_email"`
	TemplateName string     `json:"template_name"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at"`
}

// EmailLogFilter narrows the email log listing. Zero values are
// omitted from the query string.
type EmailLogFilter struct {
	UserID int64
	Email  string
	Status string
}

func (f EmailLogFilter) query() string {
	q := url.Values{}
	if f.UserID != 0 {
		q.Set("user_id", fmt.Sprint(f.UserID))
	}
	if f.Email != "" {
		q.Set("email", f.Email)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) ErrorLogs(ctx context.Context) ([]ErrorLog, error) {
	return list[ErrorLog](ctx, c, "error logs", "/adminpanel/error-logs/")
}

func (c *Client) EmailLogs(ctx context.Context, filter EmailLogFilter) ([]EmailLog, error) {
	return list[EmailLog](ctx, c, "email logs", "/adminpanel/email-logs/"+filter.query())
}

// ── Outbound email ───────────────────────────────────────────────────────────

// SendEmailRequest queues an email to a set of users.
type SendEmailRequest struct {
	RecipientIDs []int64 `json:"recipient_ids"`
	Subject      string  `json:"subject"`
	Message      string  `json:"message"`
	TemplateName string  `json:"template_name,omitempty"`
}

func (c *Client) SendEmail(ctx context.Context, req SendEmailRequest) error {
	if len(req.RecipientIDs) == 0 {
		return fmt.Errorf("send email: at least one recipient required")
	}
	res := c.d.Do(ctx, http.MethodPost, "/adminpanel/send-email/", req)
	if !res.OK {
		return resultErr("send email", res)
	}
	return nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// list accepts both a bare JSON array and the paginated {"results": []}
// wrapper, same as the chat listings.
func list[T any](ctx context.Context, c *Client, op, path string) ([]T, error) {
	res := c.d.Do(ctx, http.MethodGet, path, nil)
	if !res.OK {
		return nil, resultErr(op, res)
	}
	if len(res.Data) == 0 {
		return nil, nil
	}
	var items []T
	if err := res.Decode(&items); err == nil {
		return items, nil
	}
	var page struct {
		Results []T `json:"results"`
	}
	if err := res.Decode(&page); err == nil {
		return page.Results, nil
	}
	return nil, fmt.Errorf("%s: unexpected response shape", op)
}

func resultErr(op string, res auth.Result) error {
	if res.Err != "" {
		return fmt.Errorf("%s: %s", op, res.Err)
	}
	return fmt.Errorf("%s: status %d", op, res.Status)
}
