package chat

import (
	"context"
	"fmt"
	"net/http"

	"github.com/arichat-ai/arichat/internal/auth"
)

// Doer issues authenticated API calls. auth.Session satisfies this.
type Doer interface {
	Do(ctx context.Context, method, path string, body any) auth.Result
}

// API is the REST client for conversation management.
type API struct {
	d Doer
}

func NewAPI(d Doer) *API {
	return &API{d: d}
}

// Create starts a new conversation.
func (a *API) Create(ctx context.Context) (*Conversation, error) {
	res := a.d.Do(ctx, http.MethodPost, "/chat/create/", nil)
	if !res.OK {
		return nil, resultErr("create chat", res)
	}
	var conv Conversation
	if err := res.Decode(&conv); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &conv, nil
}

// Messages fetches the ordered history of one conversation.
func (a *API) Messages(ctx context.Context, id int64) ([]Message, error) {
	res := a.d.Do(ctx, http.MethodGet, fmt.Sprintf("/chat/%d/messages/", id), nil)
	return decodeList[Message]("chat messages", res)
}

// Active lists the caller's unarchived conversations.
func (a *API) Active(ctx context.Context) ([]Conversation, error) {
	res := a.d.Do(ctx, http.MethodGet, "/chat/active/", nil)
	return decodeList[Conversation]("active chats", res)
}

// Archived lists the caller's archived conversations.
func (a *API) Archived(ctx context.Context) ([]Conversation, error) {
	res := a.d.Do(ctx, http.MethodGet, "/chat/archived/", nil)
	return decodeList[Conversation]("archived chats", res)
}

// ToggleArchive flips a conversation's archived flag.
func (a *API) ToggleArchive(ctx context.Context, id int64) (*Conversation, error) {
	res := a.d.Do(ctx, http.MethodPatch, fmt.Sprintf("/chat/%d/toggle-archive/", id), nil)
	if !res.OK {
		return nil, resultErr("toggle archive", res)
	}
	var conv Conversation
	if err := res.Decode(&conv); err != nil {
		// Some server builds reply with a bare confirmation body.
		return nil, nil
	}
	return &conv, nil
}

// Delete permanently removes a conversation.
func (a *API) Delete(ctx context.Context, id int64) error {
	res := a.d.Do(ctx, http.MethodDelete, fmt.Sprintf("/chat/%d/delete/", id), nil)
	if !res.OK {
		return resultErr("delete chat", res)
	}
	return nil
}

// decodeList accepts both a bare JSON array and the paginated
// {"results": [...]} wrapper.
func decodeList[T any](op string, res auth.Result) ([]T, error) {
	if !res.OK {
		return nil, resultErr(op, res)
	}
	if len(res.Data) == 0 {
		return nil, nil
	}
	var list []T
	if err := res.Decode(&list); err == nil {
		return list, nil
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
