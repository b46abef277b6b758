package api

import (
	"context"
	"net/http"

	"readshift/pkg/domain"
)

func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var out []domain.Conversation
	if err := c.Do(ctx, http.MethodGet, "/chat/conversations", nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateConversation starts a conversation about a book. The server picks
// the title after the first message.
func (c *Client) CreateConversation(ctx context.Context, bookID int64) (domain.Conversation, error) {
	body := map[string]int64{"book_id": bookID}
	var out domain.Conversation
	if err := c.Do(ctx, http.MethodPost, "/chat/conversations", body, true, &out); err != nil {
		return domain.Conversation{}, err
	}
	return out, nil
}

func (c *Client) RenameConversation(ctx context.Context, id int64, title string) error {
	body := map[string]string{"title": title}
	return c.Do(ctx, http.MethodPatch, idPath("/chat/conversations/%d", id), body, true, nil)
}

func (c *Client) DeleteConversation(ctx context.Context, id int64) error {
	return c.Do(ctx, http.MethodDelete, idPath("/chat/conversations/%d", id), nil, true, nil)
}

func (c *Client) ListMessages(ctx context.Context, conversationID int64) ([]domain.Message, error) {
	var out []domain.Message
	if err := c.Do(ctx, http.MethodGet, idPath("/chat/conversations/%d/messages", conversationID), nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage posts a message and returns the assistant reply. A reply with
// Success false is not an error at this level.
func (c *Client) SendMessage(ctx context.Context, conversationID int64, req domain.ChatRequest) (domain.ChatReply, error) {
	var out domain.ChatReply
	if err := c.Do(ctx, http.MethodPost, idPath("/chat/conversations/%d/message", conversationID), req, true, &out); err != nil {
		return domain.ChatReply{}, err
	}
	return out, nil
}
