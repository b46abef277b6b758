// Package chat is the conversation screen: conversations about a book and
// the message exchange inside one.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"readshift/internal/api"
	"readshift/internal/library"
	"readshift/internal/render"
	"readshift/internal/util"
	"readshift/pkg/domain"
)

type State string

const (
	StateLoggedOut            State = "logged-out"
	StateNoConversation       State = "no-conversation"
	StateConversationSelected State = "conversation-selected"
	StateSending              State = "sending"
	StateIdle                 State = "idle"
)

// PlaceholderText is shown while waiting for a reply.
const PlaceholderText = "Thinking..."

var (
	ErrNotLoggedIn  = errors.New("not logged in")
	ErrBookNotFound = errors.New("book not found")
)

type Backend interface {
	ListBooks(ctx context.Context) (api.BookList, error)
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	CreateConversation(ctx context.Context, bookID int64) (domain.Conversation, error)
	RenameConversation(ctx context.Context, id int64, title string) error
	DeleteConversation(ctx context.Context, id int64) error
	ListMessages(ctx context.Context, conversationID int64) ([]domain.Message, error)
	SendMessage(ctx context.Context, conversationID int64, req domain.ChatRequest) (domain.ChatReply, error)
}

type Session interface {
	LoggedIn() bool
}

// SendOptions personalizes a message.
type SendOptions struct {
	MessageType string
	Tone        string
}

// Controller owns the chat screen state. Observers run outside its lock.
type Controller struct {
	backend  Backend
	session  Session
	handoff  *library.Handoff
	markdown *render.Markdown
	now      func() time.Time

	mu            sync.Mutex
	state         State
	books         []domain.Book
	conversations []domain.Conversation
	current       int64
	messages      []ChatMessage
	notices       []Notice
	observer      func(Snapshot)
}

func New(backend Backend, session Session, handoff *library.Handoff) *Controller {
	return &Controller{
		backend:  backend,
		session:  session,
		handoff:  handoff,
		markdown: render.NewMarkdown(),
		now:      time.Now,
		state:    StateNoConversation,
		books:    []domain.Book{},
	}
}

func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

// Init loads books and conversations, then starts a conversation for a
// book handed over by the library, if any.
func (c *Controller) Init(ctx context.Context) error {
	if !c.session.LoggedIn() {
		c.setState(StateLoggedOut)
		c.publish()
		return ErrNotLoggedIn
	}
	c.clearNotices()

	list, err := c.backend.ListBooks(ctx)
	c.mu.Lock()
	if err != nil {
		c.books = []domain.Book{}
	} else {
		c.books = list.Books
	}
	c.mu.Unlock()
	if err != nil && c.fail(ctx, err, "Failed to load books") {
		return err
	}
	if err := c.loadConversations(ctx); err != nil && c.isLoggedOut() {
		return err
	}

	if c.handoff != nil {
		bookID, ok, err := c.handoff.Take(ctx)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("read chat handoff failed", "err", err)
		}
		if ok {
			if _, err := c.Create(ctx, bookID); err != nil && c.isLoggedOut() {
				return err
			}
			return nil
		}
	}
	c.publish()
	return nil
}

// Select opens a conversation and loads its messages. Ignored while a
// message is being sent.
func (c *Controller) Select(ctx context.Context, id int64) error {
	c.mu.Lock()
	if c.state == StateSending || c.state == StateLoggedOut {
		c.mu.Unlock()
		return nil
	}
	c.current = id
	c.state = StateConversationSelected
	c.messages = nil
	c.notices = nil
	c.mu.Unlock()

	msgs, err := c.backend.ListMessages(ctx, id)
	if err != nil {
		if c.isCurrent(id) || api.IsAuthError(err) {
			c.fail(ctx, err, "Failed to load messages")
		}
		c.publish()
		return err
	}
	history := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, c.message(m.Role, m.Content, m.CreatedAt.Time))
	}
	c.mu.Lock()
	// Another conversation was opened meanwhile.
	if c.current != id {
		c.mu.Unlock()
		return nil
	}
	// Anything already here was sent while the history loaded.
	c.messages = append(history, c.messages...)
	c.mu.Unlock()
	c.publish()
	return nil
}

// Send posts a message to the current conversation. Blank input, a missing
// conversation or a send already in flight make it a no-op.
func (c *Controller) Send(ctx context.Context, text string, opts SendOptions) error {
	text = strings.TrimSpace(text)
	c.mu.Lock()
	if text == "" || c.current == 0 || c.state == StateSending || c.state == StateLoggedOut {
		c.mu.Unlock()
		return nil
	}
	id := c.current
	c.state = StateSending
	c.notices = nil
	c.messages = append(c.messages,
		c.message("user", text, c.now()),
		ChatMessage{Role: "assistant", Content: PlaceholderText, Placeholder: true},
	)
	c.mu.Unlock()
	c.publish()

	req := domain.ChatRequest{Message: text, MessageType: opts.MessageType}
	if tone := strings.TrimSpace(opts.Tone); tone != "" {
		req.Personalization = map[string]string{"tone": tone}
	}
	reply, err := c.backend.SendMessage(ctx, id, req)

	c.mu.Lock()
	if c.current != id {
		// The conversation was closed while the reply was pending.
		c.mu.Unlock()
		if api.IsAuthError(err) {
			c.fail(ctx, err, "Failed to send message")
		}
		c.publish()
		return err
	}
	c.dropPlaceholderLocked()
	c.state = StateIdle
	c.mu.Unlock()

	switch {
	case err != nil:
		c.fail(ctx, err, "Failed to send message")
	case !reply.Success:
		msg := reply.Error
		if msg == "" {
			msg = "Unknown error"
		}
		c.notify(NoticeError, "Failed to get response: "+msg)
	default:
		c.mu.Lock()
		c.messages = append(c.messages, c.message("assistant", reply.Response, c.now()))
		c.mu.Unlock()
	}
	c.publish()
	return err
}

// Create starts a conversation about a known book and selects it.
func (c *Controller) Create(ctx context.Context, bookID int64) (domain.Conversation, error) {
	if !c.knowsBook(bookID) {
		c.notify(NoticeError, "Book not found")
		c.publish()
		return domain.Conversation{}, ErrBookNotFound
	}
	conv, err := c.backend.CreateConversation(ctx, bookID)
	if err != nil {
		c.fail(ctx, err, "Failed to create new conversation")
		c.publish()
		return domain.Conversation{}, err
	}
	if err := c.loadConversations(ctx); err != nil && c.isLoggedOut() {
		return conv, err
	}
	if err := c.Select(ctx, conv.ID); err != nil {
		return conv, err
	}
	return conv, nil
}

// Rename changes a conversation title. A blank or unchanged title is a no-op.
func (c *Controller) Rename(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" || title == c.titleOf(id) {
		return nil
	}
	if err := c.backend.RenameConversation(ctx, id, title); err != nil {
		c.fail(ctx, err, "Failed to rename conversation")
		c.publish()
		return err
	}
	if err := c.loadConversations(ctx); err != nil && c.isLoggedOut() {
		return err
	}
	c.notify(NoticeSuccess, "Conversation renamed successfully")
	c.publish()
	return nil
}

// Delete removes a conversation; deleting the open one closes it.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	if err := c.backend.DeleteConversation(ctx, id); err != nil {
		c.fail(ctx, err, "Failed to delete conversation")
		c.publish()
		return err
	}
	c.mu.Lock()
	if c.current == id {
		c.current = 0
		c.messages = nil
		if c.state != StateLoggedOut {
			c.state = StateNoConversation
		}
	}
	c.mu.Unlock()
	if err := c.loadConversations(ctx); err != nil && c.isLoggedOut() {
		return err
	}
	c.notify(NoticeSuccess, "Conversation deleted successfully")
	c.publish()
	return nil
}

// Refresh reloads the conversation list.
func (c *Controller) Refresh(ctx context.Context) error {
	err := c.loadConversations(ctx)
	c.publish()
	return err
}

func (c *Controller) loadConversations(ctx context.Context) error {
	convs, err := c.backend.ListConversations(ctx)
	if err != nil {
		c.fail(ctx, err, "Failed to load conversations")
		return err
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	c.mu.Lock()
	c.conversations = convs
	c.mu.Unlock()
	return nil
}

// fail records a notice for err and reports whether it logged the screen out.
func (c *Controller) fail(ctx context.Context, err error, notice string) bool {
	util.LoggerFromContext(ctx).Warn(strings.ToLower(notice), "err", err)
	if api.IsAuthError(err) {
		c.mu.Lock()
		c.state = StateLoggedOut
		c.current = 0
		c.messages = nil
		c.mu.Unlock()
		return true
	}
	c.notify(NoticeError, notice)
	return false
}

func (c *Controller) message(role, content string, at time.Time) ChatMessage {
	m := ChatMessage{Role: role, Content: content, CreatedAt: at}
	if out, err := c.markdown.Render(content); err == nil {
		m.HTML = out
	}
	return m
}

func (c *Controller) dropPlaceholderLocked() {
	out := c.messages[:0]
	for _, m := range c.messages {
		if !m.Placeholder {
			out = append(out, m)
		}
	}
	c.messages = out
}

func (c *Controller) isCurrent(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == id
}

func (c *Controller) knowsBook(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.books {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (c *Controller) titleOf(id int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conv := range c.conversations {
		if conv.ID == id {
			return conv.Title
		}
	}
	return ""
}

func (c *Controller) isLoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateLoggedOut
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) notify(level NoticeLevel, text string) {
	c.mu.Lock()
	c.notices = append(c.notices, Notice{Level: level, Text: text})
	c.mu.Unlock()
}

func (c *Controller) clearNotices() {
	c.mu.Lock()
	c.notices = nil
	c.mu.Unlock()
}

func (c *Controller) publish() {
	c.mu.Lock()
	fn := c.observer
	c.mu.Unlock()
	if fn != nil {
		fn(c.Snapshot())
	}
}
