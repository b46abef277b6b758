package chat

import (
	"fmt"
	"time"

	"readshift/pkg/domain"
)

// ChatMessage is a message as shown, with its markdown rendered to HTML.
type ChatMessage struct {
	Role        string
	Content     string
	HTML        string
	CreatedAt   time.Time
	Placeholder bool
}

type NoticeLevel string

const (
	NoticeError   NoticeLevel = "error"
	NoticeSuccess NoticeLevel = "success"
)

// Notice is a transient message for the user.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// Snapshot is the chat screen state.
type Snapshot struct {
	State         State
	Books         []domain.Book
	Conversations []domain.Conversation
	Current       *domain.Conversation
	// BookTitle is the title of the book the current conversation is about.
	BookTitle    string
	Messages     []ChatMessage
	Notices      []Notice
	InputEnabled bool
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:         c.state,
		Books:         append([]domain.Book(nil), c.books...),
		Conversations: append([]domain.Conversation(nil), c.conversations...),
		Messages:      append([]ChatMessage(nil), c.messages...),
		Notices:       append([]Notice(nil), c.notices...),
	}
	for i := range c.conversations {
		if c.conversations[i].ID == c.current {
			conv := c.conversations[i]
			s.Current = &conv
			for _, b := range c.books {
				if b.ID == conv.BookID {
					s.BookTitle = b.Title
				}
			}
		}
	}
	s.InputEnabled = c.current != 0 && (c.state == StateConversationSelected || c.state == StateIdle)
	return s
}

// FormatRelative renders a conversation date the way the sidebar does.
func FormatRelative(t, now time.Time) string {
	days := int(now.Sub(t).Hours() / 24)
	switch {
	case days <= 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	}
	return t.Local().Format("2006-01-02")
}
