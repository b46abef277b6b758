package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Highlight colors understood by the reading service.
const (
	ColorYellow = "yellow"
	ColorGreen  = "green"
	ColorBlue   = "blue"
	ColorPink   = "pink"
)

// Colors lists the highlight colors in display order.
var Colors = []string{ColorYellow, ColorGreen, ColorBlue, ColorPink}

// ValidColor reports whether c is a known highlight color.
func ValidColor(c string) bool {
	for _, known := range Colors {
		if c == known {
			return true
		}
	}
	return false
}

// Time is a timestamp as the reading service sends it. The backend writes
// naive datetimes without an offset; those are read as UTC.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// At wraps t.
func At(t time.Time) Time {
	return Time{Time: t}
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", raw)
}

type Profile struct {
	PreferredTone   string `json:"preferred_tone"`
	PreferredPerson string `json:"preferred_person"`
	ReadingGoal     string `json:"reading_goal"`
	Role            string `json:"role"`
	LearningStyle   string `json:"learning_style"`
}

type User struct {
	ID            int64     `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	IsVerified    bool      `json:"is_verified"`
	IsActive      bool      `json:"is_active"`
	OAuthProvider string    `json:"oauth_provider,omitempty"`
	CreatedAt     Time      `json:"created_at"`
	Profile       *Profile  `json:"profile,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Registration struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type Book struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author,omitempty"`
	Genre        string    `json:"genre,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	PageCount    int       `json:"page_count,omitempty"`
	TotalPages   int       `json:"total_pages,omitempty"`
	ChapterCount int       `json:"chapter_count"`
	FileSize     int64     `json:"file_size"`
	FilePath     string    `json:"file_path,omitempty"`
	CreatedAt    Time      `json:"created_at"`
}

// BookMeta carries the optional fields sent with an upload.
type BookMeta struct {
	Title  string
	Author string
	Genre  string
	Tags   string
}

type BookStats struct {
	TotalBooks    int `json:"total_books"`
	TotalPages    int `json:"total_pages"`
	TotalChapters int `json:"total_chapters"`
	TotalWords    int `json:"total_words"`
}

// Extraction is the backend's answer to a text extraction request.
type Extraction struct {
	BookID       int64  `json:"book_id,omitempty"`
	Message      string `json:"message,omitempty"`
	ChapterCount int    `json:"chapter_count,omitempty"`
	TotalPages   int    `json:"total_pages,omitempty"`
	Status       string `json:"status,omitempty"`
}

// Chapter is one unit of extracted text. A zero PageStart means the
// backend did not report page bounds.
type Chapter struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	RawText   string `json:"raw_text"`
	PageStart int    `json:"page_start,omitempty"`
	PageEnd   int    `json:"page_end,omitempty"`
	WordCount int    `json:"word_count"`
}

// Highlight is the client-side record of a highlighted span. Pending marks
// a record that has not reached the backend yet.
type Highlight struct {
	ID           int64     `json:"id,omitempty"`
	ChapterIndex int       `json:"chapterIndex"`
	Text         string    `json:"text"`
	Color        string    `json:"color"`
	Note         string    `json:"note,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Pending      bool      `json:"pending,omitempty"`
}

// Matches reports whether h covers the same span as the given triple.
func (h Highlight) Matches(chapterIndex int, text, color string) bool {
	return h.ChapterIndex == chapterIndex && h.Text == text && h.Color == color
}

type Bookmark struct {
	ID           int64     `json:"id"`
	BookID       int64     `json:"book_id"`
	ChapterID    int64     `json:"chapter_id,omitempty"`
	Title        string    `json:"title"`
	ChapterIndex int       `json:"chapter_index"`
	Position     int       `json:"position"`
	CreatedAt    Time      `json:"created_at"`
}

type Conversation struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	BookID        int64     `json:"book_id"`
	TotalMessages int       `json:"total_messages"`
	CreatedAt     Time      `json:"created_at"`
	UpdatedAt     Time      `json:"updated_at"`
}

type Message struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt Time      `json:"created_at"`
}

// ChatRequest is the payload of a chat message.
type ChatRequest struct {
	Message         string            `json:"message"`
	MessageType     string            `json:"message_type,omitempty"`
	Personalization map[string]string `json:"personalization_settings,omitempty"`
}

type ChatReply struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}
