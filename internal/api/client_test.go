package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"readshift/internal/util"
	"readshift/pkg/domain"
)

type fakeSession struct {
	token   string
	cleared int32
}

func (s *fakeSession) AccessToken() string { return s.token }

func (s *fakeSession) Clear(context.Context) error {
	atomic.AddInt32(&s.cleared, 1)
	s.token = ""
	return nil
}

func TestDoAttachesBearerTokenAndRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization header: %q", got)
		}
		if r.Header.Get(util.RequestIDHeader) == "" {
			t.Error("missing request id")
		}
		_ = json.NewEncoder(w).Encode(domain.User{ID: 7, Email: "a@b.c"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", &fakeSession{token: "tok-1"})
	user, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if user.ID != 7 || user.Email != "a@b.c" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestDoOmitsAuthForAnonymousCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.c" || body["password"] != "pw" {
			t.Errorf("unexpected body: %v", body)
		}
		_, _ = io.WriteString(w, `{"access_token":"a","refresh_token":"r","user":{"id":1}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeSession{token: "tok"})
	res, err := c.Login(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.AccessToken != "a" || res.RefreshToken != "r" || res.User.ID != 1 {
		t.Fatalf("unexpected login result: %+v", res)
	}
}

func TestAPIErrorUsesDetail(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string detail", http.StatusBadRequest, `{"detail":"Email already registered"}`, "Email already registered"},
		{"structured detail", http.StatusUnprocessableEntity, `{"detail":[{"msg":"field required"}]}`, `[{"msg":"field required"}]`},
		{"no body", http.StatusInternalServerError, ``, "500 Internal Server Error"},
		{"non json", http.StatusBadGateway, `<html>`, "502 Bad Gateway"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			err := NewClient(srv.URL, nil).Health(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != tc.status || apiErr.Message != tc.want {
				t.Fatalf("got %d %q, want %d %q", apiErr.Status, apiErr.Message, tc.status, tc.want)
			}
		})
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Could not validate credentials"}`)
	}))
	defer srv.Close()

	sess := &fakeSession{token: "expired"}
	var hooked int32
	c := NewClient(srv.URL, sess, WithUnauthorized(func() { atomic.AddInt32(&hooked, 1) }))
	_, err := c.ListBooks(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if sess.cleared != 1 || hooked != 1 {
		t.Fatalf("cleared=%d hooked=%d, want 1 and 1", sess.cleared, hooked)
	}
	if sess.AccessToken() != "" {
		t.Fatal("token not cleared")
	}
}

func TestAnonymousAuthErrorKeepsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Incorrect email or password"}`)
	}))
	defer srv.Close()

	sess := &fakeSession{token: "still-valid"}
	_, err := NewClient(srv.URL, sess).Login(context.Background(), "a", "b")
	if StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if sess.cleared != 0 {
		t.Fatal("anonymous call must not clear the session")
	}
}

func TestIsAuthError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&APIError{Status: 401, Message: "Unauthorized"}, true},
		{&APIError{Status: 403, Message: "Not authenticated: invalid credentials"}, true},
		{&APIError{Status: 404, Message: "Book not found"}, false},
		{errors.New("HTTP 401: Unauthorized"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsAuthError(tc.err); got != tc.want {
			t.Errorf("IsAuthError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestDecodeErrorAndEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/books/1":
			_, _ = io.WriteString(w, `not json`)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeSession{token: "t"})
	if _, err := c.GetBook(context.Background(), 1); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if err := c.DeleteHighlight(context.Background(), 3); err != nil {
		t.Fatalf("empty body should succeed: %v", err)
	}
}

func TestTransportErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(url, nil).Health(context.Background())
	if err == nil {
		t.Fatal("expected transport error")
	}
	if StatusCode(err) != 0 {
		t.Fatalf("transport error should carry no status: %v", err)
	}
}

func TestUploadBookSendsMultipartAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/books/upload" {
			t.Errorf("path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("title") != "Dune" || q.Get("author") != "Herbert" || q.Has("genre") {
			t.Errorf("query: %v", q)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "dune.pdf" || string(data) != "%PDF-1.4" {
			t.Errorf("file %s %q", header.Filename, data)
		}
		_, _ = io.WriteString(w, `{"book_id":12,"title":"Dune"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeSession{token: "t"})
	res, err := c.UploadBook(context.Background(), "dune.pdf", strings.NewReader("%PDF-1.4"),
		domain.BookMeta{Title: "Dune", Author: "Herbert"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.BookIDOrZero() != 12 {
		t.Fatalf("book id: %d", res.BookIDOrZero())
	}
}

func TestHighlightWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/highlights/":
			var in map[string]any
			_ = json.NewDecoder(r.Body).Decode(&in)
			if in["highlighted_text"] != "call me" || in["chapter_index"] != float64(2) || in["note"] != nil {
				t.Errorf("create payload: %v", in)
			}
			_, _ = io.WriteString(w, `{"id":5,"highlighted_text":"call me","chapter_index":2,"color":"pink"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/highlights/book/9":
			_, _ = io.WriteString(w, `[{"id":5,"book_id":9,"highlighted_text":"call me","chapter_index":2,"color":"pink","created_at":"2024-01-02T03:04:05Z"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeSession{token: "t"})
	ctx := context.Background()
	h, err := c.CreateHighlight(ctx, HighlightInput{BookID: 9, Text: "call me", ChapterIndex: 2, Color: "pink"})
	if err != nil || h.ID != 5 {
		t.Fatalf("create: %+v %v", h, err)
	}
	list, err := c.ListHighlights(ctx, 9)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || !list[0].Matches(2, "call me", "pink") || list[0].Timestamp.Year() != 2024 {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestDecodesNaiveTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/books/1":
			_, _ = io.WriteString(w, `{"id":1,"title":"Dune","chapter_count":2,"file_size":10,"created_at":"2024-01-02T03:04:05.123456"}`)
		case "/highlights/book/1":
			_, _ = io.WriteString(w, `[{"id":5,"book_id":1,"highlighted_text":"spice","chapter_index":0,"color":"blue","created_at":"2024-01-02T03:04:05"}]`)
		case "/chat/conversations":
			_, _ = io.WriteString(w, `[{"id":3,"title":"Dune","book_id":1,"total_messages":0,"created_at":"2024-01-02T03:04:05.5","updated_at":null}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeSession{token: "t"})
	ctx := context.Background()
	book, err := c.GetBook(ctx, 1)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC)
	if !book.CreatedAt.Equal(want) {
		t.Fatalf("book created_at: %v", book.CreatedAt)
	}
	list, err := c.ListHighlights(ctx, 1)
	if err != nil {
		t.Fatalf("list highlights: %v", err)
	}
	if len(list) != 1 || list[0].Timestamp.Hour() != 3 {
		t.Fatalf("unexpected highlights: %+v", list)
	}
	convs, err := c.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].CreatedAt.IsZero() || !convs[0].UpdatedAt.IsZero() {
		t.Fatalf("unexpected conversations: %+v", convs)
	}
}

func TestWithTimeoutLeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c := NewClient("http://example.invalid", nil, WithHTTPClient(shared), WithTimeout(2*time.Second))
	if shared.Timeout != time.Minute {
		t.Fatalf("shared client timeout changed to %s", shared.Timeout)
	}
	if c.httpClient.Timeout != 2*time.Second {
		t.Fatalf("client timeout = %s", c.httpClient.Timeout)
	}
	if NewClient("http://example.invalid", nil).httpClient.Timeout != 0 {
		t.Fatal("default client should have no timeout")
	}
}
