package account

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"readshift/internal/api"
	"readshift/internal/session"
	"readshift/pkg/domain"
	"readshift/pkg/kv"
)

func newAccount(t *testing.T, h http.HandlerFunc) (*Account, *session.Store, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	sess, err := session.Open(context.Background(), kv.NewMemoryStore())
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return New(api.NewClient(srv.URL, sess), sess), sess, srv
}

func loginHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/login", "/auth/oauth/callback/github":
		_, _ = io.WriteString(w, `{"access_token":"acc","refresh_token":"ref","user":{"id":3,"email":"a@b.c"}}`)
	case "/auth/me":
		if r.Header.Get("Authorization") != "Bearer acc" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Could not validate credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":3,"email":"a@b.c"}`)
	case "/auth/send-verification":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "sent to " + body["email"]})
	case "/auth/verify-email":
		_, _ = io.WriteString(w, `{"message":"verified"}`)
	case "/auth/logout":
		w.WriteHeader(http.StatusInternalServerError)
	default:
		http.NotFound(w, r)
	}
}

func TestLoginSavesTokensAndMe(t *testing.T) {
	acc, sess, _ := newAccount(t, loginHandler)
	ctx := context.Background()
	user, err := acc.Login(ctx, "a@b.c", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != 3 || sess.AccessToken() != "acc" || sess.RefreshToken() != "ref" {
		t.Fatalf("unexpected state: %+v %q %q", user, sess.AccessToken(), sess.RefreshToken())
	}
	me, err := acc.Me(ctx)
	if err != nil || me.Email != "a@b.c" {
		t.Fatalf("me: %+v %v", me, err)
	}
	res, err := acc.SendVerification(ctx)
	if err != nil || res.Message() != "sent to a@b.c" {
		t.Fatalf("send verification: %v %v", res, err)
	}
}

func TestMeWithRejectedTokenLogsOut(t *testing.T) {
	acc, sess, _ := newAccount(t, loginHandler)
	ctx := context.Background()
	if err := sess.Save(ctx, "stale", "r"); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err := acc.Me(ctx)
	if !api.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if sess.LoggedIn() {
		t.Fatal("session should be cleared")
	}
	if _, err := acc.Me(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestLogoutAlwaysClears(t *testing.T) {
	acc, sess, _ := newAccount(t, loginHandler)
	ctx := context.Background()
	_ = sess.Save(ctx, "acc", "ref")
	if err := acc.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if sess.LoggedIn() {
		t.Fatal("still logged in after failed remote logout")
	}
}

func TestRegisterRequiresAllFields(t *testing.T) {
	acc, _, _ := newAccount(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := acc.Register(context.Background(), domain.Registration{FirstName: "A", Email: "a@b.c", Password: "x"})
	if !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}

func TestHandleCallbackURL(t *testing.T) {
	acc, sess, srv := newAccount(t, loginHandler)
	ctx := context.Background()

	res, err := acc.HandleCallbackURL(ctx, srv.URL+"/verify-email?token=abc")
	if err != nil || res.Kind != CallbackVerifyEmail || res.Result.Message() != "verified" {
		t.Fatalf("verify: %+v %v", res, err)
	}
	res, err = acc.HandleCallbackURL(ctx, "http://localhost:3000/oauth/callback/github?code=xyz")
	if err != nil || res.Kind != CallbackOAuth || res.User.ID != 3 {
		t.Fatalf("oauth: %+v %v", res, err)
	}
	if sess.AccessToken() != "acc" {
		t.Fatal("oauth callback must save tokens")
	}
	if _, err := acc.HandleCallbackURL(ctx, "http://localhost/other?x=1"); !errors.Is(err, ErrUnrecognizedCallback) {
		t.Fatalf("expected ErrUnrecognizedCallback, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	acc, sess, _ := newAccount(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx := context.Background()
	s := acc.Status(ctx)
	if s.LoggedIn || s.Login != "Not logged in" || s.TokenPreview != "None" || s.Backend != "Error 503" {
		t.Fatalf("unexpected status: %+v", s)
	}
	_ = sess.Save(ctx, "0123456789abcdefghijKLMN", "")
	s = acc.Status(ctx)
	if s.Login != "Logged in" || s.TokenPreview != "0123456789abcdefghij..." {
		t.Fatalf("unexpected status: %+v", s)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()
	offline := New(api.NewClient(url, sess), sess)
	if got := offline.Status(ctx).Backend; got != "Disconnected" {
		t.Fatalf("expected Disconnected, got %q", got)
	}
}
