// Package session keeps the two auth tokens the client holds between runs.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"readshift/internal/util"
	"readshift/pkg/kv"
)

// Storage keys, shared with every other reader of the store.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// ErrNotLoggedIn is returned by operations that need an access token.
var ErrNotLoggedIn = errors.New("not logged in")

// Store holds the tokens read from kv when it was opened. Changes made by
// another process are not observed until Reload.
type Store struct {
	kv kv.Store

	mu      sync.RWMutex
	access  string
	refresh string
}

// Open reads both tokens eagerly.
func Open(ctx context.Context, store kv.Store) (*Store, error) {
	if store == nil {
		return nil, errors.New("session: kv store is required")
	}
	s := &Store{kv: store}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads both tokens from storage.
func (s *Store) Reload(ctx context.Context) error {
	access, _, err := kv.GetString(ctx, s.kv, AccessTokenKey)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}
	refresh, _, err := kv.GetString(ctx, s.kv, RefreshTokenKey)
	if err != nil {
		return fmt.Errorf("read refresh token: %w", err)
	}
	s.mu.Lock()
	s.access, s.refresh = access, refresh
	s.mu.Unlock()
	return nil
}

// Save persists both tokens. An empty refresh token removes the stored one.
func (s *Store) Save(ctx context.Context, access, refresh string) error {
	access = strings.TrimSpace(access)
	if access == "" {
		return errors.New("session: access token is required")
	}
	if err := s.kv.Set(ctx, AccessTokenKey, []byte(access)); err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	refresh = strings.TrimSpace(refresh)
	if refresh != "" {
		if err := s.kv.Set(ctx, RefreshTokenKey, []byte(refresh)); err != nil {
			return fmt.Errorf("save refresh token: %w", err)
		}
	} else if err := s.kv.Delete(ctx, RefreshTokenKey); err != nil {
		return fmt.Errorf("drop refresh token: %w", err)
	}
	s.mu.Lock()
	s.access, s.refresh = access, refresh
	s.mu.Unlock()
	return nil
}

// Clear forgets both tokens, in memory first so a storage failure still
// leaves this process logged out.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.access, s.refresh = "", ""
	s.mu.Unlock()
	return errors.Join(
		s.kv.Delete(ctx, AccessTokenKey),
		s.kv.Delete(ctx, RefreshTokenKey),
	)
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// LoggedIn reports whether an access token is present. Expiry is not checked.
func (s *Store) LoggedIn() bool {
	return s.AccessToken() != ""
}

// Claims are the display-only fields of a JWT access token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Claims decodes the access token without verifying it. ok is false when
// there is no token or it is not a JWT.
func (s *Store) Claims() (Claims, bool) {
	access := s.AccessToken()
	if access == "" {
		return Claims{}, false
	}
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(access, &rc); err != nil {
		return Claims{}, false
	}
	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, true
}

// Token returns the session as an oauth2 token, nil when logged out.
func (s *Store) Token() *oauth2.Token {
	access := s.AccessToken()
	if access == "" {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken(),
	}
	if c, ok := s.Claims(); ok {
		tok.Expiry = c.ExpiresAt
	}
	return tok
}

// Preview is a shortened access token safe to print.
func (s *Store) Preview() string {
	return util.Preview(s.AccessToken(), 20)
}
