// Package creds holds the shared credential state of a client: the
// access/refresh token pair returned by login and the namespace it is
// scoped to. The pair is only ever replaced wholesale, and refresh
// round-trips are single-flight: a second goroutine hitting an expired
// token waits for the first refresh instead of issuing its own login.
package creds

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoRefreshToken is returned when a refresh is requested before any
// login populated the store.
var ErrNoRefreshToken = errors.New("refresh jwt should not be empty")

// RefreshFunc performs the login round-trip with the stored refresh
// token and returns the replacement pair.
type RefreshFunc func(ctx context.Context, refreshToken string) (access, refresh string, err error)

// Store is the credential state. The zero value is ready to use and
// means "ACL disabled": no tokens, namespace 0.
type Store struct {
	mu        sync.RWMutex // guards the fields below
	refreshMu sync.Mutex   // serializes refresh round-trips

	access    string
	refresh   string
	namespace uint64
	gen       uint64 // bumped on every replacement
}

// Snapshot returns the current pair together with the generation it
// belongs to. Callers pass the generation back to Refresh so a refresh
// that already happened in the meantime is not repeated.
func (s *Store) Snapshot() (access, refresh string, gen uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, s.refresh, s.gen
}

// HasAccessToken reports whether a login has populated the store.
func (s *Store) HasAccessToken() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access != ""
}

// Namespace returns the namespace the tokens are scoped to.
func (s *Store) Namespace() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

// Replace installs a new token pair atomically and records the
// namespace it was obtained for.
func (s *Store) Replace(access, refresh string, namespace uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
	s.namespace = namespace
	s.gen++
}

// Refresh runs fn with the stored refresh token and installs the result.
// seenGen is the generation the caller observed when its call failed;
// if another refresh already replaced the pair since then, fn is not
// invoked and the caller simply retries with the newer tokens. At most
// one fn round-trip is in flight at a time.
func (s *Store) Refresh(ctx context.Context, seenGen uint64, fn RefreshFunc) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.RLock()
	refresh := s.refresh
	ns := s.namespace
	current := s.gen
	s.mu.RUnlock()

	if current != seenGen {
		// Another caller refreshed first; reuse its result.
		return nil
	}
	if refresh == "" {
		return ErrNoRefreshToken
	}

	access, newRefresh, err := fn(ctx, refresh)
	if err != nil {
		return err
	}
	s.Replace(access, newRefresh, ns)
	return nil
}

// AccessExpiresAt peeks at the exp claim of the current access token
// without verifying the signature (the server is the verifier; the
// client only needs a hint for proactive refresh). ok is false when no
// token is stored or it does not parse as a JWT with an exp claim.
func (s *Store) AccessExpiresAt() (t time.Time, ok bool) {
	s.mu.RLock()
	access := s.access
	s.mu.RUnlock()

	if access == "" {
		return time.Time{}, false
	}
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(access, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// AccessLooksExpired reports whether the access token's exp claim is in
// the past (with a small skew allowance). Tokens without a readable exp
// claim are never considered expired locally; the server still has the
// final say.
func (s *Store) AccessLooksExpired(now time.Time) bool {
	exp, ok := s.AccessExpiresAt()
	if !ok {
		return false
	}
	const skew = 5 * time.Second
	return now.After(exp.Add(skew))
}
