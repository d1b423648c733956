// Package auth resolves the caller of an HTTP request to a user, from either an
// HS256 bearer token or a server-side session cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"qmark.app/internal/obs"
	"qmark.app/internal/secret"
	"qmark.app/internal/store"
)

// SessionCookie is the cookie carrying the raw session token.
const SessionCookie = "qmark_session"

const (
	defaultTokenTTL         = time.Hour
	defaultSessionTTL       = 7 * 24 * time.Hour
	defaultLastSeenInterval = time.Minute
	lastSeenTimeout         = 2 * time.Second
	sessionTokenBytes       = 32
)

// Store is the slice of the data store the gate reads. It never writes
// business data.
type Store interface {
	GetUser(ctx context.Context, id string) (store.User, bool, error)
	GetSession(ctx context.Context, id string) (store.Session, bool, error)
	CreateSession(ctx context.Context, s store.Session) (store.Session, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

// Gate authenticates requests. It is safe for concurrent use.
type Gate struct {
	store      Store
	signer     *Signer
	tokenTTL   time.Duration
	sessionTTL time.Duration
	now        func() time.Time
	log        *zap.Logger

	seenEvery time.Duration
	seenMu    sync.Mutex
	seenAt    map[string]time.Time
	seenSwept time.Time
	inflight  sync.WaitGroup
}

// Option configures a Gate.
type Option func(*Gate) error

func WithTokenTTL(d time.Duration) Option {
	return func(g *Gate) error {
		if d <= 0 {
			return errors.New("token ttl must be positive")
		}
		g.tokenTTL = d
		return nil
	}
}

func WithSessionTTL(d time.Duration) Option {
	return func(g *Gate) error {
		if d <= 0 {
			return errors.New("session ttl must be positive")
		}
		g.sessionTTL = d
		return nil
	}
}

// WithClock overrides the time source for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		g.now = now
		return nil
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) error {
		if l != nil {
			g.log = l
		}
		return nil
	}
}

// WithLastSeenInterval sets how often one user's last-seen time may be written.
func WithLastSeenInterval(d time.Duration) Option {
	return func(g *Gate) error {
		g.seenEvery = d
		return nil
	}
}

// NewGate wires the gate to the user store and the token signing secret.
func NewGate(st Store, authSecret []byte, opts ...Option) (*Gate, error) {
	if st == nil {
		return nil, errors.New("auth: store is required")
	}
	g := &Gate{
		store:      st,
		tokenTTL:   defaultTokenTTL,
		sessionTTL: defaultSessionTTL,
		now:        time.Now,
		log:        obs.Logger(),
		seenEvery:  defaultLastSeenInterval,
		seenAt:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	signer, err := NewSigner(authSecret, g.now)
	if err != nil {
		return nil, err
	}
	g.signer = signer
	return g, nil
}

// IssueToken signs a bearer token for userID.
func (g *Gate) IssueToken(userID string) (string, time.Time, error) {
	return g.signer.GenerateToken(userID, g.tokenTTL)
}

// StartSession creates a server-side session and returns the raw cookie value.
// Only the token's hash is stored.
func (g *Gate) StartSession(ctx context.Context, userID string) (string, time.Time, error) {
	token, err := secret.GenerateToken(sessionTokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	sess, err := g.store.CreateSession(ctx, store.Session{
		ID:        secret.HashToken(token),
		UserID:    userID,
		ExpiresAt: g.now().UTC().Add(g.sessionTTL),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("start session: %w", err)
	}
	return token, sess.ExpiresAt, nil
}

// EndSession deletes the session behind a raw cookie value. Unknown tokens are not an error.
func (g *Gate) EndSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := g.store.DeleteSession(ctx, secret.HashToken(token)); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Authenticate resolves the request's caller. A bearer token, when present,
// decides the outcome on its own; otherwise the session cookie is consulted.
func (g *Gate) Authenticate(ctx context.Context, r *http.Request) (store.User, error) {
	var (
		userID string
		err    error
	)
	if header := r.Header.Get("Authorization"); header != "" {
		userID, err = g.fromBearer(header)
	} else {
		userID, err = g.fromSession(ctx, r)
	}
	if err != nil {
		return store.User{}, err
	}

	user, ok, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return store.User{}, fmt.Errorf("%w: load user: %v", ErrUnavailable, err)
	}
	if !ok {
		return store.User{}, ErrUnauthenticated
	}
	g.touch(user.ID)
	return user, nil
}

func (g *Gate) fromBearer(header string) (string, error) {
	token, err := ExtractBearerToken(header)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, err := g.signer.ParseAndValidate(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return claims.Subject, nil
}

func (g *Gate) fromSession(ctx context.Context, r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return "", ErrUnauthenticated
	}
	sess, ok, err := g.store.GetSession(ctx, secret.HashToken(cookie.Value))
	if err != nil {
		return "", fmt.Errorf("%w: load session: %v", ErrUnavailable, err)
	}
	if !ok || !g.now().Before(sess.ExpiresAt) {
		return "", ErrUnauthenticated
	}
	return sess.UserID, nil
}

// touch records activity for userID in the background, at most once per
// interval. Failures are logged and otherwise ignored. Entries older than the
// interval are swept lazily.
func (g *Gate) touch(userID string) {
	now := g.now().UTC()
	g.seenMu.Lock()
	if now.Sub(g.seenSwept) >= g.seenEvery {
		for id, at := range g.seenAt {
			if now.Sub(at) >= g.seenEvery {
				delete(g.seenAt, id)
			}
		}
		g.seenSwept = now
	}
	if last, ok := g.seenAt[userID]; ok && now.Sub(last) < g.seenEvery {
		g.seenMu.Unlock()
		return
	}
	g.seenAt[userID] = now
	g.seenMu.Unlock()

	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), lastSeenTimeout)
		defer cancel()
		if err := g.store.TouchLastSeen(ctx, userID, now); err != nil {
			g.log.Warn("last seen update failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

// Wait blocks until background last-seen writes have finished.
func (g *Gate) Wait() {
	g.inflight.Wait()
}

// NewSessionCookie builds the cookie handed to the browser after login.
func NewSessionCookie(token string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearSessionCookie expires the session cookie in the browser.
func ClearSessionCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
