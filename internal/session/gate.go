package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkpost/inkpost-backend/pkg/kv"
)

const (
	// CookieName holds the opaque session id
	CookieName = "ink_session"
	// DefaultTTL is the idle expiry measured from the last gated request
	DefaultTTL = 10 * time.Minute

	keyPrefix          = "session:"
	authenticatedValue = "authenticated"
	idBytes            = 32
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrUnauthorized    = errors.New("unauthorized")
)

// State is where a browser session stands
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

type Options struct {
	TTL          time.Duration
	CookieSecure bool
	// LoginPath is where anonymous writes are sent. Default: /admin
	LoginPath string
}

// Gate tracks which browser sessions are authenticated
type Gate struct {
	store        kv.Store
	passwordHash []byte
	ttl          time.Duration
	secure       bool
	loginPath    string
	logger       *zap.SugaredLogger
}

func NewGate(store kv.Store, passwordHash []byte, opts Options, logger *zap.SugaredLogger) *Gate {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/admin"
	}
	return &Gate{
		store:        store,
		passwordHash: passwordHash,
		ttl:          opts.TTL,
		secure:       opts.CookieSecure,
		loginPath:    opts.LoginPath,
		logger:       logger,
	}
}

// Login moves the browser to Authenticated when password matches
func (g *Gate) Login(ctx context.Context, w http.ResponseWriter, password string) error {
	if bcrypt.CompareHashAndPassword(g.passwordHash, []byte(password)) != nil {
		return ErrInvalidPassword
	}

	id, err := newSessionID()
	if err != nil {
		return fmt.Errorf("failed to create session id: %w", err)
	}
	if err := g.store.SetString(ctx, keyPrefix+id, authenticatedValue, g.ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	http.SetCookie(w, g.cookie(id, int(g.ttl.Seconds())))
	return nil
}

// State reports the session state of r and refreshes the idle expiry of an authenticated session
func (g *Gate) State(r *http.Request) State {
	id, ok := sessionID(r)
	if !ok {
		return Anonymous
	}

	ctx := r.Context()
	value, err := g.store.GetString(ctx, keyPrefix+id)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			g.logger.Warnw("Session lookup failed", "error", err)
		}
		return Anonymous
	}
	if value != authenticatedValue {
		return Anonymous
	}

	if _, err := g.store.Expire(ctx, keyPrefix+id, g.ttl); err != nil {
		g.logger.Warnw("Failed to refresh session", "error", err)
	}
	return Authenticated
}

// Authenticated is State(r) == Authenticated
func (g *Gate) Authenticated(r *http.Request) bool {
	return g.State(r) == Authenticated
}

// Touch refreshes the browser cookie so it outlives the server-side TTL
func (g *Gate) Touch(w http.ResponseWriter, r *http.Request) {
	if id, ok := sessionID(r); ok {
		http.SetCookie(w, g.cookie(id, int(g.ttl.Seconds())))
	}
}

// Logout forgets the session and expires the cookie
func (g *Gate) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if id, ok := sessionID(r); ok {
		if _, err := g.store.Del(ctx, keyPrefix+id); err != nil {
			g.logger.Warnw("Failed to delete session", "error", err)
		}
	}
	http.SetCookie(w, g.cookie("", -1))
}

// Require sends anonymous requests to the login page instead of running next
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authenticated(r) {
			g.logger.Infow("Redirecting unauthorized write", "path", r.URL.Path, "error", ErrUnauthorized)
			http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
			return
		}
		g.Touch(w, r)
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func sessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil || len(raw) != idBytes {
		return "", false
	}
	return c.Value, true
}

func newSessionID() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
