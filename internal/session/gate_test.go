package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkpost/inkpost-backend/pkg/kv/memory"
)

const testPassword = "correct horse battery staple"

func newTestGate(t *testing.T, ttl time.Duration) (*Gate, *memory.Store) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	store := memory.New(0)
	t.Cleanup(func() { store.Close() })
	return NewGate(store, hash, Options{TTL: ttl}, zap.NewNop().Sugar()), store
}

// login returns the cookie issued for a successful login
func login(t *testing.T, g *Gate) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	require.NoError(t, g.Login(context.Background(), w, testPassword))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func requestWith(c *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if c != nil {
		r.AddCookie(c)
	}
	return r
}

func TestLogin(t *testing.T) {
	g, store := newTestGate(t, time.Minute)

	t.Run("wrong password stays anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := g.Login(context.Background(), w, "nope")
		assert.ErrorIs(t, err, ErrInvalidPassword)
		assert.Empty(t, w.Result().Cookies())
		assert.Equal(t, 0, store.Len())
	})

	t.Run("right password authenticates", func(t *testing.T) {
		c := login(t, g)
		assert.Equal(t, CookieName, c.Name)
		assert.True(t, c.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		assert.Equal(t, 60, c.MaxAge)
		assert.Equal(t, Authenticated, g.State(requestWith(c)))
	})

	t.Run("sessions are per browser", func(t *testing.T) {
		a := login(t, g)
		b := login(t, g)
		assert.NotEqual(t, a.Value, b.Value)

		g.Logout(context.Background(), httptest.NewRecorder(), requestWith(a))
		assert.Equal(t, Anonymous, g.State(requestWith(a)))
		assert.Equal(t, Authenticated, g.State(requestWith(b)))
	})
}

func TestStateRejectsForgedCookies(t *testing.T) {
	g, _ := newTestGate(t, time.Minute)

	assert.Equal(t, Anonymous, g.State(requestWith(nil)))
	assert.Equal(t, Anonymous, g.State(requestWith(&http.Cookie{Name: CookieName, Value: "authenticated"})))
	assert.Equal(t, Anonymous, g.State(requestWith(&http.Cookie{Name: CookieName, Value: "not base64 !!"})))

	forged, err := newSessionID()
	require.NoError(t, err)
	assert.Equal(t, Anonymous, g.State(requestWith(&http.Cookie{Name: CookieName, Value: forged})))
}

func TestIdleExpiry(t *testing.T) {
	g, _ := newTestGate(t, 150*time.Millisecond)
	c := login(t, g)

	// activity inside the window keeps the session alive past the original deadline
	for i := 0; i < 4; i++ {
		time.Sleep(75 * time.Millisecond)
		require.Equal(t, Authenticated, g.State(requestWith(c)), "round %d", i)
	}

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, Anonymous, g.State(requestWith(c)))
}

func TestLogout(t *testing.T) {
	g, store := newTestGate(t, time.Minute)
	c := login(t, g)

	w := httptest.NewRecorder()
	g.Logout(context.Background(), w, requestWith(c))

	assert.Equal(t, Anonymous, g.State(requestWith(c)))
	assert.Equal(t, 0, store.Len())

	cleared := w.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, CookieName, cleared[0].Name)
	assert.Empty(t, cleared[0].Value)
	assert.Negative(t, cleared[0].MaxAge)

	// logging out without a session is harmless
	g.Logout(context.Background(), httptest.NewRecorder(), requestWith(nil))
}

func TestRequire(t *testing.T) {
	g, _ := newTestGate(t, time.Minute)
	called := 0
	handler := g.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("anonymous is redirected", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/delete/1", nil))
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/admin", w.Header().Get("Location"))
		assert.Equal(t, 0, called)
	})

	t.Run("authenticated passes through", func(t *testing.T) {
		c := login(t, g)
		r := httptest.NewRequest(http.MethodPost, "/delete/1", nil)
		r.AddCookie(c)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 1, called)
		assert.NotEmpty(t, w.Result().Cookies(), "cookie lifetime is refreshed")
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "anonymous", Anonymous.String())
	assert.Equal(t, "authenticated", Authenticated.String())
}
