package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/product-catalog/internal/apperror"
	"github.com/sakif/product-catalog/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	getErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]model.Session)}
}

func (f *fakeStore) CreateSession(_ context.Context, sess *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sess.ID]; ok {
		return errors.New("duplicate session id")
	}
	f.sessions[sess.ID] = *sess
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "session not found"}
	}
	return &s, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.Expired(now) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// fakeCodec "signs" by prefixing; anything without the prefix is forged.
type fakeCodec struct{}

func (fakeCodec) Generate(id string, _ time.Duration) (string, error) {
	return "signed." + id, nil
}

func (fakeCodec) Validate(token string) (string, error) {
	id, ok := strings.CutPrefix(token, "signed.")
	if !ok || id == "" {
		return "", fmt.Errorf("forged token %q", token)
	}
	return id, nil
}

func newTestManager(store Store) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(store, fakeCodec{}, Options{TTL: time.Hour}, logger)
}

// serve runs fn inside the session middleware for a request carrying cookies.
func serve(t *testing.T, m *Manager, cookies []*http.Cookie, fn func(h *Handle)) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := FromContext(r.Context())
		require.NotNil(t, h)
		fn(h)
	})).ServeHTTP(rec, req)
	return rec.Result()
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	return nil
}

func TestHandle_AnonymousByDefault(t *testing.T) {
	m := newTestManager(newFakeStore())

	serve(t, m, nil, func(h *Handle) {
		_, ok := h.Current()
		assert.False(t, ok)
	})
}

func TestHandle_NilIsAnonymous(t *testing.T) {
	var h *Handle
	_, ok := h.Current()
	assert.False(t, ok)
	assert.Nil(t, FromContext(context.Background()))
}

func TestHandle_StartCurrentEnd(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	resp := serve(t, m, nil, func(h *Handle) {
		require.NoError(t, h.Start(context.Background(), 7))
		uid, ok := h.Current()
		assert.True(t, ok)
		assert.Equal(t, int64(7), uid)
	})
	cookie := sessionCookie(t, resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 1, store.count())

	serve(t, m, []*http.Cookie{cookie}, func(h *Handle) {
		uid, ok := h.Current()
		assert.True(t, ok)
		assert.Equal(t, int64(7), uid)
	})

	resp = serve(t, m, []*http.Cookie{cookie}, func(h *Handle) {
		require.NoError(t, h.End(context.Background()))
		_, ok := h.Current()
		assert.False(t, ok)
	})
	cleared := sessionCookie(t, resp)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Equal(t, 0, store.count())

	// The old cookie is worthless once the record is gone.
	serve(t, m, []*http.Cookie{cookie}, func(h *Handle) {
		_, ok := h.Current()
		assert.False(t, ok)
	})
}

func TestHandle_EndIsIdempotent(t *testing.T) {
	m := newTestManager(newFakeStore())

	serve(t, m, nil, func(h *Handle) {
		assert.NoError(t, h.End(context.Background()))
		assert.NoError(t, h.End(context.Background()))
	})
}

func TestHandle_StartRotatesExistingSession(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	first := sessionCookie(t, serve(t, m, nil, func(h *Handle) {
		require.NoError(t, h.Start(context.Background(), 1))
	}))
	require.NotNil(t, first)

	second := sessionCookie(t, serve(t, m, []*http.Cookie{first}, func(h *Handle) {
		require.NoError(t, h.Start(context.Background(), 2))
	}))
	require.NotNil(t, second)

	assert.NotEqual(t, first.Value, second.Value)
	assert.Equal(t, 1, store.count())
}

func TestHandle_StartRejectsZeroUser(t *testing.T) {
	m := newTestManager(newFakeStore())

	serve(t, m, nil, func(h *Handle) {
		assert.Error(t, h.Start(context.Background(), 0))
	})
}

func TestMiddleware_ForgedTokenIsAnonymous(t *testing.T) {
	m := newTestManager(newFakeStore())

	resp := serve(t, m, []*http.Cookie{{Name: DefaultCookieName, Value: "forged"}}, func(h *Handle) {
		_, ok := h.Current()
		assert.False(t, ok)
	})

	cleared := sessionCookie(t, resp)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestMiddleware_ExpiredSessionIsAnonymous(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	cookie := sessionCookie(t, serve(t, m, nil, func(h *Handle) {
		require.NoError(t, h.Start(context.Background(), 3))
	}))
	require.NotNil(t, cookie)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	serve(t, m, []*http.Cookie{cookie}, func(h *Handle) {
		_, ok := h.Current()
		assert.False(t, ok)
	})

	n, err := m.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 0, store.count())
}

func TestMiddleware_StoreFailureIsAnonymous(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	cookie := sessionCookie(t, serve(t, m, nil, func(h *Handle) {
		require.NoError(t, h.Start(context.Background(), 3))
	}))
	store.getErr = errors.New("disk on fire")

	serve(t, m, []*http.Cookie{cookie}, func(h *Handle) {
		_, ok := h.Current()
		assert.False(t, ok)
	})
}
