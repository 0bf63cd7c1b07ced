// Package session binds a browser to a user id through a server-side record.
//
// The cookie only ever carries a signed, opaque session id. The Manager's
// middleware resolves it once per request and stores a *Handle in the request
// context; handlers use that handle to start, read and end the session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/product-catalog/internal/apperror"
	"github.com/sakif/product-catalog/internal/model"
	"github.com/sakif/product-catalog/internal/repository"
)

// DefaultCookieName is the cookie that carries the session token.
const DefaultCookieName = "catalog_session"

// Store persists session records. The SQLite repository and RedisStore both
// satisfy it.
type Store = repository.SessionRepository

// TokenCodec signs session ids into cookie values and back.
type TokenCodec interface {
	Generate(sessionID string, ttl time.Duration) (string, error)
	Validate(token string) (string, error)
}

// Options tunes the session cookie. A zero CookieName means DefaultCookieName.
type Options struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager loads the session for each request and issues or revokes the
// cookie that points at it.
type Manager struct {
	store  Store
	codec  TokenCodec
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewManager returns a Manager backed by store, signing ids with codec.
func NewManager(store Store, codec TokenCodec, opts Options, logger *slog.Logger) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Manager{
		store:  store,
		codec:  codec,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

type contextKey struct{}

// Middleware loads the caller's session and attaches a *Handle to the request
// context. A missing, forged, expired or unknown token yields an anonymous
// handle; it never fails the request.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := m.load(w, r)
		ctx := context.WithValue(r.Context(), contextKey{}, h)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the handle installed by Middleware, or nil.
func FromContext(ctx context.Context) *Handle {
	h, _ := ctx.Value(contextKey{}).(*Handle)
	return h
}

// Prune removes expired records and reports how many were deleted.
func (m *Manager) Prune(ctx context.Context) (int64, error) {
	return m.store.DeleteExpiredSessions(ctx, m.now().UTC())
}

func (m *Manager) load(w http.ResponseWriter, r *http.Request) *Handle {
	h := &Handle{m: m, w: w}

	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return h
	}

	id, err := m.codec.Validate(cookie.Value)
	if err != nil {
		m.logger.Debug("rejecting session token", "error", err)
		m.clearCookie(w)
		return h
	}

	sess, err := m.store.GetSession(r.Context(), id)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			m.logger.Error("loading session", "error", err)
		}
		m.clearCookie(w)
		return h
	}
	if sess.Expired(m.now()) {
		m.clearCookie(w)
		return h
	}

	h.sessionID = sess.ID
	h.userID = sess.UserID
	return h
}

func (m *Manager) setCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(m.opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Handle is one request's view of its session.
type Handle struct {
	m         *Manager
	w         http.ResponseWriter
	sessionID string
	userID    int64
}

// Current returns the bound user id. It is safe on a nil handle.
func (h *Handle) Current() (int64, bool) {
	if h == nil || h.userID == 0 {
		return 0, false
	}
	return h.userID, true
}

// Start binds a fresh session to userID and sets the cookie. Any session the
// client already had is ended first so the id rotates on every login.
func (h *Handle) Start(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return errors.New("session: user id must be positive")
	}
	if h.sessionID != "" {
		if err := h.m.store.DeleteSession(ctx, h.sessionID); err != nil {
			return err
		}
		h.sessionID, h.userID = "", 0
	}

	now := h.m.now().UTC()
	sess := &model.Session{
		ID:        xid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(h.m.opts.TTL),
	}
	if err := h.m.store.CreateSession(ctx, sess); err != nil {
		return err
	}

	token, err := h.m.codec.Generate(sess.ID, h.m.opts.TTL)
	if err != nil {
		return err
	}
	h.m.setCookie(h.w, token, sess.ExpiresAt)

	h.sessionID = sess.ID
	h.userID = userID
	return nil
}

// End deletes the server-side record, if any, and expires the cookie.
// Calling it on an anonymous handle is a no-op apart from the cookie.
func (h *Handle) End(ctx context.Context) error {
	if h.sessionID != "" {
		if err := h.m.store.DeleteSession(ctx, h.sessionID); err != nil {
			return err
		}
	}
	h.m.clearCookie(h.w)
	h.sessionID, h.userID = "", 0
	return nil
}
