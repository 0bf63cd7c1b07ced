package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/product-catalog/internal/apperror"
	"github.com/sakif/product-catalog/internal/middleware"
	"github.com/sakif/product-catalog/internal/model"
	"github.com/sakif/product-catalog/internal/session"
)

// User-facing notices of the authentication flow.
const (
	msgEmailInUse     = "Email already in use. Please log in."
	msgAccountCreated = "Account created successfully! Please log in."
	msgAccountMissing = "Account not found. Please sign up."
	msgLoggedOut      = "You have been logged out."
)

// AuthService is what AuthHandler needs from service.AuthService.
type AuthService interface {
	Signup(ctx context.Context, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, error)
}

// AuthHandler serves signup, login and logout.
type AuthHandler struct {
	auth    AuthService
	pages   *Renderer
	metrics *middleware.Metrics
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. metrics may be nil.
func NewAuthHandler(auth AuthService, pages *Renderer, metrics *middleware.Metrics, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    auth,
		pages:   pages,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleSignupForm serves GET /signup.
func (h *AuthHandler) HandleSignupForm(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, pageSignup, view{})
}

// HandleSignup serves POST /signup. It never touches the session.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	_, err := h.auth.Signup(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	switch {
	case err == nil:
		h.metrics.RecordAuth(middleware.AuthSignup, "success")
		redirectWithFlash(w, r, "/login", msgAccountCreated)
	case errors.Is(err, apperror.ErrDuplicateEmail):
		h.metrics.RecordAuth(middleware.AuthSignup, "duplicate_email")
		redirectWithFlash(w, r, "/login", msgEmailInUse)
	default:
		h.metrics.RecordAuth(middleware.AuthSignup, "error")
		h.pages.respondError(w, r, err, "/signup")
	}
}

// HandleLoginForm serves GET /login.
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, pageLogin, view{})
}

// HandleLogin serves POST /login. On success the session is (re)started for
// the user; on failure it is left exactly as it was.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Login(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidCredentials) {
			h.metrics.RecordAuth(middleware.AuthLogin, "invalid_credentials")
			redirectWithFlash(w, r, "/signup", msgAccountMissing)
			return
		}
		h.metrics.RecordAuth(middleware.AuthLogin, "error")
		h.pages.respondError(w, r, err, "")
		return
	}

	if err := session.FromContext(r.Context()).Start(r.Context(), user.ID); err != nil {
		h.metrics.RecordAuth(middleware.AuthLogin, "error")
		h.pages.respondError(w, r, err, "")
		return
	}

	h.metrics.RecordAuth(middleware.AuthLogin, "success")
	h.logger.Info("user logged in", slog.Int64("userID", user.ID))
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleLogout serves GET /logout. It succeeds whether or not a session exists.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := session.FromContext(r.Context()).End(r.Context()); err != nil {
		h.metrics.RecordAuth(middleware.AuthLogout, "error")
		h.pages.respondError(w, r, err, "")
		return
	}
	h.metrics.RecordAuth(middleware.AuthLogout, "success")
	redirectWithFlash(w, r, "/login", msgLoggedOut)
}
