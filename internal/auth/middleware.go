package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/product-catalog/internal/apperror"
	"github.com/sakif/product-catalog/internal/flash"
	"github.com/sakif/product-catalog/internal/model"
	"github.com/sakif/product-catalog/internal/session"
)

// LoginRequiredMessage is flashed when an anonymous client hits a protected page.
const LoginRequiredMessage = "Please log in to access this page."

// UserLookup resolves a session's user id to its account.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// RequireUser guards routes that need a logged-in user. It must run after
// session.Manager.Middleware. Anonymous requests get a flash notice and a
// redirect to /login; the wrapped handler never runs. A session whose user
// no longer exists is ended and treated as anonymous.
func RequireUser(users UserLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID, ok := UserIDFromContext(ctx)
			if ok {
				_, err := users.GetUserByID(ctx, userID)
				switch {
				case err == nil:
					next.ServeHTTP(w, r)
					return
				case !errors.Is(err, apperror.ErrNotFound):
					logger.Error("failed to load session user",
						slog.Int64("userID", userID),
						slog.String("error", err.Error()),
					)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}

				logger.Warn("session refers to a missing user", slog.Int64("userID", userID))
				if err := session.FromContext(ctx).End(ctx); err != nil {
					logger.Warn("failed to end orphaned session", slog.String("error", err.Error()))
				}
			}

			flash.Add(w, r, LoginRequiredMessage)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		})
	}
}

// UserIDFromContext returns the logged-in user's id, or (0, false) for an
// anonymous request.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	return session.FromContext(ctx).Current()
}
