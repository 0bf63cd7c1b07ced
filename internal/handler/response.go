package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/product-catalog/internal/apperror"
	"github.com/sakif/product-catalog/internal/auth"
	"github.com/sakif/product-catalog/internal/service"
)

// respondError maps a domain error to an HTTP outcome:
//
//	ErrNotFound        → bare 404 page
//	ErrUnauthenticated → flash + redirect /login
//	ErrForbidden       → flash + redirect /dashboard
//	ErrValidation      → flash + redirect formPath
//	anything else      → logged, 500 page
func (rd *Renderer) respondError(w http.ResponseWriter, r *http.Request, err error, formPath string) {
	var appErr *apperror.AppError

	switch {
	case errors.Is(err, apperror.ErrNotFound):
		rd.NotFound(w, r)
	case errors.Is(err, apperror.ErrUnauthenticated):
		redirectWithFlash(w, r, "/login", auth.LoginRequiredMessage)
	case errors.Is(err, apperror.ErrForbidden):
		redirectWithFlash(w, r, "/dashboard", service.ForbiddenMessage)
	case errors.Is(err, apperror.ErrValidation) && errors.As(err, &appErr) && formPath != "":
		redirectWithFlash(w, r, formPath, capitalize(appErr.Message)+".")
	default:
		rd.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		rd.render(w, r, http.StatusInternalServerError, pageError, view{})
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
