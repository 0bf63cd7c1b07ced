// Package handler contains the HTTP handlers of the catalog. Handlers parse
// form input, call a service and answer with either a rendered page or a
// redirect carrying a flash notice.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sakif/product-catalog/internal/auth"
	"github.com/sakif/product-catalog/internal/flash"
	"github.com/sakif/product-catalog/internal/model"
	"github.com/sakif/product-catalog/internal/web"
)

// Page names, one per file under web/templates besides base.html.
const (
	pageHome          = "home"
	pageSignup        = "signup"
	pageLogin         = "login"
	pageDashboard     = "dashboard"
	pageCreateProduct = "create_product"
	pageUpdateProduct = "update_product"
	pageNotFound      = "not_found"
	pageError         = "error"
)

var pageTitles = map[string]string{
	pageHome:          "Home",
	pageSignup:        "Sign up",
	pageLogin:         "Log in",
	pageDashboard:     "Dashboard",
	pageCreateProduct: "New product",
	pageUpdateProduct: "Edit product",
	pageNotFound:      "Not found",
	pageError:         "Error",
}

// view is the data every page template receives.
type view struct {
	Title    string
	LoggedIn bool
	Flashes  []string
	Products []model.Product
	Product  *model.Product
}

// Renderer holds one parsed template set per page. Each set is base.html plus
// the page's own "content" block, parsed once at startup.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewRenderer parses one template set per page from the embedded templates.
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageTitles))
	for name := range pageTitles {
		tmpl, err := template.ParseFS(web.Templates, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages, logger: logger}, nil
}

// render writes page with status. Pending flash notices are consumed, except
// on the not-found and error pages which leave them for the next real page.
func (rd *Renderer) render(w http.ResponseWriter, r *http.Request, status int, page string, v view) {
	tmpl, ok := rd.pages[page]
	if !ok {
		rd.logger.Error("unknown page", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	v.Title = pageTitles[page]
	_, v.LoggedIn = auth.UserIDFromContext(r.Context())
	if page != pageNotFound && page != pageError {
		v.Flashes = flash.Pop(w, r)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", v); err != nil {
		rd.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// NotFound renders the bare 404 page. It doubles as the router's fallback.
func (rd *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rd.render(w, r, http.StatusNotFound, pageNotFound, view{})
}

// HandleHome serves the landing page.
func (rd *Renderer) HandleHome(w http.ResponseWriter, r *http.Request) {
	rd.render(w, r, http.StatusOK, pageHome, view{})
}

// redirectWithFlash queues msg and sends a 303 to target.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, target, msg string) {
	if msg != "" {
		flash.Add(w, r, msg)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
