package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/product-catalog/internal/auth"
	"github.com/sakif/product-catalog/internal/model"
	"github.com/sakif/product-catalog/internal/service"
)

// ProductService is what ProductHandler needs from service.ProductService.
type ProductService interface {
	List(ctx context.Context, userID int64) ([]model.Product, error)
	Create(ctx context.Context, userID int64, in service.ProductInput) (*model.Product, error)
	GetForEdit(ctx context.Context, userID, productID int64) (*model.Product, error)
	Update(ctx context.Context, userID, productID int64, in service.ProductInput) (*model.Product, error)
	Delete(ctx context.Context, userID, productID int64) error
}

// ProductHandler serves the dashboard and product CRUD pages. Every route is
// mounted behind auth.RequireUser; the services re-check the user anyway.
type ProductHandler struct {
	products ProductService
	pages    *Renderer
	logger   *slog.Logger
}

// NewProductHandler returns the handler for the dashboard and product forms.
func NewProductHandler(products ProductService, pages *Renderer, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		pages:    pages,
		logger:   logger,
	}
}

// HandleDashboard serves GET /dashboard.
func (h *ProductHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	products, err := h.products.List(r.Context(), userID)
	if err != nil {
		h.pages.respondError(w, r, err, "")
		return
	}
	h.pages.render(w, r, http.StatusOK, pageDashboard, view{Products: products})
}

// HandleCreateForm serves GET /product/create.
func (h *ProductHandler) HandleCreateForm(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, pageCreateProduct, view{})
}

// HandleCreate serves POST /product/create.
func (h *ProductHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if _, err := h.products.Create(r.Context(), userID, productInput(r)); err != nil {
		h.pages.respondError(w, r, err, "/product/create")
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleUpdateForm serves GET /product/update/{id} with the form prefilled.
func (h *ProductHandler) HandleUpdateForm(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.pages.NotFound(w, r)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	product, err := h.products.GetForEdit(r.Context(), userID, id)
	if err != nil {
		h.pages.respondError(w, r, err, "")
		return
	}
	h.pages.render(w, r, http.StatusOK, pageUpdateProduct, view{Product: product})
}

// HandleUpdate serves POST /product/update/{id}.
func (h *ProductHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.pages.NotFound(w, r)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	if _, err := h.products.Update(r.Context(), userID, id, productInput(r)); err != nil {
		h.pages.respondError(w, r, err, "/product/update/"+strconv.FormatInt(id, 10))
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleDelete serves POST /product/delete/{id}.
func (h *ProductHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.pages.NotFound(w, r)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.products.Delete(r.Context(), userID, id); err != nil {
		h.pages.respondError(w, r, err, "")
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// productID parses the {id} path segment as a positive base-10 integer.
func productID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 63)
	if err != nil || id == 0 {
		return 0, false
	}
	return int64(id), true
}

func productInput(r *http.Request) service.ProductInput {
	return service.ProductInput{
		Image:       r.PostFormValue("image"),
		Name:        r.PostFormValue("name"),
		Description: r.PostFormValue("description"),
	}
}
