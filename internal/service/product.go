package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/sakif/product-catalog/internal/apperror"
	"github.com/sakif/product-catalog/internal/model"
	"github.com/sakif/product-catalog/internal/repository"
)

// Column bounds of the products table.
const (
	MaxImageLength       = 150
	MaxNameLength        = 150
	MaxDescriptionLength = 500
)

// ForbiddenMessage is shown when a user addresses someone else's product.
const ForbiddenMessage = "You do not have permission to modify that product."

// ProductInput is the editable part of a product.
type ProductInput struct {
	Image       string
	Name        string
	Description string
}

// ProductService manages products on behalf of a logged-in user. Every method
// takes the acting user's id; zero means anonymous and is refused.
type ProductService struct {
	repo   repository.ProductRepository
	logger *slog.Logger
}

func NewProductService(repo repository.ProductRepository, logger *slog.Logger) *ProductService {
	return &ProductService{
		repo:   repo,
		logger: logger,
	}
}

// List returns the user's own products, oldest first.
func (s *ProductService) List(ctx context.Context, userID int64) ([]model.Product, error) {
	if userID <= 0 {
		return nil, apperror.Unauthenticated()
	}

	products, err := s.repo.ListByOwner(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list products",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// Create validates in and stores a product owned by userID.
func (s *ProductService) Create(ctx context.Context, userID int64, in ProductInput) (*model.Product, error) {
	if userID <= 0 {
		return nil, apperror.Unauthenticated()
	}
	in, err := in.validate()
	if err != nil {
		return nil, err
	}

	product := &model.Product{
		OwnerID:     userID,
		Image:       in.Image,
		Name:        in.Name,
		Description: in.Description,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		s.logger.Error("failed to create product",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating product: %w", err)
	}

	s.logger.Info("product created",
		slog.Int64("id", product.ID),
		slog.Int64("ownerID", product.OwnerID),
	)
	return product, nil
}

// GetForEdit returns a product the user owns.
func (s *ProductService) GetForEdit(ctx context.Context, userID, productID int64) (*model.Product, error) {
	return s.authorize(ctx, userID, productID)
}

// Update overwrites all three editable fields of a product the user owns.
func (s *ProductService) Update(ctx context.Context, userID, productID int64, in ProductInput) (*model.Product, error) {
	product, err := s.authorize(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	in, err = in.validate()
	if err != nil {
		return nil, err
	}

	product.Image = in.Image
	product.Name = in.Name
	product.Description = in.Description

	if err := s.repo.Update(ctx, product); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update product",
			slog.Int64("id", productID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating product: %w", err)
	}

	s.logger.Info("product updated", slog.Int64("id", product.ID))
	return product, nil
}

// Delete permanently removes a product the user owns.
func (s *ProductService) Delete(ctx context.Context, userID, productID int64) error {
	if _, err := s.authorize(ctx, userID, productID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, productID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting product: %w", err)
	}

	s.logger.Info("product deleted", slog.Int64("id", productID))
	return nil
}

// authorize resolves productID for userID. Existence is checked before
// ownership, so a missing id is ErrNotFound even for a stranger and an
// existing id owned by someone else is ErrForbidden.
func (s *ProductService) authorize(ctx context.Context, userID, productID int64) (*model.Product, error) {
	if userID <= 0 {
		return nil, apperror.Unauthenticated()
	}
	if productID <= 0 {
		return nil, apperror.NotFound("product", productID)
	}

	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading product: %w", err)
	}

	if product.OwnerID != userID {
		s.logger.Warn("product access denied",
			slog.Int64("id", productID),
			slog.Int64("userID", userID),
		)
		return nil, apperror.Forbidden(ForbiddenMessage)
	}
	return product, nil
}

// validate checks presence and length only. Values are stored as submitted.
func (in ProductInput) validate() (ProductInput, error) {
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"image", in.Image, MaxImageLength},
		{"name", in.Name, MaxNameLength},
		{"description", in.Description, MaxDescriptionLength},
	}
	for _, f := range fields {
		if f.value == "" {
			return in, apperror.ValidationFailed(f.name, f.name+" is required")
		}
		if utf8.RuneCountInString(f.value) > f.max {
			return in, apperror.ValidationFailed(f.name,
				fmt.Sprintf("%s must be %d characters or less", f.name, f.max))
		}
	}
	return in, nil
}
