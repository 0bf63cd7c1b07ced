package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/product-catalog/internal/apperror"
	"github.com/sakif/product-catalog/internal/model"
	"github.com/sakif/product-catalog/internal/repository"
)

var _ repository.ProductRepository = (*DB)(nil)

// Create inserts a new product and fills in ID and timestamps.
// A product whose owner does not exist is rejected by the foreign key.
func (db *DB) Create(ctx context.Context, product *model.Product) error {
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO products (owner_id, image, name, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		product.OwnerID,
		product.Image,
		product.Name,
		product.Description,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading product id: %w", err)
	}
	product.ID = id

	return nil
}

// GetByID retrieves a single product by its ID regardless of owner.
// Ownership is the service layer's decision.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, owner_id, image, name, description, created_at, updated_at
		 FROM products
		 WHERE id = ?`,
		id,
	).Scan(
		&p.ID,
		&p.OwnerID,
		&p.Image,
		&p.Name,
		&p.Description,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("product", id)
		}
		return nil, fmt.Errorf("sqlite: getting product %d: %w", id, err)
	}

	return &p, nil
}

// ListByOwner returns every product owned by ownerID in insertion order.
func (db *DB) ListByOwner(ctx context.Context, ownerID int64) ([]model.Product, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, owner_id, image, name, description, created_at, updated_at
		 FROM products
		 WHERE owner_id = ?
		 ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing products for owner %d: %w", ownerID, err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(
			&p.ID, &p.OwnerID, &p.Image, &p.Name, &p.Description,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning product row: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating products: %w", err)
	}

	return products, nil
}

// Update overwrites image, name and description of an existing product.
// Returns apperror.ErrNotFound when no row matched.
func (db *DB) Update(ctx context.Context, product *model.Product) error {
	product.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE products
		 SET image = ?, name = ?, description = ?, updated_at = ?
		 WHERE id = ?`,
		product.Image,
		product.Name,
		product.Description,
		product.UpdatedAt,
		product.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating product %d: %w", product.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("product", product.ID)
	}

	return nil
}

// Delete removes a product permanently.
func (db *DB) Delete(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM products WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting product %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("product", id)
	}

	return nil
}
