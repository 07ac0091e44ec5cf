package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"
)

const productColumns = `id, name, description, price, category, amount, version, updated_at`

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get product %s: %w", id, err)
	}
	return p, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
}

func (r *ProductRepository) ListByCategory(ctx context.Context, category domain.Category) ([]*domain.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products WHERE category = $1 ORDER BY id`, string(category))
}

func (r *ProductRepository) Insert(ctx context.Context, p *domain.Product) error {
	p.Version = 1
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.Description, p.Price, string(p.Category), p.Amount, p.Version, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert product %s: %w", p.ID, mapError(err))
	}
	return nil
}

// CompareAndSwap writes p only while the row still carries p.Version.
func (r *ProductRepository) CompareAndSwap(ctx context.Context, p *domain.Product) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE products
		 SET name = $1, description = $2, price = $3, category = $4, amount = $5,
		     version = version + 1, updated_at = $6
		 WHERE id = $7 AND version = $8`,
		p.Name, p.Description, p.Price, string(p.Category), p.Amount, p.UpdatedAt, p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: update product %s: %w", p.ID, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: update product %s: %w", p.ID, err)
	}
	if n == 1 {
		p.Version++
		return nil
	}

	var version int64
	err = r.db.QueryRowContext(ctx, `SELECT version FROM products WHERE id = $1`, p.ID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: check product %s: %w", p.ID, err)
	}
	return domain.ErrConflict
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete product %s: %w", id, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: delete product %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) query(ctx context.Context, q string, args ...any) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query products: %w", err)
	}
	defer rows.Close()

	var out []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate products: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*domain.Product, error) {
	var (
		p        domain.Product
		category string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &category, &p.Amount, &p.Version, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Category = domain.Category(category)
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
