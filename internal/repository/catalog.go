package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/flicky/storefront-api/internal/model"
)

// CatalogRepository stores the categories and sizes products refer to.
type CatalogRepository interface {
	CreateCategory(ctx context.Context, c *model.Category) error
	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateSize(ctx context.Context, s *model.Size) error
	ListSizes(ctx context.Context) ([]model.Size, error)
}

type pgCatalogRepo struct{ db Querier }

func NewCatalogRepository(db Querier) CatalogRepository {
	return &pgCatalogRepo{db: db}
}

func (r *pgCatalogRepo) CreateCategory(ctx context.Context, c *model.Category) error {
	c.ID = uuid.New()
	return r.insertNamed(ctx, "categories", c.ID, c.Name, &c.CreatedAt)
}

func (r *pgCatalogRepo) CreateSize(ctx context.Context, s *model.Size) error {
	s.ID = uuid.New()
	return r.insertNamed(ctx, "sizes", s.ID, s.Name, &s.CreatedAt)
}

func (r *pgCatalogRepo) insertNamed(ctx context.Context, table string, id uuid.UUID, name string, createdAt any) error {
	err := r.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, name, created_at) VALUES ($1, $2, NOW()) RETURNING created_at`, table),
		id, name,
	).Scan(createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("insert into %s: %w", table, ErrDuplicate)
		}
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (r *pgCatalogRepo) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]model.Category, 0)
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *pgCatalogRepo) ListSizes(ctx context.Context) ([]model.Size, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, created_at FROM sizes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list sizes: %w", err)
	}
	defer rows.Close()

	out := make([]model.Size, 0)
	for rows.Next() {
		var s model.Size
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan size: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
