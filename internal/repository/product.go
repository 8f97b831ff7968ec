package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/flicky/storefront-api/internal/model"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrReferenced        = errors.New("record is still referenced")
	ErrUnknownReference  = errors.New("referenced record does not exist")
)

const pgForeignKeyViolation = "23503"

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Product, error)
	List(ctx context.Context, limit, offset int, search, sort, order string) ([]model.Product, int, error)
	Update(ctx context.Context, tx pgx.Tx, product *model.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	DecrementStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, quantity int) (int, error)
}

type pgProductRepo struct{ db Querier }

func NewProductRepository(db Querier) ProductRepository {
	return &pgProductRepo{db: db}
}

const productColumns = `p.id, p.name, p.description, p.price, p.stock, p.image_urls,
	p.category_id, c.name, p.size_id, s.name, p.created_at, p.updated_at`

const productFrom = `FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN sizes s ON s.id = p.size_id`

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	if product.ImageURLs == nil {
		product.ImageURLs = []string{}
	}
	query := `INSERT INTO products (id, name, description, price, stock, image_urls, category_id, size_id, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Price, product.Stock,
		product.ImageURLs, product.CategoryID, product.SizeID,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", mapForeignKey(err))
	}
	return nil
}

// mapForeignKey reports a dangling category or size id as ErrUnknownReference.
func mapForeignKey(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return ErrUnknownReference
	}
	return err
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return getProduct(ctx, r.db, id, false)
}

// GetByIDTx reads the product inside tx and locks the row against concurrent
// price and stock edits until tx ends.
func (r *pgProductRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Product, error) {
	return getProduct(ctx, tx, id, true)
}

func getProduct(ctx context.Context, q Querier, id uuid.UUID, lock bool) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` ` + productFrom + ` WHERE p.id = $1`
	if lock {
		query += ` FOR SHARE OF p`
	}
	p, err := scanProduct(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	var (
		p            model.Product
		categoryName *string
		sizeName     *string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.ImageURLs,
		&p.CategoryID, &categoryName, &p.SizeID, &sizeName, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.CategoryID != nil && categoryName != nil {
		p.Category = &model.Category{ID: *p.CategoryID, Name: *categoryName}
	}
	if p.SizeID != nil && sizeName != nil {
		p.Size = &model.Size{ID: *p.SizeID, Name: *sizeName}
	}
	return &p, nil
}

func (r *pgProductRepo) List(ctx context.Context, limit, offset int, search, sort, order string) ([]model.Product, int, error) {
	allowedSorts := map[string]bool{"name": true, "price": true, "created_at": true}
	if !allowedSorts[sort] {
		sort = "created_at"
	}
	if order != "asc" && order != "desc" {
		order = "desc"
	}

	var total int
	countQ := `SELECT COUNT(*) FROM products WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')`
	if err := r.db.QueryRow(ctx, countQ, search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s %s
		WHERE ($1 = '' OR p.name ILIKE '%%' || $1 || '%%' OR p.description ILIKE '%%' || $1 || '%%')
		ORDER BY p.%s %s LIMIT $2 OFFSET $3`, productColumns, productFrom, sort, order)

	rows, err := r.db.Query(ctx, query, search, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]model.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate products: %w", err)
	}
	return products, total, nil
}

func (r *pgProductRepo) Update(ctx context.Context, tx pgx.Tx, product *model.Product) error {
	if product.ImageURLs == nil {
		product.ImageURLs = []string{}
	}
	query := `UPDATE products SET name=$2, description=$3, price=$4, stock=$5, image_urls=$6,
			  category_id=$7, size_id=$8, updated_at=NOW()
			  WHERE id=$1 RETURNING updated_at`
	err := tx.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Price, product.Stock,
		product.ImageURLs, product.CategoryID, product.SizeID,
	).Scan(&product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update product: %w", mapForeignKey(err))
	}
	return nil
}

func (r *pgProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return fmt.Errorf("delete product %s: %w", id, ErrReferenced)
		}
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementStock lowers the product's stock and returns what is left. It
// fails with ErrInsufficientStock when fewer than quantity units remain.
func (r *pgProductRepo) DecrementStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, quantity int) (int, error) {
	var remaining int
	err := tx.QueryRow(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = NOW()
		 WHERE id = $1 AND stock >= $2 RETURNING stock`,
		productID, quantity,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("product %s: %w", productID, ErrInsufficientStock)
	}
	if err != nil {
		return 0, fmt.Errorf("decrement stock: %w", err)
	}
	return remaining, nil
}
