package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront-api/internal/model"
)

type CartRepository interface {
	Create(ctx context.Context, tx pgx.Tx, cart *model.Cart) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*model.Cart, error)
	ListItems(ctx context.Context, tx pgx.Tx, cartID uuid.UUID) ([]model.CartItem, error)
	UpsertItem(ctx context.Context, tx pgx.Tx, item *model.CartItem) error
	DeleteItem(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) error
	DeleteItems(ctx context.Context, tx pgx.Tx, cartID uuid.UUID) error
	UpdateTotal(ctx context.Context, tx pgx.Tx, cartID uuid.UUID, total decimal.Decimal) error
	SyncAvailability(ctx context.Context, tx pgx.Tx, productID uuid.UUID, stock int) (int64, error)
}

type pgCartRepo struct{ db Querier }

func NewCartRepository(db Querier) CartRepository {
	return &pgCartRepo{db: db}
}

func (r *pgCartRepo) Create(ctx context.Context, tx pgx.Tx, cart *model.Cart) error {
	cart.ID = uuid.New()
	cart.TotalPrice = decimal.Zero
	err := tx.QueryRow(ctx,
		`INSERT INTO carts (id, user_id, total_price, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW()) RETURNING created_at, updated_at`,
		cart.ID, cart.UserID, cart.TotalPrice,
	).Scan(&cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create cart: %w", err)
	}
	return nil
}

// GetByUserID returns the user's cart with its populated line items, or nil
// when the user has no cart.
func (r *pgCartRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := getCart(ctx, r.db, userID, false)
	if err != nil || cart == nil {
		return cart, err
	}
	cart.Items, err = listItems(ctx, r.db, cart.ID)
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// GetByUserIDForUpdate locks the cart row for the rest of tx. Every cart
// mutation takes this lock first, so at most one transaction per cart is
// active at a time.
func (r *pgCartRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*model.Cart, error) {
	return getCart(ctx, tx, userID, true)
}

func getCart(ctx context.Context, q Querier, userID uuid.UUID, lock bool) (*model.Cart, error) {
	query := `SELECT id, user_id, total_price, created_at, updated_at FROM carts WHERE user_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	cart := &model.Cart{}
	err := q.QueryRow(ctx, query, userID).
		Scan(&cart.ID, &cart.UserID, &cart.TotalPrice, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

func (r *pgCartRepo) ListItems(ctx context.Context, tx pgx.Tx, cartID uuid.UUID) ([]model.CartItem, error) {
	return listItems(ctx, tx, cartID)
}

func listItems(ctx context.Context, q Querier, cartID uuid.UUID) ([]model.CartItem, error) {
	rows, err := q.Query(ctx,
		`SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.price, ci.active, ci.message,
		        ci.created_at, ci.updated_at,
		        p.name, p.price, p.stock, p.image_urls
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.created_at, ci.id`, cartID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	items := make([]model.CartItem, 0)
	for rows.Next() {
		var (
			item model.CartItem
			p    model.Product
		)
		if err := rows.Scan(
			&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.Price, &item.Active, &item.Message,
			&item.CreatedAt, &item.UpdatedAt,
			&p.Name, &p.Price, &p.Stock, &p.ImageURLs,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		p.ID = item.ProductID
		item.Product = &p
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

// UpsertItem writes the line for (cart, product), replacing quantity, price,
// active and message when the line already exists.
func (r *pgCartRepo) UpsertItem(ctx context.Context, tx pgx.Tx, item *model.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	query := `INSERT INTO cart_items (id, cart_id, product_id, quantity, price, active, message, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			  ON CONFLICT (cart_id, product_id) DO UPDATE
			  SET quantity = EXCLUDED.quantity, price = EXCLUDED.price,
			      active = EXCLUDED.active, message = EXCLUDED.message, updated_at = NOW()
			  RETURNING id, created_at, updated_at`
	err := tx.QueryRow(ctx, query,
		item.ID, item.CartID, item.ProductID, item.Quantity, item.Price, item.Active, item.Message,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

func (r *pgCartRepo) DeleteItem(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) error {
	ct, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgCartRepo) DeleteItems(ctx context.Context, tx pgx.Tx, cartID uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *pgCartRepo) UpdateTotal(ctx context.Context, tx pgx.Tx, cartID uuid.UUID, total decimal.Decimal) error {
	ct, err := tx.Exec(ctx,
		`UPDATE carts SET total_price = $2, updated_at = NOW() WHERE id = $1`, cartID, total,
	)
	if err != nil {
		return fmt.Errorf("update cart total: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SyncAvailability flags every cart line for the product as active when the
// requested quantity is still in stock and inactive with a message otherwise.
// Line prices are left alone.
func (r *pgCartRepo) SyncAvailability(ctx context.Context, tx pgx.Tx, productID uuid.UUID, stock int) (int64, error) {
	ct, err := tx.Exec(ctx,
		`UPDATE cart_items
		 SET active = (quantity <= $2::int),
		     message = CASE WHEN quantity <= $2::int THEN '' ELSE 'only ' || $2::int || ' left in stock' END,
		     updated_at = NOW()
		 WHERE product_id = $1`,
		productID, stock,
	)
	if err != nil {
		return 0, fmt.Errorf("sync cart availability: %w", err)
	}
	return ct.RowsAffected(), nil
}
