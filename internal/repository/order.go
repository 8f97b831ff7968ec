package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/storefront-api/internal/model"
)

type OrderRepository interface {
	// Create inserts the order and all of its items inside tx.
	Create(ctx context.Context, tx pgx.Tx, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error
	// MarkStockCommitted flips the stock-committed flag and reports whether this
	// call was the one that flipped it.
	MarkStockCommitted(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

type pgOrderRepo struct{ db Querier }

func NewOrderRepository(db Querier) OrderRepository {
	return &pgOrderRepo{db: db}
}

func (r *pgOrderRepo) Create(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	order.ID = uuid.New()
	err := tx.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, status, total_price, stock_committed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, FALSE, NOW(), NOW()) RETURNING created_at, updated_at`,
		order.ID, order.UserID, string(order.Status), order.TotalPrice,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.ID = uuid.New()
		item.OrderID = order.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, price, active, message, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING created_at`,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price, item.Active, item.Message,
		).Scan(&item.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgOrderRepo) MarkStockCommitted(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	ct, err := tx.Exec(ctx,
		`UPDATE orders SET stock_committed = TRUE, updated_at = NOW() WHERE id = $1 AND stock_committed = FALSE`, id,
	)
	if err != nil {
		return false, fmt.Errorf("mark stock committed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order := &model.Order{}
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, status, total_price, stock_committed, created_at, updated_at FROM orders WHERE id = $1`, id,
	).Scan(&order.ID, &order.UserID, &status, &order.TotalPrice, &order.StockCommitted, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	order.Status = model.OrderStatus(status)

	rows, err := r.db.Query(ctx,
		`SELECT id, product_id, quantity, price, active, message, created_at
		 FROM order_items WHERE order_id = $1 ORDER BY created_at, id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	order.Items = make([]model.OrderItem, 0)
	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.Price, &item.Active, &item.Message, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return order, nil
}

func (r *pgOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, status, total_price, stock_committed, created_at, updated_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		var (
			o      model.Order
			status string
		)
		o.UserID = userID
		if err := rows.Scan(&o.ID, &status, &o.TotalPrice, &o.StockCommitted, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}
