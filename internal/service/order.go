package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/storefront-api/internal/event"
	"github.com/flicky/storefront-api/internal/metrics"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

type OrderService struct {
	tx        repository.TxManager
	carts     repository.CartRepository
	orders    repository.OrderRepository
	publisher event.Publisher
	log       *slog.Logger
}

// NewOrderService builds the order service. publisher may be nil, in which
// case no order.created messages are sent.
func NewOrderService(
	tx repository.TxManager,
	carts repository.CartRepository,
	orders repository.OrderRepository,
	publisher event.Publisher,
	log *slog.Logger,
) *OrderService {
	return &OrderService{tx: tx, carts: carts, orders: orders, publisher: publisher, log: log}
}

// CreateOrder snapshots the caller's cart lines into a new processing order.
// The cart itself is left as is.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID) (*model.Order, error) {
	var order *model.Order
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		cart, err := s.carts.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}
		if cart == nil {
			return ErrCartNotFound
		}
		items, err := s.carts.ListItems(ctx, tx, cart.ID)
		if err != nil {
			return fmt.Errorf("list cart items: %w", err)
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		o := &model.Order{
			UserID:     userID,
			Status:     model.OrderStatusProcessing,
			TotalPrice: sumLinePrices(items),
			Items:      make([]model.OrderItem, 0, len(items)),
		}
		for _, it := range items {
			o.Items = append(o.Items, model.OrderItem{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     it.Price,
				Active:    it.Active,
				Message:   it.Message,
			})
		}
		if err := s.orders.Create(ctx, tx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreatedTotal.Inc()
	log := s.log.With("order_id", order.ID, "user_id", userID)
	log.InfoContext(ctx, "order created", "total", order.TotalPrice.StringFixed(2), "lines", len(order.Items))

	if s.publisher != nil {
		msg := model.OrderMessage{OrderID: order.ID, UserID: userID}
		if err := s.publisher.PublishOrderCreated(ctx, msg); err != nil {
			log.WarnContext(ctx, "publish order created", "error", err)
		}
	}
	return order, nil
}

// GetByID returns one of the caller's orders.
func (s *OrderService) GetByID(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *OrderService) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	orders, err := s.orders.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus sets an order's status. Any of the defined statuses may be set
// from any other; there is no transition graph.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*model.Order, error) {
	st := model.OrderStatus(status)
	if !st.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := s.orders.UpdateStatus(ctx, orderID, st); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	s.log.InfoContext(ctx, "order status updated", "order_id", orderID, "status", st)
	return order, nil
}
