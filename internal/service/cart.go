package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront-api/internal/metrics"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

// CartService applies quantity changes to a user's cart. Every mutation runs
// in one transaction that locks the cart row first, rewrites the affected
// line and then recomputes the cart total from all remaining lines.
type CartService struct {
	tx       repository.TxManager
	carts    repository.CartRepository
	products repository.ProductRepository
	log      *slog.Logger
}

func NewCartService(
	tx repository.TxManager,
	carts repository.CartRepository,
	products repository.ProductRepository,
	log *slog.Logger,
) *CartService {
	return &CartService{tx: tx, carts: carts, products: products, log: log}
}

// GetCart returns the caller's cart. A non-nil cartID must name that cart.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID, cartID *uuid.UUID) (*model.Cart, error) {
	cart, err := s.carts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart == nil || (cartID != nil && *cartID != cart.ID) {
		return nil, ErrCartNotFound
	}
	return cart, nil
}

// ApplyChange adds delta units of productID to the cart when increment is
// true and removes them otherwise. A line whose quantity reaches zero is
// deleted.
func (s *CartService) ApplyChange(ctx context.Context, userID, productID uuid.UUID, delta int, increment bool) (*model.Cart, error) {
	op := "decrement"
	if increment {
		op = "increment"
	}
	if delta <= 0 {
		metrics.CartChangesTotal.WithLabelValues(op, metrics.ResultRejected).Inc()
		return nil, ErrInvalidQuantity
	}

	var cart *model.Cart
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := s.lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		product, err := s.products.GetByIDTx(ctx, tx, productID)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return ErrProductNotFound
		}

		items, err := s.carts.ListItems(ctx, tx, c.ID)
		if err != nil {
			return fmt.Errorf("list cart items: %w", err)
		}
		existing := findByProduct(items, productID)

		current := 0
		if existing != nil {
			current = existing.Quantity
		}
		qty, err := nextQuantity(current, existing != nil, delta, increment, product.Stock)
		if err != nil {
			return err
		}

		if qty == 0 {
			if err := s.carts.DeleteItem(ctx, tx, existing.ID); err != nil {
				return fmt.Errorf("delete cart item: %w", err)
			}
		} else {
			active, message := availability(qty, product.Stock)
			line := &model.CartItem{
				CartID:    c.ID,
				ProductID: productID,
				Quantity:  qty,
				Price:     product.Price.Mul(decimal.NewFromInt(int64(qty))),
				Active:    active,
				Message:   message,
			}
			if existing != nil {
				line.ID = existing.ID
			}
			if err := s.carts.UpsertItem(ctx, tx, line); err != nil {
				return fmt.Errorf("upsert cart item: %w", err)
			}
		}

		cart, err = s.recomputeTotal(ctx, tx, c)
		return err
	})

	metrics.CartChangesTotal.WithLabelValues(op, resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "cart updated",
		"user_id", userID, "product_id", productID, "operation", op, "delta", delta,
		"total", cart.TotalPrice.StringFixed(2),
	)
	return cart, nil
}

// RemoveItem deletes one line from the caller's cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*model.Cart, error) {
	var cart *model.Cart
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := s.lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		items, err := s.carts.ListItems(ctx, tx, c.ID)
		if err != nil {
			return fmt.Errorf("list cart items: %w", err)
		}
		if !containsItem(items, itemID) {
			return ErrCartItemNotFound
		}
		if err := s.carts.DeleteItem(ctx, tx, itemID); err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		cart, err = s.recomputeTotal(ctx, tx, c)
		return err
	})

	metrics.CartChangesTotal.WithLabelValues("remove", resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "cart item removed", "user_id", userID, "item_id", itemID)
	return cart, nil
}

// RemoveAll empties the caller's cart and zeroes its total in one
// transaction.
func (s *CartService) RemoveAll(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	var cart *model.Cart
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := s.lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := s.carts.DeleteItems(ctx, tx, c.ID); err != nil {
			return err
		}
		if err := s.carts.UpdateTotal(ctx, tx, c.ID, decimal.Zero); err != nil {
			return fmt.Errorf("reset cart total: %w", err)
		}
		c.TotalPrice = decimal.Zero
		c.Items = []model.CartItem{}
		cart = c
		return nil
	})

	metrics.CartChangesTotal.WithLabelValues("remove_all", resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "cart cleared", "user_id", userID)
	return cart, nil
}

func (s *CartService) lockCart(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*model.Cart, error) {
	cart, err := s.carts.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	if cart == nil {
		return nil, ErrCartNotFound
	}
	return cart, nil
}

// recomputeTotal reloads every line of the cart and writes their exact sum as
// the cart total.
func (s *CartService) recomputeTotal(ctx context.Context, tx pgx.Tx, cart *model.Cart) (*model.Cart, error) {
	items, err := s.carts.ListItems(ctx, tx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("reload cart items: %w", err)
	}
	total := sumLinePrices(items)
	if err := s.carts.UpdateTotal(ctx, tx, cart.ID, total); err != nil {
		return nil, fmt.Errorf("update cart total: %w", err)
	}
	cart.Items = items
	cart.TotalPrice = total
	return cart, nil
}

// nextQuantity applies delta to the current line quantity. exists reports
// whether the cart already has a line for the product.
func nextQuantity(current int, exists bool, delta int, increment bool, stock int) (int, error) {
	if delta <= 0 {
		return 0, ErrInvalidQuantity
	}
	if increment {
		if current+delta > stock {
			return 0, ErrOutOfStock
		}
		return current + delta, nil
	}
	if !exists {
		return 0, ErrNotInCart
	}
	if delta > current {
		return 0, ErrInvalidQuantity
	}
	return current - delta, nil
}

// availability reports whether a line of qty units can be served from stock,
// with the message shown on the line when it cannot. A decrement may leave a
// line above stock after the product was restocked lower.
func availability(qty, stock int) (bool, string) {
	if qty <= stock {
		return true, ""
	}
	return false, fmt.Sprintf("only %d left in stock", stock)
}

func sumLinePrices(items []model.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price)
	}
	return total
}

func findByProduct(items []model.CartItem, productID uuid.UUID) *model.CartItem {
	for i := range items {
		if items[i].ProductID == productID {
			return &items[i]
		}
	}
	return nil
}

func containsItem(items []model.CartItem, id uuid.UUID) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}
