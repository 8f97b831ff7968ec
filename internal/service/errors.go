package service

import (
	"errors"
	"fmt"

	"github.com/flicky/storefront-api/internal/metrics"
	"github.com/flicky/storefront-api/internal/repository"
)

// ErrNotFound is wrapped by every "X not found" error below.
var ErrNotFound = errors.New("not found")

var (
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrCartNotFound     = fmt.Errorf("cart %w", ErrNotFound)
	ErrCartItemNotFound = fmt.Errorf("cart item %w", ErrNotFound)
	ErrOrderNotFound    = fmt.Errorf("order %w", ErrNotFound)
)

var (
	ErrOutOfStock      = errors.New("requested quantity exceeds available stock")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrNotInCart       = errors.New("product is not in the cart")
	ErrEmptyCart       = errors.New("cart is empty")

	// ErrTransactionConflict means the transaction lost a race with a
	// concurrent one on the same rows and may be retried by the caller.
	ErrTransactionConflict = repository.ErrTxConflict

	ErrInvalidStatus     = errors.New("invalid order status")
	ErrOrderAccessDenied = errors.New("access denied")
	ErrProductInUse      = errors.New("product is referenced by carts or orders")
	ErrInvalidReference  = errors.New("category or size does not exist")
	ErrDuplicateName     = errors.New("name already exists")

	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// resultLabel buckets an operation outcome for the metrics counters.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrTransactionConflict):
		return metrics.ResultConflict
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrOutOfStock),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrNotInCart),
		errors.Is(err, ErrEmptyCart):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
