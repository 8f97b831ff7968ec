package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Category struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Size struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	ImageURLs   []string
	CategoryID  *uuid.UUID
	SizeID      *uuid.UUID
	// Populated on reads.
	Category  *Category
	Size      *Size
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cart is the per-user aggregate. TotalPrice always equals the sum of the
// Price of its items as of the last committed write.
type Cart struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TotalPrice decimal.Decimal
	Items      []CartItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItem is a cart line. Price is the line price (unit price × quantity)
// captured when the line was last written, not a live value.
type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Price     decimal.Decimal
	Active    bool
	Message   string
	Product   *Product
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusOnHold     OrderStatus = "on_hold"
)

// OrderStatuses lists every valid order status.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusReturned,
		OrderStatusRefunded,
		OrderStatusFailed,
		OrderStatusCompleted,
		OrderStatusOnHold,
	}
}

func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

type Order struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Status         OrderStatus
	TotalPrice     decimal.Decimal
	StockCommitted bool
	Items          []OrderItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderItem is an immutable snapshot of a cart line at order time.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Price     decimal.Decimal
	Active    bool
	Message   string
	CreatedAt time.Time
}

type OrderMessage struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}
