package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront-api/internal/model"
)

// Money renders a decimal amount as a fixed-point string with two decimals.
func Money(d decimal.Decimal) string { return d.StringFixed(2) }

// --- Auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Role      string    `json:"role"`
}

func ToUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID: u.ID, Email: u.Email,
		FirstName: u.FirstName, LastName: u.LastName, Role: u.Role,
	}
}

// --- Catalog ---

type CreateNamedRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type CategoryResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type SizeResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func ToCategoryResponses(cs []model.Category) []CategoryResponse {
	out := make([]CategoryResponse, len(cs))
	for i, c := range cs {
		out[i] = CategoryResponse{ID: c.ID, Name: c.Name}
	}
	return out
}

func ToSizeResponses(ss []model.Size) []SizeResponse {
	out := make([]SizeResponse, len(ss))
	for i, s := range ss {
		out[i] = SizeResponse{ID: s.ID, Name: s.Name}
	}
	return out
}

// --- Product ---

type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" binding:"required,gt=0"`
	Stock       *int            `json:"stock" binding:"required,min=0"`
	ImageURLs   []string        `json:"imageUrls" binding:"omitempty,dive,url"`
	CategoryID  *uuid.UUID      `json:"categoryId"`
	SizeID      *uuid.UUID      `json:"sizeId"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name" binding:"omitempty,min=1"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" binding:"omitempty,gt=0"`
	Stock       *int             `json:"stock" binding:"omitempty,min=0"`
	ImageURLs   []string         `json:"imageUrls" binding:"omitempty,dive,url"`
	CategoryID  *uuid.UUID       `json:"categoryId"`
	SizeID      *uuid.UUID       `json:"sizeId"`
}

type ListProductsRequest struct {
	Page   int    `form:"page,default=1" binding:"min=1"`
	Limit  int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search string `form:"search"`
	Sort   string `form:"sort,default=created_at" binding:"oneof=name price created_at"`
	Order  string `form:"order,default=desc" binding:"oneof=asc desc"`
}

type ProductResponse struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Price       string            `json:"price"`
	Stock       int               `json:"stock"`
	ImageURLs   []string          `json:"imageUrls"`
	Category    *CategoryResponse `json:"category,omitempty"`
	Size        *SizeResponse     `json:"size,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

func ToProductResponse(p *model.Product) ProductResponse {
	resp := ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       Money(p.Price),
		Stock:       p.Stock,
		ImageURLs:   p.ImageURLs,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if resp.ImageURLs == nil {
		resp.ImageURLs = []string{}
	}
	if p.Category != nil {
		resp.Category = &CategoryResponse{ID: p.Category.ID, Name: p.Category.Name}
	}
	if p.Size != nil {
		resp.Size = &SizeResponse{ID: p.Size.ID, Name: p.Size.Name}
	}
	return resp
}

// --- Cart ---

// CartChangeRequest adds to or subtracts from a product's quantity in the
// caller's cart. IsIncrement is 1 to add and 0 to subtract.
type CartChangeRequest struct {
	ProductID   uuid.UUID `json:"productId" binding:"required"`
	Quantity    int       `json:"quantity" binding:"required,min=1"`
	IsIncrement *int      `json:"isIncrement" binding:"required,oneof=0 1"`
}

type CartResponse struct {
	ID         uuid.UUID          `json:"id"`
	UserID     uuid.UUID          `json:"userId"`
	TotalPrice string             `json:"totalPrice"`
	Items      []CartItemResponse `json:"items"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

type CartItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	UnitPrice string    `json:"unitPrice"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
	Active    bool      `json:"active"`
	Message   string    `json:"message,omitempty"`
	ImageURLs []string  `json:"imageUrls"`
}

func ToCartResponse(c *model.Cart) CartResponse {
	resp := CartResponse{
		ID:         c.ID,
		UserID:     c.UserID,
		TotalPrice: Money(c.TotalPrice),
		Items:      make([]CartItemResponse, 0, len(c.Items)),
		UpdatedAt:  c.UpdatedAt,
	}
	for _, it := range c.Items {
		item := CartItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     Money(it.Price),
			Active:    it.Active,
			Message:   it.Message,
			ImageURLs: []string{},
		}
		if it.Product != nil {
			item.Name = it.Product.Name
			item.UnitPrice = Money(it.Product.Price)
			if it.Product.ImageURLs != nil {
				item.ImageURLs = it.Product.ImageURLs
			}
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}

// --- Order ---

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type OrderResponse struct {
	ID         uuid.UUID           `json:"id"`
	UserID     uuid.UUID           `json:"userId"`
	Status     model.OrderStatus   `json:"status"`
	TotalPrice string              `json:"totalPrice"`
	Items      []OrderItemResponse `json:"items"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

type OrderItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
	Active    bool      `json:"active"`
	Message   string    `json:"message,omitempty"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

func ToOrderResponse(o *model.Order) OrderResponse {
	resp := OrderResponse{
		ID:         o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		TotalPrice: Money(o.TotalPrice),
		Items:      make([]OrderItemResponse, 0, len(o.Items)),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     Money(it.Price),
			Active:    it.Active,
			Message:   it.Message,
		})
	}
	return resp
}
