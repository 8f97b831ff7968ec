package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/model"
)

type CartService interface {
	GetCart(ctx context.Context, userID uuid.UUID, cartID *uuid.UUID) (*model.Cart, error)
	ApplyChange(ctx context.Context, userID, productID uuid.UUID, delta int, increment bool) (*model.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*model.Cart, error)
	RemoveAll(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
}

type CartHandler struct {
	svc CartService
	log *slog.Logger
}

func NewCartHandler(svc CartService, log *slog.Logger) *CartHandler {
	return &CartHandler{svc: svc, log: log}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	var cartID *uuid.UUID
	if raw := c.Query("cartId"); raw != "" {
		id, ok := parseUUID(c, raw, "cart ID")
		if !ok {
			return
		}
		cartID = &id
	}

	cart, err := h.svc.GetCart(c.Request.Context(), middleware.GetUserID(c), cartID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToCartResponse(cart))
}

// ApplyChange adds or subtracts quantity for one product and returns the
// whole cart.
func (h *CartHandler) ApplyChange(c *gin.Context) {
	var req dto.CartChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	cart, err := h.svc.ApplyChange(c.Request.Context(), middleware.GetUserID(c),
		req.ProductID, req.Quantity, *req.IsIncrement == 1)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToCartResponse(cart))
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	itemID, ok := parseUUID(c, c.Query("id"), "cart item ID")
	if !ok {
		return
	}

	cart, err := h.svc.RemoveItem(c.Request.Context(), middleware.GetUserID(c), itemID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToCartResponse(cart))
}

func (h *CartHandler) RemoveAll(c *gin.Context) {
	cart, err := h.svc.RemoveAll(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToCartResponse(cart))
}
