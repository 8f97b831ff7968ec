package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/model"
)

type ProductService interface {
	Create(ctx context.Context, req dto.CreateProductRequest) (*model.Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	List(ctx context.Context, req dto.ListProductsRequest) ([]model.Product, int, error)
	Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*model.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProductHandler struct {
	productService ProductService
	log            *slog.Logger
}

func NewProductHandler(productService ProductService, log *slog.Logger) *ProductHandler {
	return &ProductHandler{productService: productService, log: log}
}

func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	product, err := h.productService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToProductResponse(product))
}

func (h *ProductHandler) GetByID(c *gin.Context) {
	id, ok := parseUUID(c, c.Param("id"), "product ID")
	if !ok {
		return
	}

	product, err := h.productService.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProductResponse(product))
}

func (h *ProductHandler) List(c *gin.Context) {
	var req dto.ListProductsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	products, total, err := h.productService.List(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	resp := dto.ProductListResponse{
		Products: make([]dto.ProductResponse, 0, len(products)),
		Total:    total,
		Page:     req.Page,
		Limit:    req.Limit,
	}
	for i := range products {
		resp.Products = append(resp.Products, dto.ToProductResponse(&products[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// Update patches the product. Lowering stock re-flags cart lines that now
// exceed it.
func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := parseUUID(c, c.Param("id"), "product ID")
	if !ok {
		return
	}

	var req dto.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	product, err := h.productService.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProductResponse(product))
}

func (h *ProductHandler) Delete(c *gin.Context) {
	id, ok := parseUUID(c, c.Param("id"), "product ID")
	if !ok {
		return
	}

	if err := h.productService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}
