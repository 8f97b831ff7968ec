package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/model"
)

type CatalogService interface {
	CreateCategory(ctx context.Context, name string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateSize(ctx context.Context, name string) (*model.Size, error)
	ListSizes(ctx context.Context) ([]model.Size, error)
}

// CatalogHandler serves the category and size lookups products refer to.
type CatalogHandler struct {
	svc CatalogService
	log *slog.Logger
}

func NewCatalogHandler(svc CatalogService, log *slog.Logger) *CatalogHandler {
	return &CatalogHandler{svc: svc, log: log}
}

func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req dto.CreateNamedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	cat, err := h.svc.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, dto.CategoryResponse{ID: cat.ID, Name: cat.Name})
}

func (h *CatalogHandler) ListCategories(c *gin.Context) {
	cats, err := h.svc.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToCategoryResponses(cats))
}

func (h *CatalogHandler) CreateSize(c *gin.Context) {
	var req dto.CreateNamedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	size, err := h.svc.CreateSize(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, dto.SizeResponse{ID: size.ID, Name: size.Name})
}

func (h *CatalogHandler) ListSizes(c *gin.Context) {
	sizes, err := h.svc.ListSizes(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToSizeResponses(sizes))
}
