package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/storefront-api/internal/cache"
	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

type ProductService struct {
	tx       repository.TxManager
	products repository.ProductRepository
	carts    repository.CartRepository
	cache    *cache.ProductCache
	log      *slog.Logger
}

func NewProductService(
	tx repository.TxManager,
	products repository.ProductRepository,
	carts repository.CartRepository,
	productCache *cache.ProductCache,
	log *slog.Logger,
) *ProductService {
	return &ProductService{tx: tx, products: products, carts: carts, cache: productCache, log: log}
}

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*model.Product, error) {
	product := &model.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageURLs:   req.ImageURLs,
		CategoryID:  req.CategoryID,
		SizeID:      req.SizeID,
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, mapProductErr("create product", err)
	}
	// Reload so category and size names are populated.
	created, err := s.products.GetByID(ctx, product.ID)
	if err != nil {
		s.log.WarnContext(ctx, "reload created product", "product_id", product.ID, "error", err)
		return product, nil
	}
	if created == nil {
		return product, nil
	}
	return created, nil
}

// GetByID reads through the product cache. Cart and order flows never use
// this path; they read the row inside their own transaction.
func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		s.log.WarnContext(ctx, "product cache read", "product_id", id, "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if err := s.cache.Set(ctx, product); err != nil {
		s.log.WarnContext(ctx, "product cache write", "product_id", id, "error", err)
	}
	return product, nil
}

func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) ([]model.Product, int, error) {
	offset := (req.Page - 1) * req.Limit
	products, total, err := s.products.List(ctx, req.Limit, offset, req.Search, req.Sort, req.Order)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// Update applies the patch and, in the same transaction, re-flags every cart
// line holding the product as active or inactive against the new stock.
func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*model.Product, error) {
	var (
		product *model.Product
		synced  int64
	)
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		p, err := s.products.GetByIDTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		if p == nil {
			return ErrProductNotFound
		}
		applyProductPatch(p, req)

		if err := s.products.Update(ctx, tx, p); err != nil {
			return mapProductErr("update product", err)
		}
		synced, err = s.carts.SyncAvailability(ctx, tx, p.ID, p.Stock)
		if err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.log.InfoContext(ctx, "product updated", "product_id", id, "stock", product.Stock, "cart_lines_synced", synced)
	return product, nil
}

func applyProductPatch(p *model.Product, req dto.UpdateProductRequest) {
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.Stock != nil {
		p.Stock = *req.Stock
	}
	if req.ImageURLs != nil {
		p.ImageURLs = req.ImageURLs
	}
	if req.CategoryID != nil {
		p.CategoryID = req.CategoryID
		p.Category = nil
	}
	if req.SizeID != nil {
		p.SizeID = req.SizeID
		p.Size = nil
	}
}

func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return mapProductErr("delete product", err)
	}
	s.invalidate(ctx, id)
	s.log.InfoContext(ctx, "product deleted", "product_id", id)
	return nil
}

func (s *ProductService) invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.WarnContext(ctx, "product cache invalidate", "product_id", id, "error", err)
	}
}

func mapProductErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrProductNotFound
	case errors.Is(err, repository.ErrReferenced):
		return ErrProductInUse
	case errors.Is(err, repository.ErrUnknownReference):
		return ErrInvalidReference
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
