package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

// CatalogService manages the categories and sizes products point at.
type CatalogService struct {
	catalog repository.CatalogRepository
}

func NewCatalogService(catalog repository.CatalogRepository) *CatalogService {
	return &CatalogService{catalog: catalog}
}

func (s *CatalogService) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	c := &model.Category{Name: strings.TrimSpace(name)}
	if err := s.catalog.CreateCategory(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.catalog.ListCategories(ctx)
}

func (s *CatalogService) CreateSize(ctx context.Context, name string) (*model.Size, error) {
	sz := &model.Size{Name: strings.TrimSpace(name)}
	if err := s.catalog.CreateSize(ctx, sz); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("create size: %w", err)
	}
	return sz, nil
}

func (s *CatalogService) ListSizes(ctx context.Context) ([]model.Size, error) {
	return s.catalog.ListSizes(ctx)
}
