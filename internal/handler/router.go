package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/model"
)

// Handlers bundles every API handler the router mounts.
type Handlers struct {
	Auth    *AuthHandler
	Catalog *CatalogHandler
	Product *ProductHandler
	Cart    *CartHandler
	Order   *OrderHandler
	Health  *HealthHandler
}

// Route is one /api/v1 endpoint and the policy guarding it.
type Route struct {
	Method  string
	Path    string
	Policy  middleware.Policy
	Handler gin.HandlerFunc
}

var adminOnly = middleware.RoleOnly(model.RoleAdmin)

func (h Handlers) Routes() []Route {
	return []Route{
		{http.MethodPost, "/auth/register", middleware.Public, h.Auth.Register},
		{http.MethodPost, "/auth/login", middleware.Public, h.Auth.Login},

		{http.MethodGet, "/products", middleware.Public, h.Product.List},
		{http.MethodGet, "/products/:id", middleware.Public, h.Product.GetByID},
		{http.MethodPost, "/products", adminOnly, h.Product.Create},
		{http.MethodPut, "/products/:id", adminOnly, h.Product.Update},
		{http.MethodDelete, "/products/:id", adminOnly, h.Product.Delete},

		{http.MethodGet, "/categories", middleware.Public, h.Catalog.ListCategories},
		{http.MethodPost, "/categories", adminOnly, h.Catalog.CreateCategory},
		{http.MethodGet, "/sizes", middleware.Public, h.Catalog.ListSizes},
		{http.MethodPost, "/sizes", adminOnly, h.Catalog.CreateSize},

		{http.MethodPost, "/carts", middleware.Authenticated, h.Cart.ApplyChange},
		{http.MethodGet, "/carts/me", middleware.Authenticated, h.Cart.GetCart},
		{http.MethodDelete, "/carts", middleware.Authenticated, h.Cart.RemoveItem},
		{http.MethodDelete, "/carts/remove-all", middleware.Authenticated, h.Cart.RemoveAll},

		{http.MethodPost, "/orders", middleware.Authenticated, h.Order.CreateOrder},
		{http.MethodGet, "/orders", middleware.Authenticated, h.Order.ListOrders},
		{http.MethodGet, "/orders/:id", middleware.Authenticated, h.Order.GetOrder},
		{http.MethodPatch, "/orders/:id/status", adminOnly, h.Order.UpdateStatus},
	}
}

func NewRouter(h Handlers, jwtSecret string, log *slog.Logger) *gin.Engine {
	RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(log), middleware.Metrics())

	r.GET("/healthz", h.Health.Healthz)
	r.GET("/readyz", h.Health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	for _, rt := range h.Routes() {
		v1.Handle(rt.Method, rt.Path, middleware.Require(rt.Policy, jwtSecret), rt.Handler)
	}
	return r
}
