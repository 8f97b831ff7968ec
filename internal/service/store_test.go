package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

// memStore is a map-backed stand-in for the postgres repositories. WithTx
// runs closures one at a time, snapshots every table first and restores the
// snapshot when the closure fails, so rolled-back writes are never visible.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products   map[uuid.UUID]model.Product
	carts      map[uuid.UUID]model.Cart
	items      map[uuid.UUID]model.CartItem
	orders     map[uuid.UUID]model.Order
	users      map[uuid.UUID]model.User
	categories map[uuid.UUID]model.Category
	sizes      map[uuid.UUID]model.Size

	// failOn makes the named method return the error.
	failOn map[string]error
	// conflicts is the number of upcoming WithTx calls that abort with a
	// serialization conflict before running the closure.
	conflicts int
	txCalls   int
	seq       int
}

func newMemStore() *memStore {
	return &memStore{
		products:   map[uuid.UUID]model.Product{},
		carts:      map[uuid.UUID]model.Cart{},
		items:      map[uuid.UUID]model.CartItem{},
		orders:     map[uuid.UUID]model.Order{},
		users:      map[uuid.UUID]model.User{},
		categories: map[uuid.UUID]model.Category{},
		sizes:      map[uuid.UUID]model.Size{},
		failOn:     map[string]error{},
	}
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type snapshot struct {
	products map[uuid.UUID]model.Product
	carts    map[uuid.UUID]model.Cart
	items    map[uuid.UUID]model.CartItem
	orders   map[uuid.UUID]model.Order
	users    map[uuid.UUID]model.User
}

func (m *memStore) WithTx(_ context.Context, fn func(tx pgx.Tx) error) (err error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	m.txCalls++
	if m.conflicts > 0 {
		m.conflicts--
		m.mu.Unlock()
		return fmt.Errorf("%w: injected", repository.ErrTxConflict)
	}
	snap := snapshot{
		products: maps.Clone(m.products),
		carts:    maps.Clone(m.carts),
		items:    maps.Clone(m.items),
		orders:   maps.Clone(m.orders),
		users:    maps.Clone(m.users),
	}
	m.mu.Unlock()

	restore := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.products, m.carts, m.items, m.orders, m.users = snap.products, snap.carts, snap.items, snap.orders, snap.users
	}
	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	if err := fn(nil); err != nil {
		restore()
		return err
	}
	return nil
}

func (m *memStore) fail(op string) error {
	if err, ok := m.failOn[op]; ok {
		return err
	}
	return nil
}

func (m *memStore) next() time.Time {
	m.seq++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Millisecond)
}

// --- seeding helpers ---

func (m *memStore) addProduct(price string, stock int) model.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := model.Product{ID: uuid.New(), Name: "product", Price: decimal.RequireFromString(price), Stock: stock, ImageURLs: []string{}}
	m.products[p.ID] = p
	return p
}

func (m *memStore) addCart(userID uuid.UUID) model.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := model.Cart{ID: uuid.New(), UserID: userID, TotalPrice: decimal.Zero, CreatedAt: m.next()}
	m.carts[c.ID] = c
	return c
}

func (m *memStore) cartOf(userID uuid.UUID) model.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.UserID == userID {
			c.Items = m.listItemsLocked(c.ID)
			return c
		}
	}
	return model.Cart{}
}

// --- ProductRepository ---

func (m *memStore) Create(_ context.Context, p *model.Product) error {
	if err := m.fail("Product.Create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CategoryID != nil {
		if _, ok := m.categories[*p.CategoryID]; !ok {
			return repository.ErrUnknownReference
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = m.next()
	p.UpdatedAt = p.CreatedAt
	m.products[p.ID] = *p
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	if err := m.fail("Product.GetByID"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) GetByIDTx(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*model.Product, error) {
	if err := m.fail("Product.GetByIDTx"); err != nil {
		return nil, err
	}
	return m.GetByID(ctx, id)
}

func (m *memStore) List(_ context.Context, limit, offset int, search, _, _ string) ([]model.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]model.Product, 0, len(m.products))
	for _, p := range m.products {
		if search == "" || strings.Contains(strings.ToLower(p.Name), strings.ToLower(search)) {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (m *memStore) Update(_ context.Context, _ pgx.Tx, p *model.Product) error {
	if err := m.fail("Product.Update"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return repository.ErrNotFound
	}
	p.UpdatedAt = m.next()
	m.products[p.ID] = *p
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrNotFound
	}
	for _, it := range m.items {
		if it.ProductID == id {
			return fmt.Errorf("delete product %s: %w", id, repository.ErrReferenced)
		}
	}
	for _, o := range m.orders {
		for _, it := range o.Items {
			if it.ProductID == id {
				return fmt.Errorf("delete product %s: %w", id, repository.ErrReferenced)
			}
		}
	}
	delete(m.products, id)
	return nil
}

func (m *memStore) DecrementStock(_ context.Context, _ pgx.Tx, productID uuid.UUID, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.Stock < quantity {
		return 0, fmt.Errorf("product %s: %w", productID, repository.ErrInsufficientStock)
	}
	p.Stock -= quantity
	m.products[productID] = p
	return p.Stock, nil
}

// --- CartRepository ---

type memCarts struct{ *memStore }

func (c memCarts) Create(_ context.Context, _ pgx.Tx, cart *model.Cart) error {
	if err := c.fail("Cart.Create"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cart.ID = uuid.New()
	cart.TotalPrice = decimal.Zero
	cart.CreatedAt = c.next()
	c.carts[cart.ID] = *cart
	return nil
}

func (c memCarts) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cart := range c.carts {
		if cart.UserID == userID {
			cart.Items = c.listItemsLocked(cart.ID)
			return &cart, nil
		}
	}
	return nil, nil
}

func (c memCarts) GetByUserIDForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*model.Cart, error) {
	if err := c.fail("Cart.GetByUserIDForUpdate"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cart := range c.carts {
		if cart.UserID == userID {
			return &cart, nil
		}
	}
	return nil, nil
}

func (c memCarts) ListItems(_ context.Context, _ pgx.Tx, cartID uuid.UUID) ([]model.CartItem, error) {
	if err := c.fail("Cart.ListItems"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listItemsLocked(cartID), nil
}

func (m *memStore) listItemsLocked(cartID uuid.UUID) []model.CartItem {
	out := make([]model.CartItem, 0)
	for _, it := range m.items {
		if it.CartID != cartID {
			continue
		}
		if p, ok := m.products[it.ProductID]; ok {
			it.Product = &p
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (c memCarts) UpsertItem(_ context.Context, _ pgx.Tx, item *model.CartItem) error {
	if err := c.fail("Cart.UpsertItem"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if item.Quantity <= 0 {
		return fmt.Errorf("upsert cart item: quantity check violated")
	}
	for id, existing := range c.items {
		if existing.CartID == item.CartID && existing.ProductID == item.ProductID {
			item.ID = id
			item.CreatedAt = existing.CreatedAt
			item.UpdatedAt = c.next()
			stored := *item
			stored.Product = nil
			c.items[id] = stored
			return nil
		}
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = c.next()
	item.UpdatedAt = item.CreatedAt
	stored := *item
	stored.Product = nil
	c.items[item.ID] = stored
	return nil
}

func (c memCarts) DeleteItem(_ context.Context, _ pgx.Tx, itemID uuid.UUID) error {
	if err := c.fail("Cart.DeleteItem"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[itemID]; !ok {
		return repository.ErrNotFound
	}
	delete(c.items, itemID)
	return nil
}

func (c memCarts) DeleteItems(_ context.Context, _ pgx.Tx, cartID uuid.UUID) error {
	if err := c.fail("Cart.DeleteItems"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, it := range c.items {
		if it.CartID == cartID {
			delete(c.items, id)
		}
	}
	return nil
}

func (c memCarts) UpdateTotal(_ context.Context, _ pgx.Tx, cartID uuid.UUID, total decimal.Decimal) error {
	if err := c.fail("Cart.UpdateTotal"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cart, ok := c.carts[cartID]
	if !ok {
		return repository.ErrNotFound
	}
	cart.TotalPrice = total
	cart.UpdatedAt = c.next()
	c.carts[cartID] = cart
	return nil
}

func (c memCarts) SyncAvailability(_ context.Context, _ pgx.Tx, productID uuid.UUID, stock int) (int64, error) {
	if err := c.fail("Cart.SyncAvailability"); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for id, it := range c.items {
		if it.ProductID != productID {
			continue
		}
		it.Active = it.Quantity <= stock
		it.Message = ""
		if !it.Active {
			it.Message = fmt.Sprintf("only %d left in stock", stock)
		}
		c.items[id] = it
		n++
	}
	return n, nil
}

// --- OrderRepository ---

type memOrders struct{ *memStore }

func (o memOrders) Create(_ context.Context, _ pgx.Tx, order *model.Order) error {
	if err := o.fail("Order.Create"); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	order.ID = uuid.New()
	order.CreatedAt = o.next()
	order.UpdatedAt = order.CreatedAt
	items := make([]model.OrderItem, len(order.Items))
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
		items[i] = order.Items[i]
	}
	stored := *order
	stored.Items = items
	o.orders[order.ID] = stored
	return nil
}

func (o memOrders) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[id]
	if !ok {
		return nil, nil
	}
	order.Items = append([]model.OrderItem(nil), order.Items...)
	return &order, nil
}

func (o memOrders) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.Order, 0)
	for _, order := range o.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (o memOrders) UpdateStatus(_ context.Context, id uuid.UUID, status model.OrderStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	order.Status = status
	o.orders[id] = order
	return nil
}

func (o memOrders) MarkStockCommitted(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[id]
	if !ok || order.StockCommitted {
		return false, nil
	}
	order.StockCommitted = true
	o.orders[id] = order
	return true, nil
}

// --- UserRepository ---

type memUsers struct{ *memStore }

func (u memUsers) Create(_ context.Context, _ pgx.Tx, user *model.User) error {
	if err := u.fail("User.Create"); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.users {
		if existing.Email == user.Email {
			return fmt.Errorf("create user: %w", repository.ErrDuplicate)
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = u.next()
	u.users[user.ID] = *user
	return nil
}

func (u memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (u memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, nil
}

// --- CatalogRepository ---

type memCatalog struct{ *memStore }

func (c memCatalog) CreateCategory(_ context.Context, cat *model.Category) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.categories {
		if existing.Name == cat.Name {
			return repository.ErrDuplicate
		}
	}
	cat.ID = uuid.New()
	c.categories[cat.ID] = *cat
	return nil
}

func (c memCatalog) ListCategories(context.Context) ([]model.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Category, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c memCatalog) CreateSize(_ context.Context, s *model.Size) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.sizes {
		if existing.Name == s.Name {
			return repository.ErrDuplicate
		}
	}
	s.ID = uuid.New()
	c.sizes[s.ID] = *s
	return nil
}

func (c memCatalog) ListSizes(context.Context) ([]model.Size, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Size, 0, len(c.sizes))
	for _, s := range c.sizes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var (
	_ repository.TxManager         = (*memStore)(nil)
	_ repository.ProductRepository = (*memStore)(nil)
	_ repository.CartRepository    = memCarts{}
	_ repository.OrderRepository   = memOrders{}
	_ repository.UserRepository    = memUsers{}
	_ repository.CatalogRepository = memCatalog{}
)
