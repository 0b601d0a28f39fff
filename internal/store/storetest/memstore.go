// Package storetest provides an in-memory Order Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-checkout/internal/models"
	"storefront-checkout/internal/store"
)

// MemStore is a transactional in-memory Order Store. InTx works on a copy of
// the state and swaps it in only when fn succeeds, so rollbacks are real.
type MemStore struct {
	mu    sync.Mutex
	state *memState
	// FailOn makes the named Tx method return the error.
	FailOn map[string]error
}

type memState struct {
	users    map[string]models.User
	products map[int64]models.Product
	orders   map[int64]models.Order
	items    map[int64][]models.OrderItem
	payments map[int64]models.Payment
	nextID   int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		state: &memState{
			users:    map[string]models.User{},
			products: map[int64]models.Product{},
			orders:   map[int64]models.Order{},
			items:    map[int64][]models.OrderItem{},
			payments: map[int64]models.Payment{},
		},
		FailOn: map[string]error{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:    make(map[string]models.User, len(s.users)),
		products: make(map[int64]models.Product, len(s.products)),
		orders:   make(map[int64]models.Order, len(s.orders)),
		items:    make(map[int64][]models.OrderItem, len(s.items)),
		payments: make(map[int64]models.Payment, len(s.payments)),
		nextID:   s.nextID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]models.OrderItem(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// AddUser seeds the user directory.
func (m *MemStore) AddUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[u.ID] = u
}

// AddProduct seeds the catalog.
func (m *MemStore) AddProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = p
}

// RemoveProduct deletes a product from the catalog.
func (m *MemStore) RemoveProduct(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.products, id)
}

// Order returns the committed order row.
func (m *MemStore) Order(id int64) (models.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	return o, ok
}

// Payment returns the committed payment row of an order.
func (m *MemStore) Payment(orderID int64) (models.Payment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.payments[orderID]
	return p, ok
}

// Stock returns the committed stock of a product.
func (m *MemStore) Stock(productID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.products[productID].Stock
}

// PaymentCount is the number of committed payment rows.
func (m *MemStore) PaymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.payments)
}

// OrderCount is the number of committed orders.
func (m *MemStore) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

func (m *MemStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{state: m.state.clone(), failOn: m.FailOn}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *MemStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailOn["GetProductsByIDs"]; err != nil {
		return nil, err
	}
	var out []models.Product
	for _, id := range ids {
		if p, ok := m.state.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	return &o, nil
}

func (m *MemStore) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderItem(nil), m.state.items[orderID]...), nil
}

func (m *MemStore) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.payments[orderID]
	if !ok {
		return nil, fmt.Errorf("payment for order %d: %w", orderID, store.ErrNotFound)
	}
	return &p, nil
}

func (m *MemStore) Ping(ctx context.Context) error {
	return m.FailOn["Ping"]
}

type memTx struct {
	state  *memState
	failOn map[string]error
}

func (t *memTx) newID() int64 {
	t.state.nextID++
	return t.state.nextID
}

func (t *memTx) UserByID(ctx context.Context, id string) (*models.User, error) {
	if err := t.failOn["UserByID"]; err != nil {
		return nil, err
	}
	u, ok := t.state.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return &u, nil
}

func (t *memTx) ExistingProductIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	found := map[int64]bool{}
	for _, id := range ids {
		if _, ok := t.state.products[id]; ok {
			found[id] = true
		}
	}
	return found, nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *models.Order) error {
	if err := t.failOn["InsertOrder"]; err != nil {
		return err
	}
	order.ID = t.newID()
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt
	t.state.orders[order.ID] = *order
	return nil
}

func (t *memTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	if err := t.failOn["InsertOrderItem"]; err != nil {
		return err
	}
	if _, ok := t.state.orders[item.OrderID]; !ok {
		return fmt.Errorf("order %d: %w", item.OrderID, store.ErrNotFound)
	}
	item.ID = t.newID()
	t.state.items[item.OrderID] = append(t.state.items[item.OrderID], *item)
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	if err := t.failOn["LockOrder"]; err != nil {
		return nil, err
	}
	o, ok := t.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	return &o, nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, id int64, status, referenceCode string) error {
	if err := t.failOn["UpdateOrderStatus"]; err != nil {
		return err
	}
	o, ok := t.state.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	o.Status = status
	o.ReferenceCode = referenceCode
	o.UpdatedAt = time.Now().UTC()
	t.state.orders[id] = o
	return nil
}

func (t *memTx) OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := append([]models.OrderItem(nil), t.state.items[orderID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (t *memTx) DeleteOrder(ctx context.Context, id int64) error {
	if _, ok := t.state.orders[id]; !ok {
		return fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	delete(t.state.payments, id)
	delete(t.state.items, id)
	delete(t.state.orders, id)
	return nil
}

func (t *memTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	if err := t.failOn["InsertPayment"]; err != nil {
		return err
	}
	if _, exists := t.state.payments[p.OrderID]; exists {
		return fmt.Errorf("duplicate payment for order %d", p.OrderID)
	}
	p.ID = t.newID()
	t.state.payments[p.OrderID] = *p
	return nil
}

func (t *memTx) PaymentByOrderForUpdate(ctx context.Context, orderID int64) (*models.Payment, error) {
	p, ok := t.state.payments[orderID]
	if !ok {
		return nil, fmt.Errorf("payment for order %d: %w", orderID, store.ErrNotFound)
	}
	return &p, nil
}

func (t *memTx) UpdatePayment(ctx context.Context, p *models.Payment) error {
	if err := t.failOn["UpdatePayment"]; err != nil {
		return err
	}
	t.state.payments[p.OrderID] = *p
	return nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	if err := t.failOn["DecrementStock"]; err != nil {
		return false, err
	}
	p, ok := t.state.products[productID]
	if !ok {
		return false, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
	}
	clamped := p.Stock < quantity
	p.Stock -= quantity
	if p.Stock < 0 {
		p.Stock = 0
	}
	t.state.products[productID] = p
	return clamped, nil
}

func (t *memTx) MarkStockApplied(ctx context.Context, orderID int64) error {
	o := t.state.orders[orderID]
	o.StockApplied = true
	t.state.orders[orderID] = o
	return nil
}

var _ store.Repository = (*MemStore)(nil)
var _ store.Tx = (*memTx)(nil)

