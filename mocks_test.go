package creamery

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/mock"

	"goflare.io/creamery/models"
	"goflare.io/creamery/models/enum"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetOrder(ctx context.Context, tx pgx.Tx, orderID string) (*models.Order, error) {
	args := m.Called(ctx, tx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) GetOrderByPaymentIntentID(ctx context.Context, tx pgx.Tx, paymentIntentID string) (*models.Order, error) {
	args := m.Called(ctx, tx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) ListOrders(ctx context.Context, tx pgx.Tx, userID string, limit, offset uint64) ([]*models.Order, error) {
	args := m.Called(ctx, tx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID string, status enum.OrderStatus, updatedAt time.Time) error {
	args := m.Called(ctx, tx, orderID, status, updatedAt)
	return args.Error(0)
}

func (m *MockOrderRepository) InvalidateOrder(ctx context.Context, orderID string) {
	m.Called(ctx, orderID)
}

type MockAddressRepository struct {
	mock.Mock
}

func (m *MockAddressRepository) List(ctx context.Context, tx pgx.Tx, userID string) ([]models.Address, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Address), args.Error(1)
}

func (m *MockAddressRepository) Get(ctx context.Context, tx pgx.Tx, userID, addressID string) (*models.Address, error) {
	args := m.Called(ctx, tx, userID, addressID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Address), args.Error(1)
}

func (m *MockAddressRepository) Default(ctx context.Context, tx pgx.Tx, userID string) (*models.Address, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Address), args.Error(1)
}

func (m *MockAddressRepository) Add(ctx context.Context, tx pgx.Tx, a *models.Address) error {
	args := m.Called(ctx, tx, a)
	return args.Error(0)
}

func (m *MockAddressRepository) Update(ctx context.Context, tx pgx.Tx, a models.Address) error {
	args := m.Called(ctx, tx, a)
	return args.Error(0)
}

func (m *MockAddressRepository) Delete(ctx context.Context, tx pgx.Tx, userID, addressID string) error {
	args := m.Called(ctx, tx, userID, addressID)
	return args.Error(0)
}

func (m *MockAddressRepository) SetDefault(ctx context.Context, tx pgx.Tx, userID, addressID string) error {
	args := m.Called(ctx, tx, userID, addressID)
	return args.Error(0)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Upsert(ctx context.Context, tx pgx.Tx, profile models.UserProfile) (*models.UserProfile, error) {
	args := m.Called(ctx, tx, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func (m *MockUserRepository) Get(ctx context.Context, tx pgx.Tx, userID string) (*models.UserProfile, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func (m *MockUserRepository) SetPhotoURL(ctx context.Context, tx pgx.Tx, userID, photoURL string, updatedAt time.Time) error {
	args := m.Called(ctx, tx, userID, photoURL, updatedAt)
	return args.Error(0)
}

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Create(ctx context.Context, tx pgx.Tx, event *models.Event) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

func (m *MockEventRepository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Event, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockEventRepository) MarkAsProcessed(ctx context.Context, tx pgx.Tx, id string, updatedAt time.Time) error {
	args := m.Called(ctx, tx, id, updatedAt)
	return args.Error(0)
}

type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) List(ctx context.Context, tx pgx.Tx) ([]*models.Product, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Product), args.Error(1)
}

func (m *MockCatalogRepository) Get(ctx context.Context, tx pgx.Tx, id string) (*models.Product, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockCatalogRepository) Create(ctx context.Context, tx pgx.Tx, product *models.Product) error {
	return m.Called(ctx, tx, product).Error(0)
}

func (m *MockCatalogRepository) CreateMany(ctx context.Context, tx pgx.Tx, products []*models.Product) error {
	return m.Called(ctx, tx, products).Error(0)
}

func (m *MockCatalogRepository) UpdateFields(ctx context.Context, tx pgx.Tx, id string, fields models.ProductFields, updatedAt time.Time) (*models.Product, error) {
	args := m.Called(ctx, tx, id, fields, updatedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockCatalogRepository) SetAllStock(ctx context.Context, tx pgx.Tx, count int, updatedAt time.Time) error {
	return m.Called(ctx, tx, count, updatedAt).Error(0)
}

func (m *MockCatalogRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	return m.Called(ctx, tx, id).Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, amount float64, currency string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, amount, currency, metadata)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) CancelPaymentIntent(ctx context.Context, paymentIntentID string) error {
	return m.Called(ctx, paymentIntentID).Error(0)
}

type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Put(ctx context.Context, path, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, path, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) Delete(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockObjectStore) URL(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) PathOf(url string) (string, bool) {
	args := m.Called(url)
	return args.String(0), args.Bool(1)
}

// inlineTransactor runs the callback without a transaction. Every callback
// that returned nil counts as a commit.
type inlineTransactor struct {
	mu           sync.Mutex
	calls        int
	serializable int
	commits      int
	onCommit     func()
}

func (t *inlineTransactor) ExecuteTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	return t.run(fn)
}

func (t *inlineTransactor) ExecuteSerializableTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	t.mu.Lock()
	t.serializable++
	t.mu.Unlock()
	return t.run(fn)
}

func (t *inlineTransactor) run(fn func(tx pgx.Tx) error) error {
	if err := fn(nil); err != nil {
		return err
	}
	t.mu.Lock()
	t.commits++
	onCommit := t.onCommit
	t.mu.Unlock()
	if onCommit != nil {
		onCommit()
	}
	return nil
}

type publishedMessage struct {
	Subject string
	Data    []byte
}

// fakeBus records published messages and keeps subscribers so tests can
// deliver messages to them.
type fakeBus struct {
	mu        sync.Mutex
	published []publishedMessage
	handlers  map[string]nats.MsgHandler
	err       error
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]nats.MsgHandler)}
}

func (b *fakeBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, publishedMessage{Subject: subject, Data: data})
	return nil
}

func (b *fakeBus) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = cb
	return nil, nil
}

func (b *fakeBus) deliver(subscription, subject string, data []byte) {
	b.mu.Lock()
	cb := b.handlers[subscription]
	b.mu.Unlock()
	cb(&nats.Msg{Subject: subject, Data: data})
}

func (b *fakeBus) messages() []publishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishedMessage, len(b.published))
	copy(out, b.published)
	return out
}
