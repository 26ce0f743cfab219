package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/orderdesk/internal/cache"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/objectstore"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Put(ctx context.Context, order *entity.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockRepository) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	args := m.Called(ctx, id)
	order, _ := args.Get(0).(*entity.Order)
	return order, args.Error(1)
}

func (m *mockRepository) ScanAll(ctx context.Context) ([]entity.Order, error) {
	args := m.Called(ctx)
	orders, _ := args.Get(0).([]entity.Order)
	return orders, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, message []byte) (string, error) {
	args := m.Called(ctx, topic, message)
	return args.String(0), args.Error(1)
}

type mockObjectStore struct {
	mock.Mock
}

func (m *mockObjectStore) EnsureContainer(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *mockObjectStore) Upload(ctx context.Context, obj objectstore.Object) (string, error) {
	args := m.Called(ctx, obj)
	return args.String(0), args.Error(1)
}

func (m *mockObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockObjectStore) URL(key string) string {
	return m.Called(key).String(0)
}

func (m *mockObjectStore) Container() string {
	return "invoices"
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	repo      repo.Repository
	objects   objectstore.Store
	publisher *mockPublisher
	logs      *observer.ObservedLogs
}

func newFixture(t *testing.T, r repo.Repository, objects objectstore.Store) fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	publisher := new(mockPublisher)

	svc, err := NewService(Params{
		Repository:  r,
		Cache:       cache.NoopStore{},
		ObjectStore: objects,
		Publisher:   publisher,
		Config:      config.Config{Notification: config.Notification{Topic: "orders.events"}},
		Logger:      zap.New(core),
	})
	require.NoError(t, err)
	svc.newID = func() string { return "order-1" }
	svc.now = func() time.Time { return fixedNow }

	return fixture{svc: svc, repo: r, objects: objects, publisher: publisher, logs: logs}
}

func TestService_CreateWithoutAttachment(t *testing.T) {
	f := newFixture(t, repo.NewMemoryRepository(), objectstore.NewMemoryStore("invoices"))
	var published []byte
	f.publisher.On("Publish", mock.Anything, "orders.events", mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).([]byte) }).
		Return("msg-1", nil).Once()

	order, err := f.svc.Create(context.Background(), Draft{CustomerName: " Alice ", Amount: 42.5}, nil)
	require.NoError(t, err)

	assert.Equal(t, "order-1", order.OrderID)
	assert.Equal(t, "Alice", order.CustomerName)
	assert.Equal(t, 42.5, order.Amount)
	assert.Nil(t, order.InvoiceURL)
	assert.Equal(t, fixedNow, order.CreatedAt)

	stored, err := f.repo.GetByID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.CustomerName)

	var event OrderCreatedEvent
	require.NoError(t, json.Unmarshal(published, &event))
	assert.Equal(t, EventOrderCreated, event.Type)
	assert.Equal(t, "order-1", event.OrderID)
	assert.Nil(t, event.InvoiceURL)
	f.publisher.AssertExpectations(t)
}

func TestService_CreateStampsMicrosecondPrecision(t *testing.T) {
	f := newFixture(t, repo.NewMemoryRepository(), objectstore.NewMemoryStore("invoices"))
	fresh, err := NewService(Params{Logger: zap.NewNop()})
	require.NoError(t, err)
	f.svc.now = fresh.now
	f.publisher.On("Publish", mock.Anything, "orders.events", mock.Anything).Return("msg-1", nil).Once()

	order, err := f.svc.Create(context.Background(), Draft{CustomerName: "Alice", Amount: 1}, nil)
	require.NoError(t, err)
	assert.Zero(t, order.CreatedAt.Nanosecond()%int(time.Microsecond))
	assert.Equal(t, time.UTC, order.CreatedAt.Location())

	stored, err := f.repo.GetByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.True(t, order.CreatedAt.Equal(stored.CreatedAt))
}

func TestService_CreateWithAttachmentStoresInvoice(t *testing.T) {
	objects := objectstore.NewMemoryStore("invoices")
	f := newFixture(t, repo.NewMemoryRepository(), objects)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return("msg-1", nil)

	content := []byte("%PDF-1.4 invoice")
	order, err := f.svc.Create(context.Background(), Draft{CustomerName: "Bob", Amount: 10}, &Attachment{
		Filename:    "invoice.pdf",
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		Body:        bytes.NewReader(content),
	})
	require.NoError(t, err)
	require.True(t, order.HasInvoice())

	key, ok := objects.KeyFromURL(*order.InvoiceURL)
	require.True(t, ok)
	assert.Contains(t, key, "_invoice.pdf")
	data, err := objects.Download(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, "application/pdf", objects.ContentType(key))
}

func TestService_CreateWithEmptyAttachmentHasNoInvoice(t *testing.T) {
	f := newFixture(t, repo.NewMemoryRepository(), objectstore.NewMemoryStore("invoices"))
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return("msg-1", nil)

	order, err := f.svc.Create(context.Background(), Draft{CustomerName: "Bob"}, &Attachment{
		Filename: "empty.pdf",
		Size:     -1,
		Body:     bytes.NewReader(nil),
	})
	require.NoError(t, err)
	assert.Nil(t, order.InvoiceURL)
}

func TestService_CreateUploadFailurePersistsNothing(t *testing.T) {
	r := new(mockRepository)
	objects := new(mockObjectStore)
	objects.On("Upload", mock.Anything, mock.Anything).Return("", errors.New("bucket unreachable")).Once()
	f := newFixture(t, r, objects)

	order, err := f.svc.Create(context.Background(), Draft{CustomerName: "Bob", Amount: 1}, &Attachment{
		Filename: "invoice.pdf",
		Size:     3,
		Body:     bytes.NewReader([]byte("pdf")),
	})
	assert.Nil(t, order)
	assert.True(t, errorbank.IsKind(err, errorbank.KindDependency))
	r.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_CreatePersistFailureSkipsPublish(t *testing.T) {
	r := new(mockRepository)
	r.On("Put", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()
	f := newFixture(t, r, objectstore.NewMemoryStore("invoices"))

	order, err := f.svc.Create(context.Background(), Draft{CustomerName: "Bob", Amount: 1}, nil)
	assert.Nil(t, order)
	require.Error(t, err)
	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindDependency, appErr.Kind())
	assert.ErrorContains(t, err, "connection refused")
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_CreatePublishFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, repo.NewMemoryRepository(), objectstore.NewMemoryStore("invoices"))
	f.publisher.On("Publish", mock.Anything, "orders.events", mock.Anything).Return("", errors.New("topic not found")).Once()

	order, err := f.svc.Create(context.Background(), Draft{CustomerName: "Alice", Amount: 42.5}, nil)
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.OrderID)

	_, err = f.repo.GetByID(context.Background(), "order-1")
	require.NoError(t, err)

	entries := f.logs.FilterMessage("publish order created").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "order-1", entries[0].ContextMap()["order_id"])
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		draft Draft
		field string
	}{
		{name: "blank customer", draft: Draft{CustomerName: "   ", Amount: 1}, field: entity.FieldCustomerName},
		{name: "negative amount", draft: Draft{CustomerName: "Alice", Amount: -0.01}, field: entity.FieldAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := new(mockRepository)
			f := newFixture(t, r, objectstore.NewMemoryStore("invoices"))

			_, err := f.svc.Create(context.Background(), tt.draft, nil)
			appErr := errorbank.From(err)
			assert.Equal(t, errorbank.KindBadRequest, appErr.Kind())
			assert.Equal(t, tt.field, appErr.Details()["field"])
			r.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
		})
	}
}

func TestService_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		r := repo.NewMemoryRepository()
		require.NoError(t, r.Put(context.Background(), &entity.Order{OrderID: "o-1", CustomerName: "Alice", Amount: 3, CreatedAt: fixedNow}))
		f := newFixture(t, r, objectstore.NewMemoryStore("invoices"))

		order, err := f.svc.Get(context.Background(), "o-1")
		require.NoError(t, err)
		assert.Equal(t, "Alice", order.CustomerName)
	})

	t.Run("missing is not found", func(t *testing.T) {
		f := newFixture(t, repo.NewMemoryRepository(), objectstore.NewMemoryStore("invoices"))

		_, err := f.svc.Get(context.Background(), "nope")
		assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
	})

	t.Run("store failure is a dependency error", func(t *testing.T) {
		r := new(mockRepository)
		r.On("GetByID", mock.Anything, "o-1").Return(nil, errors.New("timeout")).Once()
		f := newFixture(t, r, objectstore.NewMemoryStore("invoices"))

		_, err := f.svc.Get(context.Background(), "o-1")
		assert.True(t, errorbank.IsKind(err, errorbank.KindDependency))
	})
}

type mapCache struct {
	items map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.items[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.items[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	delete(c.items, key)
	return nil
}

func TestService_GetReadsThroughCache(t *testing.T) {
	r := new(mockRepository)
	r.On("GetByID", mock.Anything, "o-1").
		Return(&entity.Order{OrderID: "o-1", CustomerName: "Alice", Amount: 3, CreatedAt: fixedNow}, nil).Once()
	f := newFixture(t, r, objectstore.NewMemoryStore("invoices"))
	c := &mapCache{items: map[string][]byte{}}
	f.svc.cache = c

	first, err := f.svc.Get(context.Background(), "o-1")
	require.NoError(t, err)
	second, err := f.svc.Get(context.Background(), "o-1")
	require.NoError(t, err)

	assert.Equal(t, first.CustomerName, second.CustomerName)
	assert.Contains(t, c.items, "cache:order:o-1")
	r.AssertExpectations(t)
}

func TestService_List(t *testing.T) {
	r := repo.NewMemoryRepository()
	f := newFixture(t, r, objectstore.NewMemoryStore("invoices"))
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return("msg", nil)

	ids := []string{"a", "b", "c"}
	for i, id := range ids {
		id := id
		f.svc.newID = func() string { return id }
		_, err := f.svc.Create(context.Background(), Draft{CustomerName: "Customer", Amount: float64(i)}, nil)
		require.NoError(t, err)
	}

	orders, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, len(ids))
	for _, o := range orders {
		got, err := f.svc.Get(context.Background(), o.OrderID)
		require.NoError(t, err)
		assert.Equal(t, o.Amount, got.Amount)
		assert.True(t, o.CreatedAt.Equal(got.CreatedAt))
	}

	failing := new(mockRepository)
	failing.On("ScanAll", mock.Anything).Return(nil, errors.New("scan failed"))
	f.svc.repo = failing
	_, err = f.svc.List(context.Background())
	assert.True(t, errorbank.IsKind(err, errorbank.KindDependency))
}
