package order

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/cache"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/notification"
	"github.com/Additional-Code/orderdesk/internal/objectstore"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/orderdesk/service/order")
)

// EventOrderCreated is the type carried by OrderCreatedEvent.
const EventOrderCreated = "order.created"

// Draft is the caller-supplied part of a new order.
type Draft struct {
	CustomerName string
	Amount       float64
}

// Attachment is an optional invoice file uploaded with an order.
// Size is -1 when unknown.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Empty reports whether there is nothing to upload.
func (a *Attachment) Empty() bool {
	return a == nil || a.Body == nil || a.Size == 0
}

// Service encapsulates business logic around orders.
type Service struct {
	repo      repo.Repository
	cache     cache.Store
	cacheTTL  time.Duration
	objects   objectstore.Store
	publisher notification.Publisher
	topic     string
	logger    *zap.Logger

	ordersCreated       metric.Int64Counter
	notificationsFailed metric.Int64Counter

	newID func() string
	now   func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository  repo.Repository
	Cache       cache.Store
	ObjectStore objectstore.Store
	Publisher   notification.Publisher
	Config      config.Config
	Logger      *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) (*Service, error) {
	created, err := serviceMeter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted"))
	if err != nil {
		return nil, err
	}
	failed, err := serviceMeter.Int64Counter("orders.notifications.failed",
		metric.WithDescription("Order created notifications that could not be published"))
	if err != nil {
		return nil, err
	}

	return &Service{
		repo:                p.Repository,
		cache:               p.Cache,
		cacheTTL:            p.Config.Cache.DefaultTTL,
		objects:             p.ObjectStore,
		publisher:           p.Publisher,
		topic:               p.Config.Notification.Topic,
		logger:              p.Logger,
		ordersCreated:       created,
		notificationsFailed: failed,
		newID:               uuid.NewString,
		now:                 func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

// Create validates the draft, uploads the optional invoice, persists the order and announces it.
// An upload or persistence failure aborts the call; a notification failure does not.
func (s *Service) Create(ctx context.Context, draft Draft, attachment *Attachment) (*entity.Order, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	order := &entity.Order{
		OrderID:      s.newID(),
		CustomerName: strings.TrimSpace(draft.CustomerName),
		Amount:       draft.Amount,
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(attribute.String("order.id", order.OrderID)))
	defer span.End()

	if !attachment.Empty() {
		url, err := s.uploadInvoice(ctx, attachment)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invoice upload failed")
			return nil, errorbank.Dependency("failed to upload invoice", errorbank.WithCause(err))
		}
		order.InvoiceURL = url
	}

	order.CreatedAt = s.now()
	if err := s.repo.Put(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Dependency("failed to save order", errorbank.WithCause(err))
	}
	s.ordersCreated.Add(ctx, 1)

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("order_id", order.OrderID), zap.Error(err))
	}

	s.publishOrderCreated(ctx, order)
	return order, nil
}

// Get retrieves an order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return nil, errorbank.BadRequest("order id is required")
	}

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.String("order_id", id), zap.Error(err))
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found", errorbank.WithDetail("orderId", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Dependency("failed to load order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("order_id", id), zap.Error(err))
	}
	return order, nil
}

// List returns every stored order. The scan is unpaginated and unordered.
func (s *Service) List(ctx context.Context) ([]entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	orders, err := s.repo.ScanAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Dependency("failed to list orders", errorbank.WithCause(err))
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

func validateDraft(draft Draft) error {
	if strings.TrimSpace(draft.CustomerName) == "" {
		return errorbank.BadRequest("customerName is required", errorbank.WithDetail("field", entity.FieldCustomerName))
	}
	if draft.Amount < 0 {
		return errorbank.BadRequest("amount must not be negative", errorbank.WithDetail("field", entity.FieldAmount))
	}
	return nil
}

// uploadInvoice returns nil without error when the body turns out to be empty.
func (s *Service) uploadInvoice(ctx context.Context, attachment *Attachment) (*string, error) {
	key, err := s.objects.Upload(ctx, objectstore.Object{
		Name:        attachment.Filename,
		ContentType: attachment.ContentType,
		Body:        attachment.Body,
	})
	if errors.Is(err, objectstore.ErrEmptyObject) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	url := s.objects.URL(key)
	return &url, nil
}

func (s *Service) publishOrderCreated(ctx context.Context, order *entity.Order) {
	payload, err := json.Marshal(NewOrderCreatedEvent(order))
	if err != nil {
		s.logger.Error("marshal order created", zap.Error(err))
		return
	}
	messageID, err := s.publisher.Publish(ctx, s.topic, payload)
	if err != nil {
		s.notificationsFailed.Add(ctx, 1)
		s.logger.Error("publish order created",
			zap.String("order_id", order.OrderID),
			zap.String("topic", s.topic),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("order created published", zap.String("order_id", order.OrderID), zap.String("message_id", messageID))
}

func cacheKey(id string) string {
	return "cache:order:" + id
}

func (s *Service) getFromCache(ctx context.Context, id string) (*entity.Order, error) {
	bytes, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	bytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, cacheKey(order.OrderID), bytes, s.cacheTTL)
}

// OrderCreatedEvent is emitted when a new order is persisted.
type OrderCreatedEvent struct {
	Type         string    `json:"type"`
	OrderID      string    `json:"orderId"`
	CustomerName string    `json:"customerName"`
	Amount       float64   `json:"amount"`
	InvoiceURL   *string   `json:"invoiceUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewOrderCreatedEvent describes order as an OrderCreatedEvent.
func NewOrderCreatedEvent(order *entity.Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		Type:         EventOrderCreated,
		OrderID:      order.OrderID,
		CustomerName: order.CustomerName,
		Amount:       order.Amount,
		InvoiceURL:   order.InvoiceURL,
		CreatedAt:    order.CreatedAt,
	}
}
