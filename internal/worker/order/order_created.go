package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/queue"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/orderdesk/worker/order")

var errMissingOrderID = errors.New("decode order created: missing orderId")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewOrderCreatedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// snsEnvelope is the JSON body SQS receives for messages fanned out from an SNS topic.
type snsEnvelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	Message   string `json:"Message"`
}

// NewOrderCreatedHandler sets up a worker handler that logs order creations. Bodies that are not
// order created events are logged with their payload and acknowledged.
func NewOrderCreatedHandler(logger *zap.Logger) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg queue.Message) error {
		_, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
			attribute.String("messaging.message.id", msg.ID),
		))
		defer span.End()

		event, err := DecodeOrderCreated(msg.Body)
		if err != nil {
			// Redelivery cannot make a body decodable; log it and let the poller delete it.
			logger.Warn("discarding undecodable order created message",
				zap.String("message_id", msg.ID),
				zap.ByteString("body", msg.Body),
				zap.Error(err),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		logger.Info("order created event processed",
			zap.String("message_id", msg.ID),
			zap.String("order_id", event.OrderID),
			zap.String("customer_name", event.CustomerName),
			zap.Float64("amount", event.Amount),
			zap.Bool("has_invoice", event.InvoiceURL != nil),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Name:    "order_created",
		Handler: handler,
	}
}

// DecodeOrderCreated parses an OrderCreatedEvent, unwrapping an SNS notification envelope if present.
func DecodeOrderCreated(body []byte) (ordersvc.OrderCreatedEvent, error) {
	var event ordersvc.OrderCreatedEvent

	var envelope snsEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Type == "Notification" {
		body = []byte(envelope.Message)
	}

	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("decode order created: %w", err)
	}
	if event.OrderID == "" {
		return event, errMissingOrderID
	}
	return event, nil
}
