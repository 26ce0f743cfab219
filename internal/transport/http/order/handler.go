package order

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	service "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orderdesk/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.create)
	g.POST("/upload", h.createWithUpload)
	g.GET("", h.list)
	g.GET("/:orderId", h.getByID)
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("orderId")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, err := h.svc.List(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toDTO(&orders[i]))
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	defer span.End()

	order, err := h.svc.Create(ctx, toDraft(payload), nil)
	if err != nil {
		return b.WithError(err).Build()
	}

	return created(b, order)
}

// createWithUpload accepts a multipart form with an "order" part (form field or JSON file part)
// and an optional "file" part holding the invoice.
func (h *Handler) createWithUpload(c echo.Context) error {
	b := response.New(c)

	raw, err := orderPart(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload dto.CreateOrderRequest
	if err := json.Unmarshal(raw, &payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid order part", errorbank.WithCause(err))).Build()
	}

	attachment, closeFile, err := filePart(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	defer closeFile()

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.createWithUpload", trace.WithAttributes(
		attribute.Bool("order.has_file", attachment != nil),
	))
	defer span.End()

	order, err := h.svc.Create(ctx, toDraft(payload), attachment)
	if err != nil {
		return b.WithError(err).Build()
	}

	return created(b, order)
}

func orderPart(c echo.Context) ([]byte, error) {
	if value := c.FormValue("order"); strings.TrimSpace(value) != "" {
		return []byte(value), nil
	}
	header, err := c.FormFile("order")
	if err != nil {
		return nil, errorbank.BadRequest("order part is required", errorbank.WithCause(err), errorbank.WithDetail("field", "order"))
	}
	f, err := header.Open()
	if err != nil {
		return nil, errorbank.BadRequest("unreadable order part", errorbank.WithCause(err))
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, errorbank.BadRequest("unreadable order part", errorbank.WithCause(err))
	}
	return raw, nil
}

func filePart(c echo.Context) (*service.Attachment, func(), error) {
	noop := func() {}
	header, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, errorbank.BadRequest("invalid file part", errorbank.WithCause(err))
	}
	if header.Size == 0 {
		return nil, noop, nil
	}
	f, err := header.Open()
	if err != nil {
		return nil, noop, errorbank.Internal("failed to read file part", errorbank.WithCause(err))
	}
	return &service.Attachment{
		Filename:    header.Filename,
		ContentType: contentType(header),
		Size:        header.Size,
		Body:        f,
	}, func() { _ = f.Close() }, nil
}

func contentType(header *multipart.FileHeader) string {
	return header.Header.Get(echo.HeaderContentType)
}

func created(b *response.Builder, order *entity.Order) error {
	return b.WithStatus(http.StatusCreated).
		WithHeader(echo.HeaderLocation, "/orders/"+order.OrderID).
		WithData(toDTO(order)).
		Build()
}

func toDraft(payload dto.CreateOrderRequest) service.Draft {
	return service.Draft{
		CustomerName: payload.CustomerName,
		Amount:       payload.Amount,
	}
}

func toDTO(order *entity.Order) dto.OrderResponse {
	return dto.OrderResponse{
		OrderID:      order.OrderID,
		CustomerName: order.CustomerName,
		Amount:       order.Amount,
		InvoiceURL:   order.InvoiceURL,
		CreatedAt:    order.CreatedAt,
	}
}
