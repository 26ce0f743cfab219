package file

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/presentation/http/response"
	service "github.com/Additional-Code/orderdesk/internal/service/file"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// Handler exposes standalone file uploads over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a file Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/files/upload", h.upload)
}

func (h *Handler) upload(c echo.Context) error {
	b := response.New(c)

	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return b.WithError(errorbank.BadRequest("file is required", errorbank.WithDetail("field", "file"))).Build()
		}
		return b.WithError(errorbank.BadRequest("invalid file part", errorbank.WithCause(err))).Build()
	}
	f, err := header.Open()
	if err != nil {
		return b.WithError(errorbank.Internal("failed to read file part", errorbank.WithCause(err))).Build()
	}
	defer f.Close()

	stored, err := h.svc.Upload(c.Request().Context(), service.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get(echo.HeaderContentType),
		Body:        f,
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.FileUploadResponse{
		Key:       stored.Key,
		Container: stored.Container,
		URL:       stored.URL,
	}).Build()
}
