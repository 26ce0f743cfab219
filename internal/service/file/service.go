package file

import (
	"context"
	"errors"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/objectstore"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/orderdesk/service/file")

// Upload is a file handed in by a client.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Stored describes where an uploaded file ended up.
type Stored struct {
	Key       string
	Container string
	URL       string
}

// Service stores standalone files in the object store.
type Service struct {
	objects objectstore.Store
	logger  *zap.Logger
}

// NewService wires a new Service instance.
func NewService(objects objectstore.Store, logger *zap.Logger) *Service {
	return &Service{objects: objects, logger: logger}
}

// Upload writes the file under a fresh key. A missing or empty file is a validation error.
func (s *Service) Upload(ctx context.Context, upload Upload) (*Stored, error) {
	ctx, span := serviceTracer.Start(ctx, "FileService.Upload", trace.WithAttributes(
		attribute.String("file.name", upload.Filename),
	))
	defer span.End()

	if upload.Body == nil {
		return nil, errorbank.BadRequest("file is required", errorbank.WithDetail("field", "file"))
	}

	key, err := s.objects.Upload(ctx, objectstore.Object{
		Name:        upload.Filename,
		ContentType: upload.ContentType,
		Body:        upload.Body,
	})
	if errors.Is(err, objectstore.ErrEmptyObject) {
		return nil, errorbank.BadRequest("file is empty", errorbank.WithDetail("field", "file"))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return nil, errorbank.Dependency("failed to store file", errorbank.WithCause(err))
	}

	s.logger.Info("file uploaded", zap.String("key", key), zap.String("bucket", s.objects.Container()))
	return &Stored{
		Key:       key,
		Container: s.objects.Container(),
		URL:       s.objects.URL(key),
	}, nil
}
