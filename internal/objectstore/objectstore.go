package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/awsclient"
	"github.com/Additional-Code/orderdesk/internal/config"
)

// ErrObjectNotFound is returned by Download when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ErrEmptyObject is returned by Upload when the body has no bytes.
var ErrEmptyObject = errors.New("object is empty")

// Object is a blob to upload. Name is the client-supplied file name.
type Object struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Store writes blobs into a container (bucket) and resolves their URLs.
type Store interface {
	// EnsureContainer creates the named container when it does not exist yet.
	EnsureContainer(ctx context.Context, name string) error
	// Upload stores the object in the default container under a fresh key and returns that key.
	Upload(ctx context.Context, obj Object) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	URL(key string) string
	Container() string
}

// Module provides the configured object store to Fx.
var Module = fx.Provide(NewStore)

// NewStore selects the driver and, when configured, ensures the default container on start.
func NewStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Store, error) {
	var store Store
	switch cfg.ObjectStore.Driver {
	case "s3":
		awsCfg, err := awsclient.Load(context.Background(), cfg.AWS)
		if err != nil {
			return nil, err
		}
		store = NewS3Store(awsCfg, cfg.AWS, cfg.ObjectStore, logger)
	case "memory":
		store = NewMemoryStore(cfg.ObjectStore.Bucket)
	default:
		return nil, fmt.Errorf("unsupported object store driver: %s", cfg.ObjectStore.Driver)
	}

	if cfg.ObjectStore.EnsureOnStart {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := store.EnsureContainer(ctx, store.Container()); err != nil {
					return fmt.Errorf("ensure bucket %s: %w", store.Container(), err)
				}
				return nil
			},
		})
	}

	logger.Info("object store configured",
		zap.String("driver", cfg.ObjectStore.Driver),
		zap.String("bucket", store.Container()),
	)
	return store, nil
}

// NewKey builds a collision-free key that keeps the original file name readable.
func NewKey(name string) string {
	return uuid.NewString() + "_" + sanitizeName(name)
}

func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// readBody drains the object body; a read failure is reported as an I/O error.
func readBody(obj Object) ([]byte, error) {
	if obj.Body == nil {
		return nil, ErrEmptyObject
	}
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", obj.Name, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyObject
	}
	return data, nil
}

func contentTypeOrDefault(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}
