package file

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/objectstore"
	service "github.com/Additional-Code/orderdesk/internal/service/file"
)

func newRouter(objects objectstore.Store) *echo.Echo {
	e := echo.New()
	Register(e, NewHandler(service.NewService(objects, zap.NewNop())))
	return e
}

func uploadRequest(t *testing.T, field string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, "notes.txt")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/files/upload", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	objects := objectstore.NewMemoryStore("uploads")
	rec := httptest.NewRecorder()
	newRouter(objects).ServeHTTP(rec, uploadRequest(t, "file", []byte("hello")))

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Data dto.FileUploadResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "uploads", body.Data.Container)
	assert.Equal(t, objects.URL(body.Data.Key), body.Data.URL)

	data, err := objects.Download(context.Background(), body.Data.Key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestUpload_RejectsMissingAndEmptyFile(t *testing.T) {
	router := newRouter(objectstore.NewMemoryStore("uploads"))

	for name, req := range map[string]*http.Request{
		"missing": uploadRequest(t, "other", []byte("hello")),
		"empty":   uploadRequest(t, "file", nil),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
