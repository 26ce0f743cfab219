package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		HTTP:          config.HTTP{BodyLimit: "1K"},
		Observability: config.Observability{ServiceName: "orderdesk"},
	}
}

func TestNewEcho_Health(t *testing.T) {
	e := NewEcho(testConfig(), nil, zap.NewNop())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestNewEcho_BodyLimit(t *testing.T) {
	e := NewEcho(testConfig(), nil, zap.NewNop())
	e.POST("/echo", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 4096))))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestNewEcho_RecoversPanics(t *testing.T) {
	e := NewEcho(testConfig(), nil, zap.NewNop())
	e.GET("/boom", func(echo.Context) error { panic("boom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
