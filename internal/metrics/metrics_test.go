package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareCountsByRoute(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/image/:id", func(c echo.Context) error { return c.String(http.StatusOK, "x") })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "no") })

	for _, p := range []string{"/api/image/1", "/api/image/2", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/image/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/boom", "418")))
}

func TestImagesChanged(t *testing.T) {
	m := New()
	m.ImagesChanged("image.uploaded", 3)
	m.ImagesChanged("image.uploaded", 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.images.WithLabelValues("image.uploaded")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.ImagesChanged("image.deleted", 1) })
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ImagesChanged("image.deleted", 1)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `image_changes_total{event="image.deleted"} 1`)
}

