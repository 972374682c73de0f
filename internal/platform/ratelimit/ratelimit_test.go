package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func fire(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_FixedWindow(t *testing.T) {
	e := echo.New()
	p := Policy{Name: "mail:send", Window: time.Minute, Limit: 2, Key: KeyEntityOrIP("mail:send")}
	e.POST("/send", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, Middleware(p))

	assert.Equal(t, http.StatusOK, fire(e, "/send", "").Code)
	assert.Equal(t, http.StatusOK, fire(e, "/send", "").Code)

	rec := fire(e, "/send", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMiddleware_EntityBucketsAreSeparate(t *testing.T) {
	e := echo.New()
	p := Policy{Name: "mail:send", Window: time.Minute, Limit: 1, Key: KeyEntityOrIP("mail:send")}
	e.POST("/send", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, Middleware(p))

	assert.Equal(t, http.StatusOK, fire(e, "/send", `{"entityId":"e1"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, fire(e, "/send", `{"entityId":"e1"}`).Code)
	// A different entity gets its own bucket.
	assert.Equal(t, http.StatusOK, fire(e, "/send", `{"entityId":"e2"}`).Code)
}

func TestKeyEntityOrIP_BodyStaysReadable(t *testing.T) {
	e := echo.New()
	p := Policy{Name: "mail:send", Window: time.Minute, Limit: 10, Key: KeyEntityOrIP("mail:send")}
	var got string
	e.POST("/send", func(c echo.Context) error {
		var body struct {
			EntityID string `json:"entityId"`
		}
		if err := c.Bind(&body); err != nil {
			return err
		}
		got = body.EntityID
		return c.NoContent(http.StatusOK)
	}, Middleware(p))

	assert.Equal(t, http.StatusOK, fire(e, "/send", `{"entityId":"e1"}`).Code)
	assert.Equal(t, "e1", got, "the key peek must not consume the body")
}
