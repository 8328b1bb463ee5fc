package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"order-of-ash/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func echoPlayer(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"player_id": PlayerID(c)})
}

func TestSessionMiddleware(t *testing.T) {
	issuer := utils.NewSessionIssuer("secret", time.Hour)
	app := fiber.New()
	app.Get("/me", SessionMiddleware(issuer, zap.NewNop()), echoPlayer)

	token, _, err := issuer.Issue(7, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"bearer token", "Bearer " + token, fiber.StatusOK},
		{"raw token", token, fiber.StatusOK},
		{"missing", "", fiber.StatusUnauthorized},
		{"garbage", "Bearer nope", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestSSEAuthMiddleware(t *testing.T) {
	issuer := utils.NewSessionIssuer("secret", time.Hour)
	app := fiber.New()
	app.Get("/stream", SSEAuthMiddleware(issuer, zap.NewNop()), echoPlayer)

	token, _, err := issuer.Issue(7, time.Now())
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/stream?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/stream", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/stream?token=bad", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestServiceTokenMiddleware(t *testing.T) {
	app := fiber.New()
	app.Post("/internal", ServiceTokenMiddleware("svc-token", zap.NewNop()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest("POST", "/internal", nil)
	req.Header.Set("X-Service-Token", "svc-token")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	req = httptest.NewRequest("POST", "/internal", nil)
	req.Header.Set("Authorization", "Bearer svc-token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	req = httptest.NewRequest("POST", "/internal", nil)
	req.Header.Set("X-Service-Token", "wrong")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	app := fiber.New()
	app.Get("/", RateLimit(2), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for i, want := range []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests} {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, "request %d", i)
	}
}
