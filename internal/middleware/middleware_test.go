package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/newport/internal/utils"
)

func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

func newPaymeAuthApp() *fiber.App {
	app := fiber.New()
	app.Post("/pay", PaymeAuthMiddleware("Paycom", "merchant-key"), func(c *fiber.Ctx) error {
		return c.SendString("reached")
	})
	return app
}

func TestPaymeAuthMiddlewareAccepts(t *testing.T) {
	app := newPaymeAuthApp()

	req := httptest.NewRequest(fiber.MethodPost, "/pay", strings.NewReader(`{"id":1}`))
	req.Header.Set(fiber.HeaderAuthorization, basicAuth("Paycom", "merchant-key"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestPaymeAuthMiddlewareRejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong password", basicAuth("Paycom", "guess")},
		{"wrong login", basicAuth("Other", "merchant-key")},
		{"bearer scheme", "Bearer merchant-key"},
		{"not base64", "Basic %%%"},
		{"no colon", "Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newPaymeAuthApp()

			req := httptest.NewRequest(fiber.MethodPost, "/pay", strings.NewReader(`{"id":42,"method":"CheckTransaction"}`))
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

			var body struct {
				ID    json.RawMessage `json:"id"`
				Error struct {
					Code int `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, -32504, body.Error.Code)
			assert.Equal(t, "42", string(body.ID))
		})
	}
}

func TestPaymeAuthMiddlewareEmptyKeyRejectsEverything(t *testing.T) {
	app := fiber.New()
	app.Post("/pay", PaymeAuthMiddleware("Paycom", ""), func(c *fiber.Ctx) error {
		return c.SendString("reached")
	})

	req := httptest.NewRequest(fiber.MethodPost, "/pay", nil)
	req.Header.Set(fiber.HeaderAuthorization, basicAuth("Paycom", ""))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "jwt-secret"
	userID := uuid.New()

	app := fiber.New()
	app.Get("/me", AuthMiddleware(secret), func(c *fiber.Ctx) error {
		id, ok := GetCurrentUserID(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(id.String())
	})

	valid, err := utils.GenerateToken(secret, userID, time.Hour)
	require.NoError(t, err)
	foreign, err := utils.GenerateToken("other-secret", userID, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + valid, fiber.StatusOK},
		{"lowercase scheme", "bearer " + valid, fiber.StatusOK},
		{"missing header", "", fiber.StatusUnauthorized},
		{"basic scheme", "Basic " + valid, fiber.StatusUnauthorized},
		{"foreign token", "Bearer " + foreign, fiber.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestGetCurrentUserIDWithoutMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		_, ok := GetCurrentUserID(c)
		assert.False(t, ok)
		return nil
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
}
