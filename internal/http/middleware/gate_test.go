package middleware

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"btcarts/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gateApp(cfg config.AdminConfig) *fiber.App {
	app := fiber.New()
	app.Use(RequestID())
	app.Use(AdminGate(cfg))

	ok := func(c *fiber.Ctx) error { return c.SendString("ok") }
	app.Get("/admin/x", ok)
	app.Get("/api/admin/x", ok)
	app.Get("/api/grants/files/:id", ok)
	app.Get("/administrator", ok)
	app.Get("/api/review/files/:token/:fileId", ok)
	return app
}

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func errorCode(t *testing.T, body io.Reader) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&payload))
	return payload.Error.Code
}

func TestIsGuardedPath(t *testing.T) {
	guarded := []string{"/admin", "/admin/", "/admin/x", "/api/admin", "/api/admin/applications", "/api/grants/files/abc", "/API/Admin/x"}
	open := []string{"/", "/administrator", "/api/adminx", "/api/review/files/t/f", "/api/grants", "/health"}

	for _, p := range guarded {
		assert.True(t, IsGuardedPath(p), p)
	}
	for _, p := range open {
		assert.False(t, IsGuardedPath(p), p)
	}
}

func TestAdminGate_Unconfigured(t *testing.T) {
	app := gateApp(config.AdminConfig{Username: "admin"})

	for _, path := range []string{"/admin/x", "/api/admin/x", "/api/grants/files/65a1f0c2e4b0a1b2c3d4e5f6"} {
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set(fiber.HeaderAuthorization, basic("admin", ""))
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, path)
		assert.Empty(t, resp.Header.Get(fiber.HeaderWWWAuthenticate))
		assert.Equal(t, "NOT_FOUND", errorCode(t, resp.Body))
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/administrator", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAdminGate_Configured(t *testing.T) {
	app := gateApp(config.AdminConfig{Username: "board", Password: "p@ss:word"})
	filePath := "/api/grants/files/65a1f0c2e4b0a1b2c3d4e5f6"

	t.Run("correct credentials", func(t *testing.T) {
		req := httptest.NewRequest("GET", filePath, nil)
		req.Header.Set(fiber.HeaderAuthorization, basic("board", "p@ss:word"))
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		b, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "ok", string(b))
	})

	challenges := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong password", basic("board", "nope")},
		{"wrong user", basic("root", "p@ss:word")},
		{"malformed base64", "Basic !!!not-base64"},
		{"missing colon", "Basic " + base64.StdEncoding.EncodeToString([]byte("boardp@ss"))},
		{"bearer scheme", "Bearer abc"},
	}
	for _, tt := range challenges {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/admin/x", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, `Basic realm="admin"`, resp.Header.Get(fiber.HeaderWWWAuthenticate))
			assert.Equal(t, "UNAUTHORIZED", errorCode(t, resp.Body))
		})
	}

	t.Run("unguarded paths pass through", func(t *testing.T) {
		for _, path := range []string{"/administrator", "/api/review/files/sometoken123/65a1f0c2e4b0a1b2c3d4e5f6"} {
			resp, err := app.Test(httptest.NewRequest("GET", path, nil))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode, path)
		}
	})
}
