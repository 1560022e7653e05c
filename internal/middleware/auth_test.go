package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuardedApp(apiKey string) *fiber.App {
	app := fiber.New()
	app.Get("/guarded", RequireAPIKey(apiKey), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"actor": GetActor(c)})
	})
	return app
}

func TestRequireAPIKey(t *testing.T) {
	app := newGuardedApp("secret-key")

	req := httptest.NewRequest("GET", "/guarded", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-Api-Key", "wrong-key")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-Api-Key", "secret-key")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireAPIKey_Unconfigured(t *testing.T) {
	app := newGuardedApp("")

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-Api-Key", "")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestGetActorDefault(t *testing.T) {
	app := fiber.New()
	var seen string
	app.Get("/x", RequireAPIKey("k"), func(c *fiber.Ctx) error {
		seen = GetActor(c)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Api-Key", "k")
	req.Header.Set("X-Actor", "warehouse-service")
	_, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "warehouse-service", seen)

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Api-Key", "k")
	_, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "api", seen)
}
