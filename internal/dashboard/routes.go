package dashboard

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tiffany-su2004/smart-greenhouse/internal/credentials"
)

func RegisterRoutes(app *fiber.App, st credentials.Store, h *Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"credentials": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.HealthCheck(healthCtx); err != nil {
			checks["credentials"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status":  status,
			"checks":  checks,
			"session": h.sessions.State(healthCtx).String(),
		})
	})

	// API routes
	v1 := app.Group("/api/v1")
	v1.Get("/snapshot", h.GetSnapshot)
	v1.Post("/controls", h.SetControl)
	v1.Get("/session", h.GetSession)
	v1.Post("/session/login", h.Login)
	v1.Post("/session/logout", h.Logout)
}
