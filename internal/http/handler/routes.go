package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"btcarts/internal/service"
)

// Pinger is a dependency the health endpoint checks.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DeliveryRecorder counts file delivery outcomes.
type DeliveryRecorder interface {
	ObserveDelivery(variant, outcome string)
}

// Deps are the collaborators RegisterRoutes wires into handlers.
type Deps struct {
	Applications service.ApplicationService
	Files        service.FileDeliveryService
	Health       []Pinger
	Deliveries   DeliveryRecorder
	Log          *slog.Logger

	// ReviewRateLimit is the per-client-IP request budget per minute on
	// reviewer links. Zero disables the limiter.
	ReviewRateLimit int
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// The admin gate is applied by the caller as global middleware.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Deliveries == nil {
		d.Deliveries = noopRecorder{}
	}

	app.Get("/health", HealthCheck(d.Health...))
	app.Get("/healthz", LivenessProbe())

	admin := app.Group("/api/admin")
	admin.Get("/applications", ListApplications(d.Applications))
	admin.Get("/applications/:id", GetApplication(d.Applications))
	admin.Patch("/applications/:id", UpdateApplication(d.Applications))
	admin.Post("/applications/:id/review-shares", IssueReviewShare(d.Applications))

	app.Get("/api/grants/files/:id", AdminFile(d.Files, d.Deliveries, d.Log))

	review := app.Group("/api/review")
	if d.ReviewRateLimit > 0 {
		review.Use(ReviewLimiter(d.ReviewRateLimit))
	}
	review.Get("/files/:token/:fileId", ReviewFile(d.Files, d.Deliveries, d.Log))
}

// ReviewLimiter caps reviewer link requests per client IP per minute.
func ReviewLimiter(perMinute int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return writeError(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		},
	})
}

// HealthCheck reports 503 when any dependency fails its ping.
func HealthCheck(deps ...Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		for _, p := range deps {
			if p == nil {
				continue
			}
			if err := p.PingContext(ctx); err != nil {
				return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
			}
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a dependency-free liveness endpoint.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

type noopRecorder struct{}

func (noopRecorder) ObserveDelivery(string, string) {}
