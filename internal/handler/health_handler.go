package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// BrokerStatus exposes the message broker's connection state to the
// readiness check without dialing.
type BrokerStatus interface {
	IsConnected() bool
}

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, broker BrokerStatus) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, broker))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler reports whether the worker can currently make progress:
// the notification store, the rate-limit store, and the job broker all
// have to be reachable.
func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client, broker BrokerStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		pgErr := sqlDB.PingContext(ctx)
		redisErr := rdb.Ping(ctx).Err()
		brokerUp := broker != nil && broker.IsConnected()

		checks := fiber.Map{
			"postgres": statusLabel(pgErr == nil),
			"redis":    statusLabel(redisErr == nil),
			"rabbitmq": statusLabel(brokerUp),
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if pgErr != nil || redisErr != nil || !brokerUp {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "down"
}
