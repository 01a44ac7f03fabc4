package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
)

const readinessTimeout = 2 * time.Second

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, registry *lightning.Registry) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, registry))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler reports readiness: postgres and redis must answer, and at
// least one lightning backend must be connected for any currency.
func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client, registry *lightning.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		pgErr := sqlDB.PingContext(ctx)
		redisErr := rdb.Ping(ctx).Err()
		lightningUp := anyBackendConnected(registry)

		pgStatus := "ok"
		if pgErr != nil {
			pgStatus = "down"
		}
		redisStatus := "ok"
		if redisErr != nil {
			redisStatus = "down"
		}
		lightningStatus := "ok"
		if !lightningUp {
			lightningStatus = "down"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if pgErr != nil || redisErr != nil || !lightningUp {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"postgres":  pgStatus,
				"redis":     redisStatus,
				"lightning": lightningStatus,
			},
		})
	}
}

func anyBackendConnected(registry *lightning.Registry) bool {
	if registry == nil {
		return false
	}

	for _, currency := range registry.Currencies() {
		for _, client := range []lightning.Client{currency.LND, currency.CLN} {
			if client != nil && client.IsConnected() {
				return true
			}
		}
	}
	return false
}
