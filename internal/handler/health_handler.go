package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

type probe struct {
	name string
	ping func(ctx context.Context) error
}

// RegisterHealthRoutes mounts the probes. sqlDB and rdb are nil when the
// deployment does not use them; only configured dependencies are checked.
func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client) fiber.Handler {
	var probes []probe
	if sqlDB != nil {
		probes = append(probes, probe{name: "postgres", ping: sqlDB.PingContext})
	}
	if rdb != nil {
		probes = append(probes, probe{name: "redis", ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		checks := make(fiber.Map, len(probes))
		status, code := "ready", fiber.StatusOK
		for _, p := range probes {
			if err := p.ping(ctx); err != nil {
				checks[p.name] = "down"
				status, code = "not_ready", fiber.StatusServiceUnavailable
				continue
			}
			checks[p.name] = "ok"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
