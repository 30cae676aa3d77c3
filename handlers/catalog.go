package handlers

import (
	"strconv"

	"digidost/middleware"
	"digidost/services"

	"github.com/gofiber/fiber/v2"
)

// SetupCatalogRoutes serves the badge/achievement catalog and the global
// leaderboard. store may be nil when no R2 bucket is configured; publishing
// is then unavailable.
func SetupCatalogRoutes(app *fiber.App, catalog *services.CatalogHolder, progressionService *services.ProgressionService, store services.ObjectStore, catalogKey string) {
	// 🔓 Public routes: no user context, still behind Gateway auth
	app.Get("/catalog", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"badges":       catalog.Badges(),
			"achievements": catalog.Achievements(),
		})
	})

	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		period := services.LeaderboardPeriod(c.Query("period", string(services.PeriodAllTime)))
		if !period.Valid() {
			return badRequest(c, "period must be all, weekly or monthly", nil)
		}
		limit, _ := strconv.Atoi(c.Query("limit", "20"))
		entries, err := progressionService.Leaderboard(c.UserContext(), period, limit)
		if err != nil {
			return errorJSON(c, err, "failed to load leaderboard")
		}
		return c.JSON(fiber.Map{"period": period, "entries": entries})
	})

	admin := app.Group("/s/admin/catalog", middleware.UserContextMiddleware(), middleware.RequireRole(middleware.RolePrincipal))

	// Body is the raw YAML catalog.
	admin.Post("/", func(c *fiber.Ctx) error {
		if store == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "catalog storage is not configured",
			})
		}
		published, err := services.PublishCatalog(c.UserContext(), store, catalogKey, c.Body(), catalog)
		if err != nil {
			return errorJSON(c, err, "failed to publish catalog")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"badges":       len(published.Badges()),
			"achievements": len(published.Achievements()),
		})
	})
}
