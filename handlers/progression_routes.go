// handlers/progression_routes.go
package handlers

import (
	"strconv"
	"time"

	"digidost/middleware"
	"digidost/services"

	"github.com/gofiber/fiber/v2"
)

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func SetupProgressionRoutes(app *fiber.App, progressionService *services.ProgressionService, badgeService *services.BadgeService, authClient middleware.TokenValidator) {
	// 🔐 Secured routes: require user context (userID, roles)
	user := app.Group("/user/progress", middleware.UserContextMiddleware())

	user.Get("/", func(c *fiber.Ctx) error {
		userID := currentUser(c)
		prog, err := progressionService.Get(c.UserContext(), userID)
		if err != nil {
			return errorJSON(c, err, "failed to load progress")
		}
		badges, achievements, err := badgeService.Overview(c.UserContext(), userID)
		if err != nil {
			return errorJSON(c, err, "failed to evaluate badges")
		}
		return c.JSON(fiber.Map{
			"progress":     services.NewProgressSnapshot(prog),
			"badges":       badges,
			"achievements": achievements,
		})
	})

	user.Post("/daily-login", func(c *fiber.Ctx) error {
		prog, events, err := progressionService.Update(c.UserContext(), currentUser(c), func(e *services.Engine) error {
			return e.CheckDailyLogin(c.UserContext())
		})
		if err != nil {
			return errorJSON(c, err, "daily login failed")
		}
		return c.JSON(fiber.Map{
			"progress": services.NewProgressSnapshot(prog),
			"events":   events,
		})
	})

	user.Post("/coins/spend", spendHandler(progressionService, "coins"))
	user.Post("/gems/spend", spendHandler(progressionService, "gems"))

	user.Post("/activities", func(c *fiber.Ctx) error {
		var req struct {
			Kind  services.ActivityKind `json:"kind"`
			Score int                   `json:"score"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if !services.ValidActivity(req.Kind) {
			return badRequest(c, "kind must be lesson, quiz or assignment", nil)
		}
		prog, events, err := progressionService.RecordActivity(c.UserContext(), currentUser(c), req.Kind, req.Score)
		if err != nil {
			return errorJSON(c, err, "failed to record activity")
		}
		return c.JSON(fiber.Map{
			"progress": services.NewProgressSnapshot(prog),
			"events":   events,
		})
	})

	user.Get("/badges", func(c *fiber.Ctx) error {
		badges, achievements, err := badgeService.Overview(c.UserContext(), currentUser(c))
		if err != nil {
			return errorJSON(c, err, "failed to evaluate badges")
		}
		return c.JSON(fiber.Map{"badges": badges, "achievements": achievements})
	})

	user.Get("/badges/:id/progress", func(c *fiber.Ctx) error {
		id := c.Params("id")
		pct, ok, err := badgeService.BadgeProgress(c.UserContext(), currentUser(c), id)
		if err != nil {
			return errorJSON(c, err, "failed to compute badge progress")
		}
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "badge not found"})
		}
		return c.JSON(fiber.Map{"badge_id": id, "progress": pct})
	})

	user.Get("/achievements/:id/progress", func(c *fiber.Ctx) error {
		id := c.Params("id")
		pct, ok, err := badgeService.AchievementProgress(c.UserContext(), currentUser(c), id)
		if err != nil {
			return errorJSON(c, err, "failed to compute achievement progress")
		}
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "achievement not found"})
		}
		return c.JSON(fiber.Map{"achievement_id": id, "progress": pct})
	})

	user.Put("/preferences", func(c *fiber.Ctx) error {
		var req struct {
			TimeZone string `json:"time_zone"`
			Language string `json:"language"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if req.TimeZone != "" {
			if _, err := time.LoadLocation(req.TimeZone); err != nil {
				return badRequest(c, "unknown time zone", err)
			}
		}
		if req.Language != "" {
			if _, ok := services.SupportedLanguage(req.Language); !ok {
				return badRequest(c, "unsupported language", nil)
			}
		}
		prog, _, err := progressionService.Update(c.UserContext(), currentUser(c), func(e *services.Engine) error {
			return e.SetPreferences(c.UserContext(), req.TimeZone, req.Language)
		})
		if err != nil {
			return errorJSON(c, err, "failed to save preferences")
		}
		return c.JSON(services.NewProgressSnapshot(prog))
	})

	user.Get("/events", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		events, err := progressionService.RecentEvents(c.UserContext(), currentUser(c), limit)
		if err != nil {
			return errorJSON(c, err, "failed to list events")
		}
		return c.JSON(events)
	})

	user.Post("/events/:id/seen", func(c *fiber.Ctx) error {
		if err := progressionService.MarkEventSeen(c.UserContext(), currentUser(c), c.Params("id")); err != nil {
			return errorJSON(c, err, "failed to mark event seen")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	user.Get("/events/stream", progressionService.StreamProgressEventsSSE)

	// Browsers' EventSource cannot send the user headers; they authenticate
	// with a query token instead.
	if authClient != nil {
		app.Get("/sse/user/progress/events/stream", middleware.SSEAuthMiddleware(authClient), progressionService.StreamProgressEventsSSE)
	}

	// Manual unlocks are staff-only and target a student; achievements carry
	// XP and coin rewards.
	staff := app.Group("/s/admin/progress", middleware.UserContextMiddleware(), middleware.RequireRole(middleware.RoleTeacher, middleware.RolePrincipal))

	staff.Post("/:user_id/badges/:id/unlock", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, ok := progressionService.Catalog.Badge(id); !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "badge not found"})
		}
		prog, events, err := progressionService.Update(c.UserContext(), c.Params("user_id"), func(e *services.Engine) error {
			return e.UnlockBadge(c.UserContext(), id)
		})
		if err != nil {
			return errorJSON(c, err, "badge unlock failed")
		}
		return c.JSON(fiber.Map{"progress": services.NewProgressSnapshot(prog), "events": events})
	})

	staff.Post("/:user_id/achievements/:id/unlock", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, ok := progressionService.Catalog.Achievement(id); !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "achievement not found"})
		}
		prog, events, err := progressionService.Update(c.UserContext(), c.Params("user_id"), func(e *services.Engine) error {
			return e.UnlockAchievement(c.UserContext(), id)
		})
		if err != nil {
			return errorJSON(c, err, "achievement unlock failed")
		}
		return c.JSON(fiber.Map{"progress": services.NewProgressSnapshot(prog), "events": events})
	})

	// Admin endpoints
	admin := app.Group("/s/admin/xp", middleware.UserContextMiddleware(), middleware.RequireRole(middleware.RoleTeacher, middleware.RolePrincipal))

	admin.Post("/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
			XP     int64  `json:"xp"`
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if req.UserID == "" || req.XP <= 0 {
			return badRequest(c, "user_id and a positive xp are required", nil)
		}
		var leveledUp bool
		prog, _, err := progressionService.Update(c.UserContext(), req.UserID, func(e *services.Engine) error {
			var err error
			if leveledUp, err = e.AddXP(c.UserContext(), req.XP); err != nil {
				return err
			}
			_, err = e.EvaluateUnlocks(c.UserContext())
			return err
		})
		if err != nil {
			return errorJSON(c, err, "XP award failed")
		}
		return c.JSON(fiber.Map{
			"message":    "XP granted successfully",
			"user_id":    req.UserID,
			"xp":         req.XP,
			"reason":     req.Reason,
			"leveled_up": leveledUp,
			"progress":   services.NewProgressSnapshot(prog),
		})
	})

	admin.Post("/reset", func(c *fiber.Ctx) error {
		var req struct {
			Period services.LeaderboardPeriod `json:"period"`
			UserID string                     `json:"user_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if req.Period != services.PeriodWeekly && req.Period != services.PeriodMonthly {
			return badRequest(c, "period must be weekly or monthly", nil)
		}

		if req.UserID != "" {
			_, _, err := progressionService.Update(c.UserContext(), req.UserID, func(e *services.Engine) error {
				if req.Period == services.PeriodWeekly {
					return e.ResetWeeklyXP(c.UserContext())
				}
				return e.ResetMonthlyXP(c.UserContext())
			})
			if err != nil {
				return errorJSON(c, err, "reset failed")
			}
			return c.JSON(fiber.Map{"period": req.Period, "users": 1})
		}

		var (
			n   int64
			err error
		)
		if req.Period == services.PeriodWeekly {
			n, err = progressionService.ResetWeeklyXP(c.UserContext())
		} else {
			n, err = progressionService.ResetMonthlyXP(c.UserContext())
		}
		if err != nil {
			return errorJSON(c, err, "reset failed")
		}
		return c.JSON(fiber.Map{"period": req.Period, "users": n})
	})

	admin.Post("/ranks/refresh", func(c *fiber.Ctx) error {
		n, err := progressionService.RefreshRanks(c.UserContext())
		if err != nil {
			return errorJSON(c, err, "rank refresh failed")
		}
		return c.JSON(fiber.Map{"users": n})
	})
}

func spendHandler(progressionService *services.ProgressionService, currency string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req amountRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if req.Amount < 0 {
			return badRequest(c, "amount must not be negative", nil)
		}
		var spent bool
		prog, _, err := progressionService.Update(c.UserContext(), currentUser(c), func(e *services.Engine) error {
			var err error
			if currency == "gems" {
				spent, err = e.SpendGems(c.UserContext(), req.Amount)
			} else {
				spent, err = e.SpendCoins(c.UserContext(), req.Amount)
			}
			return err
		})
		if err != nil {
			return errorJSON(c, err, "spend failed")
		}
		status := fiber.StatusOK
		if !spent {
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{
			"spent":    spent,
			"currency": currency,
			"progress": services.NewProgressSnapshot(prog),
		})
	}
}
