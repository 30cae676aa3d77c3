package handlers

import (
	"time"

	"digidost/middleware"
	"digidost/models"
	"digidost/services"

	"github.com/gofiber/fiber/v2"
)

type prizeRequest struct {
	Rank    int    `json:"rank"`
	Coins   int64  `json:"coins"`
	Gems    int64  `json:"gems"`
	BadgeID string `json:"badge_id"`
	Title   string `json:"title"`
}

type createTournamentRequest struct {
	Name            string                  `json:"name"`
	Description     string                  `json:"description"`
	Subject         string                  `json:"subject"`
	Grade           int                     `json:"grade"`
	Type            string                  `json:"type"`
	Difficulty      string                  `json:"difficulty"`
	EntryFee        int64                   `json:"entry_fee"`
	MaxParticipants int                     `json:"max_participants"`
	Status          models.TournamentStatus `json:"status"`
	StartDate       time.Time               `json:"start_date"`
	EndDate         time.Time               `json:"end_date"`
	Prizes          []prizeRequest          `json:"prizes"`
}

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService) {
	secured := app.Group("/tournaments", middleware.UserContextMiddleware())

	secured.Get("/", func(c *fiber.Ctx) error {
		status := models.TournamentStatus(c.Query("status"))
		if status != "" && !status.Valid() {
			return badRequest(c, "invalid status filter", nil)
		}
		tournaments, err := tournamentService.ListTournaments(c.UserContext(), status)
		if err != nil {
			return errorJSON(c, err, "failed to list tournaments")
		}
		return c.JSON(tournaments)
	})

	secured.Get("/:id", func(c *fiber.Ctx) error {
		t, err := tournamentService.GetTournament(c.UserContext(), c.Params("id"))
		if err != nil {
			return errorJSON(c, err, "failed to load tournament")
		}
		return c.JSON(t)
	})

	secured.Post("/:id/join", func(c *fiber.Ctx) error {
		part, err := tournamentService.JoinTournament(c.UserContext(), c.Params("id"), currentUser(c))
		if err != nil {
			return errorJSON(c, err, "failed to join tournament")
		}
		return c.Status(fiber.StatusCreated).JSON(part)
	})

	secured.Post("/:id/leave", func(c *fiber.Ctx) error {
		if err := tournamentService.LeaveTournament(c.UserContext(), c.Params("id"), currentUser(c)); err != nil {
			return errorJSON(c, err, "failed to leave tournament")
		}
		return c.JSON(fiber.Map{"message": "left tournament"})
	})

	secured.Post("/:id/results", func(c *fiber.Ctx) error {
		var req struct {
			Score        int64 `json:"score"`
			TimeTakenSec int   `json:"time_taken_sec"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		part, err := tournamentService.SubmitResult(c.UserContext(), c.Params("id"), currentUser(c), req.Score, req.TimeTakenSec)
		if err != nil {
			return errorJSON(c, err, "failed to submit result")
		}
		return c.JSON(part)
	})

	secured.Get("/:id/leaderboard", func(c *fiber.Ctx) error {
		entries, err := tournamentService.Leaderboard(c.UserContext(), c.Params("id"))
		if err != nil {
			return errorJSON(c, err, "failed to load leaderboard")
		}
		return c.JSON(entries)
	})

	// 🔒 Staff-only routes
	admin := app.Group("/s/admin/tournaments", middleware.UserContextMiddleware(), middleware.RequireRole(middleware.RoleTeacher, middleware.RolePrincipal))

	admin.Post("/", func(c *fiber.Ctx) error {
		var req createTournamentRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		t := &models.Tournament{
			Name:            req.Name,
			Description:     req.Description,
			Subject:         req.Subject,
			Grade:           req.Grade,
			Type:            req.Type,
			Difficulty:      req.Difficulty,
			EntryFee:        req.EntryFee,
			MaxParticipants: req.MaxParticipants,
			Status:          req.Status,
			StartDate:       req.StartDate,
			EndDate:         req.EndDate,
			CreatedByID:     currentUser(c),
		}
		for _, p := range req.Prizes {
			t.Prizes = append(t.Prizes, models.TournamentPrize{
				Rank:    p.Rank,
				Coins:   p.Coins,
				Gems:    p.Gems,
				BadgeID: p.BadgeID,
				Title:   p.Title,
			})
		}
		if err := tournamentService.CreateTournament(c.UserContext(), t); err != nil {
			return errorJSON(c, err, "failed to create tournament")
		}
		return c.Status(fiber.StatusCreated).JSON(t)
	})

	admin.Patch("/:id/status", func(c *fiber.Ctx) error {
		var req struct {
			Status models.TournamentStatus `json:"status"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		t, err := tournamentService.UpdateStatus(c.UserContext(), c.Params("id"), req.Status)
		if err != nil {
			return errorJSON(c, err, "failed to update status")
		}
		return c.JSON(t)
	})

	admin.Post("/:id/finalize", func(c *fiber.Ctx) error {
		results, err := tournamentService.FinalizeTournament(c.UserContext(), c.Params("id"))
		if err != nil {
			return errorJSON(c, err, "failed to finalize tournament")
		}
		return c.JSON(fiber.Map{"results": results})
	})
}
