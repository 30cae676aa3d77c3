package handlers

import (
	"errors"
	"log"

	"digidost/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrTournamentNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidTournament), errors.Is(err, services.ErrInvalidCatalog):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotParticipant):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrInsufficientCoins):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrTournamentFull),
		errors.Is(err, services.ErrRegistrationClosed),
		errors.Is(err, services.ErrTournamentNotActive),
		errors.Is(err, services.ErrTournamentFinalized),
		errors.Is(err, services.ErrAlreadyJoined),
		errors.Is(err, services.ErrResultAlreadyRecorded):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

func errorJSON(c *fiber.Ctx, err error, msg string) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ %s %s: %s: %v", c.Method(), c.Path(), msg, err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string, err error) error {
	body := fiber.Map{"error": msg}
	if err != nil {
		body["cause"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

func currentUser(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
