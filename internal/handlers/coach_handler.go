package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/models"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/services"
)

type CoachHandler struct {
	service coachReadService
}

type coachReadService interface {
	GetCoach(ctx context.Context, coachID int64) (*models.CoachDetail, error)
}

func NewCoachHandler(service *services.SessionService) *CoachHandler {
	return &CoachHandler{service: service}
}

func (h *CoachHandler) GetCoach(c *fiber.Ctx) error {
	coachID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || coachID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid coach id"})
	}

	coach, err := h.service.GetCoach(c.Context(), coachID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"coach": coach})
}
