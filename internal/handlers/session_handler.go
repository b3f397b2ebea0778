package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/models"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/services"
)

const dateLayout = "2006-01-02"

type SessionHandler struct {
	service sessionApplicationService
}

type sessionApplicationService interface {
	BookSession(ctx context.Context, clientID int64, input services.BookSessionInput) (*services.BookSessionResult, error)
	Availability(ctx context.Context, coachID int64, date time.Time) ([]int, error)
	ListSessions(ctx context.Context, actorID int64, role string, input services.ListSessionsInput) ([]models.SessionDetail, *models.PaginationMeta, error)
	GetSession(ctx context.Context, actorID int64, role string, sessionID int64) (*models.SessionDetail, error)
	CancelSession(ctx context.Context, actorID int64, role string, sessionID int64) (*models.SessionDetail, error)
	FinishSession(ctx context.Context, actorID int64, role string, sessionID int64, input services.FinishSessionInput) (*models.SessionDetail, error)
}

func NewSessionHandler(service *services.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type bookSessionRequest struct {
	CoachID int64  `json:"coach_id"`
	Date    string `json:"date"`
	Slot    int    `json:"slot"`
}

type finishSessionRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

func (h *SessionHandler) BookSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "user" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	clientID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req bookSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	date, err := time.Parse(dateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "date must be formatted as YYYY-MM-DD"})
	}

	result, err := h.service.BookSession(c.Context(), clientID, services.BookSessionInput{
		CoachID: req.CoachID,
		Date:    date,
		Slot:    req.Slot,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session":         result.Session,
		"payment_request": result.PaymentRequest,
	})
}

func (h *SessionHandler) Availability(c *fiber.Ctx) error {
	coachID, err := strconv.ParseInt(strings.TrimSpace(c.Query("coach_id")), 10, 64)
	if err != nil || coachID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "coach_id is required"})
	}

	date, err := time.Parse(dateLayout, strings.TrimSpace(c.Query("date")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "date must be formatted as YYYY-MM-DD"})
	}

	slots, err := h.service.Availability(c.Context(), coachID, date)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"coach_id": coachID,
		"date":     date.Format(dateLayout),
		"slots":    slots,
	})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || (role != "user" && role != "coach") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	page, limit := parsePagination(c)
	sessions, meta, err := h.service.ListSessions(c.Context(), actorID, role, services.ListSessionsInput{
		Status: strings.TrimSpace(c.Query("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"sessions": sessions, "pagination": meta})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || (role != "user" && role != "coach") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.GetSession(c.Context(), actorID, role, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CancelSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || (role != "user" && role != "coach") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.CancelSession(c.Context(), actorID, role, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) FinishSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "user" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req finishSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	session, err := h.service.FinishSession(c.Context(), actorID, role, sessionID, services.FinishSessionInput{
		Rating: req.Rating,
		Review: req.Review,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func parseActorID(c *fiber.Ctx) (int64, error) {
	actorIDValue := c.Locals("user_id")
	actorIDStr, ok := actorIDValue.(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(actorIDStr, 10, 64)
}

func mapSessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidSlot):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Slot already taken; pick another slot"})
	case errors.Is(err, services.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrCoachNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Coach not found"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
