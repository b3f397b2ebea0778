package handlers

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/models"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/services"
)

// PaymentHandler receives the gateway's outcome callbacks. The route is
// unauthenticated: the external processor is the caller, and idempotence on
// the order id is what protects us, not a bearer token.
type PaymentHandler struct {
	service paymentCallbackService
}

type paymentCallbackService interface {
	HandleCallback(ctx context.Context, kind string, orderID string) (*models.Payment, error)
}

func NewPaymentHandler(service *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

type paymentCallbackRequest struct {
	OrderID string `json:"order_id"`
}

func (h *PaymentHandler) HandleCallback(c *fiber.Ctx) error {
	kind := strings.TrimSpace(c.Params("kind"))

	var req paymentCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "order_id is required"})
	}

	payment, err := h.service.HandleCallback(c.Context(), kind, orderID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownCallbackKind):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown callback kind"})
		case errors.Is(err, services.ErrPaymentNotFound):
			// Logged and dropped; the processor should not retry an id we
			// never issued.
			log.Printf("payment callback %s for unknown order %s", kind, orderID)
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payment not found"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process payment callback"})
		}
	}

	return c.JSON(fiber.Map{"payment": payment})
}
