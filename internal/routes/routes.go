package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/config"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/handlers"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/middleware"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/repository"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/services"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) *services.ExpiryService {
	coachRepo := repository.NewCoachRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	paymentService := services.NewPaymentService(
		db,
		paymentRepo,
		sessionRepo,
		cfg.GatewayCallbackBaseURL,
		cfg.GatewayFeePercent,
	)
	sessionService := services.NewSessionService(db, sessionRepo, paymentRepo, coachRepo, paymentService)
	expiryService := services.NewExpiryService(sessionRepo)

	sessionHandler := handlers.NewSessionHandler(sessionService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	coachHandler := handlers.NewCoachHandler(sessionService)

	api := app.Group("/api")

	// Invoked by the external payment processor; no bearer token.
	api.Post("/payments/callback/:kind", paymentHandler.HandleCallback)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	sessions := authProtected.Group("/sessions")
	sessions.Post("/book", sessionHandler.BookSession)
	sessions.Get("/availability", sessionHandler.Availability)
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Post("/:id/finish", sessionHandler.FinishSession)
	sessions.Delete("/:id", sessionHandler.CancelSession)

	coaches := authProtected.Group("/coaches")
	coaches.Get("/:id", coachHandler.GetCoach)

	return expiryService
}
