package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/models"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/repository"
)

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrUnknownCallbackKind = errors.New("unknown callback kind")
)

const (
	CallbackKindCompleted = "completed"
	CallbackKindDismissed = "dismissed"
	CallbackKindError     = "error"
)

// PaymentService is the adapter between the booking core and the external
// payment processor. Outbound it builds the payment request for a freshly
// reserved session; inbound it absorbs the processor's at-least-once
// callbacks, keyed and deduplicated on the external order id.
type PaymentService struct {
	db              *pgxpool.Pool
	paymentRepo     *repository.PaymentRepository
	sessionRepo     *repository.SessionRepository
	callbackBaseURL string
	feePercent      float64
}

func NewPaymentService(
	db *pgxpool.Pool,
	paymentRepo *repository.PaymentRepository,
	sessionRepo *repository.SessionRepository,
	callbackBaseURL string,
	feePercent float64,
) *PaymentService {
	return &PaymentService{
		db:              db,
		paymentRepo:     paymentRepo,
		sessionRepo:     sessionRepo,
		callbackBaseURL: callbackBaseURL,
		feePercent:      feePercent,
	}
}

// Initiate creates the payment row for a pending session and builds the
// request the processor needs. It runs on the caller's transaction so the
// session and its payment commit or roll back together.
func (s *PaymentService) Initiate(
	ctx context.Context,
	db repository.DBTX,
	session *models.Session,
	coach *models.Coach,
) (*models.Payment, *models.PaymentRequest, error) {
	amount := coach.SessionFee
	fee := roundMoney(amount * s.feePercent / 100)
	orderID := uuid.NewString()

	payment, err := repository.NewPaymentRepository(db).Create(ctx, repository.CreatePaymentInput{
		SessionID:       session.ID,
		ExternalOrderID: orderID,
		Amount:          amount,
		Fee:             fee,
	})
	if err != nil {
		return nil, nil, err
	}

	request := &models.PaymentRequest{
		OrderID:      orderID,
		Amount:       amount,
		Fee:          fee,
		CompletedURL: s.callbackURL(CallbackKindCompleted),
		DismissedURL: s.callbackURL(CallbackKindDismissed),
		ErrorURL:     s.callbackURL(CallbackKindError),
	}
	return payment, request, nil
}

// HandleCallback processes one inbound notification from the processor.
// Replays of an already-settled order id return the stored payment
// unchanged; that is the expected shape of at-least-once delivery, not an
// error.
func (s *PaymentService) HandleCallback(
	ctx context.Context,
	kind string,
	orderID string,
) (*models.Payment, error) {
	switch kind {
	case CallbackKindCompleted:
		return s.handleCompleted(ctx, orderID)
	case CallbackKindDismissed, CallbackKindError:
		return s.handleFailed(ctx, orderID)
	default:
		return nil, ErrUnknownCallbackKind
	}
}

func (s *PaymentService) handleCompleted(ctx context.Context, orderID string) (*models.Payment, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txPaymentRepo := repository.NewPaymentRepository(tx)
	txSessionRepo := repository.NewSessionRepository(tx)
	txCoachRepo := repository.NewCoachRepository(tx)

	payment, err := txPaymentRepo.GetByOrderIDForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.Status != models.PaymentStatusInitiated {
		// Terminal already; a replayed delivery changes nothing.
		return payment, nil
	}

	remaining := roundMoney(payment.Amount - payment.Fee)
	completed, err := txPaymentRepo.CompleteIfInitiated(ctx, payment.ID, remaining)
	if err != nil {
		return nil, err
	}

	session, err := txSessionRepo.UpdateStatusIfCurrent(
		ctx,
		payment.SessionID,
		models.SessionStatusPending,
		models.SessionStatusAccepted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The session left pending before the money arrived (cancelled
			// or expired). Settle the payment but do not credit the coach;
			// the refund is the processor's side of the contract.
			log.Printf("payment %s completed for session %d no longer pending", orderID, payment.SessionID)
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return completed, nil
		}
		return nil, err
	}

	if err := txCoachRepo.CreditBalance(ctx, session.CoachID, remaining); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return completed, nil
}

func (s *PaymentService) handleFailed(ctx context.Context, orderID string) (*models.Payment, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txPaymentRepo := repository.NewPaymentRepository(tx)

	payment, err := txPaymentRepo.GetByOrderIDForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.Status != models.PaymentStatusInitiated {
		return payment, nil
	}

	// The session stays pending so the client may retry payment; the
	// scheduled sweep expires it if the date passes unpaid.
	failed, err := txPaymentRepo.FailIfInitiated(ctx, payment.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return failed, nil
}

func (s *PaymentService) callbackURL(kind string) string {
	return fmt.Sprintf("%s/api/payments/callback/%s", s.callbackBaseURL, kind)
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
