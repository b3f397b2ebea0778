package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/models"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/repository"
	"github.com/kavishkanimsara/HustleHut-sub000/pkg/timeslot"
)

var (
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("slot already taken")
	ErrInvalidSlot       = errors.New("slot outside working hours or in the past")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidInput      = errors.New("invalid input")
	ErrCoachNotFound     = errors.New("coach not found")
)

const uniqueViolationCode = "23505"

type coachReader interface {
	GetByID(ctx context.Context, coachID int64) (*models.Coach, error)
	GetByUserID(ctx context.Context, userID int64) (*models.Coach, error)
}

type paymentInitiator interface {
	Initiate(ctx context.Context, db repository.DBTX, session *models.Session, coach *models.Coach) (*models.Payment, *models.PaymentRequest, error)
}

type SessionService struct {
	db          *pgxpool.Pool
	sessionRepo *repository.SessionRepository
	paymentRepo *repository.PaymentRepository
	coachRepo   coachReader
	payments    paymentInitiator
}

func NewSessionService(
	db *pgxpool.Pool,
	sessionRepo *repository.SessionRepository,
	paymentRepo *repository.PaymentRepository,
	coachRepo coachReader,
	payments paymentInitiator,
) *SessionService {
	return &SessionService{
		db:          db,
		sessionRepo: sessionRepo,
		paymentRepo: paymentRepo,
		coachRepo:   coachRepo,
		payments:    payments,
	}
}

type BookSessionInput struct {
	CoachID int64
	Date    time.Time
	Slot    int
}

type BookSessionResult struct {
	Session        *models.SessionDetail  `json:"session"`
	PaymentRequest *models.PaymentRequest `json:"payment_request"`
}

// BookSession reserves (coach, date, slot) for the client. The insert runs
// against the partial unique index over active statuses, so of N racing
// requests exactly one commits and the rest surface ErrConflict without any
// in-memory coordination. The payment row and outbound request are created
// in the same transaction as the session.
func (s *SessionService) BookSession(
	ctx context.Context,
	clientID int64,
	input BookSessionInput,
) (*BookSessionResult, error) {
	if input.CoachID <= 0 || clientID <= 0 || input.Date.IsZero() {
		return nil, ErrInvalidInput
	}

	coach, err := s.coachRepo.GetByID(ctx, input.CoachID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCoachNotFound
		}
		return nil, err
	}
	if coach.UserID == clientID {
		return nil, ErrInvalidInput
	}

	now := time.Now().UTC()
	if !timeslot.InWindow(coach.WorkStart, coach.WorkEnd, input.Slot) {
		return nil, ErrInvalidSlot
	}
	if timeslot.Elapsed(now, input.Date, input.Slot) {
		return nil, ErrInvalidSlot
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)

	session, err := txSessionRepo.Create(ctx, repository.CreateSessionInput{
		CoachID:  coach.ID,
		ClientID: clientID,
		Date:     timeslot.DateOf(input.Date),
		Slot:     input.Slot,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, ErrConflict
		}
		return nil, err
	}

	payment, paymentRequest, err := s.payments.Initiate(ctx, tx, session, coach)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &BookSessionResult{
		Session: &models.SessionDetail{
			Session: *session,
			Payment: payment,
		},
		PaymentRequest: paymentRequest,
	}, nil
}

// Availability recomputes the open slots from current storage state on
// every call; results are never cached across requests, which keeps the
// window between resolve and reserve as small as the database allows.
func (s *SessionService) Availability(
	ctx context.Context,
	coachID int64,
	date time.Time,
) ([]int, error) {
	coach, err := s.coachRepo.GetByID(ctx, coachID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCoachNotFound
		}
		return nil, err
	}

	held, err := s.sessionRepo.HeldSlots(ctx, coach.ID, timeslot.DateOf(date))
	if err != nil {
		return nil, err
	}

	return timeslot.Available(coach.WorkStart, coach.WorkEnd, held), nil
}

type ListSessionsInput struct {
	Status string
	Page   int
	Limit  int
}

func (s *SessionService) ListSessions(
	ctx context.Context,
	actorID int64,
	role string,
	input ListSessionsInput,
) ([]models.SessionDetail, *models.PaginationMeta, error) {
	filter := repository.SessionListFilter{
		Status: strings.TrimSpace(input.Status),
		Limit:  input.Limit,
		Offset: (input.Page - 1) * input.Limit,
	}

	switch role {
	case "coach":
		coach, err := s.coachRepo.GetByUserID(ctx, actorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil, ErrCoachNotFound
			}
			return nil, nil, err
		}
		filter.ActorCoachID = coach.ID
	case "user":
		filter.ActorClientID = actorID
	default:
		return nil, nil, ErrForbidden
	}

	sessions, total, err := s.sessionRepo.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	sessionIDs := make([]int64, 0, len(sessions))
	for _, session := range sessions {
		sessionIDs = append(sessionIDs, session.ID)
	}

	paymentsBySession, err := s.paymentRepo.ListBySessionIDs(ctx, sessionIDs)
	if err != nil {
		return nil, nil, err
	}

	details := make([]models.SessionDetail, 0, len(sessions))
	for _, session := range sessions {
		detail := models.SessionDetail{Session: session}
		if payment, ok := paymentsBySession[session.ID]; ok {
			paymentCopy := payment
			detail.Payment = &paymentCopy
		}
		details = append(details, detail)
	}

	meta := &models.PaginationMeta{
		Page:  input.Page,
		Limit: input.Limit,
		Total: total,
	}
	if total > 0 {
		meta.TotalPages = (total + input.Limit - 1) / input.Limit
	}

	return details, meta, nil
}

func (s *SessionService) GetSession(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
) (*models.SessionDetail, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, actorID, role, session); err != nil {
		return nil, err
	}

	detail := &models.SessionDetail{Session: *session}
	payment, err := s.paymentRepo.GetBySessionID(ctx, sessionID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		detail.Payment = payment
	}
	return detail, nil
}

// CancelSession releases the slot. Cancellation is legal only while the
// session still holds the slot and only on the day before the session;
// bookings are always made one day ahead, so that is the single point at
// which either side may back out.
func (s *SessionService) CancelSession(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
) (*models.SessionDetail, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, actorID, role, session); err != nil {
		return nil, err
	}

	if session.Status == models.SessionStatusCancelled || session.Status == models.SessionStatusFinished {
		return nil, ErrInvalidTransition
	}
	if !timeslot.IsTomorrow(time.Now().UTC(), session.Date) {
		return nil, ErrInvalidTransition
	}

	// Conditional write: if a racing payment callback or a second cancel
	// got here first the guard fails and we report the conflict instead of
	// overwriting a terminal status.
	cancelled, err := s.sessionRepo.CancelIfActive(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	return s.GetSession(ctx, actorID, role, cancelled.ID)
}

type FinishSessionInput struct {
	Rating int
	Review string
}

// FinishSession closes an accepted session once its slot has elapsed,
// storing the rating and review and folding the rating into the coach
// aggregate. The conditional accepted -> finished update and the aggregate
// increment share one transaction, so a session contributes exactly once.
func (s *SessionService) FinishSession(
	ctx context.Context,
	actorID int64,
	role string,
	sessionID int64,
	input FinishSessionInput,
) (*models.SessionDetail, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, ErrInvalidInput
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if role != "user" || session.ClientID != actorID {
		return nil, ErrForbidden
	}

	if session.Status != models.SessionStatusAccepted {
		return nil, ErrInvalidTransition
	}
	if !timeslot.Elapsed(time.Now().UTC(), session.Date, session.Slot) {
		return nil, ErrInvalidTransition
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)
	txCoachRepo := repository.NewCoachRepository(tx)

	finished, err := txSessionRepo.FinishIfAccepted(ctx, sessionID, input.Rating, strings.TrimSpace(input.Review))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	if err := txCoachRepo.ApplyRating(ctx, finished.CoachID, input.Rating); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return s.GetSession(ctx, actorID, role, finished.ID)
}

func (s *SessionService) GetCoach(ctx context.Context, coachID int64) (*models.CoachDetail, error) {
	coach, err := s.coachRepo.GetByID(ctx, coachID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCoachNotFound
		}
		return nil, err
	}
	return &models.CoachDetail{
		Coach:         *coach,
		AverageRating: coach.AverageRating(),
	}, nil
}

func (s *SessionService) authorizeParticipant(
	ctx context.Context,
	actorID int64,
	role string,
	session *models.Session,
) error {
	switch role {
	case "user":
		if session.ClientID != actorID {
			return ErrForbidden
		}
		return nil
	case "coach":
		coach, err := s.coachRepo.GetByUserID(ctx, actorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrForbidden
			}
			return err
		}
		if session.CoachID != coach.ID {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}
