package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/models"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/repository"
	"github.com/kavishkanimsara/HustleHut-sub000/pkg/timeslot"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestSessionServiceBookAndPaymentFlow(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	sessionService, paymentService := newIntegrationServices(pool)

	coachID := createTestCoach(t, ctx, pool, 8, 12, 120)
	clientID := nextTestClientID()
	t.Cleanup(func() { cleanupTestCoaches(t, ctx, pool, coachID) })

	date := timeslot.DateOf(time.Now().UTC()).AddDate(0, 0, 1)

	slots, err := sessionService.Availability(ctx, coachID, date)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(slots) != 4 || slots[0] != 8 || slots[3] != 11 {
		t.Fatalf("expected slots [8 9 10 11], got %v", slots)
	}

	result, err := sessionService.BookSession(ctx, clientID, BookSessionInput{
		CoachID: coachID,
		Date:    date,
		Slot:    9,
	})
	if err != nil {
		t.Fatalf("BookSession: %v", err)
	}
	if result.Session.Status != models.SessionStatusPending {
		t.Fatalf("expected pending session, got %q", result.Session.Status)
	}
	if result.Session.Payment == nil || result.Session.Payment.Status != models.PaymentStatusInitiated {
		t.Fatalf("expected initiated payment, got %+v", result.Session.Payment)
	}
	if result.PaymentRequest == nil || result.PaymentRequest.Amount != 120 || result.PaymentRequest.Fee != 12 {
		t.Fatalf("unexpected payment request: %+v", result.PaymentRequest)
	}

	slots, err = sessionService.Availability(ctx, coachID, date)
	if err != nil {
		t.Fatalf("Availability after booking: %v", err)
	}
	if len(slots) != 3 || contains(slots, 9) {
		t.Fatalf("expected slot 9 removed, got %v", slots)
	}

	orderID := result.PaymentRequest.OrderID
	payment, err := paymentService.HandleCallback(ctx, CallbackKindCompleted, orderID)
	if err != nil {
		t.Fatalf("HandleCallback completed: %v", err)
	}
	if payment.Status != models.PaymentStatusCompleted || payment.Remaining != 108 {
		t.Fatalf("unexpected payment after completion: %+v", payment)
	}

	detail, err := sessionService.GetSession(ctx, clientID, "user", result.Session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if detail.Status != models.SessionStatusAccepted {
		t.Fatalf("expected accepted session after payment, got %q", detail.Status)
	}

	balance := coachBalance(t, ctx, pool, coachID)
	if balance != 108 {
		t.Fatalf("expected coach balance 108, got %v", balance)
	}

	// At-least-once delivery: replays must not move any state again.
	for i := 0; i < 3; i++ {
		replayed, err := paymentService.HandleCallback(ctx, CallbackKindCompleted, orderID)
		if err != nil {
			t.Fatalf("replay %d: %v", i+1, err)
		}
		if replayed.Status != models.PaymentStatusCompleted {
			t.Fatalf("replay %d: unexpected status %q", i+1, replayed.Status)
		}
	}
	if balance := coachBalance(t, ctx, pool, coachID); balance != 108 {
		t.Fatalf("expected balance unchanged after replays, got %v", balance)
	}
}

func TestSessionServiceConcurrentReservationsSingleWinner(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	sessionService, _ := newIntegrationServices(pool)

	coachID := createTestCoach(t, ctx, pool, 8, 12, 90)
	t.Cleanup(func() { cleanupTestCoaches(t, ctx, pool, coachID) })

	date := timeslot.DateOf(time.Now().UTC()).AddDate(0, 0, 1)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sessionService.BookSession(ctx, nextTestClientID(), BookSessionInput{
				CoachID: coachID,
				Date:    date,
				Slot:    10,
			})
		}(i)
	}
	wg.Wait()

	won, conflicted := 0, 0
	for _, err := range errs {
		switch err {
		case nil:
			won++
		case ErrConflict:
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || conflicted != attempts-1 {
		t.Fatalf("expected exactly one winner, got %d winners and %d conflicts", won, conflicted)
	}
}

func TestSessionServiceCancellationWindow(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	sessionService, _ := newIntegrationServices(pool)

	coachID := createTestCoach(t, ctx, pool, 8, 12, 75)
	clientID := nextTestClientID()
	t.Cleanup(func() { cleanupTestCoaches(t, ctx, pool, coachID) })

	today := timeslot.DateOf(time.Now().UTC())

	// Booked for the day after tomorrow: not yet cancellable.
	farResult, err := sessionService.BookSession(ctx, clientID, BookSessionInput{
		CoachID: coachID,
		Date:    today.AddDate(0, 0, 2),
		Slot:    9,
	})
	if err != nil {
		t.Fatalf("BookSession +2d: %v", err)
	}
	if _, err := sessionService.CancelSession(ctx, clientID, "user", farResult.Session.ID); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition outside window, got %v", err)
	}

	// Booked for tomorrow: inside the window.
	nearResult, err := sessionService.BookSession(ctx, clientID, BookSessionInput{
		CoachID: coachID,
		Date:    today.AddDate(0, 0, 1),
		Slot:    9,
	})
	if err != nil {
		t.Fatalf("BookSession +1d: %v", err)
	}
	cancelled, err := sessionService.CancelSession(ctx, clientID, "user", nearResult.Session.ID)
	if err != nil {
		t.Fatalf("CancelSession: %v", err)
	}
	if cancelled.Status != models.SessionStatusCancelled {
		t.Fatalf("expected cancelled session, got %q", cancelled.Status)
	}

	// The released slot is open for re-booking on the same date.
	slots, err := sessionService.Availability(ctx, coachID, today.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if !contains(slots, 9) {
		t.Fatalf("expected slot 9 released after cancel, got %v", slots)
	}

	// Cancelling twice is a lifecycle violation.
	if _, err := sessionService.CancelSession(ctx, clientID, "user", nearResult.Session.ID); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition for double cancel, got %v", err)
	}
}

func TestSessionServiceFinishAppliesRatingOnce(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	sessionService, paymentService := newIntegrationServices(pool)

	coachID := createTestCoach(t, ctx, pool, 8, 12, 100)
	clientID := nextTestClientID()
	t.Cleanup(func() { cleanupTestCoaches(t, ctx, pool, coachID) })

	date := timeslot.DateOf(time.Now().UTC()).AddDate(0, 0, 1)

	ratings := []int{5, 4, 3}
	for i, rating := range ratings {
		slot := 8 + i
		result, err := sessionService.BookSession(ctx, clientID, BookSessionInput{
			CoachID: coachID,
			Date:    date,
			Slot:    slot,
		})
		if err != nil {
			t.Fatalf("BookSession slot %d: %v", slot, err)
		}
		if _, err := paymentService.HandleCallback(ctx, CallbackKindCompleted, result.PaymentRequest.OrderID); err != nil {
			t.Fatalf("complete payment slot %d: %v", slot, err)
		}

		// Finishing before the slot elapses is rejected.
		if _, err := sessionService.FinishSession(ctx, clientID, "user", result.Session.ID, FinishSessionInput{Rating: rating}); err != ErrInvalidTransition {
			t.Fatalf("expected ErrInvalidTransition before slot elapsed, got %v", err)
		}

		// Move the session into the past, then finish.
		backdateSession(t, ctx, pool, result.Session.ID)
		finished, err := sessionService.FinishSession(ctx, clientID, "user", result.Session.ID, FinishSessionInput{
			Rating: rating,
			Review: "solid coaching",
		})
		if err != nil {
			t.Fatalf("FinishSession slot %d: %v", slot, err)
		}
		if finished.Status != models.SessionStatusFinished {
			t.Fatalf("expected finished session, got %q", finished.Status)
		}
		if finished.Rating == nil || *finished.Rating != rating {
			t.Fatalf("expected stored rating %d, got %+v", rating, finished.Rating)
		}

		// FINISHED is terminal; a second finish must not double-count.
		if _, err := sessionService.FinishSession(ctx, clientID, "user", result.Session.ID, FinishSessionInput{Rating: 1}); err != ErrInvalidTransition {
			t.Fatalf("expected ErrInvalidTransition for double finish, got %v", err)
		}
	}

	coach, err := sessionService.GetCoach(ctx, coachID)
	if err != nil {
		t.Fatalf("GetCoach: %v", err)
	}
	if coach.RatingSum != 12 || coach.RatingCount != 3 {
		t.Fatalf("expected rating aggregate 12/3, got %d/%d", coach.RatingSum, coach.RatingCount)
	}
	if coach.AverageRating != 4.0 {
		t.Fatalf("expected average 4.0, got %v", coach.AverageRating)
	}
}

func TestSessionServiceFailedPaymentLeavesSessionPending(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	sessionService, paymentService := newIntegrationServices(pool)

	coachID := createTestCoach(t, ctx, pool, 8, 12, 60)
	clientID := nextTestClientID()
	t.Cleanup(func() { cleanupTestCoaches(t, ctx, pool, coachID) })

	date := timeslot.DateOf(time.Now().UTC()).AddDate(0, 0, 1)
	result, err := sessionService.BookSession(ctx, clientID, BookSessionInput{
		CoachID: coachID,
		Date:    date,
		Slot:    11,
	})
	if err != nil {
		t.Fatalf("BookSession: %v", err)
	}

	payment, err := paymentService.HandleCallback(ctx, CallbackKindDismissed, result.PaymentRequest.OrderID)
	if err != nil {
		t.Fatalf("HandleCallback dismissed: %v", err)
	}
	if payment.Status != models.PaymentStatusFailed {
		t.Fatalf("expected failed payment, got %q", payment.Status)
	}

	detail, err := sessionService.GetSession(ctx, clientID, "user", result.Session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if detail.Status != models.SessionStatusPending {
		t.Fatalf("expected session still pending after failed payment, got %q", detail.Status)
	}

	// A completed callback after the failure must not resurrect the payment.
	replayed, err := paymentService.HandleCallback(ctx, CallbackKindCompleted, result.PaymentRequest.OrderID)
	if err != nil {
		t.Fatalf("HandleCallback completed after failure: %v", err)
	}
	if replayed.Status != models.PaymentStatusFailed {
		t.Fatalf("expected payment to stay failed, got %q", replayed.Status)
	}

	// The sweep expires the unpaid session once its date passes.
	backdateSession(t, ctx, pool, result.Session.ID)
	expiry := NewExpiryService(repository.NewSessionRepository(pool))
	if _, err := expiry.ExpireStale(ctx); err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	detail, err = sessionService.GetSession(ctx, clientID, "user", result.Session.ID)
	if err != nil {
		t.Fatalf("GetSession after sweep: %v", err)
	}
	if detail.Status != models.SessionStatusCancelled {
		t.Fatalf("expected expired session cancelled, got %q", detail.Status)
	}
}

func TestSessionServiceUnknownCallbackOrder(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	_, paymentService := newIntegrationServices(pool)

	if _, err := paymentService.HandleCallback(ctx, CallbackKindCompleted, "never-issued-order"); err != ErrPaymentNotFound {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("TEST_DB_URL")
		if dbURL == "" {
			dbURL = os.Getenv("DB_URL")
		}
		if dbURL == "" {
			testDBErr = fmt.Errorf("TEST_DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationServices(pool *pgxpool.Pool) (*SessionService, *PaymentService) {
	sessionRepo := repository.NewSessionRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	coachRepo := repository.NewCoachRepository(pool)

	paymentService := NewPaymentService(pool, paymentRepo, sessionRepo, "http://localhost:8080", 10)
	sessionService := NewSessionService(pool, sessionRepo, paymentRepo, coachRepo, paymentService)
	return sessionService, paymentService
}

var testClientIDCounter int64 = 9_000_000

var testClientIDMu sync.Mutex

func nextTestClientID() int64 {
	testClientIDMu.Lock()
	defer testClientIDMu.Unlock()
	testClientIDCounter++
	return testClientIDCounter
}

func createTestCoach(t *testing.T, ctx context.Context, pool *pgxpool.Pool, workStart, workEnd int, fee float64) int64 {
	t.Helper()

	var coachID int64
	err := pool.QueryRow(ctx, `
		INSERT INTO coaches (user_id, work_start, work_end, session_fee)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, time.Now().UnixNano(), workStart, workEnd, fee).Scan(&coachID)
	if err != nil {
		t.Fatalf("create test coach: %v", err)
	}
	return coachID
}

func backdateSession(t *testing.T, ctx context.Context, pool *pgxpool.Pool, sessionID int64) {
	t.Helper()

	if _, err := pool.Exec(ctx, `
		UPDATE sessions
		SET session_date = session_date - INTERVAL '2 days'
		WHERE id = $1
	`, sessionID); err != nil {
		t.Fatalf("backdate session %d: %v", sessionID, err)
	}
}

func coachBalance(t *testing.T, ctx context.Context, pool *pgxpool.Pool, coachID int64) float64 {
	t.Helper()

	var balance float64
	if err := pool.QueryRow(ctx, "SELECT balance FROM coaches WHERE id = $1", coachID).Scan(&balance); err != nil {
		t.Fatalf("read coach balance: %v", err)
	}
	return balance
}

func cleanupTestCoaches(t *testing.T, ctx context.Context, pool *pgxpool.Pool, coachIDs ...int64) {
	t.Helper()

	if len(coachIDs) == 0 {
		return
	}

	if _, err := pool.Exec(ctx, "DELETE FROM payments WHERE session_id IN (SELECT id FROM sessions WHERE coach_id = ANY($1))", coachIDs); err != nil {
		t.Fatalf("cleanup payments: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM sessions WHERE coach_id = ANY($1)", coachIDs); err != nil {
		t.Fatalf("cleanup sessions: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM coaches WHERE id = ANY($1)", coachIDs); err != nil {
		t.Fatalf("cleanup coaches: %v", err)
	}
}

func contains(slots []int, want int) bool {
	for _, slot := range slots {
		if slot == want {
			return true
		}
	}
	return false
}
