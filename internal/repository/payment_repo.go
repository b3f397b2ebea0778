package repository

import (
	"context"
	"fmt"

	"github.com/kavishkanimsara/HustleHut-sub000/internal/models"
)

type CreatePaymentInput struct {
	SessionID       int64
	ExternalOrderID string
	Amount          float64
	Fee             float64
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = "id, session_id, external_order_id, amount, fee, remaining, status, processed_at, created_at"

func scanPayment(row interface{ Scan(dest ...any) error }) (*models.Payment, error) {
	var payment models.Payment
	err := row.Scan(
		&payment.ID,
		&payment.SessionID,
		&payment.ExternalOrderID,
		&payment.Amount,
		&payment.Fee,
		&payment.Remaining,
		&payment.Status,
		&payment.ProcessedAt,
		&payment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	query := fmt.Sprintf(`
		INSERT INTO payments (session_id, external_order_id, amount, fee, remaining, status)
		VALUES ($1, $2, $3, $4, 0, 'initiated')
		RETURNING %s
	`, paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, input.SessionID, input.ExternalOrderID, input.Amount, input.Fee))
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM payments
		WHERE external_order_id = $1
	`, paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, orderID))
}

func (r *PaymentRepository) GetByOrderIDForUpdate(ctx context.Context, orderID string) (*models.Payment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM payments
		WHERE external_order_id = $1
		FOR UPDATE
	`, paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, orderID))
}

func (r *PaymentRepository) GetBySessionID(ctx context.Context, sessionID int64) (*models.Payment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM payments
		WHERE session_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, sessionID))
}

func (r *PaymentRepository) ListBySessionIDs(ctx context.Context, sessionIDs []int64) (map[int64]models.Payment, error) {
	payments := make(map[int64]models.Payment, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return payments, nil
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT ON (session_id) %s
		FROM payments
		WHERE session_id = ANY($1)
		ORDER BY session_id, id DESC
	`, paymentColumns)

	rows, err := r.db.Query(ctx, query, sessionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments[payment.SessionID] = *payment
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

// CompleteIfInitiated moves the payment to its terminal completed status
// and records the coach's share. The status guard makes callback replays
// no-ops: only the first delivery sees an initiated row.
func (r *PaymentRepository) CompleteIfInitiated(
	ctx context.Context,
	paymentID int64,
	remaining float64,
) (*models.Payment, error) {
	query := fmt.Sprintf(`
		UPDATE payments
		SET status = 'completed', remaining = $2, processed_at = NOW()
		WHERE id = $1 AND status = 'initiated'
		RETURNING %s
	`, paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, paymentID, remaining))
}

// FailIfInitiated marks the payment failed, leaving the session untouched
// so the client can retry payment or let the booking expire.
func (r *PaymentRepository) FailIfInitiated(
	ctx context.Context,
	paymentID int64,
) (*models.Payment, error) {
	query := fmt.Sprintf(`
		UPDATE payments
		SET status = 'failed', processed_at = NOW()
		WHERE id = $1 AND status = 'initiated'
		RETURNING %s
	`, paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, paymentID))
}
