package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kavishkanimsara/HustleHut-sub000/internal/models"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type CoachRepository struct {
	db DBTX
}

func NewCoachRepository(db DBTX) *CoachRepository {
	return &CoachRepository{db: db}
}

func (r *CoachRepository) GetByID(ctx context.Context, coachID int64) (*models.Coach, error) {
	query := `
		SELECT id, user_id, work_start, work_end, session_fee, rating_sum, rating_count, balance, created_at, updated_at
		FROM coaches
		WHERE id = $1
	`
	var coach models.Coach
	err := r.db.QueryRow(ctx, query, coachID).Scan(
		&coach.ID,
		&coach.UserID,
		&coach.WorkStart,
		&coach.WorkEnd,
		&coach.SessionFee,
		&coach.RatingSum,
		&coach.RatingCount,
		&coach.Balance,
		&coach.CreatedAt,
		&coach.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &coach, nil
}

func (r *CoachRepository) GetByUserID(ctx context.Context, userID int64) (*models.Coach, error) {
	query := `
		SELECT id, user_id, work_start, work_end, session_fee, rating_sum, rating_count, balance, created_at, updated_at
		FROM coaches
		WHERE user_id = $1
	`
	var coach models.Coach
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&coach.ID,
		&coach.UserID,
		&coach.WorkStart,
		&coach.WorkEnd,
		&coach.SessionFee,
		&coach.RatingSum,
		&coach.RatingCount,
		&coach.Balance,
		&coach.CreatedAt,
		&coach.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &coach, nil
}

// ApplyRating adds one finished session's rating to the coach aggregate.
// The caller guarantees at-most-once application by invoking this only on
// the one-way accepted -> finished transition, inside the same transaction.
func (r *CoachRepository) ApplyRating(ctx context.Context, coachID int64, rating int) error {
	query := `
		UPDATE coaches
		SET rating_sum = rating_sum + $2, rating_count = rating_count + 1, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, coachID, rating)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CreditBalance adds the coach's share of a completed payment to their
// withdrawable balance.
func (r *CoachRepository) CreditBalance(ctx context.Context, coachID int64, amount float64) error {
	query := `
		UPDATE coaches
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, coachID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
