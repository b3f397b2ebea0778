package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kavishkanimsara/HustleHut-sub000/internal/models"
)

type CreateSessionInput struct {
	CoachID  int64
	ClientID int64
	Date     time.Time
	Slot     int
}

type SessionListFilter struct {
	ActorCoachID  int64
	ActorClientID int64
	Status        string
	Limit         int
	Offset        int
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = "id, coach_id, client_id, session_date, slot, status, meeting_link, rating, review, created_at, updated_at"

func scanSession(row interface{ Scan(dest ...any) error }) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.CoachID,
		&session.ClientID,
		&session.Date,
		&session.Slot,
		&session.Status,
		&session.MeetingLink,
		&session.Rating,
		&session.Review,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Create inserts a pending session. The partial unique index on
// (coach_id, session_date, slot) over active statuses makes this the
// exclusive claim on the slot: a losing concurrent insert surfaces as a
// unique violation, never as a second active row.
func (r *SessionRepository) Create(
	ctx context.Context,
	input CreateSessionInput,
) (*models.Session, error) {
	query := fmt.Sprintf(`
		INSERT INTO sessions (coach_id, client_id, session_date, slot, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING %s
	`, sessionColumns)

	return scanSession(r.db.QueryRow(
		ctx,
		query,
		input.CoachID,
		input.ClientID,
		input.Date,
		input.Slot,
	))
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE id = $1
	`, sessionColumns)
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SessionRepository) GetByIDForUpdate(
	ctx context.Context,
	sessionID int64,
) (*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE id = $1
		FOR UPDATE
	`, sessionColumns)
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

// HeldSlots returns the slots claimed by active sessions of the coach on
// the given date. Cancelled and finished sessions do not hold slots.
func (r *SessionRepository) HeldSlots(
	ctx context.Context,
	coachID int64,
	date time.Time,
) ([]int, error) {
	query := `
		SELECT slot
		FROM sessions
		WHERE coach_id = $1
		  AND session_date = $2
		  AND status = ANY($3)
		ORDER BY slot ASC
	`
	rows, err := r.db.Query(ctx, query, coachID, date, models.ActiveSessionStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := make([]int, 0)
	for rows.Next() {
		var slot int
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *SessionRepository) List(
	ctx context.Context,
	filter SessionListFilter,
) ([]models.Session, int, error) {
	args := []any{}
	whereParts := []string{}

	if filter.ActorCoachID > 0 {
		args = append(args, filter.ActorCoachID)
		whereParts = append(whereParts, fmt.Sprintf("coach_id = $%d", len(args)))
	} else {
		args = append(args, filter.ActorClientID)
		whereParts = append(whereParts, fmt.Sprintf("client_id = $%d", len(args)))
	}

	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	where := strings.Join(whereParts, " AND ")

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM sessions WHERE %s", where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE %s
		ORDER BY session_date ASC, slot ASC, id ASC
		LIMIT $%d OFFSET $%d
	`, sessionColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

// UpdateStatusIfCurrent performs the conditional transition every lifecycle
// move goes through: the write only lands if the session is still in the
// expected status, so a losing racer observes pgx.ErrNoRows instead of
// clobbering a concurrent transition.
func (r *SessionRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	sessionID int64,
	currentStatus string,
	nextStatus string,
) (*models.Session, error) {
	query := fmt.Sprintf(`
		UPDATE sessions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING %s
	`, sessionColumns)
	return scanSession(r.db.QueryRow(ctx, query, sessionID, currentStatus, nextStatus))
}

// CancelIfActive cancels the session only while it still holds the slot.
// Terminal sessions are left untouched and the caller sees pgx.ErrNoRows.
func (r *SessionRepository) CancelIfActive(
	ctx context.Context,
	sessionID int64,
) (*models.Session, error) {
	query := fmt.Sprintf(`
		UPDATE sessions
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
		RETURNING %s
	`, sessionColumns)
	return scanSession(r.db.QueryRow(ctx, query, sessionID, models.ActiveSessionStatuses))
}

// FinishIfAccepted stores the rating and review together with the one-way
// accepted -> finished transition so they can never exist on a session in
// any other state.
func (r *SessionRepository) FinishIfAccepted(
	ctx context.Context,
	sessionID int64,
	rating int,
	review string,
) (*models.Session, error) {
	query := fmt.Sprintf(`
		UPDATE sessions
		SET status = 'finished', rating = $2, review = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'accepted'
		RETURNING %s
	`, sessionColumns)
	return scanSession(r.db.QueryRow(ctx, query, sessionID, rating, review))
}

// ExpirePending cancels pending sessions whose date has passed without a
// completed payment. Used by the scheduled sweep.
func (r *SessionRepository) ExpirePending(
	ctx context.Context,
	before time.Time,
) (int64, error) {
	query := `
		UPDATE sessions
		SET status = 'cancelled', updated_at = NOW()
		WHERE status = 'pending' AND session_date < $1
	`
	tag, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
