package models

import "time"

const (
	SessionStatusPending   = "pending"
	SessionStatusReserved  = "reserved"
	SessionStatusAccepted  = "accepted"
	SessionStatusCancelled = "cancelled"
	SessionStatusFinished  = "finished"
)

const (
	PaymentStatusInitiated = "initiated"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// ActiveSessionStatuses are the statuses that hold a slot. At most one
// session per (coach, date, slot) may carry one of these at a time; the
// partial unique index on the sessions table enforces it.
var ActiveSessionStatuses = []string{
	SessionStatusPending,
	SessionStatusReserved,
	SessionStatusAccepted,
}

type Session struct {
	ID          int64     `json:"id"`
	CoachID     int64     `json:"coach_id"`
	ClientID    int64     `json:"client_id"`
	Date        time.Time `json:"date"`
	Slot        int       `json:"slot"`
	Status      string    `json:"status"`
	MeetingLink *string   `json:"meeting_link"`
	Rating      *int      `json:"rating"`
	Review      *string   `json:"review"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Payment struct {
	ID              int64      `json:"id"`
	SessionID       int64      `json:"session_id"`
	ExternalOrderID string     `json:"external_order_id"`
	Amount          float64    `json:"amount"`
	Fee             float64    `json:"fee"`
	Remaining       float64    `json:"remaining"`
	Status          string     `json:"status"`
	ProcessedAt     *time.Time `json:"processed_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

// PaymentRequest is the outbound payload handed to the external payment
// processor after a slot is reserved. The processor reports the outcome by
// invoking one of the callback URLs with the order id.
type PaymentRequest struct {
	OrderID      string  `json:"order_id"`
	Amount       float64 `json:"amount"`
	Fee          float64 `json:"fee"`
	CompletedURL string  `json:"completed_url"`
	DismissedURL string  `json:"dismissed_url"`
	ErrorURL     string  `json:"error_url"`
}

type SessionDetail struct {
	Session
	Payment *Payment `json:"payment,omitempty"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
