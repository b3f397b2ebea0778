package models

import "time"

type Coach struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	WorkStart   int       `json:"work_start"`
	WorkEnd     int       `json:"work_end"`
	SessionFee  float64   `json:"session_fee"`
	RatingSum   int64     `json:"rating_sum"`
	RatingCount int64     `json:"rating_count"`
	Balance     float64   `json:"balance"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AverageRating is always derived from the aggregate pair so the stored
// values cannot drift from the displayed average.
func (c *Coach) AverageRating() float64 {
	if c.RatingCount == 0 {
		return 0
	}
	return float64(c.RatingSum) / float64(c.RatingCount)
}

type CoachDetail struct {
	Coach
	AverageRating float64 `json:"average_rating"`
}
