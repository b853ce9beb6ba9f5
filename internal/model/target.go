package model

import "time"

// Target states. A target is owned by exactly one campaign and is written
// only by the dispatch worker after materialization.
const (
	TargetPending = "pending"
	TargetSent    = "sent"
	TargetFailed  = "failed"
	TargetSkipped = "skipped"
)

type Target struct {
	ID            int        `db:"id" json:"id"`
	CampaignID    int        `db:"campaign_id" json:"campaign_id"`
	CustomerID    *int       `db:"customer_id" json:"customer_id,omitempty"` // nil for manual numbers
	Name          string     `db:"name" json:"name"`
	Phone         string     `db:"phone" json:"phone"`
	Status        string     `db:"status" json:"status"`
	AttemptCount  int        `db:"attempt_count" json:"attempt_count"`
	LastAttemptAt *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	SentAt        *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	LastError     string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
