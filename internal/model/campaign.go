package model

import "time"

// Campaign statuses. Transitions are monotonic except running<->paused;
// completed and cancelled are terminal.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Campaign kinds.
const (
	KindPromotion    = "promotion"
	KindReminder     = "reminder"
	KindAnnouncement = "announcement"
)

type Campaign struct {
	ID           int        `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Kind         string     `db:"kind" json:"kind"`
	Message      string     `db:"message" json:"message"`
	Filters      FilterSpec `db:"filters" json:"filters"`
	BizStartMin  int        `db:"bh_start_min" json:"biz_start_min"`
	BizEndMin    int        `db:"bh_end_min" json:"biz_end_min"`
	DailyLimit   int        `db:"daily_limit" json:"daily_limit"`
	DelayMinSec  int        `db:"delay_min_sec" json:"delay_min_sec"`
	DelayMaxSec  int        `db:"delay_max_sec" json:"delay_max_sec"`
	ScheduledFor *time.Time `db:"scheduled_for" json:"scheduled_for,omitempty"`
	Status       string     `db:"status" json:"status"`
	TargetCount  int        `db:"target_count" json:"target_count"`
	SentCount    int        `db:"sent_count" json:"sent_count"`
	FailedCount  int        `db:"failed_count" json:"failed_count"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// IsTerminal reports whether the campaign can no longer change state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusCancelled
}

// FilterSpec is the audience selection criteria, frozen into the campaign row
// at creation and never re-evaluated after targets are materialized.
// Empty type/tag sets mean "no restriction"; excluded tags are always enforced.
type FilterSpec struct {
	Types         []string `json:"types,omitempty"`
	IncludeTags   []string `json:"include_tags,omitempty"`
	ExcludeTags   []string `json:"exclude_tags,omitempty"`
	LastVisitDays *int     `json:"last_visit_days,omitempty"`
	InactiveDays  *int     `json:"inactive_days,omitempty"`
	ManualNumbers []string `json:"manual_numbers,omitempty"`
}

// IsEmpty reports whether the spec carries no criteria and no manual numbers.
func (f FilterSpec) IsEmpty() bool {
	return len(f.Types) == 0 && len(f.IncludeTags) == 0 && len(f.ExcludeTags) == 0 &&
		f.LastVisitDays == nil && f.InactiveDays == nil && len(f.ManualNumbers) == 0
}
