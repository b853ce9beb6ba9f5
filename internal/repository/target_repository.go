package repository

import (
	"database/sql"
	"time"

	"github.com/fixhub/workshop-backend/internal/model"
)

// TargetRepositoryInterface defines the target persistence methods used by the
// dispatch worker. Targets are inserted by StartCampaign; everything here only
// reads or advances existing rows.
type TargetRepositoryInterface interface {
	// NextPending returns the oldest pending target of the campaign (creation
	// order), or nil when the queue is exhausted.
	NextPending(campaignID int) (*model.Target, error)

	MarkSent(id int, at time.Time) error
	MarkFailed(id int, at time.Time, lastError string) error
	// Requeue records a transient failure: the attempt is counted but the
	// target stays pending.
	Requeue(id int, at time.Time, lastError string) error

	// DayStats counts sent/failed targets attempted at or after dayStart and
	// returns the latest attempt time, used to rebuild throttle state on boot.
	DayStats(campaignID int, dayStart time.Time) (attempted int, lastAttempt *time.Time, err error)

	StatsByStatus(campaignID int) (map[string]int, error)
}

type TargetRepository struct {
	DB *sql.DB
}

const targetColumns = `id, campaign_id, customer_id, name, phone, status,
	attempt_count, last_attempt_at, sent_at, last_error, created_at`

func (r *TargetRepository) NextPending(campaignID int) (*model.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets
		WHERE campaign_id=$1 AND status=$2 ORDER BY id LIMIT 1`
	var t model.Target
	err := r.DB.QueryRow(query, campaignID, model.TargetPending).Scan(
		&t.ID, &t.CampaignID, &t.CustomerID, &t.Name, &t.Phone, &t.Status,
		&t.AttemptCount, &t.LastAttemptAt, &t.SentAt, &t.LastError, &t.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TargetRepository) MarkSent(id int, at time.Time) error {
	_, err := r.DB.Exec(`
		UPDATE targets SET status=$1, attempt_count=attempt_count+1,
			last_attempt_at=$2, sent_at=$2, last_error='' WHERE id=$3`,
		model.TargetSent, at, id,
	)
	return err
}

func (r *TargetRepository) MarkFailed(id int, at time.Time, lastError string) error {
	_, err := r.DB.Exec(`
		UPDATE targets SET status=$1, attempt_count=attempt_count+1,
			last_attempt_at=$2, last_error=$3 WHERE id=$4`,
		model.TargetFailed, at, lastError, id,
	)
	return err
}

func (r *TargetRepository) Requeue(id int, at time.Time, lastError string) error {
	_, err := r.DB.Exec(`
		UPDATE targets SET attempt_count=attempt_count+1,
			last_attempt_at=$1, last_error=$2 WHERE id=$3`,
		at, lastError, id,
	)
	return err
}

func (r *TargetRepository) DayStats(campaignID int, dayStart time.Time) (int, *time.Time, error) {
	var attempted int
	var lastAttempt sql.NullTime
	err := r.DB.QueryRow(`
		SELECT COUNT(*) FILTER (WHERE status = ANY($2) AND last_attempt_at >= $3),
			MAX(last_attempt_at)
		FROM targets WHERE campaign_id=$1`,
		campaignID, statusArray([]string{model.TargetSent, model.TargetFailed}), dayStart,
	).Scan(&attempted, &lastAttempt)
	if err != nil {
		return 0, nil, err
	}
	if !lastAttempt.Valid {
		return attempted, nil, nil
	}
	return attempted, &lastAttempt.Time, nil
}

func (r *TargetRepository) StatsByStatus(campaignID int) (map[string]int, error) {
	rows, err := r.DB.Query(
		`SELECT status, COUNT(*) FROM targets WHERE campaign_id=$1 GROUP BY status`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		model.TargetPending: 0,
		model.TargetSent:    0,
		model.TargetFailed:  0,
		model.TargetSkipped: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ TargetRepositoryInterface = (*TargetRepository)(nil)
