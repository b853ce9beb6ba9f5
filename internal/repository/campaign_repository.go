package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/fixhub/workshop-backend/internal/errors"
	"github.com/fixhub/workshop-backend/internal/model"
)

func statusArray(statuses []string) any { return pq.Array(statuses) }

// CampaignRepositoryInterface defines the campaign persistence methods used by
// the service layer and the dispatch worker.
type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	List() ([]model.Campaign, error)
	ListByStatus(statuses ...string) ([]model.Campaign, error)

	// UpdateStatusCAS flips status only when the current status is one of
	// from; it reports whether a row was updated. Terminal states therefore
	// always win races against pause/resume.
	UpdateStatusCAS(id int, to string, from ...string) (bool, error)

	// StartCampaign materializes targets (first entry into running only) and
	// applies the start transition in one transaction. The campaign row is
	// locked while the transition is checked.
	StartCampaign(id int, targets []model.Target, newStatus string, now time.Time) (*model.Campaign, error)

	// CancelCampaign marks the campaign cancelled and all its pending targets
	// skipped, atomically. Fails with a state conflict on terminal campaigns.
	CancelCampaign(id int) (*model.Campaign, error)

	// CompleteIfExhausted flips running -> completed only when the campaign
	// has no pending targets left.
	CompleteIfExhausted(id int) (bool, error)

	IncrementSent(id int) error
	IncrementFailed(id int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, kind, message, filters, bh_start_min, bh_end_min,
	daily_limit, delay_min_sec, delay_max_sec, scheduled_for, status,
	target_count, sent_count, failed_count, started_at, created_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	var filters []byte
	err := row.Scan(&c.ID, &c.Name, &c.Kind, &c.Message, &filters,
		&c.BizStartMin, &c.BizEndMin, &c.DailyLimit, &c.DelayMinSec, &c.DelayMaxSec,
		&c.ScheduledFor, &c.Status, &c.TargetCount, &c.SentCount, &c.FailedCount,
		&c.StartedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &c.Filters); err != nil {
			return nil, fmt.Errorf("decode filters of campaign %d: %w", c.ID, err)
		}
	}
	return &c, nil
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	filters, err := json.Marshal(c.Filters)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	query := `
		INSERT INTO campaigns (name, kind, message, filters, bh_start_min, bh_end_min,
			daily_limit, delay_min_sec, delay_max_sec, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`
	return r.DB.QueryRow(query, c.Name, c.Kind, c.Message, filters,
		c.BizStartMin, c.BizEndMin, c.DailyLimit, c.DelayMinSec, c.DelayMaxSec,
		c.ScheduledFor, c.Status).Scan(&c.ID, &c.CreatedAt)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) List() ([]model.Campaign, error) {
	return r.queryCampaigns(`SELECT ` + campaignColumns + ` FROM campaigns ORDER BY id DESC`)
}

func (r *CampaignRepository) ListByStatus(statuses ...string) ([]model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = ANY($1) ORDER BY id`
	return r.queryCampaigns(query, statusArray(statuses))
}

func (r *CampaignRepository) queryCampaigns(query string, args ...any) ([]model.Campaign, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) UpdateStatusCAS(id int, to string, from ...string) (bool, error) {
	res, err := r.DB.Exec(
		`UPDATE campaigns SET status=$1 WHERE id=$2 AND status = ANY($3)`,
		to, id, statusArray(from),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignRepository) StartCampaign(id int, targets []model.Target, newStatus string, now time.Time) (*model.Campaign, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 FOR UPDATE`
	c, err := scanCampaign(tx.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}

	switch c.Status {
	case model.StatusDraft, model.StatusScheduled, model.StatusPaused:
	default:
		return nil, appErrors.NewStateConflict(id, c.Status, newStatus)
	}

	// Materialize once: a campaign that has been started before keeps its
	// frozen target set across pause/resume and re-start.
	if c.StartedAt == nil {
		for _, t := range targets {
			_, err := tx.Exec(
				`INSERT INTO targets (campaign_id, customer_id, name, phone, status) VALUES ($1, $2, $3, $4, $5)`,
				id, t.CustomerID, t.Name, t.Phone, model.TargetPending,
			)
			if err != nil {
				return nil, err
			}
		}
		c.TargetCount = len(targets)
		c.StartedAt = &now
		_, err = tx.Exec(
			`UPDATE campaigns SET target_count=$1, started_at=$2 WHERE id=$3`,
			c.TargetCount, now, id,
		)
		if err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(`UPDATE campaigns SET status=$1 WHERE id=$2`, newStatus, id); err != nil {
		return nil, err
	}
	c.Status = newStatus

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) CancelCampaign(id int) (*model.Campaign, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 FOR UPDATE`
	c, err := scanCampaign(tx.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	if c.IsTerminal() {
		return nil, appErrors.NewStateConflict(id, c.Status, model.StatusCancelled)
	}

	_, err = tx.Exec(
		`UPDATE targets SET status=$1 WHERE campaign_id=$2 AND status=$3`,
		model.TargetSkipped, id, model.TargetPending,
	)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`UPDATE campaigns SET status=$1 WHERE id=$2`, model.StatusCancelled, id); err != nil {
		return nil, err
	}
	c.Status = model.StatusCancelled

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) CompleteIfExhausted(id int) (bool, error) {
	res, err := r.DB.Exec(`
		UPDATE campaigns SET status=$1
		WHERE id=$2 AND status=$3
		AND NOT EXISTS (SELECT 1 FROM targets WHERE campaign_id=$2 AND status=$4)`,
		model.StatusCompleted, id, model.StatusRunning, model.TargetPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignRepository) IncrementSent(id int) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET sent_count=sent_count+1 WHERE id=$1`, id)
	return err
}

func (r *CampaignRepository) IncrementFailed(id int) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET failed_count=failed_count+1 WHERE id=$1`, id)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
