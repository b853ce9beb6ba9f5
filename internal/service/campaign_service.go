package service

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/fixhub/workshop-backend/internal/audience"
	appErrors "github.com/fixhub/workshop-backend/internal/errors"
	"github.com/fixhub/workshop-backend/internal/model"
	"github.com/fixhub/workshop-backend/internal/queue"
	"github.com/fixhub/workshop-backend/internal/repository"
)

// AudienceResolver is the slice of the resolver the service needs.
type AudienceResolver interface {
	Resolve(spec model.FilterSpec, now time.Time) ([]audience.Entry, error)
	Preview(spec model.FilterSpec, now time.Time) (*audience.Preview, error)
}

// EventPublisher wakes the dispatch worker after lifecycle transitions.
// Events are hints only; a publish failure is logged, never surfaced.
type EventPublisher interface {
	PublishCampaignEvent(ev queue.Event) error
}

// CampaignService owns the campaign lifecycle: create, preview, start, pause,
// resume, cancel. Every transition is compare-and-set on status, so terminal
// states always win races against pause/resume.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	TargetRepo   repository.TargetRepositoryInterface
	Resolver     AudienceResolver
	Events       EventPublisher
	Log          zerolog.Logger

	// Now is replaceable in tests.
	Now func() time.Time
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateInput is the create-campaign request.
type CreateInput struct {
	Name         string           `json:"name"`
	Kind         string           `json:"kind"`
	Message      string           `json:"message"`
	Filters      model.FilterSpec `json:"filters"`
	BizStartMin  int              `json:"biz_start_min"`
	BizEndMin    int              `json:"biz_end_min"`
	DailyLimit   int              `json:"daily_limit"`
	DelayMinSec  int              `json:"delay_min_sec"`
	DelayMaxSec  int              `json:"delay_max_sec"`
	ScheduledFor *time.Time       `json:"scheduled_for,omitempty"`
}

func (s *CampaignService) validate(in CreateInput) error {
	if in.Name == "" {
		return appErrors.NewValidation("name", "must not be empty")
	}
	switch in.Kind {
	case model.KindPromotion, model.KindReminder, model.KindAnnouncement:
	default:
		return appErrors.NewValidation("kind", "must be promotion, reminder or announcement")
	}
	if in.Message == "" {
		return appErrors.NewValidation("message", "must not be empty")
	}
	if in.DailyLimit < 1 {
		return appErrors.NewValidation("daily_limit", "must be at least 1")
	}
	if in.DelayMinSec < 0 || in.DelayMaxSec < in.DelayMinSec {
		return appErrors.NewValidation("random_delay", "min must be >= 0 and <= max")
	}
	if in.BizStartMin < 0 || in.BizEndMin > 24*60 || in.BizStartMin >= in.BizEndMin {
		return appErrors.NewValidation("business_hours", "window must satisfy 0 <= start < end <= 1440")
	}
	if in.ScheduledFor != nil && in.ScheduledFor.Before(s.now()) {
		return appErrors.NewValidation("scheduled_for", "must be in the future")
	}
	if in.Filters.IsEmpty() {
		return appErrors.NewValidation("filters", "at least one criterion or manual number is required")
	}
	return nil
}

// Create validates the definition and stores the campaign as a draft. Filters
// are frozen into the row; they are never re-read from anywhere else.
func (s *CampaignService) Create(in CreateInput) (*model.Campaign, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	c := &model.Campaign{
		Name:         in.Name,
		Kind:         in.Kind,
		Message:      in.Message,
		Filters:      in.Filters,
		BizStartMin:  in.BizStartMin,
		BizEndMin:    in.BizEndMin,
		DailyLimit:   in.DailyLimit,
		DelayMinSec:  in.DelayMinSec,
		DelayMaxSec:  in.DelayMaxSec,
		ScheduledFor: in.ScheduledFor,
		Status:       model.StatusDraft,
	}
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	s.Log.Info().Int("campaign_id", c.ID).Str("kind", c.Kind).Msg("campaign created")
	return c, nil
}

// Preview answers "who would this reach" without touching any state.
func (s *CampaignService) Preview(spec model.FilterSpec) (*audience.Preview, error) {
	p, err := s.Resolver.Preview(spec, s.now())
	if err != nil {
		return nil, appErrors.NewResourceUnavailable("customer store", err)
	}
	return p, nil
}

// Start transitions draft/scheduled/paused campaigns toward running. On the
// first start the resolver snapshot is materialized into target rows; later
// starts reuse the frozen set. A draft with a future scheduled_for parks in
// scheduled; the worker promotes it when the time comes.
func (s *CampaignService) Start(id int) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case model.StatusDraft, model.StatusScheduled, model.StatusPaused:
	default:
		return nil, appErrors.NewStateConflict(id, c.Status, model.StatusRunning)
	}

	now := s.now()
	var targets []model.Target
	if c.StartedAt == nil {
		entries, err := s.Resolver.Resolve(c.Filters, now)
		if err != nil {
			// Campaign is left untouched; the caller may retry.
			return nil, appErrors.NewResourceUnavailable("customer store", err)
		}
		targets = make([]model.Target, 0, len(entries))
		for _, e := range entries {
			targets = append(targets, model.Target{
				CampaignID: id,
				CustomerID: e.CustomerID,
				Name:       e.Name,
				Phone:      e.Phone,
			})
		}
	}

	newStatus := model.StatusRunning
	if c.Status == model.StatusDraft && c.ScheduledFor != nil && c.ScheduledFor.After(now) {
		newStatus = model.StatusScheduled
	}

	updated, err := s.CampaignRepo.StartCampaign(id, targets, newStatus, now)
	if err != nil {
		return nil, err
	}
	s.Log.Info().Int("campaign_id", id).Str("status", updated.Status).
		Int("target_count", updated.TargetCount).Msg("campaign started")
	s.publish(id, "start")
	return updated, nil
}

// Pause stops the dispatcher from picking new targets for the campaign; an
// in-flight send finishes.
func (s *CampaignService) Pause(id int) (*model.Campaign, error) {
	return s.transition(id, model.StatusPaused, "pause", model.StatusRunning)
}

// Resume puts a paused campaign back into the dispatcher's eligible set.
func (s *CampaignService) Resume(id int) (*model.Campaign, error) {
	return s.transition(id, model.StatusRunning, "resume", model.StatusPaused)
}

func (s *CampaignService) transition(id int, to, action string, from ...string) (*model.Campaign, error) {
	ok, err := s.CampaignRepo.UpdateStatusCAS(id, to, from...)
	if err != nil {
		return nil, err
	}
	c, getErr := s.CampaignRepo.GetByID(id)
	if getErr != nil {
		return nil, getErr
	}
	if !ok {
		return nil, appErrors.NewStateConflict(id, c.Status, to)
	}
	s.Log.Info().Int("campaign_id", id).Str("status", to).Msgf("campaign %s", action)
	s.publish(id, action)
	return c, nil
}

// Cancel ends the campaign from any non-terminal state and atomically skips
// all of its pending targets. The dispatcher never touches it again.
func (s *CampaignService) Cancel(id int) (*model.Campaign, error) {
	c, err := s.CampaignRepo.CancelCampaign(id)
	if err != nil {
		return nil, err
	}
	s.Log.Info().Int("campaign_id", id).Msg("campaign cancelled")
	s.publish(id, "cancel")
	return c, nil
}

// List returns all campaigns, newest first.
func (s *CampaignService) List() ([]model.Campaign, error) {
	return s.CampaignRepo.List()
}

// CampaignDetails is a campaign with its per-status target stats.
type CampaignDetails struct {
	model.Campaign
	TargetStats map[string]int `json:"target_stats"`
}

func (s *CampaignService) Get(id int) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	stats, err := s.TargetRepo.StatsByStatus(id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: *c, TargetStats: stats}, nil
}

func (s *CampaignService) publish(id int, action string) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishCampaignEvent(queue.Event{CampaignID: id, Action: action}); err != nil {
		s.Log.Error().Err(err).Int("campaign_id", id).Str("action", action).
			Msg("publish campaign event")
	}
}
