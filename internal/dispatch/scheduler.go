package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/fixhub/workshop-backend/internal/errors"
	"github.com/fixhub/workshop-backend/internal/model"
	"github.com/fixhub/workshop-backend/internal/repository"
)

// Config tunes the dispatch loop.
type Config struct {
	// RespectBusinessHours is the global switch; when false every campaign's
	// window is bypassed.
	RespectBusinessHours bool
	SendTimeout          time.Duration
	PollInterval         time.Duration
	MaxAttempts          int
	RetryBackoff         time.Duration
}

// Scheduler is the single loop driving all campaigns: it picks the running
// campaign with the earliest eligible send time, pops its oldest pending
// target, renders and sends, and records the outcome. Campaign counters and
// throttle state are mutated here and nowhere else.
type Scheduler struct {
	campaigns repository.CampaignRepositoryInterface
	targets   repository.TargetRepositoryInterface
	gate      *TransportGate
	cfg       Config
	log       zerolog.Logger

	// injected for tests
	now func() time.Time
	rng *rand.Rand

	state map[int]*ThrottleState
	wake  chan struct{}
}

func NewScheduler(
	campaigns repository.CampaignRepositoryInterface,
	targets repository.TargetRepositoryInterface,
	gate *TransportGate,
	cfg Config,
	log zerolog.Logger,
) *Scheduler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Scheduler{
		campaigns: campaigns,
		targets:   targets,
		gate:      gate,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		state:     map[int]*ThrottleState{},
		wake:      make(chan struct{}, 1),
	}
}

// Wake nudges the loop out of its sleep, used when a lifecycle event arrives.
// Losing a wake only costs poll-interval latency.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is cancelled. An in-flight send is allowed to
// finish; cancellation is checked at iteration boundaries only.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.recoverState(); err != nil {
		return err
	}
	s.log.Info().Msg("dispatch scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("dispatch scheduler stopped")
			return nil
		default:
		}

		s.promoteScheduled()

		campaign, eligibleAt := s.pickNext()
		if campaign == nil {
			s.sleep(ctx, s.cfg.PollInterval)
			continue
		}
		if wait := eligibleAt.Sub(s.now()); wait > 0 {
			s.sleep(ctx, min(wait, s.cfg.PollInterval))
			continue
		}
		s.dispatchOne(ctx, campaign)
	}
}

// recoverState rebuilds per-campaign throttle counters from targets attempted
// within the current local day, so a restart neither double-counts the daily
// limit nor forgets it. Targets left in flight by a crash are still pending
// and will be retried; delivery is at-least-once.
func (s *Scheduler) recoverState() error {
	campaigns, err := s.campaigns.ListByStatus(model.StatusRunning, model.StatusPaused)
	if err != nil {
		return err
	}
	now := s.now()
	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	for i := range campaigns {
		c := &campaigns[i]
		attempted, lastAttempt, err := s.targets.DayStats(c.ID, dayStart)
		if err != nil {
			return err
		}
		st := &ThrottleState{Day: localDay(now), SentToday: attempted}
		if lastAttempt != nil {
			st.LastSendAt = *lastAttempt
			st.NextAllowedAt = lastAttempt.Add(uniformDelay(limitsOf(c), s.rng))
		}
		s.state[c.ID] = st
		s.log.Info().Int("campaign_id", c.ID).Int("sent_today", attempted).
			Msg("recovered throttle state")
	}
	return nil
}

// promoteScheduled flips scheduled campaigns whose time has come to running.
// Targets were snapshotted at start time, so this is a pure status change.
func (s *Scheduler) promoteScheduled() {
	campaigns, err := s.campaigns.ListByStatus(model.StatusScheduled)
	if err != nil {
		s.log.Error().Err(err).Msg("list scheduled campaigns")
		return
	}
	now := s.now()
	for i := range campaigns {
		c := &campaigns[i]
		if c.ScheduledFor == nil || c.ScheduledFor.After(now) {
			continue
		}
		ok, err := s.campaigns.UpdateStatusCAS(c.ID, model.StatusRunning, model.StatusScheduled)
		if err != nil {
			s.log.Error().Err(err).Int("campaign_id", c.ID).Msg("promote scheduled campaign")
			continue
		}
		if ok {
			s.log.Info().Int("campaign_id", c.ID).Msg("scheduled campaign is now running")
		}
	}
}

// pickNext returns the running campaign with the earliest eligible send time.
// A campaign's head target in retry backoff pushes the whole campaign's
// eligibility out, so other campaigns are selected in the meantime. Campaigns
// whose queue is exhausted are completed on the way.
func (s *Scheduler) pickNext() (*model.Campaign, time.Time) {
	campaigns, err := s.campaigns.ListByStatus(model.StatusRunning)
	if err != nil {
		s.log.Error().Err(err).Msg("list running campaigns")
		return nil, time.Time{}
	}

	var best *model.Campaign
	var bestAt time.Time
	for i := range campaigns {
		c := &campaigns[i]
		target, err := s.targets.NextPending(c.ID)
		if err != nil {
			s.log.Error().Err(err).Int("campaign_id", c.ID).Msg("peek pending target")
			continue
		}
		if target == nil {
			s.complete(c.ID)
			continue
		}
		at := NextEligible(s.now(), limitsOf(c), s.stateFor(c.ID), s.cfg.RespectBusinessHours)
		if retryAt := s.retryAt(target); retryAt.After(at) {
			at = retryAt
		}
		if best == nil || at.Before(bestAt) {
			best, bestAt = c, at
		}
	}
	return best, bestAt
}

// retryAt is the earliest moment a requeued target may be attempted again;
// the zero time for targets with no failed attempt behind them.
func (s *Scheduler) retryAt(t *model.Target) time.Time {
	if t.AttemptCount == 0 || t.LastAttemptAt == nil {
		return time.Time{}
	}
	return t.LastAttemptAt.Add(time.Duration(t.AttemptCount) * s.cfg.RetryBackoff)
}

// dispatchOne attempts the next pending target of the campaign. Status is
// re-read first so pause and cancel take effect between targets, never
// mid-send.
func (s *Scheduler) dispatchOne(ctx context.Context, campaign *model.Campaign) {
	if !s.gate.Connected() {
		s.log.Warn().Msg("outbound session disconnected, sends suspended")
		s.sleep(ctx, s.cfg.PollInterval)
		return
	}

	fresh, err := s.campaigns.GetByID(campaign.ID)
	if err != nil {
		s.log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("reload campaign")
		return
	}
	if fresh.Status != model.StatusRunning {
		return
	}

	target, err := s.targets.NextPending(fresh.ID)
	if err != nil {
		s.log.Error().Err(err).Int("campaign_id", fresh.ID).Msg("pop pending target")
		return
	}
	if target == nil {
		s.complete(fresh.ID)
		return
	}

	// pickNext already defers campaigns whose head target is in backoff; this
	// guards against a requeue landing between the pick and this dispatch.
	if wait := s.retryAt(target).Sub(s.now()); wait > 0 {
		s.sleep(ctx, min(wait, s.cfg.PollInterval))
		return
	}

	text := RenderTemplate(fresh.Message, targetFields(target))

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	sendErr := s.gate.Send(sendCtx, target.Phone, text)
	cancel()

	now := s.now()
	st := s.stateFor(fresh.ID)
	lim := limitsOf(fresh)

	if sendErr == nil {
		if err := s.targets.MarkSent(target.ID, now); err != nil {
			s.log.Error().Err(err).Int("target_id", target.ID).Msg("mark target sent")
			return
		}
		if err := s.campaigns.IncrementSent(fresh.ID); err != nil {
			s.log.Error().Err(err).Int("campaign_id", fresh.ID).Msg("increment sent count")
		}
		st.RecordAttempt(now, lim, s.rng)
		s.log.Info().Int("campaign_id", fresh.ID).Int("target_id", target.ID).
			Int("sent_today", st.SentToday).Msg("target sent")
		return
	}

	var terr *appErrors.TransportError
	transient := errors.As(sendErr, &terr) && terr.Transient

	if transient && target.AttemptCount+1 < s.cfg.MaxAttempts {
		// Requeued attempts do not consume a daily-limit slot.
		if err := s.targets.Requeue(target.ID, now, sendErr.Error()); err != nil {
			s.log.Error().Err(err).Int("target_id", target.ID).Msg("requeue target")
			return
		}
		s.log.Warn().Err(sendErr).Int("campaign_id", fresh.ID).Int("target_id", target.ID).
			Int("attempt", target.AttemptCount+1).Msg("transient send failure, requeued")
		return
	}

	// Permanent failure, or transient failures exhausted their attempts.
	// Either way the target consumes a daily slot so retry storms cannot
	// evade the cap.
	if err := s.targets.MarkFailed(target.ID, now, sendErr.Error()); err != nil {
		s.log.Error().Err(err).Int("target_id", target.ID).Msg("mark target failed")
		return
	}
	if err := s.campaigns.IncrementFailed(fresh.ID); err != nil {
		s.log.Error().Err(err).Int("campaign_id", fresh.ID).Msg("increment failed count")
	}
	st.RecordAttempt(now, lim, s.rng)
	s.log.Warn().Err(sendErr).Int("campaign_id", fresh.ID).Int("target_id", target.ID).
		Msg("target failed")
}

func (s *Scheduler) complete(campaignID int) {
	done, err := s.campaigns.CompleteIfExhausted(campaignID)
	if err != nil {
		s.log.Error().Err(err).Int("campaign_id", campaignID).Msg("complete campaign")
		return
	}
	if done {
		delete(s.state, campaignID)
		s.log.Info().Int("campaign_id", campaignID).Msg("campaign completed")
	}
}

func (s *Scheduler) stateFor(campaignID int) *ThrottleState {
	st, ok := s.state[campaignID]
	if !ok {
		st = &ThrottleState{Day: localDay(s.now())}
		s.state[campaignID] = st
	}
	return st
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-s.wake:
	case <-timer.C:
	}
}

// targetFields is the substitution data for one recipient. Fields absent here
// render as empty strings.
func targetFields(t *model.Target) map[string]string {
	firstName := t.Name
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}
	return map[string]string{
		"name":       t.Name,
		"first_name": firstName,
		"phone":      t.Phone,
	}
}
