package dispatch

import (
	"math/rand"
	"time"

	"github.com/fixhub/workshop-backend/internal/model"
)

// Limits are the per-campaign throttling constraints.
type Limits struct {
	StartMin   int // business-hours window, minutes from local midnight
	EndMin     int
	DailyLimit int
	DelayMin   time.Duration
	DelayMax   time.Duration
}

func limitsOf(c *model.Campaign) Limits {
	return Limits{
		StartMin:   c.BizStartMin,
		EndMin:     c.BizEndMin,
		DailyLimit: c.DailyLimit,
		DelayMin:   time.Duration(c.DelayMinSec) * time.Second,
		DelayMax:   time.Duration(c.DelayMaxSec) * time.Second,
	}
}

// ThrottleState tracks one campaign's send pacing. It is derived state: the
// scheduler rebuilds it from persisted targets on boot and is its only writer
// afterwards. The random inter-send delay is rolled once per recorded attempt
// so repeated eligibility checks stay stable.
type ThrottleState struct {
	Day           string // local date the counters belong to
	SentToday     int
	LastSendAt    time.Time
	NextAllowedAt time.Time
}

func localDay(t time.Time) string { return t.Format("2006-01-02") }

func startOfNextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// rollover resets the daily counter when the local date has changed.
func (s *ThrottleState) rollover(now time.Time) {
	if day := localDay(now); s.Day != day {
		s.Day = day
		s.SentToday = 0
	}
}

// RecordAttempt consumes a daily-limit slot at the given time and rolls the
// next random delay. Called for successful sends and permanent failures, not
// for transient requeues.
func (s *ThrottleState) RecordAttempt(at time.Time, lim Limits, rng *rand.Rand) {
	s.rollover(at)
	s.SentToday++
	s.LastSendAt = at
	s.NextAllowedAt = at.Add(uniformDelay(lim, rng))
}

// uniformDelay draws from [DelayMin, DelayMax], both bounds inclusive.
func uniformDelay(lim Limits, rng *rand.Rand) time.Duration {
	if lim.DelayMax <= lim.DelayMin {
		return lim.DelayMin
	}
	return lim.DelayMin + time.Duration(rng.Int63n(int64(lim.DelayMax-lim.DelayMin)+1))
}

// NextEligible computes the earliest permitted send time for a campaign:
// the rolled inter-send delay, pushed past local midnight when the daily
// limit is spent, then pushed to the next business-hours opening when hours
// are respected. The global respectHours switch overrides the per-campaign
// window entirely.
func NextEligible(now time.Time, lim Limits, s *ThrottleState, respectHours bool) time.Time {
	s.rollover(now)

	at := now
	if s.NextAllowedAt.After(at) {
		at = s.NextAllowedAt
	}
	if lim.DailyLimit > 0 && s.SentToday >= lim.DailyLimit {
		if midnight := startOfNextDay(now); midnight.After(at) {
			at = midnight
		}
	}
	if respectHours {
		at = nextWindowOpen(at, lim.StartMin, lim.EndMin)
	}
	return at
}

// nextWindowOpen returns t when it falls inside the window, otherwise the
// window's next opening. A degenerate window (start >= end) never restricts.
func nextWindowOpen(t time.Time, startMin, endMin int) time.Time {
	if startMin >= endMin {
		return t
	}
	minute := t.Hour()*60 + t.Minute()
	y, m, d := t.Date()
	switch {
	case minute < startMin:
		return time.Date(y, m, d, startMin/60, startMin%60, 0, 0, t.Location())
	case minute >= endMin:
		return time.Date(y, m, d+1, startMin/60, startMin%60, 0, 0, t.Location())
	default:
		return t
	}
}
