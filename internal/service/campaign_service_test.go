package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixhub/workshop-backend/internal/audience"
	appErrors "github.com/fixhub/workshop-backend/internal/errors"
	"github.com/fixhub/workshop-backend/internal/model"
	"github.com/fixhub/workshop-backend/internal/queue"
)

// fakeCampaignRepo keeps campaigns and targets in memory, mimicking the CAS
// semantics of the real repository.
type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	targets   map[int][]model.Target
	nextID    int
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: map[int]*model.Campaign{}, targets: map[int][]model.Target{}, nextID: 1}
}

func (f *fakeCampaignRepo) Create(c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = f.nextID
	f.nextID++
	c.CreatedAt = time.Now()
	cp := *c
	f.campaigns[c.ID] = &cp
	return nil
}

func (f *fakeCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaignRepo) List() ([]model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Campaign{}
	for _, c := range f.campaigns {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCampaignRepo) ListByStatus(statuses ...string) ([]model.Campaign, error) {
	all, _ := f.List()
	out := []model.Campaign{}
	for _, c := range all {
		for _, st := range statuses {
			if c.Status == st {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeCampaignRepo) UpdateStatusCAS(id int, to string, from ...string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if c.Status == st {
			c.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCampaignRepo) StartCampaign(id int, targets []model.Target, newStatus string, now time.Time) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	switch c.Status {
	case model.StatusDraft, model.StatusScheduled, model.StatusPaused:
	default:
		return nil, appErrors.NewStateConflict(id, c.Status, newStatus)
	}
	if c.StartedAt == nil {
		f.targets[id] = append([]model.Target{}, targets...)
		c.TargetCount = len(targets)
		c.StartedAt = &now
	}
	c.Status = newStatus
	cp := *c
	return &cp, nil
}

func (f *fakeCampaignRepo) CancelCampaign(id int) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	if c.IsTerminal() {
		return nil, appErrors.NewStateConflict(id, c.Status, model.StatusCancelled)
	}
	ts := f.targets[id]
	for i := range ts {
		if ts[i].Status == model.TargetPending || ts[i].Status == "" {
			ts[i].Status = model.TargetSkipped
		}
	}
	c.Status = model.StatusCancelled
	cp := *c
	return &cp, nil
}

func (f *fakeCampaignRepo) CompleteIfExhausted(id int) (bool, error) { return false, nil }
func (f *fakeCampaignRepo) IncrementSent(id int) error               { return nil }
func (f *fakeCampaignRepo) IncrementFailed(id int) error             { return nil }

// fakeTargetRepo only backs the detail endpoint here.
type fakeTargetRepo struct {
	stats map[string]int
}

func (f *fakeTargetRepo) NextPending(int) (*model.Target, error)           { return nil, nil }
func (f *fakeTargetRepo) MarkSent(int, time.Time) error                    { return nil }
func (f *fakeTargetRepo) MarkFailed(int, time.Time, string) error          { return nil }
func (f *fakeTargetRepo) Requeue(int, time.Time, string) error             { return nil }
func (f *fakeTargetRepo) DayStats(int, time.Time) (int, *time.Time, error) { return 0, nil, nil }
func (f *fakeTargetRepo) StatsByStatus(int) (map[string]int, error)        { return f.stats, nil }

type fakeResolver struct {
	entries []audience.Entry
	err     error
	calls   int
}

func (f *fakeResolver) Resolve(spec model.FilterSpec, now time.Time) ([]audience.Entry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeResolver) Preview(spec model.FilterSpec, now time.Time) (*audience.Preview, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &audience.Preview{TotalCustomers: len(f.entries)}, nil
}

type eventRecorder struct {
	events []queue.Event
}

func (r *eventRecorder) PublishCampaignEvent(ev queue.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func newTestService(resolver *fakeResolver) (*CampaignService, *fakeCampaignRepo, *eventRecorder) {
	repo := newFakeCampaignRepo()
	events := &eventRecorder{}
	svc := &CampaignService{
		CampaignRepo: repo,
		TargetRepo:   &fakeTargetRepo{stats: map[string]int{model.TargetPending: 2}},
		Resolver:     resolver,
		Events:       events,
		Log:          zerolog.Nop(),
	}
	return svc, repo, events
}

func validInput() CreateInput {
	return CreateInput{
		Name:        "winter checkup",
		Kind:        model.KindReminder,
		Message:     "Hello {name}, your device is ready",
		Filters:     model.FilterSpec{IncludeTags: []string{"phone-repair"}},
		BizStartMin: 9 * 60,
		BizEndMin:   18 * 60,
		DailyLimit:  50,
		DelayMinSec: 20,
		DelayMaxSec: 60,
	}
}

func someEntries() []audience.Entry {
	id := 1
	return []audience.Entry{
		{CustomerID: &id, Name: "Ali Kaya", Phone: "905321112233"},
		{Phone: "905447778899"},
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(&fakeResolver{})

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"empty name", func(in *CreateInput) { in.Name = "" }},
		{"unknown kind", func(in *CreateInput) { in.Kind = "spam" }},
		{"empty message", func(in *CreateInput) { in.Message = "" }},
		{"zero daily limit", func(in *CreateInput) { in.DailyLimit = 0 }},
		{"inverted delay range", func(in *CreateInput) { in.DelayMinSec = 90; in.DelayMaxSec = 30 }},
		{"inverted window", func(in *CreateInput) { in.BizStartMin = 1200; in.BizEndMin = 540 }},
		{"empty filters", func(in *CreateInput) { in.Filters = model.FilterSpec{} }},
		{"scheduled in the past", func(in *CreateInput) {
			past := time.Now().Add(-time.Hour)
			in.ScheduledFor = &past
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.Create(in)
			var verr *appErrors.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestCreateStoresDraft(t *testing.T) {
	svc, repo, _ := newTestService(&fakeResolver{})

	c, err := svc.Create(validInput())
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, c.Status)

	stored, err := repo.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"phone-repair"}, stored.Filters.IncludeTags)
	assert.Equal(t, 0, stored.TargetCount)
}

func TestStartMaterializesOnce(t *testing.T) {
	resolver := &fakeResolver{entries: someEntries()}
	svc, repo, events := newTestService(resolver)

	c, err := svc.Create(validInput())
	require.NoError(t, err)

	started, err := svc.Start(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, started.Status)
	assert.Equal(t, 2, started.TargetCount)
	require.NotNil(t, started.StartedAt)
	assert.Equal(t, 1, resolver.calls)

	// Pause, then start again: the frozen target set must be reused.
	_, err = svc.Pause(c.ID)
	require.NoError(t, err)
	restarted, err := svc.Start(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, restarted.Status)
	assert.Equal(t, 2, restarted.TargetCount)
	assert.Equal(t, 1, resolver.calls, "filters are never re-evaluated")
	assert.Len(t, repo.targets[c.ID], 2)

	actions := []string{}
	for _, ev := range events.events {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{"start", "pause", "start"}, actions)
}

func TestStartWithFutureScheduleParks(t *testing.T) {
	resolver := &fakeResolver{entries: someEntries()}
	svc, _, _ := newTestService(resolver)

	in := validInput()
	future := time.Now().Add(2 * time.Hour)
	in.ScheduledFor = &future
	c, err := svc.Create(in)
	require.NoError(t, err)

	started, err := svc.Start(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, started.Status)
	assert.Equal(t, 2, started.TargetCount, "snapshot is taken at start time")
}

func TestResolverFailureLeavesCampaignUntouched(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("store down")}
	svc, repo, _ := newTestService(resolver)

	c, err := svc.Create(validInput())
	require.NoError(t, err)

	_, err = svc.Start(c.ID)
	var unavailable *appErrors.ResourceUnavailableError
	require.ErrorAs(t, err, &unavailable)

	stored, err := repo.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, stored.Status)
	assert.Nil(t, stored.StartedAt)
	assert.Equal(t, 0, stored.TargetCount)
}

func TestIllegalTransitions(t *testing.T) {
	resolver := &fakeResolver{entries: someEntries()}
	svc, _, _ := newTestService(resolver)

	c, err := svc.Create(validInput())
	require.NoError(t, err)

	// Pause before start.
	_, err = svc.Pause(c.ID)
	var conflict *appErrors.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, model.StatusDraft, conflict.Current)
	assert.Equal(t, model.StatusPaused, conflict.Requested)

	// Resume a running campaign.
	_, err = svc.Start(c.ID)
	require.NoError(t, err)
	_, err = svc.Resume(c.ID)
	assert.ErrorAs(t, err, &conflict)
}

func TestCancelSkipsPendingAndBlocksRestart(t *testing.T) {
	resolver := &fakeResolver{entries: someEntries()}
	svc, repo, _ := newTestService(resolver)

	c, err := svc.Create(validInput())
	require.NoError(t, err)
	_, err = svc.Start(c.ID)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	for _, tgt := range repo.targets[c.ID] {
		assert.Equal(t, model.TargetSkipped, tgt.Status)
	}

	_, err = svc.Start(c.ID)
	var conflict *appErrors.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, model.StatusCancelled, conflict.Current)

	// Cancel is not idempotent: terminal states reject further transitions.
	_, err = svc.Cancel(c.ID)
	assert.ErrorAs(t, err, &conflict)
}

func TestTransitionOnMissingCampaign(t *testing.T) {
	svc, _, _ := newTestService(&fakeResolver{})
	_, err := svc.Start(99)
	var notFound *appErrors.CampaignNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestPreviewDoesNotPersist(t *testing.T) {
	resolver := &fakeResolver{entries: someEntries()}
	svc, repo, _ := newTestService(resolver)

	p, err := svc.Preview(model.FilterSpec{IncludeTags: []string{"vip"}})
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalCustomers)
	assert.Empty(t, repo.campaigns)
}
