package expiry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusquest/backend/internal/escrow"
	"github.com/campusquest/backend/internal/ledger"
	"github.com/campusquest/backend/internal/metrics"
	"github.com/campusquest/backend/internal/models"
	"github.com/campusquest/backend/internal/store"
	"github.com/campusquest/backend/internal/store/memory"
)

var base = time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	engine  *escrow.Engine
	sweeper *Sweeper
	logs    *bytes.Buffer
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, &models.Account{Handle: "alice", BalanceCents: 45000}); err != nil {
			return err
		}
		return tx.Accounts().Create(ctx, &models.Account{Handle: "bob"})
	}))
	f := &fixture{store: st, logs: &bytes.Buffer{}, now: base}
	clock := func() time.Time { return f.now }
	led := ledger.NewService(clock, nil)
	f.engine = escrow.NewEngine(st, led, escrow.Options{Now: clock})
	f.sweeper = NewSweeper(st, led, metrics.New(), slog.New(slog.NewJSONHandler(f.logs, nil)), clock)
	return f
}

func (f *fixture) post(t *testing.T, title string, reward int64, deadline time.Time) *models.Quest {
	t.Helper()
	q, err := f.engine.PostQuest(context.Background(), escrow.PostQuestInput{
		Creator: "alice", Title: title, RewardCents: reward, DeadlineAt: deadline,
	})
	require.NoError(t, err)
	return q
}

func (f *fixture) balance(t *testing.T, handle string) int64 {
	t.Helper()
	var bal int64
	require.NoError(t, f.store.InTx(context.Background(), func(tx store.Tx) error {
		a, err := tx.Accounts().Get(context.Background(), handle)
		if err == nil {
			bal = a.BalanceCents
		}
		return err
	}))
	return bal
}

func (f *fixture) status(t *testing.T, id uuid.UUID) string {
	t.Helper()
	q, err := f.engine.GetQuest(context.Background(), id, "")
	require.NoError(t, err)
	return q.Status
}

func TestSweep_ExpiresAndRefundsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := f.post(t, "Past due errand", 6000, base.Add(-time.Minute))
	future := f.post(t, "Tomorrow errand", 1000, base.Add(24*time.Hour))
	require.Equal(t, int64(38000), f.balance(t, "alice"))

	res, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Due: 1, Expired: 1, Refunded: 1}, res)
	assert.Equal(t, models.QuestStatusExpired, f.status(t, past.ID))
	assert.Equal(t, models.QuestStatusOpen, f.status(t, future.ID))
	assert.Equal(t, int64(44000), f.balance(t, "alice"))

	res, err = f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Due)
	assert.Equal(t, int64(44000), f.balance(t, "alice"))

	var refunds int
	require.NoError(t, f.store.InTx(ctx, func(tx store.Tx) error {
		list, err := tx.Ledger().ListByQuest(ctx, past.ID)
		for _, e := range list {
			if e.Description == "Refund: expired: Past due errand" {
				refunds++
			}
		}
		return err
	}))
	assert.Equal(t, 1, refunds)
}

func TestSweep_ActiveQuestRefundsCreatorNotHero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.post(t, "Queue for tickets", 2000, base.Add(time.Minute))
	_, err := f.engine.AcceptQuest(ctx, q.ID, "bob")
	require.NoError(t, err)

	f.now = base.Add(2 * time.Minute)
	res, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, int64(45000), f.balance(t, "alice"))
	assert.Zero(t, f.balance(t, "bob"))

	_, err = f.engine.CompleteQuest(ctx, q.ID, "bob", q.Code)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestSweep_DeadlineEqualToNowIsNotDue(t *testing.T) {
	f := newFixture(t)
	q := f.post(t, "Exactly now", 1000, base)

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Due)
	assert.Equal(t, models.QuestStatusOpen, f.status(t, q.ID))
}

func TestSweep_MissingCreatorStillExpiresAndContinues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orphan := &models.Quest{
		ID: uuid.New(), Title: "Orphan", RewardCents: 500, DeadlineAt: base.Add(-time.Hour),
		CreatedBy: "deleted-user", Code: "1111", Status: models.QuestStatusOpen, CreatedAt: base.Add(-2 * time.Hour),
	}
	require.NoError(t, f.store.InTx(ctx, func(tx store.Tx) error { return tx.Quests().Create(ctx, orphan) }))
	normal := f.post(t, "Normal", 1000, base.Add(-time.Second))

	res, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Due)
	assert.Equal(t, 2, res.Expired)
	assert.Equal(t, 1, res.Refunded)
	assert.Equal(t, models.QuestStatusExpired, f.status(t, orphan.ID))
	assert.Equal(t, models.QuestStatusExpired, f.status(t, normal.ID))
	assert.Equal(t, int64(45000), f.balance(t, "alice"))
	assert.Contains(t, f.logs.String(), "no creator account")
}

func TestSweepWorker_RunsSweep(t *testing.T) {
	f := newFixture(t)
	q := f.post(t, "Old", 1000, base.Add(-time.Second))

	w := NewSweepWorker(f.sweeper)
	require.NoError(t, w.Work(context.Background(), &river.Job[SweepArgs]{JobRow: &rivertype.JobRow{}, Args: SweepArgs{}}))
	assert.Equal(t, models.QuestStatusExpired, f.status(t, q.ID))
	assert.Equal(t, "expiry_sweep", SweepArgs{}.Kind())
	assert.NotNil(t, PeriodicJob(time.Minute))
}

func TestSweepArgs_InsertOptsDoNotDedupeShortIntervals(t *testing.T) {
	opts := SweepArgs{}.InsertOpts()
	assert.Equal(t, 1, opts.MaxAttempts)
	assert.Zero(t, opts.UniqueOpts.ByPeriod)
	assert.False(t, opts.UniqueOpts.ByArgs)
	assert.NotNil(t, PeriodicJob(30*time.Second))
}
