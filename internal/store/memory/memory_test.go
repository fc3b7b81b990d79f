package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusquest/backend/internal/models"
	"github.com/campusquest/backend/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, accounts ...*models.Account) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), func(tx store.Tx) error {
		for _, a := range accounts {
			if err := tx.Accounts().Create(context.Background(), a); err != nil {
				return err
			}
		}
		return nil
	}))
}

func openQuest(creator string) *models.Quest {
	return &models.Quest{
		ID:          uuid.New(),
		Title:       "Fetch coffee",
		RewardCents: 1000,
		Urgency:     models.UrgencyMedium,
		DeadlineAt:  t0.Add(time.Hour),
		CreatedBy:   creator,
		Code:        "1234",
		Status:      models.QuestStatusOpen,
		CreatedAt:   t0,
	}
}

func TestInTx_RollsBackEveryWriteOnError(t *testing.T) {
	s := New()
	seed(t, s, &models.Account{Handle: "alice", BalanceCents: 5000})
	q := openQuest("alice")
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()
		if _, err := tx.Accounts().DeductBalance(ctx, "alice", 1000); err != nil {
			return err
		}
		if err := tx.Quests().Create(ctx, q); err != nil {
			return err
		}
		if err := tx.Ledger().Append(ctx, &models.Transaction{ID: uuid.New(), Owner: "alice", Direction: models.TxDebit, AmountCents: 1000}); err != nil {
			return err
		}
		if _, err := tx.Accounts().AddXP(ctx, "alice", 10); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.InTx(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()
		a, err := tx.Accounts().Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(5000), a.BalanceCents)
		assert.Equal(t, 0, a.XP)

		_, err = tx.Quests().Get(ctx, q.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		entries, err := tx.Ledger().ListByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, entries)
		return nil
	}))
}

func TestTransition_GuardMismatchIsConflict(t *testing.T) {
	s := New()
	q := openQuest("alice")
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.Quests().Create(ctx, q) }))

	accept := store.QuestChange{Status: models.QuestStatusActive, AssignTo: "bob", At: t0}
	guard := store.QuestGuard{Statuses: []string{models.QuestStatusOpen}, NotCreatedBy: "bob"}

	var first *models.Quest
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		var err error
		first, err = tx.Quests().Transition(ctx, q.ID, guard, accept)
		return err
	}))
	assert.Equal(t, models.QuestStatusActive, first.Status)
	assert.Equal(t, "bob", first.Assignee())

	err := s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.Quests().Transition(ctx, q.ID, guard, store.QuestChange{Status: models.QuestStatusActive, AssignTo: "carol"})
		return err
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	err = s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.Quests().Transition(ctx, uuid.New(), guard, accept)
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTransition_OpenDisputeCapturesPreviousStatus(t *testing.T) {
	s := New()
	q := openQuest("alice")
	q.Status = models.QuestStatusCompleted
	bob := "bob"
	q.AssignedTo = &bob
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.Quests().Create(ctx, q) }))

	var got *models.Quest
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		var err error
		got, err = tx.Quests().Transition(ctx, q.ID,
			store.QuestGuard{Statuses: []string{models.QuestStatusActive, models.QuestStatusCompleted}, PartyOf: "alice"},
			store.QuestChange{
				Status:      models.QuestStatusDisputed,
				OpenDispute: &models.Dispute{RaisedBy: "alice", Reason: "never showed", CreatedAt: t0},
				At:          t0,
			})
		return err
	}))
	require.NotNil(t, got.Dispute)
	assert.Equal(t, models.QuestStatusCompleted, got.Dispute.PreviousStatus)
	assert.Equal(t, models.DisputeStatusPending, got.Dispute.Status)
	assert.True(t, got.Dispute.WasPaid())
}

func TestDeductBalance_Insufficient(t *testing.T) {
	s := New()
	seed(t, s, &models.Account{Handle: "alice", BalanceCents: 500})
	ctx := context.Background()
	err := s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.Accounts().DeductBalance(ctx, "alice", 501)
		return err
	})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestAddXP_FloorsAtZero(t *testing.T) {
	s := New()
	seed(t, s, &models.Account{Handle: "bob", XP: 30})
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		xp, err := tx.Accounts().AddXP(ctx, "bob", -50)
		require.NoError(t, err)
		assert.Equal(t, 0, xp)
		return nil
	}))
}

func TestAccountCreate_DuplicateHandleOrEmail(t *testing.T) {
	s := New()
	seed(t, s, &models.Account{Handle: "alice", Email: "alice@uni.edu"})
	ctx := context.Background()

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.Accounts().Create(ctx, &models.Account{Handle: "alice"})
	})
	assert.ErrorIs(t, err, models.ErrDuplicate)

	err = s.InTx(ctx, func(tx store.Tx) error {
		return tx.Accounts().Create(ctx, &models.Account{Handle: "alice2", Email: "ALICE@uni.edu"})
	})
	assert.ErrorIs(t, err, models.ErrDuplicate)
}

func TestList_NewestFirstAndFiltered(t *testing.T) {
	s := New()
	ctx := context.Background()
	older := openQuest("alice")
	newer := openQuest("bob")
	newer.CreatedAt = t0.Add(time.Minute)
	done := openQuest("alice")
	done.Status = models.QuestStatusCompleted
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		for _, q := range []*models.Quest{older, newer, done} {
			if err := tx.Quests().Create(ctx, q); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		got, err := tx.Quests().List(ctx, store.QuestFilter{Statuses: []string{models.QuestStatusOpen}})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, newer.ID, got[0].ID)
		assert.Equal(t, older.ID, got[1].ID)

		cutoff := t0.Add(2 * time.Hour)
		due, err := tx.Quests().List(ctx, store.QuestFilter{
			Statuses:       []string{models.QuestStatusOpen, models.QuestStatusActive},
			DeadlineBefore: &cutoff,
		})
		require.NoError(t, err)
		assert.Len(t, due, 2)
		return nil
	}))
}

func TestHasRecent(t *testing.T) {
	s := New()
	ctx := context.Background()
	q := openQuest("alice")
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.Quests().Create(ctx, q) }))

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		hit, err := tx.Quests().HasRecent(ctx, "alice", q.Title, t0.Add(-10*time.Second))
		require.NoError(t, err)
		assert.True(t, hit)

		hit, err = tx.Quests().HasRecent(ctx, "alice", q.Title, t0.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, hit)

		hit, err = tx.Quests().HasRecent(ctx, "bob", q.Title, t0.Add(-10*time.Second))
		require.NoError(t, err)
		assert.False(t, hit)
		return nil
	}))
}
