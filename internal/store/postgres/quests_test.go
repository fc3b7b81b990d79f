package postgres

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusquest/backend/internal/escrow"
	"github.com/campusquest/backend/internal/ledger"
	"github.com/campusquest/backend/internal/models"
	"github.com/campusquest/backend/internal/store"
)

func TestGuardSQL(t *testing.T) {
	var b sqlBuilder
	rated := false
	where := guardSQL(&b, store.QuestGuard{
		Statuses:    []string{models.QuestStatusOpen},
		PartyOf:     "alice",
		RatingGiven: &rated,
	})
	assert.Equal(t, []string{
		"status = ANY($1)",
		"(created_by = $2 OR assigned_to = $2)",
		"rating_given = $3",
	}, where)
	assert.Len(t, b.args, 3)
}

func TestChangeSQL_DisputeKeepsPreviousStatusFromRow(t *testing.T) {
	var b sqlBuilder
	set, err := changeSQL(&b, store.QuestChange{
		Status:      models.QuestStatusDisputed,
		OpenDispute: &models.Dispute{RaisedBy: "alice", Reason: "no show"},
		At:          time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	joined := strings.Join(set, ", ")
	assert.Contains(t, joined, "status = $2")
	assert.Contains(t, joined, "jsonb_build_object('previous_status', status)")
}

func TestChangeSQL_ClearBidsWinsOverAppend(t *testing.T) {
	var b sqlBuilder
	set, err := changeSQL(&b, store.QuestChange{ClearBids: true, AppendBid: &models.Bid{Bidder: "bob"}})
	require.NoError(t, err)
	assert.Contains(t, set, "bids = '[]'::jsonb")
	assert.Len(t, b.args, 1)
}

// Integration tests run only when a scratch database is provided.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("CAMPUSQUEST_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CAMPUSQUEST_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	_, err = s.Migrate(ctx)
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, `TRUNCATE accounts, quests, transactions, quest_messages`)
	require.NoError(t, err)
	return s
}

func TestPostgres_TransitionAndRollback(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	q := &models.Quest{
		ID: uuid.New(), Title: "Print notes", RewardCents: 1500, Urgency: models.UrgencyLow,
		DeadlineAt: now.Add(time.Hour), CreatedBy: "alice", Code: "4321",
		Status: models.QuestStatusOpen, CreatedAt: now,
	}
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, &models.Account{Handle: "alice", BalanceCents: 1000}); err != nil {
			return err
		}
		return tx.Quests().Create(ctx, q)
	}))

	err := s.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Quests().Transition(ctx, q.ID,
			store.QuestGuard{Statuses: []string{models.QuestStatusOpen}, NotCreatedBy: "bob"},
			store.QuestChange{Status: models.QuestStatusActive, AssignTo: "bob", At: now}); err != nil {
			return err
		}
		_, err := tx.Accounts().DeductBalance(ctx, "alice", 5000)
		return err
	})
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		got, err := tx.Quests().Get(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, models.QuestStatusOpen, got.Status)
		assert.Nil(t, got.AssignedTo)

		bid := &models.Bid{Bidder: "bob", AmountCents: 900, CreatedAt: now}
		got, err = tx.Quests().Transition(ctx, q.ID,
			store.QuestGuard{Statuses: []string{models.QuestStatusOpen}, NotCreatedBy: "bob"},
			store.QuestChange{AppendBid: bid, At: now})
		require.NoError(t, err)
		require.Len(t, got.Bids, 1)
		assert.Equal(t, int64(900), got.Bids[0].AmountCents)

		_, err = tx.Quests().Transition(ctx, q.ID,
			store.QuestGuard{Statuses: []string{models.QuestStatusActive}},
			store.QuestChange{Status: models.QuestStatusCompleted})
		assert.ErrorIs(t, err, models.ErrConflict)
		return nil
	}))
}

func TestPostgres_ConcurrentRatingsOfOneHero(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	hero := "bob"
	var ids []uuid.UUID
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		for _, handle := range []string{"alice", "carol", hero} {
			if err := tx.Accounts().Create(ctx, &models.Account{Handle: handle, Email: handle + "@uni.edu"}); err != nil {
				return err
			}
		}
		for _, creator := range []string{"alice", "carol"} {
			q := &models.Quest{
				ID: uuid.New(), Title: "Return books for " + creator, RewardCents: 1000, Urgency: models.UrgencyLow,
				DeadlineAt: now.Add(time.Hour), CreatedBy: creator, AssignedTo: &hero, Code: "4321",
				Status: models.QuestStatusCompleted, CreatedAt: now,
			}
			if err := tx.Quests().Create(ctx, q); err != nil {
				return err
			}
			ids = append(ids, q.ID)
		}
		return nil
	}))

	eng := escrow.NewEngine(s, ledger.NewService(time.Now, nil), escrow.Options{})
	var wg sync.WaitGroup
	for i, value := range []int{5, 3} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.RateHero(ctx, ids[i], "", value)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		got, err := tx.Accounts().Get(ctx, hero)
		require.NoError(t, err)
		assert.Equal(t, 4.0, got.Rating)
		assert.Equal(t, 2, got.RatingCount)
		return nil
	}))
}
