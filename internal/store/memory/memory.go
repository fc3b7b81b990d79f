// Package memory is the in-process store driver. A single mutex serializes
// units of work; every write records an undo step that is replayed in reverse
// when the unit of work fails.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campusquest/backend/internal/models"
	"github.com/campusquest/backend/internal/store"
)

type Store struct {
	mu       sync.Mutex
	quests   map[uuid.UUID]*models.Quest
	accounts map[string]*models.Account
	ledger   []*models.Transaction
	messages []*models.Message
}

func New() *Store {
	return &Store{
		quests:   make(map[uuid.UUID]*models.Quest),
		accounts: make(map[string]*models.Account),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Close() {}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s}
	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
	}()
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

type tx struct {
	s    *Store
	undo []func()
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *tx) Quests() store.QuestRepo     { return questRepo{t} }
func (t *tx) Accounts() store.AccountRepo { return accountRepo{t} }
func (t *tx) Ledger() store.LedgerRepo    { return ledgerRepo{t} }
func (t *tx) Messages() store.MessageRepo { return messageRepo{t} }

// saveQuest remembers the current row (or its absence) before a write.
func (t *tx) saveQuest(id uuid.UUID) {
	prev, ok := t.s.quests[id]
	if ok {
		prev = prev.Clone()
	}
	t.undo = append(t.undo, func() {
		if ok {
			t.s.quests[id] = prev
		} else {
			delete(t.s.quests, id)
		}
	})
}

func (t *tx) saveAccount(handle string) {
	prev, ok := t.s.accounts[handle]
	var cp models.Account
	if ok {
		cp = *prev
	}
	t.undo = append(t.undo, func() {
		if ok {
			t.s.accounts[handle] = &cp
		} else {
			delete(t.s.accounts, handle)
		}
	})
}

type questRepo struct{ t *tx }

func (r questRepo) Create(_ context.Context, q *models.Quest) error {
	if _, ok := r.t.s.quests[q.ID]; ok {
		return models.ErrDuplicate
	}
	r.t.saveQuest(q.ID)
	cp := q.Clone()
	if cp.Bids == nil {
		cp.Bids = []models.Bid{}
	}
	r.t.s.quests[q.ID] = cp
	return nil
}

func (r questRepo) Get(_ context.Context, id uuid.UUID) (*models.Quest, error) {
	q, ok := r.t.s.quests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return q.Clone(), nil
}

func (r questRepo) List(_ context.Context, f store.QuestFilter) ([]*models.Quest, error) {
	out := make([]*models.Quest, 0)
	for _, q := range r.t.s.quests {
		if f.Matches(q) {
			out = append(out, q.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r questRepo) HasRecent(_ context.Context, creator, title string, since time.Time) (bool, error) {
	for _, q := range r.t.s.quests {
		if q.CreatedBy == creator && q.Title == title && !q.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r questRepo) Transition(_ context.Context, id uuid.UUID, g store.QuestGuard, c store.QuestChange) (*models.Quest, error) {
	q, ok := r.t.s.quests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if !g.Matches(q) {
		return nil, models.ErrConflict
	}
	r.t.saveQuest(id)
	c.Apply(q)
	return q.Clone(), nil
}

func (r questRepo) Delete(_ context.Context, id uuid.UUID, g store.QuestGuard) (*models.Quest, error) {
	q, ok := r.t.s.quests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if !g.Matches(q) {
		return nil, models.ErrConflict
	}
	r.t.saveQuest(id)
	delete(r.t.s.quests, id)
	return q.Clone(), nil
}

type accountRepo struct{ t *tx }

func (r accountRepo) Create(_ context.Context, a *models.Account) error {
	if _, ok := r.t.s.accounts[a.Handle]; ok {
		return models.ErrDuplicate
	}
	if a.Email != "" {
		for _, other := range r.t.s.accounts {
			if strings.EqualFold(other.Email, a.Email) {
				return models.ErrDuplicate
			}
		}
	}
	r.t.saveAccount(a.Handle)
	cp := *a
	r.t.s.accounts[a.Handle] = &cp
	return nil
}

func (r accountRepo) Get(_ context.Context, handle string) (*models.Account, error) {
	a, ok := r.t.s.accounts[handle]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r accountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	for _, a := range r.t.s.accounts {
		if a.Email != "" && strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

// GetForUpdate is Get: the store mutex already isolates the unit of work.
func (r accountRepo) GetForUpdate(ctx context.Context, handle string) (*models.Account, error) {
	return r.Get(ctx, handle)
}

func (r accountRepo) AddBalance(_ context.Context, handle string, amount int64) (int64, error) {
	a, ok := r.t.s.accounts[handle]
	if !ok {
		return 0, models.ErrNotFound
	}
	r.t.saveAccount(handle)
	a.BalanceCents += amount
	a.UpdatedAt = time.Now().UTC()
	return a.BalanceCents, nil
}

func (r accountRepo) DeductBalance(_ context.Context, handle string, amount int64) (int64, error) {
	a, ok := r.t.s.accounts[handle]
	if !ok {
		return 0, models.ErrNotFound
	}
	if a.BalanceCents < amount {
		return a.BalanceCents, models.ErrInsufficientFunds
	}
	r.t.saveAccount(handle)
	a.BalanceCents -= amount
	a.UpdatedAt = time.Now().UTC()
	return a.BalanceCents, nil
}

func (r accountRepo) AddXP(_ context.Context, handle string, delta int) (int, error) {
	a, ok := r.t.s.accounts[handle]
	if !ok {
		return 0, models.ErrNotFound
	}
	r.t.saveAccount(handle)
	a.XP += delta
	if a.XP < 0 {
		a.XP = 0
	}
	a.UpdatedAt = time.Now().UTC()
	return a.XP, nil
}

func (r accountRepo) SetRating(_ context.Context, handle string, rating float64, count int) error {
	a, ok := r.t.s.accounts[handle]
	if !ok {
		return models.ErrNotFound
	}
	r.t.saveAccount(handle)
	a.Rating = rating
	a.RatingCount = count
	a.UpdatedAt = time.Now().UTC()
	return nil
}

type ledgerRepo struct{ t *tx }

func (r ledgerRepo) Append(_ context.Context, e *models.Transaction) error {
	n := len(r.t.s.ledger)
	r.t.undo = append(r.t.undo, func() { r.t.s.ledger = r.t.s.ledger[:n] })
	cp := *e
	r.t.s.ledger = append(r.t.s.ledger, &cp)
	return nil
}

func (r ledgerRepo) ListByOwner(_ context.Context, owner string) ([]*models.Transaction, error) {
	return r.collect(func(e *models.Transaction) bool { return e.Owner == owner }), nil
}

func (r ledgerRepo) ListByQuest(_ context.Context, questID uuid.UUID) ([]*models.Transaction, error) {
	return r.collect(func(e *models.Transaction) bool { return e.QuestID != nil && *e.QuestID == questID }), nil
}

// collect walks the ledger backwards so results come out newest first.
func (r ledgerRepo) collect(keep func(*models.Transaction) bool) []*models.Transaction {
	out := make([]*models.Transaction, 0)
	for i := len(r.t.s.ledger) - 1; i >= 0; i-- {
		if e := r.t.s.ledger[i]; keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

type messageRepo struct{ t *tx }

func (r messageRepo) Append(_ context.Context, m *models.Message) error {
	n := len(r.t.s.messages)
	r.t.undo = append(r.t.undo, func() { r.t.s.messages = r.t.s.messages[:n] })
	cp := *m
	r.t.s.messages = append(r.t.s.messages, &cp)
	return nil
}

func (r messageRepo) ListByQuest(_ context.Context, questID uuid.UUID) ([]*models.Message, error) {
	out := make([]*models.Message, 0)
	for _, m := range r.t.s.messages {
		if m.QuestID == questID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}
