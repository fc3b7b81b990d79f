package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusquest/backend/internal/models"
)

const transactionColumns = `id, owner, quest_id, direction, description, amount_cents, balance_after_cents, status, created_at`

type ledgerRepo struct {
	tx pgx.Tx
}

func (r ledgerRepo) Append(ctx context.Context, t *models.Transaction) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.Owner, t.QuestID, t.Direction, t.Description, t.AmountCents, t.BalanceAfterCents, t.Status, t.CreatedAt)
	return err
}

func (r ledgerRepo) ListByOwner(ctx context.Context, owner string) ([]*models.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE owner = $1 ORDER BY created_at DESC, id DESC`, owner)
}

func (r ledgerRepo) ListByQuest(ctx context.Context, questID uuid.UUID) ([]*models.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE quest_id = $1 ORDER BY created_at DESC, id DESC`, questID)
}

func (r ledgerRepo) list(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]*models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Owner, &t.QuestID, &t.Direction, &t.Description, &t.AmountCents, &t.BalanceAfterCents, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

type messageRepo struct {
	tx pgx.Tx
}

func (r messageRepo) Append(ctx context.Context, m *models.Message) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO quest_messages (id, quest_id, sender, text, created_at) VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.QuestID, m.Sender, m.Text, m.CreatedAt)
	return err
}

func (r messageRepo) ListByQuest(ctx context.Context, questID uuid.UUID) ([]*models.Message, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, quest_id, sender, text, created_at FROM quest_messages WHERE quest_id = $1 ORDER BY created_at, id
	`, questID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]*models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.QuestID, &m.Sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}
