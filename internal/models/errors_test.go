package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "conflict", Kind(E(ErrConflict, "quest already taken")))
	assert.Equal(t, "insufficient_funds", Kind(fmt.Errorf("post: %w", ErrInsufficientFunds)))
	assert.Equal(t, "internal", Kind(errors.New("boom")))
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	err := E(ErrInvalidCode, "code %s does not match", "1111")
	assert.Equal(t, "code 1111 does not match", err.Error())
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestRatingWith(t *testing.T) {
	a := &Account{Rating: 4.5, RatingCount: 2}
	avg, n := a.RatingWith(3)
	assert.Equal(t, 4.0, avg)
	assert.Equal(t, 3, n)

	fresh := &Account{}
	avg, n = fresh.RatingWith(5)
	assert.Equal(t, 5.0, avg)
	assert.Equal(t, 1, n)

	b := &Account{Rating: 4.0, RatingCount: 2}
	avg, _ = b.RatingWith(5)
	assert.Equal(t, 4.3, avg)
}

func TestLatestBids(t *testing.T) {
	bids := []Bid{
		{Bidder: "bob", AmountCents: 900},
		{Bidder: "carol", AmountCents: 800},
		{Bidder: "bob", AmountCents: 700},
	}
	got := LatestBids(bids)
	assert.Equal(t, []Bid{{Bidder: "carol", AmountCents: 800}, {Bidder: "bob", AmountCents: 700}}, got)
}

func TestVisibleTo_HidesCodeFromNonCreator(t *testing.T) {
	q := &Quest{CreatedBy: "alice", Code: "4821"}
	assert.Equal(t, "4821", q.VisibleTo("alice").Code)
	assert.Empty(t, q.VisibleTo("bob").Code)
	assert.Empty(t, q.VisibleTo("").Code)
	assert.Equal(t, "4821", q.Code)
}
