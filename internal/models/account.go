package models

import "time"

// Account is a user's wallet and reputation. Balances are in minor units (paise).
type Account struct {
	Handle       string    `json:"handle"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	BalanceCents int64     `json:"balance_cents"`
	XP           int       `json:"xp"`
	Rating       float64   `json:"rating"`
	RatingCount  int       `json:"rating_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RatingWith returns the running average after adding one more rating,
// rounded to one decimal, and the new rating count.
func (a *Account) RatingWith(value int) (float64, int) {
	count := a.RatingCount + 1
	avg := (a.Rating*float64(a.RatingCount) + float64(value)) / float64(count)
	return roundTenths(avg), count
}

func roundTenths(v float64) float64 {
	// half-up at one decimal; ratings are never negative
	return float64(int64(v*10+0.5)) / 10
}
