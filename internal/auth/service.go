package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusquest/backend/internal/ledger"
	"github.com/campusquest/backend/internal/models"
	"github.com/campusquest/backend/internal/store"
)

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong password.
var ErrInvalidCredentials = models.E(models.ErrUnauthorized, "invalid credentials")

// StartingBalanceDescription labels the ledger entry that funds a new account.
const StartingBalanceDescription = "Starting balance"

type RegisterInput struct {
	Handle   string
	Email    string
	Password string
	Name     string
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (*models.Account, error)
	Login(ctx context.Context, login, password string) (string, *models.Account, error)
	ValidateToken(ctx context.Context, token string) (string, error)
	Profile(ctx context.Context, handle string) (*models.Account, error)
}

type service struct {
	store           store.Store
	ledger          *ledger.Service
	secret          []byte
	ttl             time.Duration
	startingBalance int64
	now             func() time.Time
}

func NewService(st store.Store, led *ledger.Service, secret string, ttl time.Duration, startingBalance int64) *service {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &service{
		store:           st,
		ledger:          led,
		secret:          []byte(secret),
		ttl:             ttl,
		startingBalance: startingBalance,
		now:             time.Now,
	}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// Register creates the account and credits the starting balance through the
// ledger, so the account's history sums to its balance from the first entry.
func (s *service) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	in.Handle = strings.TrimSpace(in.Handle)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Handle == "" || in.Password == "" {
		return nil, models.E(models.ErrValidation, "handle and password are required")
	}
	if in.Name == "" {
		in.Name = in.Handle
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	acc := &models.Account{
		Handle:       in.Handle,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, acc); err != nil {
			if errors.Is(err, models.ErrDuplicate) {
				return models.E(models.ErrDuplicate, "handle or email already registered")
			}
			return err
		}
		if s.startingBalance <= 0 {
			return nil
		}
		entry, err := s.ledger.Credit(ctx, tx, acc.Handle, nil, StartingBalanceDescription, s.startingBalance)
		if err != nil {
			return err
		}
		acc.BalanceCents = entry.BalanceAfterCents
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Login accepts either a handle or an email.
func (s *service) Login(ctx context.Context, login, password string) (string, *models.Account, error) {
	login = strings.TrimSpace(login)
	var acc *models.Account
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if strings.Contains(login, "@") {
			acc, err = tx.Accounts().GetByEmail(ctx, strings.ToLower(login))
		} else {
			acc, err = tx.Accounts().Get(ctx, login)
		}
		return err
	})
	if errors.Is(err, models.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.issueToken(acc.Handle, acc.Name)
	if err != nil {
		return "", nil, err
	}
	return token, acc, nil
}

func (s *service) issueToken(handle, name string) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   handle,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Name: name,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken returns the handle the token was issued to.
func (s *service) ValidateToken(ctx context.Context, token string) (string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", models.E(models.ErrUnauthorized, "invalid token")
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid || c.Subject == "" {
		return "", models.E(models.ErrUnauthorized, "invalid token")
	}
	return c.Subject, nil
}

func (s *service) Profile(ctx context.Context, handle string) (*models.Account, error) {
	var acc *models.Account
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		acc, err = tx.Accounts().Get(ctx, handle)
		return err
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.E(models.ErrNotFound, "user %s not found", handle)
	}
	return acc, err
}
