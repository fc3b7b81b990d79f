package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusquest/backend/internal/models"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func TestAllSchemasCompile(t *testing.T) {
	v := newTestValidator(t)
	for _, name := range []string{PostQuest, HeroAction, PlaceBid, AcceptBid, CompleteQuest, RateHero, RaiseDispute, ResolveDispute, Register, Login, PostMessage} {
		assert.Contains(t, v.schemas, name)
	}
}

func TestPostQuest(t *testing.T) {
	v := newTestValidator(t)
	ok := `{"title":"Fetch coffee","reward_cents":10000,"xp":50,"urgency":"urgent","deadline_at":"2026-03-01T17:00:00Z","created_by":"alice"}`
	assert.NoError(t, v.Validate(PostQuest, []byte(ok)))

	err := v.Validate(PostQuest, []byte(`{"title":"x","reward_cents":0,"deadline_at":"2026-03-01T17:00:00Z"}`))
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "reward_cents")

	err = v.Validate(PostQuest, []byte(`{"title":"x","reward_cents":5,"deadline_at":"tomorrow"}`))
	assert.ErrorIs(t, err, models.ErrValidation)

	err = v.Validate(PostQuest, []byte(`{"title":"x","reward_cents":5,"urgency":"asap","deadline_at":"2026-03-01T17:00:00Z"}`))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCompleteQuest_CodeShape(t *testing.T) {
	v := newTestValidator(t)
	assert.NoError(t, v.Validate(CompleteQuest, []byte(`{"code":"0427","hero":"bob"}`)))
	assert.ErrorIs(t, v.Validate(CompleteQuest, []byte(`{"code":"427"}`)), models.ErrValidation)
	assert.ErrorIs(t, v.Validate(CompleteQuest, []byte(`{"code":4271}`)), models.ErrValidation)
}

func TestRateHero_Bounds(t *testing.T) {
	v := newTestValidator(t)
	assert.NoError(t, v.Validate(RateHero, []byte(`{"rating":5}`)))
	assert.ErrorIs(t, v.Validate(RateHero, []byte(`{"rating":0}`)), models.ErrValidation)
	assert.ErrorIs(t, v.Validate(RateHero, []byte(`{"rating":4.5}`)), models.ErrValidation)
}

func TestResolveDispute_Enum(t *testing.T) {
	v := newTestValidator(t)
	assert.NoError(t, v.Validate(ResolveDispute, []byte(`{"resolution":"split","admin":"dean"}`)))
	assert.ErrorIs(t, v.Validate(ResolveDispute, []byte(`{"resolution":"coin_flip"}`)), models.ErrValidation)
}

func TestRegister(t *testing.T) {
	v := newTestValidator(t)
	assert.NoError(t, v.Validate(Register, []byte(`{"handle":"alice_01","email":"alice@uni.edu","password":"hunter2hunter2"}`)))
	assert.ErrorIs(t, v.Validate(Register, []byte(`{"handle":"a b","password":"hunter2hunter2"}`)), models.ErrValidation)
	assert.ErrorIs(t, v.Validate(Register, []byte(`{"handle":"alice","email":"not-an-email","password":"hunter2hunter2"}`)), models.ErrValidation)
}

func TestInvalidJSONAndUnknownSchema(t *testing.T) {
	v := newTestValidator(t)
	assert.ErrorIs(t, v.Validate(PlaceBid, []byte(`{`)), models.ErrValidation)
	assert.Error(t, v.Validate("nope", []byte(`{}`)))
}
