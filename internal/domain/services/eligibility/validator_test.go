package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	domainerrors "github.com/rebalance-service/rebalance_service/internal/domain/errors"
)

const testOwner = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func makeProfile(mutators ...func(p *entities.UserProfile)) *entities.UserProfile {
	p := entities.NewUserProfile(testOwner, time.Now())
	for _, m := range mutators {
		m(p)
	}
	return p
}

func TestValidate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewValidator(300*time.Second, zap.NewNop())

	t.Run("eligible user", func(t *testing.T) {
		ok, err := v.Validate(makeProfile(), 0, now)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("disabled user is skipped without error", func(t *testing.T) {
		ok, err := v.Validate(makeProfile(func(p *entities.UserProfile) { p.Enabled = false }), 0, now)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("disabled wins over cooldown and limit", func(t *testing.T) {
		last := now.Add(-time.Second)
		p := makeProfile(func(p *entities.UserProfile) {
			p.Enabled = false
			p.LastExecution = &last
		})
		ok, err := v.Validate(p, 100, now)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("cooldown active", func(t *testing.T) {
		last := now.Add(-60 * time.Second)
		ok, err := v.Validate(makeProfile(func(p *entities.UserProfile) { p.LastExecution = &last }), 0, now)

		assert.False(t, ok)
		var cooldown *domainerrors.CooldownActiveError
		require.ErrorAs(t, err, &cooldown)
		assert.Equal(t, 240*time.Second, cooldown.Remaining)
		assert.True(t, domainerrors.IsEligibilitySkip(err))
	})

	t.Run("cooldown boundary is eligible", func(t *testing.T) {
		last := now.Add(-300 * time.Second)
		ok, err := v.Validate(makeProfile(func(p *entities.UserProfile) { p.LastExecution = &last }), 0, now)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("cooldown expired", func(t *testing.T) {
		last := now.Add(-600 * time.Second)
		ok, err := v.Validate(makeProfile(func(p *entities.UserProfile) { p.LastExecution = &last }), 0, now)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("cooldown is checked before daily limit", func(t *testing.T) {
		last := now.Add(-time.Second)
		limit := 1
		p := makeProfile(func(p *entities.UserProfile) {
			p.LastExecution = &last
			p.DailyLimit = &limit
		})
		_, err := v.Validate(p, 5, now)
		var cooldown *domainerrors.CooldownActiveError
		assert.ErrorAs(t, err, &cooldown)
	})

	t.Run("daily limit reached", func(t *testing.T) {
		limit := 5
		ok, err := v.Validate(makeProfile(func(p *entities.UserProfile) { p.DailyLimit = &limit }), 5, now)

		assert.False(t, ok)
		var exceeded *domainerrors.DailyLimitExceededError
		require.ErrorAs(t, err, &exceeded)
		assert.Equal(t, 5, exceeded.Limit)
	})

	t.Run("daily limit not reached", func(t *testing.T) {
		limit := 5
		ok, err := v.Validate(makeProfile(func(p *entities.UserProfile) { p.DailyLimit = &limit }), 4, now)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("nil daily limit is unlimited", func(t *testing.T) {
		ok, err := v.Validate(makeProfile(func(p *entities.UserProfile) { p.DailyLimit = nil }), 100, now)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestCooldownEnd(t *testing.T) {
	v := NewValidator(300*time.Second, zap.NewNop())

	_, ok := v.CooldownEnd(makeProfile())
	assert.False(t, ok)

	last := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	end, ok := v.CooldownEnd(makeProfile(func(p *entities.UserProfile) { p.LastExecution = &last }))
	require.True(t, ok)
	assert.Equal(t, last.Add(5*time.Minute), end)
}

func TestStartOfDayUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	in := time.Date(2024, 6, 2, 3, 30, 0, 0, loc) // 2024-06-01 22:30 UTC

	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), StartOfDayUTC(in))
}
