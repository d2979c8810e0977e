package entities

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"wallet", "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", false},
		{"wsol mint", WSOLMint, false},
		{"usdc mint", USDCMint, false},
		{"invalid alphabet", "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl", true},
		{"too short", "abc", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.address)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidAddress)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProtocolFee(t *testing.T) {
	assert.Equal(t, int64(370_000), ProtocolFee(370_000_000, 10))
	assert.Equal(t, int64(0), ProtocolFee(999, 10))
	assert.Equal(t, int64(1), ProtocolFee(1_999, 10))
	assert.Equal(t, int64(0), ProtocolFee(370_000_000, 0))
}

func TestBaseUnitConversion(t *testing.T) {
	lamports, err := SOLToLamports(decimal.RequireFromString("2.5000000019"))
	assert.NoError(t, err)
	assert.Equal(t, int64(2_500_000_001), lamports)

	largest, err := SOLToLamports(decimal.RequireFromString("9223372036.854775807"))
	assert.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), largest)

	_, err = SOLToLamports(decimal.RequireFromString("9223372036.854775808"))
	assert.ErrorIs(t, err, errors.ErrAmountOutOfRange)

	_, err = HumanToUSDC(decimal.RequireFromString("-9223372036854.775809"))
	assert.ErrorIs(t, err, errors.ErrAmountOutOfRange)

	base, err := HumanToUSDC(decimal.RequireFromString("370.25"))
	assert.NoError(t, err)
	assert.Equal(t, int64(370_250_000), base)
}

func TestClassifyFeePool(t *testing.T) {
	assert.Equal(t, FeePoolHealthy, ClassifyFeePool(150_000_000, 50_000_000, 150_000_000))
	assert.Equal(t, FeePoolLow, ClassifyFeePool(50_000_000, 50_000_000, 150_000_000))
	assert.Equal(t, FeePoolCritical, ClassifyFeePool(49_999_999, 50_000_000, 150_000_000))
}

func TestResolveDirection(t *testing.T) {
	profile := NewUserProfile("owner", time.Time{})

	d, ok := ResolveDirection(SignalTypeSOLToUSDC, profile)
	assert.True(t, ok)
	assert.Equal(t, SwapDirection{InputMint: WSOLMint, OutputMint: USDCMint, Amount: DefaultTradeSizeSOL}, d)

	d, ok = ResolveDirection(SignalTypeUSDCToSOL, profile)
	assert.True(t, ok)
	assert.Equal(t, SwapDirection{InputMint: USDCMint, OutputMint: WSOLMint, Amount: DefaultTradeSizeUSDC}, d)

	_, ok = ResolveDirection("SIDEWAYS", profile)
	assert.False(t, ok)
}
