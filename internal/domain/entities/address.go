package entities

import (
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/rebalance-service/rebalance_service/internal/domain/errors"
)

// PublicKeyLength is the size of a decoded Solana public key
const PublicKeyLength = 32

// ValidateAddress checks that s is a base58 encoded 32-byte public key.
// Failures wrap errors.ErrInvalidAddress.
func ValidateAddress(s string) error {
	decoded, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidAddress, err)
	}
	if len(decoded) != PublicKeyLength {
		return fmt.Errorf("%w: decoded length %d, want %d", errors.ErrInvalidAddress, len(decoded), PublicKeyLength)
	}
	return nil
}
