package assets

import (
	"fmt"

	"github.com/google/uuid"
)

// PositionID is a UUID-backed position identifier.
type PositionID string

// NewPositionID generates a fresh random position id.
func NewPositionID() PositionID {
	return PositionID(uuid.New().String())
}

// ParsePositionID validates s as a UUID and returns it as a PositionID.
func ParsePositionID(s string) (PositionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse position id %q: %w", s, err)
	}
	return PositionID(id.String()), nil
}

func (id PositionID) String() string { return string(id) }

// WalletID identifies a trader's wallet. Unlike PositionID it is an
// opaque string assigned by the upstream wallet service.
type WalletID string

func (id WalletID) String() string { return string(id) }

// TraderID identifies the trader owning a wallet.
type TraderID string

func (id TraderID) String() string { return string(id) }
