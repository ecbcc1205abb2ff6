package monitor

import (
	"MarginCore/internal/assets"
	"MarginCore/internal/position"
)

// PositionsCache is the owning store for positions: a primary map by
// position id plus a secondary index by wallet id for O(1) lookup of a
// trader's positions.
type PositionsCache struct {
	positionsByID map[assets.PositionID]position.Position
	idsByWalletID map[assets.WalletID]map[assets.PositionID]struct{}
}

func NewPositionsCache(capacity int) *PositionsCache {
	return &PositionsCache{
		positionsByID: make(map[assets.PositionID]position.Position, capacity),
		idsByWalletID: make(map[assets.WalletID]map[assets.PositionID]struct{}, capacity),
	}
}

// Add stores a position, replacing any previous entry with the same id.
func (c *PositionsCache) Add(p position.Position) {
	id := p.GetID()
	walletID := p.GetWalletID()

	c.positionsByID[id] = p

	ids, ok := c.idsByWalletID[walletID]
	if !ok {
		ids = make(map[assets.PositionID]struct{})
		c.idsByWalletID[walletID] = ids
	}
	ids[id] = struct{}{}
}

// Remove deletes a position and its wallet index entry, returning the
// removed position or nil.
func (c *PositionsCache) Remove(id assets.PositionID) position.Position {
	p, ok := c.positionsByID[id]
	if !ok {
		return nil
	}
	delete(c.positionsByID, id)

	walletID := p.GetWalletID()
	if ids, ok := c.idsByWalletID[walletID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(c.idsByWalletID, walletID)
		}
	}
	return p
}

// Get returns the position for id, or nil.
func (c *PositionsCache) Get(id assets.PositionID) position.Position {
	return c.positionsByID[id]
}

// Contains reports whether id is cached.
func (c *PositionsCache) Contains(id assets.PositionID) bool {
	_, ok := c.positionsByID[id]
	return ok
}

// ContainsByWalletID reports whether any position belongs to the
// wallet.
func (c *PositionsCache) ContainsByWalletID(walletID assets.WalletID) bool {
	return len(c.idsByWalletID[walletID]) > 0
}

// GetByWalletID returns all positions belonging to the wallet.
func (c *PositionsCache) GetByWalletID(walletID assets.WalletID) []position.Position {
	ids := c.idsByWalletID[walletID]
	out := make([]position.Position, 0, len(ids))
	for id := range ids {
		if p, ok := c.positionsByID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of cached positions.
func (c *PositionsCache) Len() int {
	return len(c.positionsByID)
}
