package monitor

import (
	"fmt"
	"sort"
	"time"

	"MarginCore/internal/assets"
	"MarginCore/internal/position"
	"MarginCore/internal/wallet"
)

// Config holds the monitor's risk-action parameters.
type Config struct {
	// CancelTopUpDelay is the minimum age before a top-up may be
	// canceled on price recovery.
	CancelTopUpDelay time.Duration
	// CancelTopUpPriceChangePercent is the favorable move, relative to
	// a top-up's entry price, required to cancel it.
	CancelTopUpPriceChangePercent float64
	// PnLAccuracy floors closing PnL to this many decimal places when
	// set.
	PnLAccuracy *int
}

// PositionsMonitor owns all positions and wallets and drives them
// through their lifecycle one price tick at a time. It is strictly
// sequential: a host must finish one Update before starting the next,
// and shard monitors by instrument if it wants parallel tick delivery.
type PositionsMonitor struct {
	cfg   Config
	cache *PositionsCache

	idsByInstrument       map[assets.InstrumentSymbol]map[assets.PositionID]struct{}
	lockedIDs             map[assets.PositionID]struct{}
	walletsByID           map[assets.WalletID]*wallet.Wallet
	walletIDsByInstrument map[assets.InstrumentSymbol]map[assets.WalletID]struct{}
}

func NewPositionsMonitor(capacity int, cfg Config) *PositionsMonitor {
	return &PositionsMonitor{
		cfg:                   cfg,
		cache:                 NewPositionsCache(capacity),
		idsByInstrument:       make(map[assets.InstrumentSymbol]map[assets.PositionID]struct{}, capacity),
		lockedIDs:             make(map[assets.PositionID]struct{}, capacity),
		walletsByID:           make(map[assets.WalletID]*wallet.Wallet),
		walletIDsByInstrument: make(map[assets.InstrumentSymbol]map[assets.WalletID]struct{}),
	}
}

// Add stores a position and indexes it under every instrument it
// depends on.
func (m *PositionsMonitor) Add(p position.Position) {
	id := p.GetID()
	for _, instrument := range p.GetInstruments() {
		ids, ok := m.idsByInstrument[instrument]
		if !ok {
			ids = make(map[assets.PositionID]struct{})
			m.idsByInstrument[instrument] = ids
		}
		ids[id] = struct{}{}
	}
	m.cache.Add(p)
}

// Get returns the position for id, or nil.
func (m *PositionsMonitor) Get(id assets.PositionID) position.Position {
	return m.cache.Get(id)
}

// GetByWalletID returns all positions belonging to a wallet.
func (m *PositionsMonitor) GetByWalletID(walletID assets.WalletID) []position.Position {
	return m.cache.GetByWalletID(walletID)
}

// Remove deletes a position from the cache and every index. A locked
// position is not removable; Remove returns nil for it. Removing the
// wallet's last top-up-enabled position drops the wallet; otherwise
// the position's PnL contribution is deducted from the wallet.
func (m *PositionsMonitor) Remove(id assets.PositionID) position.Position {
	if _, locked := m.lockedIDs[id]; locked {
		return nil
	}

	p := m.cache.Remove(id)
	if p == nil {
		return nil
	}

	if active, ok := p.(*position.ActivePosition); ok {
		walletID := active.Order.WalletID
		if active.Order.TopUpEnabled && m.cache.ContainsByWalletID(walletID) {
			if w, ok := m.walletsByID[walletID]; ok {
				w.DeductTopUpPnL(active.Order.Instrument, active.CurrentPnL)
			}
		} else {
			m.RemoveWallet(walletID)
		}
	}

	for _, instrument := range p.GetInstruments() {
		if ids, ok := m.idsByInstrument[instrument]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(m.idsByInstrument, instrument)
			}
		}
	}
	return p
}

// Unlock resumes automatic updates for a position after the host
// processed its lock reason.
func (m *PositionsMonitor) Unlock(id assets.PositionID) {
	delete(m.lockedIDs, id)
}

// IsLocked reports whether a position awaits an external decision.
func (m *PositionsMonitor) IsLocked(id assets.PositionID) bool {
	_, ok := m.lockedIDs[id]
	return ok
}

// AddTopUp attaches a top-up to an active position.
func (m *PositionsMonitor) AddTopUp(id assets.PositionID, topUp *position.ActiveTopUp) error {
	p := m.cache.Get(id)
	if p == nil {
		return fmt.Errorf("position %s not found", id)
	}
	active, ok := p.(*position.ActivePosition)
	if !ok {
		return fmt.Errorf("position %s is %s, top-up needs an active position", id, p.GetStatus())
	}
	active.AddTopUp(topUp)
	return nil
}

// AddWallet stores a wallet and indexes it under every instrument it
// needs ticks for.
func (m *PositionsMonitor) AddWallet(w *wallet.Wallet) {
	for _, instrument := range w.Instruments() {
		ids, ok := m.walletIDsByInstrument[instrument]
		if !ok {
			ids = make(map[assets.WalletID]struct{})
			m.walletIDsByInstrument[instrument] = ids
		}
		ids[w.ID] = struct{}{}
	}
	m.walletsByID[w.ID] = w
}

// GetWallet returns the wallet for id, or nil.
func (m *PositionsMonitor) GetWallet(id assets.WalletID) *wallet.Wallet {
	return m.walletsByID[id]
}

// ContainsWallet reports whether a wallet is tracked.
func (m *PositionsMonitor) ContainsWallet(id assets.WalletID) bool {
	_, ok := m.walletsByID[id]
	return ok
}

// RemoveWallet drops a wallet and its instrument index entries.
func (m *PositionsMonitor) RemoveWallet(id assets.WalletID) *wallet.Wallet {
	w, ok := m.walletsByID[id]
	if !ok {
		return nil
	}
	delete(m.walletsByID, id)
	for _, instrument := range w.Instruments() {
		if ids, ok := m.walletIDsByInstrument[instrument]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(m.walletIDsByInstrument, instrument)
			}
		}
	}
	return w
}

// UpdateWallet replaces one balance of a tracked wallet. Returns nil
// without error when the wallet is unknown.
func (m *PositionsMonitor) UpdateWallet(id assets.WalletID, balance wallet.Balance) (*wallet.Wallet, error) {
	w, ok := m.walletsByID[id]
	if !ok {
		return nil, nil
	}
	if err := w.UpdateBalance(balance); err != nil {
		return nil, err
	}
	return w, nil
}

// Update applies one price tick to every position and wallet
// subscribed to the tick's instrument and returns all resulting state
// changes. Locked positions are skipped; a position stays locked until
// the host resolves the lock reason and calls Unlock, which guarantees
// at most one outstanding top-up or activation decision per position.
func (m *PositionsMonitor) Update(bidask *position.BidAsk) []Event {
	ids := m.idsByInstrument[bidask.Instrument]
	if len(ids) == 0 {
		return nil
	}

	events := make([]Event, 0, len(ids))
	topUpPnLsByWallet := make(map[assets.WalletID]float64)
	reservedByWallet := make(map[assets.WalletID]assets.Amounts)
	var walletsToRemove []assets.WalletID

	// Snapshot the id set before mutating it: positions removed during
	// the pass must not be skipped or visited twice.
	snapshot := make([]assets.PositionID, 0, len(ids))
	for id := range ids {
		snapshot = append(snapshot, id)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i] < snapshot[j] })

	for _, id := range snapshot {
		if _, locked := m.lockedIDs[id]; locked {
			continue
		}

		p := m.cache.Get(id)
		if p == nil {
			// Stale index entry: the position was removed through
			// another instrument's pass.
			delete(ids, id)
			continue
		}

		switch pos := p.(type) {
		case *position.ClosedPosition:
			m.cache.Remove(id)
			delete(ids, id)
			events = append(events, PositionClosed{Position: pos})

		case *position.PendingPosition:
			pos.Update(bidask)
			if !pos.IsPriceReached() {
				continue
			}
			if pos.CanActivate() {
				m.cache.Remove(id)
				active, err := pos.Activate()
				if err != nil {
					// Checked by CanActivate; treat as unfunded.
					m.cache.Add(pos)
					continue
				}
				// Apply the triggering tick to the fresh active
				// position so activation and first valuation happen
				// atomically.
				active.Update(bidask)
				events = append(events, PositionActivated{Position: active})
				m.cache.Add(active)
			} else {
				m.lockedIDs[id] = struct{}{}
				events = append(events, PositionLocked{
					Reason:  LockReasonActivationPending,
					Pending: pos,
				})
			}

		case *position.ActivePosition:
			pos.Update(bidask)

			if pos.IsMarginCall() {
				events = append(events, PositionMarginCall{Position: pos})
			}

			if pos.IsTopUp() {
				m.lockedIDs[id] = struct{}{}
				events = append(events, PositionLocked{
					Reason: LockReasonTopUp,
					Active: pos,
				})
			} else {
				canceled := pos.TryCancelTopUps(
					m.cfg.CancelTopUpPriceChangePercent,
					m.cfg.CancelTopUpDelay,
				)
				if len(canceled) > 0 {
					m.lockedIDs[id] = struct{}{}
					events = append(events, PositionLocked{
						Reason:         LockReasonTopUpsCanceled,
						Active:         pos,
						CanceledTopUps: canceled,
					})
				}
			}

			if reason := pos.DetermineCloseReason(); reason != nil {
				m.cache.Remove(id)
				delete(ids, id)
				closed := pos.Close(*reason, m.cfg.PnLAccuracy)
				if !m.cache.ContainsByWalletID(closed.Order.WalletID) {
					walletsToRemove = append(walletsToRemove, closed.Order.WalletID)
				}
				events = append(events, PositionClosed{Position: closed})
			} else if pos.Order.TopUpEnabled {
				walletID := pos.Order.WalletID
				topUpPnLsByWallet[walletID] += pos.CurrentPnL

				reserved, ok := reservedByWallet[walletID]
				if !ok {
					reservedByWallet[walletID] = pos.TotalInvestAssets.Clone()
				} else {
					reserved.Merge(pos.TotalInvestAssets)
				}
			}
		}
	}

	for _, walletID := range walletsToRemove {
		m.RemoveWallet(walletID)
	}

	m.updateWalletPrices(bidask)
	m.updateWalletReserved(bidask, reservedByWallet)
	events = append(events, m.updateWalletPnLs(bidask, topUpPnLsByWallet)...)

	return events
}

func (m *PositionsMonitor) updateWalletPrices(bidask *position.BidAsk) {
	for walletID := range m.walletIDsByInstrument[bidask.Instrument] {
		if w, ok := m.walletsByID[walletID]; ok {
			w.UpdatePrice(bidask)
		}
	}
}

func (m *PositionsMonitor) updateWalletReserved(
	bidask *position.BidAsk,
	reservedByWallet map[assets.WalletID]assets.Amounts,
) {
	for walletID, reserved := range reservedByWallet {
		if w, ok := m.walletsByID[walletID]; ok {
			w.SetTopUpReserved(bidask.Instrument, reserved)
		}
	}
}

func (m *PositionsMonitor) updateWalletPnLs(
	bidask *position.BidAsk,
	pnlsByWallet map[assets.WalletID]float64,
) []Event {
	walletIDs := make([]assets.WalletID, 0, len(pnlsByWallet))
	for walletID := range pnlsByWallet {
		walletIDs = append(walletIDs, walletID)
	}
	sort.Slice(walletIDs, func(i, j int) bool { return walletIDs[i] < walletIDs[j] })

	var events []Event
	for _, walletID := range walletIDs {
		w, ok := m.walletsByID[walletID]
		if !ok {
			continue
		}
		pnl := pnlsByWallet[walletID]
		w.SetTopUpPnL(bidask.Instrument, pnl)
		w.UpdateLoss()

		if w.IsMarginCall() {
			events = append(events, WalletMarginCall{
				WalletID:    w.ID,
				TraderID:    w.TraderID,
				LossPercent: w.CurrentLossPercent,
				PnL:         pnl,
			})
		}
	}
	return events
}

// Stats is a point-in-time summary for the query surface and metrics.
type Stats struct {
	Positions int
	Locked    int
	Wallets   int
}

// Stats returns current monitor counts.
func (m *PositionsMonitor) Stats() Stats {
	return Stats{
		Positions: m.cache.Len(),
		Locked:    len(m.lockedIDs),
		Wallets:   len(m.walletsByID),
	}
}
