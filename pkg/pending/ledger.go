// Package pending tracks at most one unconfirmed transfer per user. Terminal
// states are not retained: the ledger holds only live entries.
package pending

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlegpt/mantlebot/pkg/blockchain"
	"github.com/mantlegpt/mantlebot/pkg/logger"
)

// Transfer is a user-initiated transfer awaiting explicit confirmation.
// Amount stays a validated decimal string until confirm time, when the token's
// decimal count is known.
type Transfer struct {
	UserID    int64
	Amount    string
	Asset     blockchain.Asset
	To        common.Address
	CreatedAt time.Time
}

// Ledger is the sole owner of the pending-transfer map. The expiry sweeper is
// started by the ledger itself and shares its mutex with user-triggered
// mutations.
type Ledger struct {
	mu      sync.Mutex
	entries map[int64]Transfer

	ttl      time.Duration
	interval time.Duration
}

func NewLedger(ttl, sweepInterval time.Duration) *Ledger {
	return &Ledger{
		entries:  make(map[int64]Transfer),
		ttl:      ttl,
		interval: sweepInterval,
	}
}

// Put replaces any existing entry for the user.
func (l *Ledger) Put(t Transfer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[t.UserID] = t
}

// Peek returns the user's pending transfer without consuming it.
func (l *Ledger) Peek(userID int64) (Transfer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.entries[userID]
	return t, ok
}

// Take removes and returns the user's pending transfer in one step, so a
// confirm that already holds the entry can never race another confirm into a
// second broadcast.
func (l *Ledger) Take(userID int64) (Transfer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.entries[userID]
	if ok {
		delete(l.entries, userID)
	}
	return t, ok
}

// Remove drops the user's pending transfer, reporting whether one existed.
func (l *Ledger) Remove(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[userID]
	delete(l.entries, userID)
	return ok
}

// SweepExpired removes every entry older than the ledger TTL as of now and
// returns how many were dropped.
func (l *Ledger) SweepExpired(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for userID, t := range l.entries {
		if now.Sub(t.CreatedAt) > l.ttl {
			delete(l.entries, userID)
			removed++
		}
	}
	return removed
}

// Start runs the periodic sweep until ctx is cancelled. Best effort and
// coarse-grained: an abandoned transfer lives at most ttl + interval.
func (l *Ledger) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := l.SweepExpired(now); removed > 0 {
					logger.InfoCF("pending", "Swept expired transfers", map[string]any{
						"removed": removed,
					})
				}
			}
		}
	}()
}
