package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// Memory is an in-process ledger. Entries live for the lifetime of the
// value and are never evicted.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]types.LedgerEntry
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]types.LedgerEntry)}
}

func (m *Memory) Insert(_ context.Context, entry types.LedgerEntry) (types.LedgerEntry, bool, error) {
	if entry.PaymentID == "" {
		return types.LedgerEntry{}, false, errors.New("payment id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[entry.PaymentID]; ok {
		return existing, false, nil
	}
	m.entries[entry.PaymentID] = entry
	return entry, true, nil
}

func (m *Memory) Get(_ context.Context, paymentID string) (types.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[paymentID]
	if !ok {
		return types.LedgerEntry{}, ErrNotFound
	}
	return entry, nil
}

func (m *Memory) List(_ context.Context) ([]types.LedgerEntry, error) {
	m.mu.RLock()
	out := make([]types.LedgerEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SettledAt.Equal(out[j].SettledAt) {
			return out[i].PaymentID < out[j].PaymentID
		}
		return out[i].SettledAt.Before(out[j].SettledAt)
	})
	return out, nil
}
