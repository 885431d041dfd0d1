// Package store provides ledger store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/invest-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[ledger.UserID][]ledger.LedgerTransaction
	balances     map[ledger.UserID]ledger.Money
	idempotency  map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[ledger.UserID][]ledger.LedgerTransaction),
		balances:     make(map[ledger.UserID]ledger.Money),
		idempotency:  make(map[string]bool),
	}
}

// Append adds a single transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx ledger.LedgerTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

// AppendBatch adds multiple transactions atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []ledger.LedgerTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range txs {
		if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
			return ledger.ErrDuplicateIdempotencyKey
		}
	}
	for _, tx := range txs {
		if err := m.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) appendLocked(tx ledger.LedgerTransaction) error {
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return ledger.ErrDuplicateIdempotencyKey
	}

	txs := m.transactions[tx.UserID]

	// Keep chronological order on insert.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].EffectiveAt.After(tx.EffectiveAt)
	})
	txs = append(txs, ledger.LedgerTransaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.UserID] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) Load(_ context.Context, userID ledger.UserID) ([]ledger.LedgerTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.LedgerTransaction, len(m.transactions[userID]))
	copy(result, m.transactions[userID])
	return result, nil
}

func (m *Memory) LoadRange(_ context.Context, userID ledger.UserID, from, to ledger.TimePoint) ([]ledger.LedgerTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.LedgerTransaction
	for _, tx := range m.transactions[userID] {
		if from.BeforeOrEqual(tx.EffectiveAt) && tx.EffectiveAt.BeforeOrEqual(to) {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// Balance returns the stored balance; absence = zero.
func (m *Memory) Balance(_ context.Context, userID ledger.UserID) (ledger.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balanceLocked(userID), nil
}

func (m *Memory) balanceLocked(userID ledger.UserID) ledger.Money {
	if b, ok := m.balances[userID]; ok {
		return b
	}
	return ledger.ZeroUSD()
}

// ApplyDelta applies a conditional non-negative update.
func (m *Memory) ApplyDelta(_ context.Context, userID ledger.UserID, delta ledger.Money) (ledger.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyDeltaLocked(userID, delta)
}

func (m *Memory) applyDeltaLocked(userID ledger.UserID, delta ledger.Money) (ledger.Money, error) {
	current := m.balanceLocked(userID)
	next := current.Add(delta)
	if delta.IsNegative() && next.IsNegative() {
		return ledger.Money{}, &ledger.InsufficientFundsError{
			UserID:    userID,
			Available: current,
			Requested: delta.Neg(),
		}
	}
	m.balances[userID] = next
	return next, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction, simulated with a snapshot +
// rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	txsCopy := make(map[ledger.UserID][]ledger.LedgerTransaction)
	for k, v := range tm.transactions {
		txsCopy[k] = append([]ledger.LedgerTransaction{}, v...)
	}
	balCopy := make(map[ledger.UserID]ledger.Money)
	for k, v := range tm.balances {
		balCopy[k] = v
	}
	idemCopy := make(map[string]bool)
	for k, v := range tm.idempotency {
		idemCopy[k] = v
	}
	return memorySnapshot{transactions: txsCopy, balances: balCopy, idempotency: idemCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.transactions = s.transactions
	tm.balances = s.balances
	tm.idempotency = s.idempotency
}

type memorySnapshot struct {
	transactions map[ledger.UserID][]ledger.LedgerTransaction
	balances     map[ledger.UserID]ledger.Money
	idempotency  map[string]bool
}

// txMemoryView uses the parent's unlocked internals; the parent's mutex is
// held for the duration of WithTx.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Append(_ context.Context, tx ledger.LedgerTransaction) error {
	return tv.parent.appendLocked(tx)
}

func (tv *txMemoryView) AppendBatch(_ context.Context, txs []ledger.LedgerTransaction) error {
	for _, tx := range txs {
		if err := tv.parent.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (tv *txMemoryView) Load(_ context.Context, userID ledger.UserID) ([]ledger.LedgerTransaction, error) {
	result := make([]ledger.LedgerTransaction, len(tv.parent.transactions[userID]))
	copy(result, tv.parent.transactions[userID])
	return result, nil
}

func (tv *txMemoryView) LoadRange(_ context.Context, userID ledger.UserID, from, to ledger.TimePoint) ([]ledger.LedgerTransaction, error) {
	var result []ledger.LedgerTransaction
	for _, tx := range tv.parent.transactions[userID] {
		if from.BeforeOrEqual(tx.EffectiveAt) && tx.EffectiveAt.BeforeOrEqual(to) {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (tv *txMemoryView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}

func (tv *txMemoryView) Balance(_ context.Context, userID ledger.UserID) (ledger.Money, error) {
	return tv.parent.balanceLocked(userID), nil
}

func (tv *txMemoryView) ApplyDelta(_ context.Context, userID ledger.UserID, delta ledger.Money) (ledger.Money, error) {
	return tv.parent.applyDeltaLocked(userID, delta)
}
