package memory

import (
	"context"
	"sync"
)

// Wallet is an in-memory currency ledger. Grants are keyed by grant id, so a
// retried grant for the same session credits once.
type Wallet struct {
	mu       sync.Mutex
	balances map[string]int
	grants   map[string]int
	failNext error
}

func NewWallet() *Wallet {
	return &Wallet{
		balances: make(map[string]int),
		grants:   make(map[string]int),
	}
}

func (w *Wallet) GrantCurrency(_ context.Context, grantID, userID string, amount int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.failNext; err != nil {
		w.failNext = nil
		return err
	}
	if amount <= 0 {
		return nil
	}
	if _, ok := w.grants[grantID]; ok {
		return nil
	}
	w.grants[grantID] = amount
	w.balances[userID] += amount
	return nil
}

// FailNext makes the next grant return err (for tests/demos).
func (w *Wallet) FailNext(err error) {
	w.mu.Lock()
	w.failNext = err
	w.mu.Unlock()
}

func (w *Wallet) Balance(userID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID]
}

// Grants reports how many distinct grants were credited.
func (w *Wallet) Grants() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.grants)
}
