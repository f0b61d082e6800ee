package infrastructure

import (
	"context"
	"fmt"
	"sync"

	"kuri/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// InMemoryFundsLedger is a process-local double-entry ledger implementing the
// value transfer port. Deposits debit the payer and credit the custody
// account; payouts require sufficient custody balance. Payer accounts may go
// negative, representing value entering from outside the ledger.
type InMemoryFundsLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewInMemoryFundsLedger creates an empty ledger
func NewInMemoryFundsLedger() *InMemoryFundsLedger {
	return &InMemoryFundsLedger{
		balances: make(map[string]int64),
	}
}

// MoveIn transfers amount from the payer into pool custody
func (l *InMemoryFundsLedger) MoveIn(ctx context.Context, from string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[from] -= amount
	l.balances[interfaces.CustodyHolder] += amount

	log.WithFields(log.Fields{
		"from":    from,
		"amount":  amount,
		"custody": l.balances[interfaces.CustodyHolder],
	}).Debug("moved funds into custody")
	return nil
}

// MoveOut transfers amount from pool custody to the recipient
func (l *InMemoryFundsLedger) MoveOut(ctx context.Context, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	custody := l.balances[interfaces.CustodyHolder]
	if custody < amount {
		return fmt.Errorf("custody holds %d, cannot pay out %d", custody, amount)
	}
	l.balances[interfaces.CustodyHolder] = custody - amount
	l.balances[to] += amount

	log.WithFields(log.Fields{
		"to":      to,
		"amount":  amount,
		"custody": l.balances[interfaces.CustodyHolder],
	}).Debug("moved funds out of custody")
	return nil
}

// BalanceOf returns the ledger balance for a holder
func (l *InMemoryFundsLedger) BalanceOf(ctx context.Context, holder string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balances[holder], nil
}
