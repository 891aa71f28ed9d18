// Package ledger provides the currency accounts held by towns, ports, and ships.
package ledger

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/porttown/internal/game/event"
)

// ErrInsufficientFunds is returned by callers that surface a failed TryWithdraw.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Account is the balance holder contract used by the trade protocol.
type Account interface {
	// Owner returns a descriptive name for the account holder.
	Owner() string
	// Balance returns the current balance.
	Balance() float64
	// Deposit credits amount. Negative, NaN, and infinite amounts are rejected as a no-op.
	Deposit(amount float64, reason string)
	// TryWithdraw debits amount iff the balance covers it. There is no partial withdraw.
	TryWithdraw(amount float64, reason string) bool
}

// EntryKind distinguishes credits from debits in the journal.
type EntryKind string

const (
	Credit EntryKind = "credit"
	Debit  EntryKind = "debit"
)

// Entry is one immutable journal line.
type Entry struct {
	ID      uuid.UUID
	Kind    EntryKind
	Amount  float64
	Reason  string
	Balance float64 // balance after the entry was applied
	At      time.Time
}

// Ledger is an append-only balance holder.
//
// Invariant: Balance() >= 0 at all times.
// All methods are safe for concurrent use; the sufficiency check and the debit
// in TryWithdraw happen under one lock.
type Ledger struct {
	mu      sync.Mutex
	owner   string
	balance float64
	entries []Entry
	now     func() time.Time
	logger  *zap.Logger
	bus     event.Bus
}

// New creates a Ledger for owner with an opening balance.
//
// Precondition: opening is finite and >= 0; anything else is treated as zero.
// Postcondition: Balance() == max(opening, 0).
func New(owner string, opening float64, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		owner:  owner,
		now:    time.Now,
		logger: logger.With(zap.String("account", owner)),
	}
	if !validAmount(opening) {
		l.logger.Warn("invalid opening balance ignored", zap.Float64("opening", opening))
		opening = 0
	}
	if opening > 0 {
		l.appendLocked(Credit, opening, "opening balance")
	}
	return l
}

// Owner returns the account holder name.
func (l *Ledger) Owner() string { return l.owner }

// Balance returns the current balance.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Deposit credits amount to the account.
//
// Precondition: amount is finite and >= 0. Other amounts are logged and ignored.
// Postcondition: Balance() increases by amount; zero deposits leave no journal entry.
func (l *Ledger) Deposit(amount float64, reason string) {
	if !validAmount(amount) {
		l.logger.Warn("rejected invalid deposit",
			zap.Float64("amount", amount),
			zap.String("reason", reason),
		)
		return
	}
	if amount == 0 {
		return
	}
	l.mu.Lock()
	balance := l.appendLocked(Credit, amount, reason)
	l.mu.Unlock()

	l.logger.Debug("deposit",
		zap.Float64("amount", amount),
		zap.String("reason", reason),
		zap.Float64("balance", balance),
	)
	l.bus.Publish(event.Event{Kind: event.KindBalanceChanged, Source: l.owner, Balance: balance})
}

// TryWithdraw debits amount iff the balance covers it.
//
// Precondition: amount is finite and >= 0. Other amounts are logged and return false.
// Postcondition: on true, Balance() decreased by exactly amount; on false, nothing changed.
func (l *Ledger) TryWithdraw(amount float64, reason string) bool {
	if !validAmount(amount) {
		l.logger.Warn("rejected invalid withdrawal",
			zap.Float64("amount", amount),
			zap.String("reason", reason),
		)
		return false
	}
	if amount == 0 {
		return true
	}

	l.mu.Lock()
	if l.balance < amount {
		current := l.balance
		l.mu.Unlock()
		l.logger.Warn("insufficient funds",
			zap.Float64("amount", amount),
			zap.String("reason", reason),
			zap.Float64("balance", current),
		)
		return false
	}
	balance := l.appendLocked(Debit, amount, reason)
	l.mu.Unlock()

	l.logger.Debug("withdrawal",
		zap.Float64("amount", amount),
		zap.String("reason", reason),
		zap.Float64("balance", balance),
	)
	l.bus.Publish(event.Event{Kind: event.KindBalanceChanged, Source: l.owner, Balance: balance})
	return true
}

// Entries returns a copy of the journal in append order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Subscribe registers o for balance-changed notifications.
func (l *Ledger) Subscribe(o event.Observer) (unsubscribe func()) {
	return l.bus.Subscribe(o)
}

// validAmount reports whether amount is finite and non-negative. NaN fails.
func validAmount(amount float64) bool {
	return amount >= 0 && !math.IsInf(amount, 1)
}

// appendLocked applies and journals a mutation. Caller must hold l.mu (or own l exclusively).
func (l *Ledger) appendLocked(kind EntryKind, amount float64, reason string) float64 {
	if kind == Credit {
		l.balance += amount
	} else {
		l.balance -= amount
	}
	l.entries = append(l.entries, Entry{
		ID:      uuid.New(),
		Kind:    kind,
		Amount:  amount,
		Reason:  reason,
		Balance: l.balance,
		At:      l.now(),
	})
	return l.balance
}
