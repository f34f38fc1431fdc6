// Package credits implements the credit ledger. Balances are never stored;
// they are derived as the running sum of signed ledger entries, and debits
// that would take the sum below zero are rejected atomically by the store.
package credits

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/logger"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	// TypePurchase is a paid credit top-up.
	TypePurchase EntryType = "purchase"
	// TypeUsage is a debit for processing a recording.
	TypeUsage EntryType = "usage"
	// TypeBonus is promotional credit.
	TypeBonus EntryType = "bonus"
	// TypeAdjustment is a manual or compensating correction, e.g. a refund
	// after a failed provider call.
	TypeAdjustment EntryType = "adjustment"
)

// Entry is one signed movement on a user's balance.
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Amount      int       `json:"amount"`
	Type        EntryType `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the persistence contract for the ledger.
type Store interface {
	// AppendEntry persists an entry. A negative amount that would bring the
	// user's balance below zero is rejected with an InsufficientCredits
	// AppError, atomically with the balance check.
	AppendEntry(ctx context.Context, e *Entry) error

	// Balance returns the running sum of a user's entries.
	Balance(ctx context.Context, userID string) (int, error)

	// RecentEntries returns up to n entries newest-first.
	RecentEntries(ctx context.Context, userID string, n int) ([]*Entry, error)
}

// Ledger is the credit service used by the orchestrator and the API.
type Ledger struct {
	store Store
	log   *logger.Logger
}

// NewLedger creates a ledger on top of a store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, log: logger.Get("credits")}
}

// EstimateCost converts audio length and a provider rate into whole
// credits, rounding up. Zero-rate providers cost nothing.
func EstimateCost(durationSecs, costPerMinute float64) int {
	if costPerMinute <= 0 || durationSecs <= 0 {
		return 0
	}
	return int(math.Ceil(durationSecs / 60 * costPerMinute))
}

// Debit removes amount credits from a user. Amounts must be positive; the
// store rejects the entry when the balance would go below zero.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int, description string) error {
	if amount < 0 {
		return errors.Invalid("debit amount must not be negative")
	}
	if amount == 0 {
		return nil
	}
	err := l.store.AppendEntry(ctx, &Entry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      -amount,
		Type:        TypeUsage,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	l.log.Debug("credits debited", logger.Fields(
		logger.FieldUserID, userID,
		"amount", amount,
	))
	return nil
}

// Credit adds amount credits to a user.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int, entryType EntryType, description string) error {
	if amount <= 0 {
		return errors.Invalid("credit amount must be positive")
	}
	return l.store.AppendEntry(ctx, &Entry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Type:        entryType,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	})
}

// Refund compensates a failed debit with an adjustment entry.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int, description string) error {
	if amount <= 0 {
		return nil
	}
	return l.store.AppendEntry(ctx, &Entry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Type:        TypeAdjustment,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	})
}

// Balance returns the user's current balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	return l.store.Balance(ctx, userID)
}

// Recent returns the user's latest entries, newest first.
func (l *Ledger) Recent(ctx context.Context, userID string, n int) ([]*Entry, error) {
	if n <= 0 {
		n = 20
	}
	return l.store.RecentEntries(ctx, userID, n)
}
