package credits

import (
	"context"
	"testing"

	"github.com/skillsenselab/recap/errors"
)

// sumStore is a minimal in-memory Store for ledger tests.
type sumStore struct {
	entries []*Entry
}

func (s *sumStore) AppendEntry(_ context.Context, e *Entry) error {
	if e.Amount < 0 {
		balance := s.sum(e.UserID)
		if balance+e.Amount < 0 {
			return errors.InsufficientCredits(balance, -e.Amount)
		}
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *sumStore) Balance(_ context.Context, userID string) (int, error) {
	return s.sum(userID), nil
}

func (s *sumStore) RecentEntries(_ context.Context, userID string, n int) ([]*Entry, error) {
	var out []*Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *sumStore) sum(userID string) int {
	total := 0
	for _, e := range s.entries {
		if e.UserID == userID {
			total += e.Amount
		}
	}
	return total
}

func TestBelowZeroDebitRejected(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(&sumStore{})

	if err := l.Credit(ctx, "u1", 100, TypePurchase, "starter pack"); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if err := l.Debit(ctx, "u1", 30, "job a"); err != nil {
		t.Fatalf("first Debit() error = %v", err)
	}

	err := l.Debit(ctx, "u1", 80, "job b")
	if err == nil {
		t.Fatal("second Debit() expected error")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeInsufficientCredits {
		t.Fatalf("error = %v, want INSUFFICIENT_CREDITS", err)
	}
	if appErr.Details["balance"] != 70 || appErr.Details["required"] != 80 {
		t.Errorf("details = %v, want balance=70 required=80", appErr.Details)
	}

	balance, err := l.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance != 70 {
		t.Errorf("balance after rejected debit = %d, want 70", balance)
	}
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name          string
		durationSecs  float64
		costPerMinute float64
		want          int
	}{
		{"exact minutes", 120, 1.0, 2},
		{"rounds up", 61, 1.0, 2},
		{"fractional rate", 600, 1.5, 15},
		{"rounds up fractional", 90, 1.0, 2},
		{"free provider", 600, 0, 0},
		{"zero duration", 0, 1.0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateCost(tt.durationSecs, tt.costPerMinute); got != tt.want {
				t.Errorf("EstimateCost(%v, %v) = %d, want %d", tt.durationSecs, tt.costPerMinute, got, tt.want)
			}
		})
	}
}

func TestRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(&sumStore{})

	l.Credit(ctx, "u1", 100, TypePurchase, "pack")
	l.Debit(ctx, "u1", 10, "job a")
	l.Debit(ctx, "u1", 20, "job b")
	l.Credit(ctx, "u2", 5, TypeBonus, "promo")

	entries, err := l.Recent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(entries))
	}
	if entries[0].Description != "job b" || entries[1].Description != "job a" {
		t.Errorf("order = [%s %s], want newest first", entries[0].Description, entries[1].Description)
	}
	for _, e := range entries {
		if e.UserID != "u1" {
			t.Errorf("entry for %s leaked into u1 listing", e.UserID)
		}
	}
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(&sumStore{})

	l.Credit(ctx, "u1", 50, TypePurchase, "pack")
	l.Debit(ctx, "u1", 20, "job a")
	if err := l.Refund(ctx, "u1", 20, "refund: provider failed"); err != nil {
		t.Fatalf("Refund() error = %v", err)
	}

	balance, _ := l.Balance(ctx, "u1")
	if balance != 50 {
		t.Errorf("balance = %d, want 50", balance)
	}
	entries, _ := l.Recent(ctx, "u1", 1)
	if entries[0].Type != TypeAdjustment {
		t.Errorf("refund entry type = %s, want adjustment", entries[0].Type)
	}
}

func TestDebitZeroIsNoop(t *testing.T) {
	ctx := context.Background()
	store := &sumStore{}
	l := NewLedger(store)

	if err := l.Debit(ctx, "u1", 0, "free provider"); err != nil {
		t.Fatalf("Debit(0) error = %v", err)
	}
	if len(store.entries) != 0 {
		t.Errorf("Debit(0) wrote %d entries, want 0", len(store.entries))
	}
}
