// Package memory implements the job and ledger stores with in-process maps.
// It backs tests and single-node development runs; production uses the gorm
// store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skillsenselab/recap/credits"
	"github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/job"
)

// Store holds jobs and ledger entries behind one mutex. All conditional
// updates are atomic with respect to each other.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*job.Job
	entries []*credits.Entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*job.Job)}
}

// CreateJob persists a new job.
func (s *Store) CreateJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return errors.AlreadyProcessing(j.ID)
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

// GetJob loads a job by id.
func (s *Store) GetJob(_ context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, errors.NotFound("job", id)
	}
	return j.Clone(), nil
}

// UpdateJob persists all fields of j unconditionally.
func (s *Store) UpdateJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return errors.NotFound("job", j.ID)
	}
	c := j.Clone()
	c.UpdatedAt = time.Now().UTC()
	s.jobs[j.ID] = c
	return nil
}

// Age rewrites a job's UpdatedAt. Retention tests use it to push jobs past
// the cleanup cutoff without waiting out the retention window.
func (s *Store) Age(id string, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.UpdatedAt = updatedAt
	}
}

// UpdateJobIfStatus persists j only while the stored status equals expect.
func (s *Store) UpdateJobIfStatus(_ context.Context, j *job.Job, expect job.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[j.ID]
	if !ok {
		return false, errors.NotFound("job", j.ID)
	}
	if cur.Status != expect {
		return false, nil
	}
	c := j.Clone()
	c.UpdatedAt = time.Now().UTC()
	s.jobs[j.ID] = c
	return true, nil
}

// ListTerminalBefore returns terminal jobs last updated before cutoff that
// still hold an artifact reference.
func (s *Store) ListTerminalBefore(_ context.Context, cutoff time.Time) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if j.Status.Terminal() && j.AudioRef != "" && j.UpdatedAt.Before(cutoff) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.Before(out[k].UpdatedAt) })
	return out, nil
}

// AppendEntry persists a ledger entry, rejecting debits that would bring the
// balance below zero. The balance check and the append happen under the same
// lock.
func (s *Store) AppendEntry(_ context.Context, e *credits.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Amount < 0 {
		balance := s.balanceLocked(e.UserID)
		if balance+e.Amount < 0 {
			return errors.InsufficientCredits(balance, -e.Amount)
		}
	}
	c := *e
	s.entries = append(s.entries, &c)
	return nil
}

// Balance returns the running sum of a user's entries.
func (s *Store) Balance(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(userID), nil
}

// RecentEntries returns up to n of a user's entries, newest first.
func (s *Store) RecentEntries(_ context.Context, userID string, n int) ([]*credits.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*credits.Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		if s.entries[i].UserID == userID {
			c := *s.entries[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *Store) balanceLocked(userID string) int {
	total := 0
	for _, e := range s.entries {
		if e.UserID == userID {
			total += e.Amount
		}
	}
	return total
}
