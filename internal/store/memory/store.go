// Package memory is a process-local implementation of the store contracts.
// Each provider has its own lock; writes made inside a transaction are staged
// and become visible only when the transaction function succeeds.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"carebook/backend/internal/domain"
	"carebook/backend/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	appts    map[uuid.UUID]domain.Appointment
	accounts map[uuid.UUID]domain.Account

	locksMu sync.Mutex
	locks   map[uuid.UUID]chan struct{}
}

func New() *Store {
	return &Store{
		appts:    make(map[uuid.UUID]domain.Appointment),
		accounts: make(map[uuid.UUID]domain.Account),
		locks:    make(map[uuid.UUID]chan struct{}),
	}
}

func (s *Store) PutAccount(acc domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.ID] = acc
}

func (s *Store) ResolveAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, store.ErrNotFound
	}
	return acc, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return clone(a), nil
}

func (s *Store) List(ctx context.Context, f store.ListFilter) ([]domain.Appointment, int, error) {
	s.mu.RLock()
	matched := make([]domain.Appointment, 0)
	for _, a := range s.appts {
		if !matchesList(a, f) {
			continue
		}
		matched = append(matched, clone(a))
	}
	s.mu.RUnlock()

	sortByStart(matched)
	total := len(matched)

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []domain.Appointment{}, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (s *Store) ListOccupying(ctx context.Context, providerID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return occupying(s.appts, nil, providerID, windowStart, windowEnd), nil
}

func (s *Store) CountByStatus(ctx context.Context, f store.StatsFilter) ([]store.StatusCount, error) {
	s.mu.RLock()
	counts := make(map[domain.Status]int)
	for _, a := range s.appts {
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.SeekerID != nil && a.SeekerID != *f.SeekerID {
			continue
		}
		if f.From != nil && a.StartTime.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.StartTime.Before(*f.To) {
			continue
		}
		counts[a.Status]++
	}
	s.mu.RUnlock()

	out := make([]store.StatusCount, 0, len(counts))
	for st, n := range counts {
		out = append(out, store.StatusCount{Status: st, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (s *Store) ArchiveForAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for id, a := range s.appts {
		if !a.HasParty(accountID) || a.Archived {
			continue
		}
		a.Archived = true
		a.UpdatedAt = now
		s.appts[id] = a
		n++
	}
	return n, nil
}

func (s *Store) InProviderTransaction(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, tx store.BookingTx) error) error {
	lock := s.providerLock(providerID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", store.ErrUnavailable, ctx.Err())
	}
	defer func() { <-lock }()

	tx := &memTx{s: s, staged: make(map[uuid.UUID]domain.Appointment), inserted: make(map[uuid.UUID]bool)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Inserts under different provider locks can race for one id; the first
	// commit wins and the whole later transaction is discarded.
	for id := range tx.inserted {
		if _, ok := s.appts[id]; ok {
			return store.ErrIdempotencyConflict
		}
	}
	for id, a := range tx.staged {
		// archiving happens outside provider transactions and is one-way
		if cur, ok := s.appts[id]; ok && cur.Archived {
			a.Archived = true
		}
		s.appts[id] = a
	}
	return nil
}

func (s *Store) providerLock(providerID uuid.UUID) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[providerID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[providerID] = l
	}
	return l
}

type memTx struct {
	s        *Store
	staged   map[uuid.UUID]domain.Appointment
	inserted map[uuid.UUID]bool
}

func (t *memTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if a, ok := t.staged[id]; ok {
		return clone(a), nil
	}
	return t.s.Get(ctx, id)
}

func (t *memTx) ListOccupying(ctx context.Context, providerID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return occupying(t.s.appts, t.staged, providerID, windowStart, windowEnd), nil
}

func (t *memTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	} else if _, err := t.GetAppointment(ctx, appt.ID); err == nil {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}

	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now
	t.staged[appt.ID] = clone(appt)
	t.inserted[appt.ID] = true
	return clone(appt), nil
}

func (t *memTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if _, err := t.GetAppointment(ctx, appt.ID); err != nil {
		return domain.Appointment{}, err
	}
	appt.UpdatedAt = time.Now().UTC()
	t.staged[appt.ID] = clone(appt)
	return clone(appt), nil
}

func occupying(committed, staged map[uuid.UUID]domain.Appointment, providerID uuid.UUID, windowStart, windowEnd time.Time) []domain.Appointment {
	window := windowEnd.Sub(windowStart)
	out := make([]domain.Appointment, 0)
	consider := func(a domain.Appointment) {
		if a.ProviderID != providerID || !a.Status.Occupying() {
			return
		}
		if !a.OverlapsWith(windowStart, window) {
			return
		}
		out = append(out, clone(a))
	}
	for id, a := range committed {
		if _, ok := staged[id]; ok {
			continue
		}
		consider(a)
	}
	for _, a := range staged {
		consider(a)
	}
	sortByStart(out)
	return out
}

func matchesList(a domain.Appointment, f store.ListFilter) bool {
	if a.Archived && !f.IncludeArchived {
		return false
	}
	if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
		return false
	}
	if f.SeekerID != nil && a.SeekerID != *f.SeekerID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
		return false
	}
	if f.From != nil && a.StartTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !a.StartTime.Before(*f.To) {
		return false
	}
	return true
}

func sortByStart(appts []domain.Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].ID.String() < appts[j].ID.String()
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}

func clone(a domain.Appointment) domain.Appointment {
	a.RescheduledFrom = clonePtr(a.RescheduledFrom)
	a.CancelledBy = clonePtr(a.CancelledBy)
	a.CancelledAt = clonePtr(a.CancelledAt)
	a.FollowUpAt = clonePtr(a.FollowUpAt)
	a.CompletedAt = clonePtr(a.CompletedAt)
	return a
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
