// Package testfixtures provides in-memory stand-ins for the Postgres repositories, the
// task queue and the clock, for service tests.
package testfixtures

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/interval"
	"github.com/Domenick1991/deskbooking/internal/repository"
)

type txKey struct{}

// Store keeps every table in maps. Transactions are serialized and roll back to a
// snapshot on error, which is enough to observe all-or-nothing behavior.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	bookings map[string]domain.Booking
	tables   map[string]domain.Table
	accounts map[string]domain.Account
	groups   map[string]domain.GroupBooking
	jobs     map[string]domain.Job
}

func NewStore() *Store {
	return &Store{
		bookings: map[string]domain.Booking{},
		tables:   map[string]domain.Table{},
		accounts: map[string]domain.Account{},
		groups:   map[string]domain.GroupBooking{},
		jobs:     map[string]domain.Job{},
	}
}

func (s *Store) AddTable(t domain.Table) {
	s.mu.Lock()
	s.tables[t.ID] = t
	s.mu.Unlock()
}

func (s *Store) AddAccount(a domain.Account) {
	s.mu.Lock()
	s.accounts[a.ID] = a
	s.mu.Unlock()
}

// PutBooking inserts or replaces a booking row directly.
func (s *Store) PutBooking(b domain.Booking) {
	s.mu.Lock()
	s.bookings[b.ID] = b
	s.mu.Unlock()
}

func (s *Store) Booking(id string) (domain.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	return b, ok
}

func (s *Store) Bookings() []domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	sortBookings(out)
	return out
}

func (s *Store) Group(id string) (domain.GroupBooking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	return g, ok
}

func (s *Store) GroupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups)
}

// Jobs returns the job rows of a booking, or all rows when bookingID is empty.
func (s *Store) Jobs(bookingID string) []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Job, 0)
	for _, j := range s.jobs {
		if bookingID == "" || j.BookingID == bookingID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

func (s *Store) Transactor() repository.Transactor { return storeTx{s} }
func (s *Store) BookingRepo() repository.BookingRepository { return bookingRepo{s} }
func (s *Store) TableRepo() repository.TableRepository { return tableRepo{s} }
func (s *Store) AccountRepo() repository.AccountRepository { return accountRepo{s} }
func (s *Store) GroupRepo() repository.GroupRepository { return groupRepo{s} }
func (s *Store) JobRepo() repository.JobRepository { return jobRepo{s} }

type snapshot struct {
	bookings map[string]domain.Booking
	groups   map[string]domain.GroupBooking
	jobs     map[string]domain.Job
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type storeTx struct{ s *Store }

func (t storeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s := t.s
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := snapshot{bookings: copyMap(s.bookings), groups: copyMap(s.groups), jobs: copyMap(s.jobs)}
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.bookings, s.groups, s.jobs = snap.bookings, snap.groups, snap.jobs
		s.mu.Unlock()
		return err
	}
	return nil
}

func sortBookings(bs []domain.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].DateFrom.Equal(bs[j].DateFrom) {
			return bs[i].ID < bs[j].ID
		}
		return bs[i].DateFrom.Before(bs[j].DateFrom)
	})
}

func overlapsIv(b domain.Booking, iv interval.Interval) bool {
	return interval.Overlaps(interval.BookingInterval(b), iv)
}

type bookingRepo struct{ s *Store }

func (r bookingRepo) Create(_ context.Context, b *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.bookings[b.ID]; ok {
		return fmt.Errorf("duplicate booking id %s", b.ID)
	}
	if _, ok := r.s.tables[b.TableID]; !ok {
		return fmt.Errorf("table %s: %w", b.TableID, domain.ErrNotFound)
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	r.s.bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return &b, nil
}

func (r bookingRepo) UpdateStatus(_ context.Context, id string, expected []domain.BookingStatus, status domain.BookingStatus) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok || !containsStatus(expected, b.Status) {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrStatusChanged)
	}
	b.Status = status
	b.UpdatedAt = time.Now().UTC()
	r.s.bookings[id] = b
	return &b, nil
}

func (r bookingRepo) DeleteIfStatus(_ context.Context, id string, expected domain.BookingStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok || b.Status != expected {
		return fmt.Errorf("booking %s: %w", id, domain.ErrStatusChanged)
	}
	delete(r.s.bookings, id)
	for jid, j := range r.s.jobs {
		if j.BookingID == id {
			delete(r.s.jobs, jid)
		}
	}
	return nil
}

func (r bookingRepo) filter(keep func(domain.Booking) bool) []domain.Booking {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Booking, 0)
	for _, b := range r.s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out
}

func (r bookingRepo) ListOverlapping(_ context.Context, tableID string, iv interval.Interval) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.TableID == tableID && b.Status.Occupies() && overlapsIv(b, iv)
	}), nil
}

func (r bookingRepo) ListUserOverlapping(_ context.Context, userID string, iv interval.Interval) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.UserID == userID && b.Status.Occupies() && overlapsIv(b, iv)
	}), nil
}

func (r bookingRepo) ListForTables(_ context.Context, tableIDs []string, iv interval.Interval) ([]domain.Booking, error) {
	wanted := make(map[string]bool, len(tableIDs))
	for _, id := range tableIDs {
		wanted[id] = true
	}
	return r.filter(func(b domain.Booking) bool {
		return wanted[b.TableID] && b.Status.Occupies() && overlapsIv(b, iv)
	}), nil
}

func (r bookingRepo) ListByUser(_ context.Context, userID string, iv interval.Interval) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.UserID == userID && overlapsIv(b, iv)
	}), nil
}

func (r bookingRepo) ListByGroup(_ context.Context, groupID string) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.GroupID != nil && *b.GroupID == groupID
	}), nil
}

func (r bookingRepo) ExpireStale(_ context.Context, now time.Time) ([]domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	swept := make([]domain.Booking, 0)
	for id, b := range r.s.bookings {
		stale := (b.Status == domain.BookingStatusWaiting && !b.DateActivateUntil.After(now)) ||
			(b.Status == domain.BookingStatusActive && !b.DateTo.After(now))
		if !stale {
			continue
		}
		b.Status = domain.BookingStatusOver
		r.s.bookings[id] = b
		swept = append(swept, b)
	}
	sortBookings(swept)
	return swept, nil
}

func containsStatus(list []domain.BookingStatus, s domain.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type tableRepo struct{ s *Store }

func (r tableRepo) GetByID(_ context.Context, id string) (*domain.Table, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tables[id]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (r tableRepo) LockForUpdate(ctx context.Context, id string) (*domain.Table, error) {
	return r.GetByID(ctx, id)
}

func (r tableRepo) ListByIDs(_ context.Context, ids []string) ([]domain.Table, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Table, 0, len(ids))
	for _, id := range ids {
		if t, ok := r.s.tables[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

type accountRepo struct{ s *Store }

func (r accountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (r accountRepo) LockForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	return r.GetByID(ctx, id)
}

func (r accountRepo) ListAdmins(_ context.Context) ([]domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Account, 0)
	for _, a := range r.s.accounts {
		if a.IsAdmin {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type groupRepo struct{ s *Store }

func (r groupRepo) Create(_ context.Context, g *domain.GroupBooking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.groups[g.ID]; ok {
		return fmt.Errorf("duplicate group id %s", g.ID)
	}
	g.CreatedAt = time.Now().UTC()
	stored := *g
	stored.Bookings = nil
	r.s.groups[g.ID] = stored
	return nil
}

func (r groupRepo) GetByID(_ context.Context, id string) (*domain.GroupBooking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, domain.ErrNotFound)
	}
	return &g, nil
}

func (r groupRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.deleteLocked(id)
	return nil
}

func (r groupRepo) DeleteIfEmpty(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.groups[id]; !ok {
		return false, nil
	}
	for _, b := range r.s.bookings {
		if b.GroupID != nil && *b.GroupID == id && b.Status.Occupies() {
			return false, nil
		}
	}
	r.deleteLocked(id)
	return true, nil
}

// deleteLocked mirrors ON DELETE SET NULL on bookings.group_id.
func (r groupRepo) deleteLocked(id string) {
	delete(r.s.groups, id)
	for bid, b := range r.s.bookings {
		if b.GroupID != nil && *b.GroupID == id {
			b.GroupID = nil
			r.s.bookings[bid] = b
		}
	}
}

type jobRepo struct{ s *Store }

func (r jobRepo) Upsert(_ context.Context, jobs ...domain.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range jobs {
		if _, ok := r.s.bookings[j.BookingID]; !ok {
			return fmt.Errorf("job %s references missing booking %s", j.ID, j.BookingID)
		}
		if existing, ok := r.s.jobs[j.ID]; ok {
			j.CreatedAt = existing.CreatedAt
		} else {
			j.CreatedAt = time.Now().UTC()
		}
		j.Executed = false
		j.SubmittedAt = nil
		r.s.jobs[j.ID] = j
	}
	return nil
}

func (r jobRepo) ListDue(_ context.Context, until time.Time, limit int) ([]domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Job, 0)
	for _, j := range r.s.jobs {
		if !j.Executed && !j.TimeExecute.After(until) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i].SubmittedAt, out[k].SubmittedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		if out[i].TimeExecute.Equal(out[k].TimeExecute) {
			return out[i].ID < out[k].ID
		}
		return out[i].TimeExecute.Before(out[k].TimeExecute)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r jobRepo) ListForBooking(_ context.Context, bookingID string) ([]domain.Job, error) {
	return r.s.Jobs(bookingID), nil
}

func (r jobRepo) MarkSubmitted(_ context.Context, at time.Time, ids ...string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		if j, ok := r.s.jobs[id]; ok {
			t := at
			j.SubmittedAt = &t
			r.s.jobs[id] = j
		}
	}
	return nil
}

func (r jobRepo) MarkExecuted(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if j, ok := r.s.jobs[id]; ok {
		j.Executed = true
		r.s.jobs[id] = j
	}
	return nil
}

func (r jobRepo) DeleteForBooking(_ context.Context, bookingID string, kinds ...domain.JobKind) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, j := range r.s.jobs {
		if j.BookingID != bookingID {
			continue
		}
		if len(kinds) > 0 && !containsKind(kinds, j.Kind) {
			continue
		}
		delete(r.s.jobs, id)
		n++
	}
	return n, nil
}

func (r jobRepo) PurgeExecuted(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, j := range r.s.jobs {
		if j.Executed {
			delete(r.s.jobs, id)
			n++
		}
	}
	return n, nil
}

func containsKind(list []domain.JobKind, k domain.JobKind) bool {
	for _, v := range list {
		if v == k {
			return true
		}
	}
	return false
}

var (
	_ repository.Transactor        = storeTx{}
	_ repository.BookingRepository = bookingRepo{}
	_ repository.TableRepository   = tableRepo{}
	_ repository.AccountRepository = accountRepo{}
	_ repository.GroupRepository   = groupRepo{}
	_ repository.JobRepository     = jobRepo{}
)
