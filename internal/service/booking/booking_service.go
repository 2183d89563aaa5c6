package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/events"
	"github.com/Domenick1991/deskbooking/internal/interval"
	"github.com/Domenick1991/deskbooking/internal/logging"
	"github.com/Domenick1991/deskbooking/internal/repository"
	"github.com/google/uuid"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, principal domain.Principal, input CreateBookingInput) (*domain.Booking, error)
	ActivateBooking(ctx context.Context, principal domain.Principal, id string) (*domain.Booking, error)
	EndBooking(ctx context.Context, principal domain.Principal, id string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, principal domain.Principal, id string) error
	CheckSlots(ctx context.Context, tableIDs []string, intervals []interval.Interval) ([]SlotAvailability, error)
	GetBooking(ctx context.Context, principal domain.Principal, id string) (*domain.Booking, error)
	ListUserBookings(ctx context.Context, principal domain.Principal, userID string, from, to time.Time) ([]domain.Booking, error)
}

// JobScheduler stores and revokes the lifecycle jobs of a booking.
type JobScheduler interface {
	ScheduleBooking(ctx context.Context, b *domain.Booking, locale string) error
	Revoke(ctx context.Context, bookingID string, kinds ...domain.JobKind) error
}

type BookingService struct {
	bookings  repository.BookingRepository
	tables    repository.TableRepository
	accounts  repository.AccountRepository
	groups    repository.GroupRepository
	tx        repository.Transactor
	scheduler JobScheduler
	publisher events.Publisher
	grace     time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type CreateBookingInput struct {
	TableID string `json:"table_id"`
	// UserID books on behalf of another account. Only administrators may set it.
	UserID   string    `json:"user_id,omitempty"`
	DateFrom time.Time `json:"date_from"`
	DateTo   time.Time `json:"date_to"`
	Theme    string    `json:"theme,omitempty"`
}

// Reservation is one booking placed inside a transaction the caller owns.
type Reservation struct {
	TableID  string
	UserID   string
	DateFrom time.Time
	DateTo   time.Time
	Theme    string
	GroupID  *string
	// Meeting requires a unified table; sibling bookings of the group may share it.
	Meeting bool
}

// SlotAvailability reports whether a table is free for one requested interval.
type SlotAvailability struct {
	TableID   string            `json:"table_id"`
	Interval  interval.Interval `json:"interval"`
	Free      bool              `json:"free"`
	BookingID string            `json:"booking_id,omitempty"`
}

type BookingServiceOption func(*BookingService)

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.logger = logger
	}
}

func WithGraceWindow(grace time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.grace = grace
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	tables repository.TableRepository,
	accounts repository.AccountRepository,
	groups repository.GroupRepository,
	tx repository.Transactor,
	scheduler JobScheduler,
	publisher events.Publisher,
	opts ...BookingServiceOption,
) *BookingService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	service := &BookingService{
		bookings:  bookings,
		tables:    tables,
		accounts:  accounts,
		groups:    groups,
		tx:        tx,
		scheduler: scheduler,
		publisher: publisher,
		grace:     interval.DefaultGraceWindow,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) CreateBooking(ctx context.Context, principal domain.Principal, input CreateBookingInput) (*domain.Booking, error) {
	userID := input.UserID
	if userID == "" {
		userID = principal.UserID
	}
	logger := logging.ServiceLogger(ctx, s.logger, "booking", "create", "table_id", input.TableID, "user_id", userID)

	if userID != principal.UserID && !principal.IsAdmin {
		return nil, fmt.Errorf("book for user %s: %w", userID, domain.ErrForbidden)
	}

	var created *domain.Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.Reserve(ctx, Reservation{
			TableID:  input.TableID,
			UserID:   userID,
			DateFrom: input.DateFrom,
			DateTo:   input.DateTo,
			Theme:    input.Theme,
		})
		if err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		logger.Info("booking rejected", "reason", domain.ErrorKind(err))
		return nil, err
	}

	logger.Info("booking created", "booking_id", created.ID, "activate_until", created.DateActivateUntil)
	s.publish(ctx, logger, events.BookingCreated, created)
	return created, nil
}

// Reserve validates the interval, runs both overlap checks and stores the booking with its
// jobs. It must run inside a transaction: the table row (and the account row for unified
// tables) stays locked until commit, which serializes competing reservations.
func (s *BookingService) Reserve(ctx context.Context, r Reservation) (*domain.Booking, error) {
	now := s.now().UTC()
	iv := interval.New(r.DateFrom, r.DateTo)
	if err := validateReservation(r, iv, now); err != nil {
		return nil, err
	}

	table, err := s.tables.LockForUpdate(ctx, r.TableID)
	if err != nil {
		return nil, err
	}
	if r.Meeting && !table.Unified {
		verr := &domain.ValidationError{}
		verr.Add("table_ids", "a meeting needs a shared table")
		return nil, verr
	}

	var account *domain.Account
	if table.Unified {
		account, err = s.accounts.LockForUpdate(ctx, r.UserID)
	} else {
		account, err = s.accounts.GetByID(ctx, r.UserID)
	}
	if err != nil {
		return nil, err
	}

	ignoreGroup := ""
	if r.GroupID != nil && table.Unified {
		ignoreGroup = *r.GroupID
	}

	onTable, err := s.bookings.ListOverlapping(ctx, table.ID, iv)
	if err != nil {
		return nil, err
	}
	if _, found := interval.FirstConflict(onTable, iv, ignoreGroup); found {
		return nil, &domain.ConflictError{Scope: domain.ConflictScopeTable, TableID: table.ID, UserID: account.ID}
	}

	if table.Unified {
		mine, err := s.bookings.ListUserOverlapping(ctx, account.ID, iv)
		if err != nil {
			return nil, err
		}
		if interval.IsUserOverflowed(mine, table.Unified, iv) {
			return nil, &domain.ConflictError{Scope: domain.ConflictScopeUser, TableID: table.ID, UserID: account.ID}
		}
	}

	b := &domain.Booking{
		ID:                uuid.NewString(),
		TableID:           table.ID,
		UserID:            account.ID,
		GroupID:           r.GroupID,
		DateFrom:          iv.From,
		DateTo:            iv.To,
		DateActivateUntil: interval.ActivationDeadline(iv.From, iv.To, now, s.grace),
		Status:            domain.BookingStatusWaiting,
		Theme:             r.Theme,
	}
	if err := s.bookings.Create(ctx, b); err != nil {
		return nil, err
	}
	if err := s.scheduler.ScheduleBooking(ctx, b, account.Locale); err != nil {
		return nil, err
	}
	return b, nil
}

func validateReservation(r Reservation, iv interval.Interval, now time.Time) error {
	verr := &domain.ValidationError{}
	if r.TableID == "" {
		verr.Add("table_id", "is required")
	}
	if r.UserID == "" {
		verr.Add("user_id", "is required")
	}
	if r.DateFrom.IsZero() || r.DateTo.IsZero() {
		verr.Add("date_from", "date_from and date_to are required")
	} else {
		if !iv.Valid() {
			verr.Add("date_to", "must be after date_from")
		}
		if iv.From.Before(now.Truncate(time.Minute)) {
			verr.Add("date_from", "must not be in the past")
		}
	}
	if len(r.Theme) > 255 {
		verr.Add("theme", "must be at most 255 characters")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func (s *BookingService) ActivateBooking(ctx context.Context, principal domain.Principal, id string) (*domain.Booking, error) {
	logger := logging.ServiceLogger(ctx, s.logger, "booking", "activate", "booking_id", id)

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.CanManage(current) {
		return nil, fmt.Errorf("activate booking %s: %w", id, domain.ErrForbidden)
	}
	now := s.now()
	if err := activatable(current, now); err != nil {
		return nil, err
	}

	updated, err := s.bookings.UpdateStatus(ctx, id, []domain.BookingStatus{domain.BookingStatusWaiting}, domain.BookingStatusActive)
	if errors.Is(err, domain.ErrStatusChanged) {
		latest, getErr := s.bookings.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if latest.Status == domain.BookingStatusActive {
			return latest, nil
		}
		if err := activatable(latest, now); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("activate booking %s: %w", id, domain.ErrStatusChanged)
	}
	if err != nil {
		return nil, err
	}

	if err := s.scheduler.Revoke(ctx, id,
		domain.JobCheckBookingActivate,
		domain.JobNotifyOncoming,
		domain.JobNotifyActivationOpen,
	); err != nil {
		logger.Error("revoke activation jobs", "error", err)
	}

	logger.Info("booking activated")
	s.publish(ctx, logger, events.BookingActivated, updated)
	return updated, nil
}

func activatable(b *domain.Booking, now time.Time) error {
	switch {
	case b.Status == domain.BookingStatusAutoCanceled:
		return fmt.Errorf("activate booking %s: %w", b.ID, domain.ErrDeadlinePassed)
	case b.Status != domain.BookingStatusWaiting:
		return fmt.Errorf("activate booking %s in status %s: %w", b.ID, b.Status, domain.ErrInvalidTransition)
	case !now.Before(b.DateActivateUntil):
		return fmt.Errorf("activate booking %s: %w", b.ID, domain.ErrDeadlinePassed)
	}
	return nil
}

// EndBooking finishes a waiting or active booking. Ending a booking that is already
// terminal returns it unchanged.
func (s *BookingService) EndBooking(ctx context.Context, principal domain.Principal, id string) (*domain.Booking, error) {
	logger := logging.ServiceLogger(ctx, s.logger, "booking", "end", "booking_id", id)

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.CanManage(current) {
		return nil, fmt.Errorf("end booking %s: %w", id, domain.ErrForbidden)
	}
	if current.Status.Terminal() {
		return current, nil
	}

	updated, err := s.bookings.UpdateStatus(ctx, id, domain.OccupyingStatuses, domain.BookingStatusOver)
	if errors.Is(err, domain.ErrStatusChanged) {
		latest, getErr := s.bookings.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if latest.Status.Terminal() {
			return latest, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err := s.scheduler.Revoke(ctx, id); err != nil {
		logger.Error("revoke jobs", "error", err)
	}
	s.pruneGroup(ctx, logger, updated.GroupID)

	logger.Info("booking ended")
	s.publish(ctx, logger, events.BookingEnded, updated)
	return updated, nil
}

// CancelBooking deletes a booking that is still waiting and whose activation deadline has
// not passed, together with its jobs.
func (s *BookingService) CancelBooking(ctx context.Context, principal domain.Principal, id string) error {
	logger := logging.ServiceLogger(ctx, s.logger, "booking", "cancel", "booking_id", id)

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !principal.CanManage(current) {
		return fmt.Errorf("cancel booking %s: %w", id, domain.ErrForbidden)
	}
	if current.Status != domain.BookingStatusWaiting {
		return fmt.Errorf("cancel booking %s in status %s: %w", id, current.Status, domain.ErrAlreadyActive)
	}
	if !s.now().Before(current.DateActivateUntil) {
		return fmt.Errorf("cancel booking %s: %w", id, domain.ErrDeadlinePassed)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.bookings.DeleteIfStatus(ctx, id, domain.BookingStatusWaiting); err != nil {
			if errors.Is(err, domain.ErrStatusChanged) {
				return fmt.Errorf("cancel booking %s: %w", id, domain.ErrAlreadyActive)
			}
			return err
		}
		if current.GroupID != nil {
			if _, err := s.groups.DeleteIfEmpty(ctx, *current.GroupID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Job rows go with the booking row; queued tasks have to be revoked by hand.
	if err := s.scheduler.Revoke(ctx, id); err != nil {
		logger.Error("revoke jobs", "error", err)
	}

	canceled := *current
	canceled.Status = domain.BookingStatusCanceled
	logger.Info("booking canceled")
	s.publish(ctx, logger, events.BookingCanceled, &canceled)
	return nil
}

// CheckSlots reports, for every table and interval, whether the table is free.
func (s *BookingService) CheckSlots(ctx context.Context, tableIDs []string, intervals []interval.Interval) ([]SlotAvailability, error) {
	verr := &domain.ValidationError{}
	if len(tableIDs) == 0 {
		verr.Add("table_ids", "at least one table is required")
	}
	if len(intervals) == 0 {
		verr.Add("intervals", "at least one interval is required")
	}
	for i, iv := range intervals {
		if !iv.Valid() {
			verr.Add(fmt.Sprintf("intervals[%d]", i), "date_to must be after date_from")
		}
	}
	if verr.HasErrors() {
		return nil, verr
	}

	tables, err := s.tables.ListByIDs(ctx, tableIDs)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		known[t.ID] = true
	}
	for _, id := range tableIDs {
		if !known[id] {
			return nil, fmt.Errorf("table %s: %w", id, domain.ErrNotFound)
		}
	}

	span := intervals[0]
	for _, iv := range intervals[1:] {
		if iv.From.Before(span.From) {
			span.From = iv.From
		}
		if iv.To.After(span.To) {
			span.To = iv.To
		}
	}

	existing, err := s.bookings.ListForTables(ctx, tableIDs, span)
	if err != nil {
		return nil, err
	}
	byTable := make(map[string][]domain.Booking, len(tableIDs))
	for _, b := range existing {
		byTable[b.TableID] = append(byTable[b.TableID], b)
	}

	slots := make([]SlotAvailability, 0, len(tableIDs)*len(intervals))
	for _, tableID := range tableIDs {
		for _, iv := range intervals {
			slot := SlotAvailability{TableID: tableID, Interval: iv, Free: true}
			if b, found := interval.FirstConflict(byTable[tableID], iv, ""); found {
				slot.Free = false
				slot.BookingID = b.ID
			}
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

func (s *BookingService) GetBooking(ctx context.Context, principal domain.Principal, id string) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.CanManage(b) {
		return nil, fmt.Errorf("read booking %s: %w", id, domain.ErrForbidden)
	}
	return b, nil
}

func (s *BookingService) ListUserBookings(ctx context.Context, principal domain.Principal, userID string, from, to time.Time) ([]domain.Booking, error) {
	if userID == "" {
		userID = principal.UserID
	}
	if userID != principal.UserID && !principal.IsAdmin {
		return nil, fmt.Errorf("list bookings of %s: %w", userID, domain.ErrForbidden)
	}
	iv := interval.New(from, to)
	if !iv.Valid() {
		verr := &domain.ValidationError{}
		verr.Add("date_to", "must be after date_from")
		return nil, verr
	}
	return s.bookings.ListByUser(ctx, userID, iv)
}

func (s *BookingService) pruneGroup(ctx context.Context, logger *slog.Logger, groupID *string) {
	if groupID == nil {
		return
	}
	removed, err := s.groups.DeleteIfEmpty(ctx, *groupID)
	if err != nil {
		logger.Error("prune group", "group_id", *groupID, "error", err)
		return
	}
	if removed {
		logger.Info("group removed", "group_id", *groupID)
	}
}

func (s *BookingService) publish(ctx context.Context, logger *slog.Logger, eventType events.EventType, b *domain.Booking) {
	if err := s.publisher.PublishBooking(ctx, events.NewBookingEvent(eventType, b, s.now())); err != nil {
		logger.Warn("publish booking event", "event", eventType, "error", err)
	}
}

var _ BookingUseCase = (*BookingService)(nil)
