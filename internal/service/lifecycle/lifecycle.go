// Package lifecycle runs the timed jobs attached to every booking and the daily status
// sweep that backs them up.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/events"
	"github.com/Domenick1991/deskbooking/internal/logging"
	"github.com/Domenick1991/deskbooking/internal/notify"
	"github.com/Domenick1991/deskbooking/internal/queue"
	"github.com/Domenick1991/deskbooking/internal/repository"
)

// JobScheduler is the part of the scheduler jobs need to clean up after themselves.
type JobScheduler interface {
	Revoke(ctx context.Context, bookingID string, kinds ...domain.JobKind) error
	MarkExecuted(ctx context.Context, jobID string) error
}

// errNotDue leaves the job row pending so a later sweep submits it again.
var errNotDue = errors.New("job is not due yet")

type jobFunc func(ctx context.Context, logger *slog.Logger, b *domain.Booking, task queue.Task) error

type Service struct {
	bookings  repository.BookingRepository
	accounts  repository.AccountRepository
	groups    repository.GroupRepository
	scheduler JobScheduler
	notifier  notify.Notifier
	catalog   *notify.Catalog
	publisher events.Publisher
	adminIDs  []string
	strict    bool
	now       func() time.Time
	logger    *slog.Logger
	handlers  map[domain.JobKind]jobFunc
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithStrict makes malformed jobs panic instead of being logged and dropped.
func WithStrict(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

// WithAdminAccounts adds accounts that receive the status report on top of every
// account flagged as administrator.
func WithAdminAccounts(ids ...string) Option {
	return func(s *Service) { s.adminIDs = append(s.adminIDs, ids...) }
}

func NewService(
	bookings repository.BookingRepository,
	accounts repository.AccountRepository,
	groups repository.GroupRepository,
	scheduler JobScheduler,
	notifier notify.Notifier,
	catalog *notify.Catalog,
	publisher events.Publisher,
	opts ...Option,
) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	s := &Service{
		bookings:  bookings,
		accounts:  accounts,
		groups:    groups,
		scheduler: scheduler,
		notifier:  notifier,
		catalog:   catalog,
		publisher: publisher,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handlers = map[domain.JobKind]jobFunc{
		domain.JobCheckBookingActivate: s.checkActivate,
		domain.JobMakeBookingOver:      s.makeOver,
		domain.JobNotifyOncoming: s.sendNotice(notify.MessageOncoming, func(b *domain.Booking) time.Time {
			return b.DateFrom
		}),
		domain.JobNotifyActivationOpen: s.sendNotice(notify.MessageActivationOpen, func(b *domain.Booking) time.Time {
			return b.DateActivateUntil
		}),
		domain.JobNotifyEndingSoon: s.sendNotice(notify.MessageEndingSoon, func(b *domain.Booking) time.Time {
			return b.DateTo
		}),
	}
	return s
}

// Handle runs one task taken from the queue. A booking that no longer exists is not an
// error: its remaining jobs are revoked and the task succeeds. The job row is marked
// executed only after the job function returns cleanly.
func (s *Service) Handle(ctx context.Context, task queue.Task) error {
	logger := logging.ServiceLogger(ctx, s.logger, "lifecycle", string(task.Kind), "job_id", task.ID, "booking_id", task.BookingID)

	run, ok := s.handlers[task.Kind]
	if !ok || task.BookingID == "" {
		err := fmt.Errorf("job %q of kind %q: %w", task.ID, task.Kind, domain.ErrMissingParameter)
		if s.strict {
			panic(err)
		}
		logger.Error("drop malformed job", "error", err)
		return nil
	}

	b, err := s.bookings.GetByID(ctx, task.BookingID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Info("booking is gone, revoking its jobs")
		if err := s.scheduler.Revoke(ctx, task.BookingID); err != nil {
			logger.Error("revoke jobs of missing booking", "error", err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	switch err := run(ctx, logger, b, task); {
	case errors.Is(err, errNotDue):
		logger.Warn("job ran early, leaving it pending")
		return nil
	case err != nil:
		return err
	}

	if err := s.scheduler.MarkExecuted(ctx, task.ID); err != nil {
		return fmt.Errorf("mark job %s executed: %w", task.ID, err)
	}
	return nil
}

func (s *Service) checkActivate(ctx context.Context, logger *slog.Logger, b *domain.Booking, _ queue.Task) error {
	if b.Status != domain.BookingStatusWaiting {
		logger.Debug("booking left waiting, nothing to cancel", "status", b.Status)
		return nil
	}
	if s.now().Before(b.DateActivateUntil) {
		return errNotDue
	}

	updated, err := s.bookings.UpdateStatus(ctx, b.ID, []domain.BookingStatus{domain.BookingStatusWaiting}, domain.BookingStatusAutoCanceled)
	if errors.Is(err, domain.ErrStatusChanged) {
		logger.Info("booking changed concurrently, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	s.revoke(ctx, logger, b.ID,
		domain.JobMakeBookingOver,
		domain.JobNotifyOncoming,
		domain.JobNotifyActivationOpen,
		domain.JobNotifyEndingSoon,
	)
	s.pruneGroup(ctx, logger, updated.GroupID)
	logger.Info("booking auto-canceled")
	s.publish(ctx, logger, events.BookingAutoCanceled, updated)
	return nil
}

func (s *Service) makeOver(ctx context.Context, logger *slog.Logger, b *domain.Booking, _ queue.Task) error {
	if b.Status.Terminal() {
		logger.Debug("booking already terminal", "status", b.Status)
		return nil
	}
	if s.now().Before(b.DateTo) {
		return errNotDue
	}

	updated, err := s.bookings.UpdateStatus(ctx, b.ID, domain.OccupyingStatuses, domain.BookingStatusAutoOver)
	if errors.Is(err, domain.ErrStatusChanged) {
		logger.Info("booking changed concurrently, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	s.revoke(ctx, logger, b.ID,
		domain.JobCheckBookingActivate,
		domain.JobNotifyOncoming,
		domain.JobNotifyActivationOpen,
		domain.JobNotifyEndingSoon,
	)
	s.pruneGroup(ctx, logger, updated.GroupID)
	logger.Info("booking forced over")
	s.publish(ctx, logger, events.BookingAutoOver, updated)
	return nil
}

// sendNotice builds a notification job. Delivery failures are logged and the job still
// counts as executed.
func (s *Service) sendNotice(key notify.MessageKey, moment func(*domain.Booking) time.Time) jobFunc {
	return func(ctx context.Context, logger *slog.Logger, b *domain.Booking, task queue.Task) error {
		if b.Status.Terminal() {
			logger.Debug("booking is over, notification skipped", "status", b.Status)
			return nil
		}

		account, err := s.accounts.GetByID(ctx, b.UserID)
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("booking owner not found, notification skipped", "user_id", b.UserID)
			return nil
		}
		if err != nil {
			return err
		}

		locale := task.Locale
		if locale == "" {
			locale = account.Locale
		}
		msg := s.catalog.Render(key, locale, notify.FormatTime(moment(b)))

		err = s.notifier.Send(ctx, notify.Notification{
			AccountID: account.ID,
			Email:     account.Email,
			Title:     msg.Title,
			Body:      msg.Body,
			Locale:    s.catalog.Locale(locale),
			BookingID: b.ID,
			SentAt:    s.now().UTC(),
		})
		if err != nil {
			logger.Warn("notification not delivered", "error", err, "kind", domain.ErrorKind(err))
		}
		return nil
	}
}

// CheckBookingStatus forces every waiting booking past its activation deadline and every
// active booking past its end to over. It backs up jobs that were lost or never ran, and
// reports the swept bookings to administrators.
func (s *Service) CheckBookingStatus(ctx context.Context) ([]domain.Booking, error) {
	logger := logging.ServiceLogger(ctx, s.logger, "lifecycle", "check_booking_status")

	swept, err := s.bookings.ExpireStale(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("expire stale bookings: %w", err)
	}
	if len(swept) == 0 {
		logger.Debug("no stale bookings")
		return swept, nil
	}

	ids := make([]string, 0, len(swept))
	for i := range swept {
		b := &swept[i]
		ids = append(ids, b.ID)
		s.revoke(ctx, logger, b.ID)
		s.pruneGroup(ctx, logger, b.GroupID)
		s.publish(ctx, logger, events.BookingSwept, b)
	}

	logger.Info("stale bookings swept", "count", len(swept))
	s.report(ctx, logger, ids)
	return swept, nil
}

func (s *Service) report(ctx context.Context, logger *slog.Logger, ids []string) {
	recipients, err := s.admins(ctx)
	if err != nil {
		logger.Error("resolve report recipients", "error", err)
	}
	for _, admin := range recipients {
		msg := s.catalog.Render(notify.MessageStatusReport, admin.Locale, len(ids), strings.Join(ids, ", "))
		err := s.notifier.Send(ctx, notify.Notification{
			AccountID: admin.ID,
			Email:     admin.Email,
			Title:     msg.Title,
			Body:      msg.Body,
			Locale:    s.catalog.Locale(admin.Locale),
			SentAt:    s.now().UTC(),
		})
		if err != nil {
			logger.Warn("status report not delivered", "account_id", admin.ID, "error", err)
		}
	}
}

func (s *Service) admins(ctx context.Context) ([]domain.Account, error) {
	flagged, err := s.accounts.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(flagged)+len(s.adminIDs))
	out := make([]domain.Account, 0, len(flagged)+len(s.adminIDs))
	for _, a := range flagged {
		seen[a.ID] = true
		out = append(out, a)
	}

	var errs []error
	for _, id := range s.adminIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		a, err := s.accounts.GetByID(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, *a)
	}
	return out, errors.Join(errs...)
}

func (s *Service) revoke(ctx context.Context, logger *slog.Logger, bookingID string, kinds ...domain.JobKind) {
	if err := s.scheduler.Revoke(ctx, bookingID, kinds...); err != nil {
		logger.Error("revoke jobs", "booking_id", bookingID, "error", err)
	}
}

func (s *Service) pruneGroup(ctx context.Context, logger *slog.Logger, groupID *string) {
	if groupID == nil || s.groups == nil {
		return
	}
	if _, err := s.groups.DeleteIfEmpty(ctx, *groupID); err != nil {
		logger.Error("prune group", "group_id", *groupID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, logger *slog.Logger, eventType events.EventType, b *domain.Booking) {
	if err := s.publisher.PublishBooking(ctx, events.NewBookingEvent(eventType, b, s.now())); err != nil {
		logger.Warn("publish booking event", "event", eventType, "error", err)
	}
}
