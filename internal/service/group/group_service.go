// Package group books several seats at once under one group identity: a meeting shares
// one unified table, a workplace booking gives every attendee a table of their own.
package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/email"
	"github.com/Domenick1991/deskbooking/internal/events"
	"github.com/Domenick1991/deskbooking/internal/logging"
	"github.com/Domenick1991/deskbooking/internal/notify"
	"github.com/Domenick1991/deskbooking/internal/repository"
	"github.com/Domenick1991/deskbooking/internal/service/booking"
	"github.com/google/uuid"
)

type GroupUseCase interface {
	CreateGroupBooking(ctx context.Context, principal domain.Principal, input CreateGroupInput) (*domain.GroupBooking, error)
	CancelGroup(ctx context.Context, principal domain.Principal, id string) error
	LeaveGroup(ctx context.Context, principal domain.Principal, id string) error
	GetGroup(ctx context.Context, principal domain.Principal, id string) (*domain.GroupBooking, error)
}

// Reserver places a single booking inside the caller's transaction.
type Reserver interface {
	Reserve(ctx context.Context, r booking.Reservation) (*domain.Booking, error)
}

type JobScheduler interface {
	Revoke(ctx context.Context, bookingID string, kinds ...domain.JobKind) error
}

type CreateGroupInput struct {
	Kind domain.GroupKind `json:"kind"`
	// TableIDs holds one table for a meeting, one table per attendee for a workplace
	// booking. The author comes first, then participants in the given order.
	TableIDs       []string       `json:"table_ids"`
	ParticipantIDs []string       `json:"participant_ids"`
	Guests         []domain.Guest `json:"guests,omitempty"`
	DateFrom       time.Time      `json:"date_from"`
	DateTo         time.Time      `json:"date_to"`
	Theme          string         `json:"theme,omitempty"`
}

type GroupService struct {
	groups      repository.GroupRepository
	bookings    repository.BookingRepository
	tx          repository.Transactor
	reserver    Reserver
	scheduler   JobScheduler
	publisher   events.Publisher
	messenger   email.Messenger
	contacts    *ContactResolver
	catalog     *notify.Catalog
	guestLocale string
	now         func() time.Time
	logger      *slog.Logger
}

type GroupServiceOption func(*GroupService)

func WithClock(now func() time.Time) GroupServiceOption {
	return func(s *GroupService) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) GroupServiceOption {
	return func(s *GroupService) {
		s.logger = logger
	}
}

// WithGuestLocale sets the language of guest invitations.
func WithGuestLocale(locale string) GroupServiceOption {
	return func(s *GroupService) {
		s.guestLocale = locale
	}
}

func NewGroupService(
	groups repository.GroupRepository,
	bookings repository.BookingRepository,
	tx repository.Transactor,
	reserver Reserver,
	scheduler JobScheduler,
	publisher events.Publisher,
	messenger email.Messenger,
	contacts *ContactResolver,
	catalog *notify.Catalog,
	opts ...GroupServiceOption,
) *GroupService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	s := &GroupService{
		groups:    groups,
		bookings:  bookings,
		tx:        tx,
		reserver:  reserver,
		scheduler: scheduler,
		publisher: publisher,
		messenger: messenger,
		contacts:  contacts,
		catalog:   catalog,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type invitation struct {
	guest   domain.Guest
	channel email.Channel
}

// CreateGroupBooking creates the group and one booking per attendee in a single
// transaction. Any conflict leaves nothing behind.
func (s *GroupService) CreateGroupBooking(ctx context.Context, principal domain.Principal, input CreateGroupInput) (*domain.GroupBooking, error) {
	logger := logging.ServiceLogger(ctx, s.logger, "group", "create", "author_id", principal.UserID, "kind", input.Kind)

	attendees := attendeesOf(principal.UserID, input.ParticipantIDs)
	invitations, err := s.validate(input, attendees)
	if err != nil {
		return nil, err
	}

	guests := make([]domain.Guest, 0, len(invitations))
	for _, inv := range invitations {
		guests = append(guests, inv.guest)
	}
	group := &domain.GroupBooking{
		ID:       uuid.NewString(),
		AuthorID: principal.UserID,
		Kind:     input.Kind,
		Guests:   guests,
		DateFrom: input.DateFrom.UTC(),
		DateTo:   input.DateTo.UTC(),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.groups.Create(ctx, group); err != nil {
			return err
		}
		group.Bookings = make([]domain.Booking, 0, len(attendees))
		for i, userID := range attendees {
			tableID := input.TableIDs[0]
			if input.Kind == domain.GroupKindWorkplace {
				tableID = input.TableIDs[i]
			}
			b, err := s.reserver.Reserve(ctx, booking.Reservation{
				TableID:  tableID,
				UserID:   userID,
				DateFrom: input.DateFrom,
				DateTo:   input.DateTo,
				Theme:    input.Theme,
				GroupID:  &group.ID,
				Meeting:  input.Kind == domain.GroupKindMeeting,
			})
			if err != nil {
				return fmt.Errorf("reserve for %s: %w", userID, err)
			}
			group.Bookings = append(group.Bookings, *b)
		}
		return nil
	})
	if err != nil {
		logger.Info("group booking rejected", "reason", domain.ErrorKind(err))
		return nil, err
	}

	logger.Info("group booking created", "group_id", group.ID, "bookings", len(group.Bookings))
	for i := range group.Bookings {
		s.publish(ctx, logger, events.BookingCreated, &group.Bookings[i])
	}
	s.invite(ctx, logger, group, invitations)
	return group, nil
}

func attendeesOf(authorID string, participants []string) []string {
	seen := map[string]bool{authorID: true}
	out := []string{authorID}
	for _, id := range participants {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (s *GroupService) validate(input CreateGroupInput, attendees []string) ([]invitation, error) {
	verr := &domain.ValidationError{}

	switch input.Kind {
	case domain.GroupKindMeeting:
		if len(input.TableIDs) != 1 {
			verr.Add("table_ids", "a meeting takes exactly one table")
		}
	case domain.GroupKindWorkplace:
		if len(input.TableIDs) != len(attendees) {
			verr.Add("table_ids", fmt.Sprintf("expected %d tables, one per attendee", len(attendees)))
		}
		seen := make(map[string]bool, len(input.TableIDs))
		for _, id := range input.TableIDs {
			if seen[id] {
				verr.Add("table_ids", "tables must be distinct")
				break
			}
			seen[id] = true
		}
	default:
		verr.Add("kind", "must be meeting or workplace")
	}
	if len(attendees) < 2 && len(input.Guests) == 0 {
		verr.Add("participant_ids", "a group needs at least one participant or guest")
	}

	invitations := make([]invitation, 0, len(input.Guests))
	for i, g := range input.Guests {
		channel, contact, ok := s.contacts.Resolve(g.Contact)
		if !ok {
			verr.Add(fmt.Sprintf("guests[%d].contact", i), "must be an e-mail address or a phone number")
			continue
		}
		invitations = append(invitations, invitation{
			guest:   domain.Guest{Name: g.Name, Contact: contact},
			channel: channel,
		})
	}

	if verr.HasErrors() {
		return nil, verr
	}
	return invitations, nil
}

func (s *GroupService) invite(ctx context.Context, logger *slog.Logger, group *domain.GroupBooking, invitations []invitation) {
	for _, inv := range invitations {
		msg := s.catalog.Render(notify.MessageGuestInvite, s.guestLocale,
			inv.guest.Name, notify.FormatTime(group.DateFrom), notify.FormatTime(group.DateTo))

		var err error
		switch inv.channel {
		case email.ChannelEmail:
			err = s.messenger.SendEmail(ctx, inv.guest.Contact, msg.Title, msg.Body)
		case email.ChannelSMS:
			err = s.messenger.SendSMS(ctx, inv.guest.Contact, msg.Body)
		}
		if err != nil {
			logger.Warn("guest invitation not delivered", "group_id", group.ID, "channel", inv.channel, "error", err)
		}
	}
}

// errProgressed aborts the delete path when a child left waiting under our feet.
var errProgressed = errors.New("group booking progressed")

// CancelGroup is available to the author and administrators. A group whose bookings are
// all still waiting is deleted outright; otherwise every booking is ended and the group
// row goes away once nothing occupies a table.
func (s *GroupService) CancelGroup(ctx context.Context, principal domain.Principal, id string) error {
	logger := logging.ServiceLogger(ctx, s.logger, "group", "cancel", "group_id", id)

	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if group.AuthorID != principal.UserID && !principal.IsAdmin {
		return fmt.Errorf("cancel group %s: %w", id, domain.ErrForbidden)
	}

	children, err := s.bookings.ListByGroup(ctx, id)
	if err != nil {
		return err
	}

	if allWaiting(children) {
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			for _, b := range children {
				if err := s.bookings.DeleteIfStatus(ctx, b.ID, domain.BookingStatusWaiting); err != nil {
					if errors.Is(err, domain.ErrStatusChanged) {
						return errProgressed
					}
					return err
				}
			}
			return s.groups.Delete(ctx, id)
		})
		switch {
		case err == nil:
			for i := range children {
				s.revoke(ctx, logger, children[i].ID)
				canceled := children[i]
				canceled.Status = domain.BookingStatusCanceled
				s.publish(ctx, logger, events.BookingCanceled, &canceled)
			}
			logger.Info("group deleted", "bookings", len(children))
			return nil
		case !errors.Is(err, errProgressed):
			return err
		}
		logger.Info("group progressed while canceling, ending bookings instead")
		if children, err = s.bookings.ListByGroup(ctx, id); err != nil {
			return err
		}
	}

	for i := range children {
		if err := s.forceEnd(ctx, logger, &children[i]); err != nil {
			return err
		}
	}
	removed, err := s.groups.DeleteIfEmpty(ctx, id)
	if err != nil {
		return err
	}
	logger.Info("group ended", "bookings", len(children), "group_removed", removed)
	return nil
}

// LeaveGroup removes the caller's own booking from the group. The author leaving cancels
// the whole group.
func (s *GroupService) LeaveGroup(ctx context.Context, principal domain.Principal, id string) error {
	logger := logging.ServiceLogger(ctx, s.logger, "group", "leave", "group_id", id, "user_id", principal.UserID)

	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if group.AuthorID == principal.UserID {
		return s.CancelGroup(ctx, principal, id)
	}

	children, err := s.bookings.ListByGroup(ctx, id)
	if err != nil {
		return err
	}
	var mine *domain.Booking
	for i := range children {
		if children[i].UserID == principal.UserID {
			mine = &children[i]
			break
		}
	}
	if mine == nil {
		return fmt.Errorf("leave group %s: %w", id, domain.ErrForbidden)
	}
	if mine.Status.Terminal() {
		return nil
	}

	if mine.Status == domain.BookingStatusWaiting {
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.bookings.DeleteIfStatus(ctx, mine.ID, domain.BookingStatusWaiting); err != nil {
				return err
			}
			_, err := s.groups.DeleteIfEmpty(ctx, id)
			return err
		})
		if err == nil {
			s.revoke(ctx, logger, mine.ID)
			canceled := *mine
			canceled.Status = domain.BookingStatusCanceled
			s.publish(ctx, logger, events.BookingCanceled, &canceled)
			logger.Info("participant left, booking deleted")
			return nil
		}
		if !errors.Is(err, domain.ErrStatusChanged) {
			return err
		}
	}

	if err := s.forceEnd(ctx, logger, mine); err != nil {
		return err
	}
	if _, err := s.groups.DeleteIfEmpty(ctx, id); err != nil {
		return err
	}
	logger.Info("participant left, booking ended")
	return nil
}

// forceEnd moves an occupying booking to over. A booking that already reached a terminal
// status is left alone.
func (s *GroupService) forceEnd(ctx context.Context, logger *slog.Logger, b *domain.Booking) error {
	if b.Status.Terminal() {
		return nil
	}
	updated, err := s.bookings.UpdateStatus(ctx, b.ID, domain.OccupyingStatuses, domain.BookingStatusOver)
	if errors.Is(err, domain.ErrStatusChanged) {
		return nil
	}
	if err != nil {
		return err
	}
	s.revoke(ctx, logger, b.ID)
	s.publish(ctx, logger, events.BookingEnded, updated)
	return nil
}

func (s *GroupService) GetGroup(ctx context.Context, principal domain.Principal, id string) (*domain.GroupBooking, error) {
	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := s.bookings.ListByGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Bookings = children

	if principal.IsAdmin || group.AuthorID == principal.UserID {
		return group, nil
	}
	for _, b := range children {
		if b.UserID == principal.UserID {
			return group, nil
		}
	}
	return nil, fmt.Errorf("read group %s: %w", id, domain.ErrForbidden)
}

func allWaiting(children []domain.Booking) bool {
	for _, b := range children {
		if b.Status != domain.BookingStatusWaiting {
			return false
		}
	}
	return true
}

func (s *GroupService) revoke(ctx context.Context, logger *slog.Logger, bookingID string) {
	if err := s.scheduler.Revoke(ctx, bookingID); err != nil {
		logger.Error("revoke jobs", "booking_id", bookingID, "error", err)
	}
}

func (s *GroupService) publish(ctx context.Context, logger *slog.Logger, eventType events.EventType, b *domain.Booking) {
	if err := s.publisher.PublishBooking(ctx, events.NewBookingEvent(eventType, b, s.now())); err != nil {
		logger.Warn("publish booking event", "event", eventType, "error", err)
	}
}

var _ GroupUseCase = (*GroupService)(nil)
