// Package booking creates and reads bookings.  It validates date ranges,
// prices the stay from the property's nightly rate and resolves guest
// callers to the shared guest fallback user.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/stay-booking-payments/internal/model"
	"github.com/iliyamo/stay-booking-payments/internal/repository"
)

var (
	// ErrInvalidRange is returned when the start date is not before the end
	// date.  Nothing is written.
	ErrInvalidRange = errors.New("start date must be before end date")

	// ErrPropertyNotFound is returned when booking an unknown property.
	ErrPropertyNotFound = errors.New("property not found")
)

type Properties interface {
	GetByID(ctx context.Context, id string) (model.Property, error)
}

type Bookings interface {
	Create(ctx context.Context, b *model.Booking) error
	GetDetail(ctx context.Context, id string) (model.BookingDetail, error)
}

type Users interface {
	UpsertGuest(ctx context.Context, email string) (model.User, error)
}

// Notifier receives the booking-submitted event.  It must not block.
type Notifier interface {
	NotifyBookingSubmitted(ctx context.Context, d model.BookingDetail)
}

type Service struct {
	props      Properties
	bookings   Bookings
	users      Users
	notifier   Notifier
	guestEmail string
}

// NewService wires a Service.  guestEmail identifies the guest fallback
// user that owns bookings made without an account.
func NewService(props Properties, bookings Bookings, users Users, notifier Notifier, guestEmail string) *Service {
	if props == nil || bookings == nil || users == nil || notifier == nil {
		panic("nil dependency passed to booking.NewService")
	}
	return &Service{props: props, bookings: bookings, users: users, notifier: notifier, guestEmail: guestEmail}
}

// ResolveActor returns actor unchanged unless it is a guest, in which case
// it becomes the guest fallback user.  The fallback user is created on
// first use.
func (s *Service) ResolveActor(ctx context.Context, actor model.Actor) (model.Actor, error) {
	if !actor.Guest || actor.UserID != "" {
		return actor, nil
	}
	u, err := s.users.UpsertGuest(ctx, s.guestEmail)
	if err != nil {
		return actor, fmt.Errorf("resolve guest user: %w", err)
	}
	actor.UserID = u.ID
	return actor, nil
}

// CreateBooking books propertyID for the nights between start and end on
// behalf of actor and returns the stored booking with status pending.
func (s *Service) CreateBooking(ctx context.Context, actor model.Actor, propertyID string, start, end time.Time) (model.Booking, error) {
	start, end = day(start), day(end)
	if !start.Before(end) {
		return model.Booking{}, ErrInvalidRange
	}
	prop, err := s.props.GetByID(ctx, propertyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Booking{}, ErrPropertyNotFound
		}
		return model.Booking{}, err
	}
	actor, err = s.ResolveActor(ctx, actor)
	if err != nil {
		return model.Booking{}, err
	}

	b := model.Booking{
		PropertyID: prop.ID,
		UserID:     actor.UserID,
		StartDate:  start,
		EndDate:    end,
		TotalPrice: Quote(prop.NightlyRate, start, end),
		Status:     model.BookingPending,
	}
	if err := s.bookings.Create(ctx, &b); err != nil {
		return model.Booking{}, fmt.Errorf("create booking: %w", err)
	}

	log := zerolog.Ctx(ctx)
	log.Info().Str("booking_id", b.ID).Str("property_id", prop.ID).
		Str("total", b.TotalPrice.StringFixed(2)).Msg("booking created")

	// The booking is already stored; a failed re-read only costs the email.
	if d, err := s.bookings.GetDetail(ctx, b.ID); err != nil {
		log.Error().Err(err).Str("booking_id", b.ID).Msg("load booking for notification")
	} else {
		s.notifier.NotifyBookingSubmitted(ctx, d)
	}
	return b, nil
}

// GetBooking returns the booking if actor owns it or is an admin.
func (s *Service) GetBooking(ctx context.Context, actor model.Actor, id string) (model.BookingDetail, error) {
	d, err := s.bookings.GetDetail(ctx, id)
	if err != nil {
		return model.BookingDetail{}, err
	}
	actor, err = s.ResolveActor(ctx, actor)
	if err != nil {
		return model.BookingDetail{}, err
	}
	if !CanAccess(actor, d.Booking) {
		return model.BookingDetail{}, repository.ErrForbidden
	}
	return d, nil
}

// CanAccess reports whether actor may read or pay for b.  Guest actors must
// be resolved first.
func CanAccess(actor model.Actor, b model.Booking) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.UserID != "" && actor.UserID == b.UserID
}

// Quote prices a stay: number of nights times the nightly rate, exact to the
// cent.
func Quote(nightlyRate decimal.Decimal, start, end time.Time) decimal.Decimal {
	nights := model.NightsBetween(start, end)
	return nightlyRate.Mul(decimal.NewFromInt(int64(nights))).Round(2)
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
