// Package payment runs the payment confirmation workflow for bookings.
//
// A booking moves through NoPayment, Initiating, Pending and finally
// Completed or Failed.  Initiate opens a checkout at the gateway and stores
// a Pending payment.  Verify asks the gateway for the outcome and settles
// the payment exactly once, however many times and however concurrently it
// is called for the same reference.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/iliyamo/stay-booking-payments/internal/booking"
	"github.com/iliyamo/stay-booking-payments/internal/gateway"
	"github.com/iliyamo/stay-booking-payments/internal/model"
	"github.com/iliyamo/stay-booking-payments/internal/repository"
)

// Ledger is the persistent record of bookings and payments.  SettlePayment
// must be atomic: of all concurrent calls for one Pending reference exactly
// one reports won.
type Ledger interface {
	BookingDetail(ctx context.Context, bookingID string) (model.BookingDetail, error)
	PaymentByTxRef(ctx context.Context, txRef string) (model.Payment, error)
	PaymentsForBooking(ctx context.Context, bookingID string) ([]model.Payment, error)
	CreatePayment(ctx context.Context, p *model.Payment) error
	AttachCheckout(ctx context.Context, txRef, checkoutURL string) (model.Payment, error)
	SettlePayment(ctx context.Context, txRef string, status model.PaymentStatus) (model.Payment, bool, error)
}

type Gateway interface {
	Initiate(ctx context.Context, req gateway.InitiateRequest) (gateway.InitiateResult, error)
	Verify(ctx context.Context, txRef string) (gateway.Status, error)
}

// Notifier receives the payment-confirmed event.  It must not block.
type Notifier interface {
	NotifyPaymentConfirmed(ctx context.Context, d model.BookingDetail, p model.Payment)
}

// Options are the checkout parameters sent with every initiation.
// CallbackURL and ReturnURL get ?tx_ref=<reference> appended.
type Options struct {
	Currency    string
	CallbackURL string
	ReturnURL   string
	Title       string
}

type Engine struct {
	ledger   Ledger
	gateway  Gateway
	notifier Notifier
	opts     Options
}

func NewEngine(ledger Ledger, gw Gateway, notifier Notifier, opts Options) *Engine {
	if ledger == nil || gw == nil || notifier == nil {
		panic("nil dependency passed to payment.NewEngine")
	}
	if opts.Currency == "" {
		opts.Currency = "ETB"
	}
	return &Engine{ledger: ledger, gateway: gw, notifier: notifier, opts: opts}
}

// Checkout is what the payer needs to complete a payment.
type Checkout struct {
	CheckoutURL string
	TxRef       string
}

// Result is the state of a payment after Verify or Recheck, together with
// the booking it pays for.
type Result struct {
	Payment model.Payment
	Booking model.BookingDetail
	// Settled is true only for the call that moved the payment out of
	// Pending.
	Settled bool
}

// Initiate opens a checkout for the booking.  actor must already be
// resolved (see booking.Service.ResolveActor).
//
// A booking has at most one Pending payment: if one exists its checkout is
// returned again without contacting the gateway.  A failed initiation
// stores nothing.
func (e *Engine) Initiate(ctx context.Context, actor model.Actor, bookingID string) (Checkout, error) {
	log := zerolog.Ctx(ctx).With().Str("booking_id", bookingID).Logger()

	d, err := e.ledger.BookingDetail(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Checkout{}, ErrBookingNotFound
		}
		return Checkout{}, err
	}
	if !booking.CanAccess(actor, d.Booking) {
		return Checkout{}, repository.ErrForbidden
	}

	attempts, err := e.ledger.PaymentsForBooking(ctx, bookingID)
	if err != nil {
		return Checkout{}, err
	}
	for _, p := range attempts {
		if p.Status == model.PaymentCompleted {
			return Checkout{}, ErrAlreadyPaid
		}
	}
	for _, p := range attempts {
		if p.Status != model.PaymentPending {
			continue
		}
		if !p.CheckoutURL.Valid || p.CheckoutURL.String == "" {
			return Checkout{TxRef: p.TxRef}, ErrPaymentInProgress
		}
		log.Info().Str("tx_ref", p.TxRef).Msg("reusing pending checkout")
		return Checkout{CheckoutURL: p.CheckoutURL.String, TxRef: p.TxRef}, nil
	}

	ref := NewTxRef(bookingID, len(attempts)+1)
	res, err := e.gateway.Initiate(ctx, gateway.InitiateRequest{
		TxRef:       ref,
		Amount:      d.TotalPrice,
		Currency:    e.opts.Currency,
		Email:       d.GuestEmail,
		FirstName:   d.GuestFirstName,
		LastName:    d.GuestLastName,
		CallbackURL: withTxRef(e.opts.CallbackURL, ref),
		ReturnURL:   withTxRef(e.opts.ReturnURL, ref),
		Title:       e.opts.Title,
	})
	if err != nil {
		log.Warn().Err(err).Str("tx_ref", ref).Msg("gateway refused checkout")
		ie := &InitiationFailedError{cause: err}
		var gie *gateway.InitiationError
		if errors.As(err, &gie) {
			ie.Details = gie.Details
		}
		return Checkout{}, ie
	}

	p := model.Payment{
		BookingID:   bookingID,
		Amount:      d.TotalPrice,
		Currency:    e.opts.Currency,
		TxRef:       ref,
		CheckoutURL: sql.NullString{String: res.CheckoutURL, Valid: true},
		Status:      model.PaymentPending,
		Method:      model.MethodChapa,
	}
	if err := e.ledger.CreatePayment(ctx, &p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return e.adoptCheckout(ctx, ref, res.CheckoutURL)
		}
		return Checkout{}, fmt.Errorf("store payment %s: %w", ref, err)
	}
	log.Info().Str("tx_ref", ref).Str("amount", p.Amount.StringFixed(2)).Msg("payment initiated")
	return Checkout{CheckoutURL: res.CheckoutURL, TxRef: ref}, nil
}

// adoptCheckout handles an Initiate whose reference was stored first by a
// concurrent Initiate or by a gateway callback.  A row recorded from the
// callback has no checkout yet and gets the one the gateway just issued.
func (e *Engine) adoptCheckout(ctx context.Context, ref, checkoutURL string) (Checkout, error) {
	p, err := e.ledger.AttachCheckout(ctx, ref, checkoutURL)
	if err != nil {
		return Checkout{}, err
	}
	switch {
	case p.Status == model.PaymentCompleted:
		return Checkout{TxRef: ref}, ErrAlreadyPaid
	case p.Status == model.PaymentFailed:
		return Checkout{}, &InitiationFailedError{
			Details: map[string]any{"message": "payment " + ref + " has already failed, start a new checkout"},
			cause:   fmt.Errorf("payment %s settled as failed during initiation", ref),
		}
	case !p.CheckoutURL.Valid || p.CheckoutURL.String == "":
		return Checkout{TxRef: ref}, ErrPaymentInProgress
	}
	zerolog.Ctx(ctx).Info().Str("tx_ref", ref).Msg("checkout attached to recorded payment")
	return Checkout{CheckoutURL: p.CheckoutURL.String, TxRef: ref}, nil
}

// Verify reconciles the payment for txRef with the gateway.
//
// A payment that is already Completed or Failed is returned as is.  When the
// gateway cannot be reached the Pending payment is returned together with
// ErrGatewayUnavailable.  Only the caller whose settlement completes the
// payment triggers the confirmation notice.
func (e *Engine) Verify(ctx context.Context, txRef string) (Result, error) {
	log := zerolog.Ctx(ctx).With().Str("tx_ref", txRef).Logger()

	p, err := e.resolve(ctx, txRef)
	if err != nil {
		return Result{}, err
	}
	if p.Status.Terminal() {
		return e.result(ctx, p, false)
	}

	status, err := e.gateway.Verify(ctx, txRef)
	if err != nil {
		log.Warn().Err(err).Msg("gateway verify failed")
		res, rerr := e.result(ctx, p, false)
		if rerr != nil {
			return Result{}, rerr
		}
		return res, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	var target model.PaymentStatus
	switch status {
	case gateway.StatusSuccess:
		target = model.PaymentCompleted
	case gateway.StatusFailed:
		target = model.PaymentFailed
	default:
		return e.result(ctx, p, false)
	}

	settled, won, err := e.ledger.SettlePayment(ctx, txRef, target)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			log.Error().Str("booking_id", p.BookingID).
				Msg("gateway reports success for a booking that is already paid")
			return Result{}, fmt.Errorf("settle %s: %w", txRef, ErrAlreadyPaid)
		}
		return Result{}, fmt.Errorf("settle %s: %w", txRef, err)
	}
	res, err := e.result(ctx, settled, won)
	if err != nil {
		return Result{}, err
	}
	if won {
		log.Info().Str("status", string(settled.Status)).Str("booking_id", settled.BookingID).Msg("payment settled")
		if settled.Status == model.PaymentCompleted {
			e.notifier.NotifyPaymentConfirmed(ctx, res.Booking, settled)
		}
	}
	return res, nil
}

// Recheck reports the state of an existing payment, giving a Pending one a
// single chance to settle.  Gateway unavailability is not an error here.
func (e *Engine) Recheck(ctx context.Context, txRef string) (Result, error) {
	p, err := e.ledger.PaymentByTxRef(ctx, txRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, ErrUnknownTransaction
		}
		return Result{}, err
	}
	if p.Status.Terminal() {
		return e.result(ctx, p, false)
	}
	res, err := e.Verify(ctx, txRef)
	if errors.Is(err, ErrGatewayUnavailable) {
		return res, nil
	}
	return res, err
}

// resolve finds the payment for txRef.  A reference the ledger has never
// seen gets a Pending payment for the booking's current total, so a callback
// that outran its own Initiate is not lost.  That only happens for the
// booking's next attempt number while it has no Completed or Pending
// payment; any other unknown reference is ErrUnknownTransaction.
func (e *Engine) resolve(ctx context.Context, txRef string) (model.Payment, error) {
	p, err := e.ledger.PaymentByTxRef(ctx, txRef)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.Payment{}, err
	}

	bookingID, attempt, ok := ParseTxRef(txRef)
	if !ok {
		return model.Payment{}, ErrUnknownTransaction
	}
	d, err := e.ledger.BookingDetail(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Payment{}, ErrUnknownTransaction
		}
		return model.Payment{}, err
	}
	attempts, err := e.ledger.PaymentsForBooking(ctx, bookingID)
	if err != nil {
		return model.Payment{}, err
	}
	if attempt != len(attempts)+1 {
		zerolog.Ctx(ctx).Warn().Str("tx_ref", txRef).Int("attempts", len(attempts)).
			Msg("reference is not the booking's next attempt")
		return model.Payment{}, ErrUnknownTransaction
	}
	for _, other := range attempts {
		if other.Status == model.PaymentCompleted || other.Status == model.PaymentPending {
			zerolog.Ctx(ctx).Warn().Str("tx_ref", txRef).Str("existing", other.TxRef).
				Str("status", string(other.Status)).Msg("booking already has an open or paid payment")
			return model.Payment{}, ErrUnknownTransaction
		}
	}

	p = model.Payment{
		BookingID: bookingID,
		Amount:    d.TotalPrice,
		Currency:  e.opts.Currency,
		TxRef:     txRef,
		Status:    model.PaymentPending,
		Method:    model.MethodChapa,
	}
	if err := e.ledger.CreatePayment(ctx, &p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return e.ledger.PaymentByTxRef(ctx, txRef)
		}
		return model.Payment{}, fmt.Errorf("record payment %s: %w", txRef, err)
	}
	zerolog.Ctx(ctx).Info().Str("tx_ref", txRef).Str("booking_id", bookingID).
		Msg("recorded pending payment from gateway reference")
	return p, nil
}

func (e *Engine) result(ctx context.Context, p model.Payment, settled bool) (Result, error) {
	d, err := e.ledger.BookingDetail(ctx, p.BookingID)
	if err != nil {
		return Result{}, fmt.Errorf("load booking %s: %w", p.BookingID, err)
	}
	return Result{Payment: p, Booking: d, Settled: settled}, nil
}

func withTxRef(raw, ref string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("tx_ref", ref)
	u.RawQuery = q.Encode()
	return u.String()
}
