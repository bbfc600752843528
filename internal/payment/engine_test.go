package payment

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stay-booking-payments/internal/gateway"
	"github.com/iliyamo/stay-booking-payments/internal/model"
	"github.com/iliyamo/stay-booking-payments/internal/repository"
)

// memLedger keeps bookings and payments in memory and settles under a
// single mutex, which gives the same guarantees as the row lock.
type memLedger struct {
	mu       sync.Mutex
	bookings map[string]model.BookingDetail
	payments map[string]model.Payment
	order    []string
	writes   int
}

func newMemLedger() *memLedger {
	return &memLedger{bookings: map[string]model.BookingDetail{}, payments: map[string]model.Payment{}}
}

func (l *memLedger) addBooking(owner string, total string) model.BookingDetail {
	d := model.BookingDetail{
		Booking: model.Booking{
			ID:         uuid.NewString(),
			PropertyID: "p1",
			UserID:     owner,
			StartDate:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
			TotalPrice: decimal.RequireFromString(total),
			Status:     model.BookingPending,
		},
		PropertyName: "Lake House",
		GuestEmail:   "guest@example.com",
	}
	l.mu.Lock()
	l.bookings[d.ID] = d
	l.mu.Unlock()
	return d
}

func (l *memLedger) BookingDetail(_ context.Context, id string) (model.BookingDetail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.bookings[id]
	if !ok {
		return model.BookingDetail{}, repository.ErrNotFound
	}
	return d, nil
}

func (l *memLedger) PaymentByTxRef(_ context.Context, ref string) (model.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[ref]
	if !ok {
		return model.Payment{}, repository.ErrNotFound
	}
	return p, nil
}

func (l *memLedger) PaymentsForBooking(_ context.Context, id string) ([]model.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Payment
	for _, ref := range l.order {
		if p := l.payments[ref]; p.BookingID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *memLedger) CreatePayment(_ context.Context, p *model.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.payments[p.TxRef]; ok {
		return repository.ErrDuplicate
	}
	p.ID = uuid.NewString()
	l.payments[p.TxRef] = *p
	l.order = append(l.order, p.TxRef)
	l.writes++
	return nil
}

func (l *memLedger) AttachCheckout(_ context.Context, ref, checkoutURL string) (model.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[ref]
	if !ok {
		return model.Payment{}, repository.ErrNotFound
	}
	if p.Status == model.PaymentPending && !p.CheckoutURL.Valid {
		p.CheckoutURL = sql.NullString{String: checkoutURL, Valid: true}
		l.payments[ref] = p
		l.writes++
	}
	return p, nil
}

func (l *memLedger) SettlePayment(_ context.Context, ref string, status model.PaymentStatus) (model.Payment, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[ref]
	if !ok {
		return model.Payment{}, false, repository.ErrNotFound
	}
	if status == model.PaymentCompleted {
		for _, other := range l.payments {
			if other.BookingID == p.BookingID && other.TxRef != ref && other.Status == model.PaymentCompleted {
				return p, false, repository.ErrConflict
			}
		}
	}
	if p.Status != model.PaymentPending {
		return p, false, nil
	}
	p.Status = status
	l.payments[ref] = p
	l.writes++
	if status == model.PaymentCompleted {
		d := l.bookings[p.BookingID]
		d.Status = model.BookingConfirmed
		l.bookings[p.BookingID] = d
	}
	return p, true, nil
}

func (l *memLedger) paymentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payments)
}

type stubGateway struct {
	initiateErr error
	status      gateway.Status
	verifyErr   error
	verifyDelay time.Duration

	// beforeReturn runs inside Initiate after the checkout is issued.
	beforeReturn func(req gateway.InitiateRequest)

	initiates atomic.Int32
	verifies  atomic.Int32
	lastReq   gateway.InitiateRequest
}

func (g *stubGateway) Initiate(_ context.Context, req gateway.InitiateRequest) (gateway.InitiateResult, error) {
	g.initiates.Add(1)
	g.lastReq = req
	if g.initiateErr != nil {
		return gateway.InitiateResult{}, g.initiateErr
	}
	if g.beforeReturn != nil {
		g.beforeReturn(req)
	}
	return gateway.InitiateResult{CheckoutURL: "https://checkout.example/" + req.TxRef}, nil
}

func (g *stubGateway) Verify(_ context.Context, _ string) (gateway.Status, error) {
	g.verifies.Add(1)
	if g.verifyDelay > 0 {
		time.Sleep(g.verifyDelay)
	}
	return g.status, g.verifyErr
}

type countingNotifier struct {
	confirmed atomic.Int32
}

func (n *countingNotifier) NotifyPaymentConfirmed(_ context.Context, d model.BookingDetail, p model.Payment) {
	n.confirmed.Add(1)
}

type fixture struct {
	ledger   *memLedger
	gateway  *stubGateway
	notifier *countingNotifier
	engine   *Engine
}

func newFixture() *fixture {
	f := &fixture{ledger: newMemLedger(), gateway: &stubGateway{}, notifier: &countingNotifier{}}
	f.engine = NewEngine(f.ledger, f.gateway, f.notifier, Options{
		Currency:    "ETB",
		CallbackURL: "https://stays.example/v1/payments/verify",
		ReturnURL:   "https://stays.example/v1/payments/status",
		Title:       "Property Booking",
	})
	return f
}

var owner = model.Actor{UserID: "u1", Role: model.RoleGuest}

func TestEngine_EndToEnd(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()

	co, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "chapa-"+b.ID, co.TxRef)
	assert.Equal(t, "https://checkout.example/chapa-"+b.ID, co.CheckoutURL)
	assert.Equal(t, "300.00", f.gateway.lastReq.Amount.StringFixed(2))
	assert.Equal(t, "https://stays.example/v1/payments/verify?tx_ref=chapa-"+b.ID, f.gateway.lastReq.CallbackURL)

	p, err := f.ledger.PaymentByTxRef(ctx, co.TxRef)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.True(t, p.Amount.Equal(b.TotalPrice))

	f.gateway.status = gateway.StatusSuccess
	res, err := f.engine.Verify(ctx, co.TxRef)
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, model.PaymentCompleted, res.Payment.Status)
	assert.Equal(t, model.BookingConfirmed, res.Booking.Status)
	assert.Equal(t, "300.00", res.Payment.Amount.StringFixed(2))
	assert.Equal(t, int32(1), f.notifier.confirmed.Load())
}

func TestEngine_VerifyIsIdempotent(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()
	co, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)
	f.gateway.status = gateway.StatusSuccess

	first, err := f.engine.Verify(ctx, co.TxRef)
	require.NoError(t, err)
	writes := f.ledger.writes

	second, err := f.engine.Verify(ctx, co.TxRef)
	require.NoError(t, err)
	assert.True(t, first.Settled)
	assert.False(t, second.Settled)
	assert.Equal(t, model.PaymentCompleted, second.Payment.Status)
	assert.Equal(t, writes, f.ledger.writes)
	assert.Equal(t, int32(1), f.gateway.verifies.Load(), "settled payments are not re-verified")
	assert.Equal(t, int32(1), f.notifier.confirmed.Load())
}

func TestEngine_ConcurrentVerifySettlesOnce(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()
	co, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)
	f.gateway.status = gateway.StatusSuccess
	f.gateway.verifyDelay = 5 * time.Millisecond

	const n = 16
	var wg sync.WaitGroup
	var winners atomic.Int32
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.Verify(ctx, co.TxRef)
			if err != nil {
				errs <- err
				return
			}
			if res.Settled {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(1), f.notifier.confirmed.Load())
	p, err := f.ledger.PaymentByTxRef(ctx, co.TxRef)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, p.Status)
}

func TestEngine_VerifyUnknownReference(t *testing.T) {
	f := newFixture()
	for _, ref := range []string{"nonsense", "chapa-not-a-uuid", "chapa-" + uuid.NewString()} {
		_, err := f.engine.Verify(context.Background(), ref)
		assert.ErrorIs(t, err, ErrUnknownTransaction, ref)
	}
	assert.Zero(t, f.ledger.paymentCount())
	assert.Zero(t, f.gateway.verifies.Load())
}

func TestEngine_VerifySynthesizesPendingPayment(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "450.50")
	ref := NewTxRef(b.ID, 1)
	f.gateway.status = gateway.StatusSuccess

	res, err := f.engine.Verify(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, model.PaymentCompleted, res.Payment.Status)
	assert.Equal(t, "450.50", res.Payment.Amount.StringFixed(2))
	assert.Equal(t, ref, res.Payment.TxRef)
	assert.Equal(t, 1, f.ledger.paymentCount())
	assert.Equal(t, int32(1), f.notifier.confirmed.Load())
}

func TestEngine_GatewayUnavailableKeepsPending(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()
	co, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)
	f.gateway.verifyErr = gateway.ErrUnavailable

	res, err := f.engine.Verify(ctx, co.TxRef)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, model.PaymentPending, res.Payment.Status)

	p, err := f.ledger.PaymentByTxRef(ctx, co.TxRef)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.Zero(t, f.notifier.confirmed.Load())
}

func TestEngine_VerifyFailedAndPending(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()
	co, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)

	f.gateway.status = gateway.StatusPending
	res, err := f.engine.Verify(ctx, co.TxRef)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, res.Payment.Status)
	assert.False(t, res.Settled)

	f.gateway.status = gateway.StatusFailed
	res, err = f.engine.Verify(ctx, co.TxRef)
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, model.PaymentFailed, res.Payment.Status)
	assert.Equal(t, model.BookingPending, res.Booking.Status)
	assert.Zero(t, f.notifier.confirmed.Load())
}

func TestEngine_InitiateFailurePersistsNothing(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	f.gateway.initiateErr = &gateway.InitiationError{Reason: "rejected", Details: map[string]any{"message": "invalid email"}}

	_, err := f.engine.Initiate(context.Background(), owner, b.ID)
	require.ErrorIs(t, err, ErrPaymentInitiationFailed)
	var ie *InitiationFailedError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "invalid email", ie.Details["message"])
	assert.Zero(t, f.ledger.paymentCount())

	d, err := f.ledger.BookingDetail(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, d.Status)
}

func TestEngine_InitiateReusesPendingAndNumbersRetries(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()

	first, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)
	again, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, int32(1), f.gateway.initiates.Load())

	f.gateway.status = gateway.StatusFailed
	_, err = f.engine.Verify(ctx, first.TxRef)
	require.NoError(t, err)

	retry, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "chapa-"+b.ID+"-2", retry.TxRef)

	id, ok := BookingIDFromTxRef(retry.TxRef)
	require.True(t, ok)
	assert.Equal(t, b.ID, id)
}

func TestEngine_InitiateGuards(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()

	_, err := f.engine.Initiate(ctx, owner, uuid.NewString())
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = f.engine.Initiate(ctx, model.Actor{UserID: "u2"}, b.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = f.engine.Initiate(ctx, model.Actor{UserID: "root", Role: model.RoleAdmin}, b.ID)
	assert.NoError(t, err)

	f.gateway.status = gateway.StatusSuccess
	_, err = f.engine.Verify(ctx, NewTxRef(b.ID, 1))
	require.NoError(t, err)
	_, err = f.engine.Initiate(ctx, owner, b.ID)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Equal(t, int32(1), f.gateway.initiates.Load())
}

func TestEngine_Recheck(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()

	_, err := f.engine.Recheck(ctx, NewTxRef(b.ID, 1))
	assert.ErrorIs(t, err, ErrUnknownTransaction)
	assert.Zero(t, f.ledger.paymentCount(), "recheck never synthesizes")

	co, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)

	f.gateway.verifyErr = gateway.ErrUnavailable
	res, err := f.engine.Recheck(ctx, co.TxRef)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, res.Payment.Status)

	f.gateway.verifyErr = nil
	f.gateway.status = gateway.StatusSuccess
	res, err = f.engine.Recheck(ctx, co.TxRef)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, res.Payment.Status)
	assert.Equal(t, int32(2), f.gateway.verifies.Load())

	_, err = f.engine.Recheck(ctx, co.TxRef)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.gateway.verifies.Load())
	assert.Equal(t, int32(1), f.notifier.confirmed.Load())
}

func TestEngine_InitiateAfterCallbackRecordedPayment(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()
	f.gateway.status = gateway.StatusPending
	f.gateway.beforeReturn = func(req gateway.InitiateRequest) {
		res, err := f.engine.Verify(ctx, req.TxRef)
		require.NoError(t, err)
		require.Equal(t, model.PaymentPending, res.Payment.Status)
	}

	co, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/chapa-"+b.ID, co.CheckoutURL)
	assert.Equal(t, 1, f.ledger.paymentCount())

	f.gateway.beforeReturn = nil
	again, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, co, again)
	assert.Equal(t, int32(1), f.gateway.initiates.Load())

	p, err := f.ledger.PaymentByTxRef(ctx, co.TxRef)
	require.NoError(t, err)
	assert.Equal(t, "300.00", p.Amount.StringFixed(2))
	assert.Equal(t, co.TxRef, p.TxRef)
}

func TestEngine_InitiateAfterCallbackSettledPayment(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()
	f.gateway.status = gateway.StatusSuccess
	f.gateway.beforeReturn = func(req gateway.InitiateRequest) {
		_, err := f.engine.Verify(ctx, req.TxRef)
		require.NoError(t, err)
	}

	_, err := f.engine.Initiate(ctx, owner, b.ID)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Equal(t, int32(1), f.notifier.confirmed.Load())
}

func TestEngine_VerifyDoesNotRecordStrayReferences(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()

	co, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)

	f.gateway.verifyErr = gateway.ErrUnavailable
	for _, n := range []int{2, 5} {
		_, err := f.engine.Verify(ctx, NewTxRef(b.ID, n))
		assert.ErrorIs(t, err, ErrUnknownTransaction, "pending payment exists")
	}

	f.gateway.verifyErr = nil
	f.gateway.status = gateway.StatusSuccess
	_, err = f.engine.Verify(ctx, co.TxRef)
	require.NoError(t, err)

	f.gateway.verifyErr = gateway.ErrUnavailable
	for _, n := range []int{2, 5, 6, 7} {
		_, err := f.engine.Verify(ctx, NewTxRef(b.ID, n))
		assert.ErrorIs(t, err, ErrUnknownTransaction, "booking already paid")
	}
	assert.Equal(t, 1, f.ledger.paymentCount())
	assert.Equal(t, int32(1), f.gateway.verifies.Load())
}

func TestEngine_VerifyRecordsNextAttemptAfterFailure(t *testing.T) {
	f := newFixture()
	b := f.ledger.addBooking("u1", "300.00")
	ctx := context.Background()

	co, err := f.engine.Initiate(ctx, owner, b.ID)
	require.NoError(t, err)
	f.gateway.status = gateway.StatusFailed
	_, err = f.engine.Verify(ctx, co.TxRef)
	require.NoError(t, err)

	f.gateway.status = gateway.StatusPending
	_, err = f.engine.Verify(ctx, NewTxRef(b.ID, 3))
	assert.ErrorIs(t, err, ErrUnknownTransaction)

	res, err := f.engine.Verify(ctx, NewTxRef(b.ID, 2))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, res.Payment.Status)
	assert.Equal(t, 2, f.ledger.paymentCount())
}

func TestTxRef(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, "chapa-"+id, NewTxRef(id, 1))
	assert.Equal(t, "chapa-"+id+"-3", NewTxRef(id, 3))

	for ref, want := range map[string]bool{
		"chapa-" + id:        true,
		"chapa-" + id + "-2": true,
		"chapa-" + id + "-1": false,
		"chapa-" + id + "-x": false,
		"chapa-" + id + "7":  false,
		"stripe-" + id:       false,
		"chapa-":             false,
	} {
		got, ok := BookingIDFromTxRef(ref)
		assert.Equal(t, want, ok, ref)
		if ok {
			assert.Equal(t, id, got)
		}
	}

	_, attempt, ok := ParseTxRef("chapa-" + id + "-4")
	require.True(t, ok)
	assert.Equal(t, 4, attempt)
	_, attempt, _ = ParseTxRef("chapa-" + id)
	assert.Equal(t, 1, attempt)
}
