// Package notifier renders booking and payment notices and dispatches them
// in the background.  Callers never wait on dispatch and never see its
// errors.  A full buffer drops booking notices at once; a payment
// confirmation waits up to the configured enqueue wait for room and, if it
// still has to be dropped, is logged at error level with its tx_ref so it
// can be replayed.
package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/stay-booking-payments/internal/config"
	"github.com/iliyamo/stay-booking-payments/internal/model"
	"github.com/iliyamo/stay-booking-payments/internal/queue"
)

var (
	// ErrClosed is reported (in the log) for messages enqueued after Close.
	ErrClosed = errors.New("notifier closed")

	ErrBufferFull = errors.New("notification buffer full")
)

// Dispatcher hands a rendered message to the delivery channel.
type Dispatcher interface {
	Publish(ctx context.Context, msg queue.EmailMessage) error
}

type Notifier struct {
	dispatcher  Dispatcher
	from        string
	workers     int
	sendTimeout time.Duration
	enqueueWait time.Duration
	log         zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan queue.EmailMessage
	wg     sync.WaitGroup
}

// New builds a Notifier with cfg.Workers workers and a cfg.Buffer message
// buffer.  Workers run only after Start.
func New(d Dispatcher, cfg config.NotifierConfig, log zerolog.Logger) *Notifier {
	if d == nil {
		panic("nil dispatcher passed to notifier.New")
	}
	workers, buffer := cfg.Workers, cfg.Buffer
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		dispatcher:  d,
		from:        cfg.FromAddress,
		workers:     workers,
		sendTimeout: timeout,
		enqueueWait: cfg.EnqueueWait,
		log:         log.With().Str("component", "notifier").Logger(),
		queue:       make(chan queue.EmailMessage, buffer),
	}
}

// Start launches the workers.  Values carried by ctx (such as its logger)
// reach the dispatcher but its cancellation does not: Close drains the
// buffer.
func (n *Notifier) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.run(base)
	}
}

// Close stops accepting messages and waits for the workers to dispatch
// what is already buffered.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	n.wg.Wait()
}

// NotifyBookingSubmitted tells the guest their booking was received.
func (n *Notifier) NotifyBookingSubmitted(ctx context.Context, d model.BookingDetail) {
	n.notify(ctx, TemplateBookingSubmitted, d.GuestEmail, bookingParams(d), 0)
}

// NotifyPaymentConfirmed tells the guest their payment went through and the
// booking is confirmed.
func (n *Notifier) NotifyPaymentConfirmed(ctx context.Context, d model.BookingDetail, p model.Payment) {
	params := bookingParams(d)
	params["amount"] = p.Amount.StringFixed(2)
	params["currency"] = p.Currency
	params["tx_ref"] = p.TxRef
	n.notify(ctx, TemplatePaymentConfirmed, d.GuestEmail, params, n.enqueueWait)
}

func (n *Notifier) notify(ctx context.Context, tmpl, recipient string, params map[string]string, wait time.Duration) {
	log := zerolog.Ctx(ctx)
	if log.GetLevel() == zerolog.Disabled {
		log = &n.log
	}
	if recipient == "" {
		log.Warn().Str("template", tmpl).Msg("notification skipped: no recipient")
		return
	}
	subject, body, err := Render(tmpl, params)
	if err != nil {
		log.Error().Err(err).Str("template", tmpl).Msg("render notification")
		return
	}
	msg := queue.EmailMessage{
		Recipient: recipient,
		From:      n.from,
		Template:  tmpl,
		Subject:   subject,
		Body:      body,
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}
	if err := n.enqueue(msg, wait); err != nil {
		log.Error().Err(err).Str("template", tmpl).Str("recipient", recipient).
			Str("booking_id", params["booking_id"]).Str("tx_ref", params["tx_ref"]).
			Msg("notification dropped")
	}
}

// enqueue buffers msg, waiting at most wait for room.
func (n *Notifier) enqueue(msg queue.EmailMessage, wait time.Duration) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}
	select {
	case n.queue <- msg:
		return nil
	default:
	}
	if wait <= 0 {
		return ErrBufferFull
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case n.queue <- msg:
		return nil
	case <-t.C:
		return ErrBufferFull
	}
}

func (n *Notifier) run(ctx context.Context) {
	defer n.wg.Done()
	for msg := range n.queue {
		dctx, cancel := context.WithTimeout(ctx, n.sendTimeout)
		err := n.dispatcher.Publish(dctx, msg)
		cancel()
		if err != nil {
			n.log.Error().Err(err).Str("template", msg.Template).Str("recipient", msg.Recipient).
				Msg("dispatch notification")
			continue
		}
		n.log.Debug().Str("template", msg.Template).Str("recipient", msg.Recipient).Msg("notification dispatched")
	}
}

func bookingParams(d model.BookingDetail) map[string]string {
	name := d.GuestFirstName
	if name == "" {
		name = "guest"
	}
	return map[string]string{
		"guest_name":    name,
		"property_name": d.PropertyName,
		"start_date":    d.StartDate.Format(model.DateLayout),
		"end_date":      d.EndDate.Format(model.DateLayout),
		"total_price":   d.TotalPrice.StringFixed(2),
		"booking_id":    d.ID,
	}
}
