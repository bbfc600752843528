package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/stay-booking-payments/internal/middleware"
	"github.com/iliyamo/stay-booking-payments/internal/model"
	"github.com/iliyamo/stay-booking-payments/internal/payment"
	"github.com/iliyamo/stay-booking-payments/internal/repository"
)

// PaymentFlow is implemented by *payment.Engine.
type PaymentFlow interface {
	Initiate(ctx context.Context, actor model.Actor, bookingID string) (payment.Checkout, error)
	Verify(ctx context.Context, txRef string) (payment.Result, error)
	Recheck(ctx context.Context, txRef string) (payment.Result, error)
}

// ActorResolver turns an anonymous guest into the guest fallback user.
type ActorResolver interface {
	ResolveActor(ctx context.Context, actor model.Actor) (model.Actor, error)
}

type PaymentHandler struct {
	Payments PaymentFlow
	Actors   ActorResolver
}

func NewPaymentHandler(flow PaymentFlow, actors ActorResolver) *PaymentHandler {
	if flow == nil || actors == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: flow, Actors: actors}
}

type initiateReq struct {
	BookingID string `json:"booking_id"`
}

type paymentView struct {
	ID        string `json:"id"`
	TxRef     string `json:"transaction_ref"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Method    string `json:"method"`
	BookingID string `json:"booking_id"`
}

type bookingSummary struct {
	Property  string `json:"property"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
}

func toPaymentView(p model.Payment) paymentView {
	return paymentView{
		ID:        p.ID,
		TxRef:     p.TxRef,
		Amount:    p.Amount.StringFixed(2),
		Currency:  p.Currency,
		Status:    string(p.Status),
		Method:    p.Method,
		BookingID: p.BookingID,
	}
}

func toBookingSummary(d model.BookingDetail, p model.Payment) bookingSummary {
	return bookingSummary{
		Property:  d.PropertyName,
		StartDate: d.StartDate.Format(model.DateLayout),
		EndDate:   d.EndDate.Format(model.DateLayout),
		Amount:    p.Amount.StringFixed(2),
		Status:    string(d.Status),
	}
}

// Initiate handles POST /v1/payments/initiate.
func (h *PaymentHandler) Initiate(c echo.Context) error {
	var req initiateReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.BookingID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking_id is required"})
	}
	ctx := c.Request().Context()
	actor, err := h.Actors.ResolveActor(ctx, middleware.ActorFrom(c))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("resolve actor")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	co, err := h.Payments.Initiate(ctx, actor, strings.TrimSpace(req.BookingID))
	var initErr *payment.InitiationFailedError
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"checkout_url": co.CheckoutURL, "transaction_ref": co.TxRef})
	case errors.As(err, &initErr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment initiation failed", "details": initErr.Details})
	case errors.Is(err, payment.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, payment.ErrAlreadyPaid):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking already paid"})
	case errors.Is(err, payment.ErrPaymentInProgress):
		return c.JSON(http.StatusConflict, echo.Map{"error": "payment already in progress", "transaction_ref": co.TxRef})
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("initiate payment")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// Verify handles GET /v1/payments/verify.  The gateway and browsers use
// different names for the reference; tx_ref wins over trx_ref, which wins
// over transaction_id.
func (h *PaymentHandler) Verify(c echo.Context) error {
	ref := txRefFrom(c, "tx_ref", "trx_ref", "transaction_id")
	if ref == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "transaction reference is required"})
	}
	ctx := c.Request().Context()
	res, err := h.Payments.Verify(ctx, ref)
	switch {
	case err == nil:
		return settledResponse(c, res)
	case errors.Is(err, payment.ErrUnknownTransaction):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown transaction"})
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "payment gateway unavailable, try again shortly"})
	case errors.Is(err, payment.ErrAlreadyPaid):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking already paid"})
	default:
		zerolog.Ctx(ctx).Error().Err(err).Str("tx_ref", ref).Msg("verify payment")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// Status handles GET /v1/payments/status, the page the payer returns to.
func (h *PaymentHandler) Status(c echo.Context) error {
	ref := txRefFrom(c, "tx_ref")
	if ref == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tx_ref is required"})
	}
	ctx := c.Request().Context()
	res, err := h.Payments.Recheck(ctx, ref)
	switch {
	case err == nil:
		return settledResponse(c, res)
	case errors.Is(err, payment.ErrUnknownTransaction):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown transaction"})
	default:
		zerolog.Ctx(ctx).Error().Err(err).Str("tx_ref", ref).Msg("payment status")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func settledResponse(c echo.Context, res payment.Result) error {
	switch res.Payment.Status {
	case model.PaymentCompleted:
		return c.JSON(http.StatusOK, echo.Map{
			"message": "payment completed, booking confirmed",
			"booking": toBookingSummary(res.Booking, res.Payment),
			"payment": toPaymentView(res.Payment),
		})
	case model.PaymentFailed:
		return c.JSON(http.StatusPaymentRequired, echo.Map{
			"message": "payment failed",
			"payment": toPaymentView(res.Payment),
		})
	default:
		return c.JSON(http.StatusAccepted, echo.Map{
			"message": "payment is being processed, check back shortly",
			"payment": toPaymentView(res.Payment),
		})
	}
}

func txRefFrom(c echo.Context, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(c.QueryParam(n)); v != "" {
			return v
		}
	}
	return ""
}
