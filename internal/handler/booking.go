package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/stay-booking-payments/internal/booking"
	"github.com/iliyamo/stay-booking-payments/internal/middleware"
	"github.com/iliyamo/stay-booking-payments/internal/model"
	"github.com/iliyamo/stay-booking-payments/internal/repository"
)

// BookingService is implemented by *booking.Service.
type BookingService interface {
	ResolveActor(ctx context.Context, actor model.Actor) (model.Actor, error)
	CreateBooking(ctx context.Context, actor model.Actor, propertyID string, start, end time.Time) (model.Booking, error)
	GetBooking(ctx context.Context, actor model.Actor, id string) (model.BookingDetail, error)
}

type BookingHandler struct {
	Bookings BookingService
}

func NewBookingHandler(svc BookingService) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: svc}
}

type bookingReq struct {
	PropertyID string `json:"property_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

type bookingView struct {
	ID         string `json:"id"`
	PropertyID string `json:"property_id"`
	Property   string `json:"property,omitempty"`
	UserID     string `json:"user_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	TotalPrice string `json:"total_price"`
	Status     string `json:"status"`
}

func toBookingView(b model.Booking, property string) bookingView {
	return bookingView{
		ID:         b.ID,
		PropertyID: b.PropertyID,
		Property:   property,
		UserID:     b.UserID,
		StartDate:  b.StartDate.Format(model.DateLayout),
		EndDate:    b.EndDate.Format(model.DateLayout),
		TotalPrice: b.TotalPrice.StringFixed(2),
		Status:     string(b.Status),
	}
}

// Create handles POST /v1/bookings.  Anonymous callers book as the guest
// fallback user.
func (h *BookingHandler) Create(c echo.Context) error {
	var req bookingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.PropertyID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "property_id is required"})
	}
	start, err1 := time.Parse(model.DateLayout, strings.TrimSpace(req.StartDate))
	end, err2 := time.Parse(model.DateLayout, strings.TrimSpace(req.EndDate))
	if err1 != nil || err2 != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "dates must be YYYY-MM-DD"})
	}

	ctx := c.Request().Context()
	b, err := h.Bookings.CreateBooking(ctx, middleware.ActorFrom(c), strings.TrimSpace(req.PropertyID), start, end)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, toBookingView(b, ""))
	case errors.Is(err, booking.ErrInvalidRange):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrPropertyNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "property not found"})
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("create booking")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create booking failed"})
	}
}

// Get handles GET /v1/bookings/:id (owner or admin).
func (h *BookingHandler) Get(c echo.Context) error {
	d, err := h.Bookings.GetBooking(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, toBookingView(d.Booking, d.PropertyName))
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load booking failed"})
	}
}
