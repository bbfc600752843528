package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/stay-booking-payments/internal/model"
)

const actorKey = "actor"

// ActorFrom returns the actor stored by JWTAuth or OptionalJWT.  Requests
// that passed through neither are treated as guests.
func ActorFrom(c echo.Context) model.Actor {
	if a, ok := c.Get(actorKey).(model.Actor); ok {
		return a
	}
	return model.GuestActor()
}

func setActor(c echo.Context, a model.Actor) {
	c.Set(actorKey, a)
	c.Set("user_id", a.UserID)
	c.Set("role", a.Role)
}
