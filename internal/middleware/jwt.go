package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/stay-booking-payments/internal/model"
	"github.com/iliyamo/stay-booking-payments/internal/utils"
)

// JWTAuth requires a valid Bearer access token and stores the caller as a
// model.Actor (see ActorFrom).  The token's subject becomes the user id and
// its role claim the role.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			actor, err := parseActor(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			setActor(c, actor)
			return next(c)
		}
	}
}

// OptionalJWT lets anonymous callers through as guests.  A token that is
// present but invalid is still rejected: silently downgrading it to a guest
// would attach the caller's bookings to the shared fallback user.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				setActor(c, model.GuestActor())
				return next(c)
			}
			actor, err := parseActor(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			setActor(c, actor)
			return next(c)
		}
	}
}

func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}

func parseActor(secret, raw string) (model.Actor, error) {
	claims, err := utils.ParseAccessToken(secret, raw)
	if err != nil {
		return model.Actor{}, err
	}
	return model.Actor{UserID: claims.Subject, Role: claims.Role}, nil
}
