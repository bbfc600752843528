package payment

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const txRefPrefix = "chapa-"

// NewTxRef returns the transaction reference of the given attempt (1-based)
// to pay a booking: chapa-<booking id> for the first attempt and
// chapa-<booking id>-<attempt> afterwards.
func NewTxRef(bookingID string, attempt int) string {
	if attempt <= 1 {
		return txRefPrefix + bookingID
	}
	return txRefPrefix + bookingID + "-" + strconv.Itoa(attempt)
}

// BookingIDFromTxRef recovers the booking id from a reference built by
// NewTxRef.  It reports false for anything else.
func BookingIDFromTxRef(ref string) (string, bool) {
	id, _, ok := ParseTxRef(ref)
	return id, ok
}

// ParseTxRef splits a reference built by NewTxRef into booking id and
// attempt number.
func ParseTxRef(ref string) (bookingID string, attempt int, ok bool) {
	rest, ok := strings.CutPrefix(ref, txRefPrefix)
	if !ok || len(rest) < 36 {
		return "", 0, false
	}
	id, err := uuid.Parse(rest[:36])
	if err != nil {
		return "", 0, false
	}
	attempt = 1
	if suffix := rest[36:]; suffix != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(suffix, "-"))
		if !strings.HasPrefix(suffix, "-") || err != nil || n < 2 {
			return "", 0, false
		}
		attempt = n
	}
	return id.String(), attempt, true
}
