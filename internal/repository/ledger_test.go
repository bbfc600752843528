package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stay-booking-payments/internal/model"
)

var (
	selectPayment  = regexp.QuoteMeta("SELECT " + paymentColumns + " FROM payments WHERE tx_ref = ?")
	lockBooking    = regexp.QuoteMeta("SELECT id FROM bookings WHERE id = ? FOR UPDATE")
	countCompleted = regexp.QuoteMeta("SELECT COUNT(*) FROM payments WHERE booking_id = ?")
	updatePayment  = regexp.QuoteMeta("UPDATE payments SET status = ? WHERE tx_ref = ? AND status = ?")
	updateBooking  = regexp.QuoteMeta("UPDATE bookings SET status = ? WHERE id = ?")
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "mysql")
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func paymentRow(txRef, bookingID string, status model.PaymentStatus) *sqlmock.Rows {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{"id", "booking_id", "amount", "currency", "tx_ref", "checkout_url", "status", "method", "created_at", "updated_at"}).
		AddRow("pay-1", bookingID, "300.00", "ETB", txRef, "https://checkout.example/x", string(status), model.MethodChapa, now, now)
}

func TestSettlePayment_WinnerConfirmsBooking(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewLedger(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selectPayment).WithArgs("chapa-b1").WillReturnRows(paymentRow("chapa-b1", "b1", model.PaymentPending))
	mock.ExpectQuery(lockBooking).WithArgs("b1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("b1"))
	mock.ExpectQuery(countCompleted).WithArgs("b1", model.PaymentCompleted, "chapa-b1").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(updatePayment).WithArgs(model.PaymentCompleted, "chapa-b1", model.PaymentPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateBooking).WithArgs(model.BookingConfirmed, "b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectPayment).WithArgs("chapa-b1").WillReturnRows(paymentRow("chapa-b1", "b1", model.PaymentCompleted))
	mock.ExpectCommit()

	p, won, err := ledger.SettlePayment(context.Background(), "chapa-b1", model.PaymentCompleted)
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, model.PaymentCompleted, p.Status)
	assert.Equal(t, "300.00", p.Amount.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlePayment_LoserSeesWinnerState(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewLedger(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selectPayment).WithArgs("chapa-b1").WillReturnRows(paymentRow("chapa-b1", "b1", model.PaymentPending))
	mock.ExpectQuery(lockBooking).WithArgs("b1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("b1"))
	mock.ExpectQuery(countCompleted).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(updatePayment).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectPayment).WithArgs("chapa-b1").WillReturnRows(paymentRow("chapa-b1", "b1", model.PaymentCompleted))
	mock.ExpectCommit()

	p, won, err := ledger.SettlePayment(context.Background(), "chapa-b1", model.PaymentCompleted)
	require.NoError(t, err)
	assert.False(t, won)
	assert.Equal(t, model.PaymentCompleted, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlePayment_FailureLeavesBookingAlone(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewLedger(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selectPayment).WillReturnRows(paymentRow("chapa-b1", "b1", model.PaymentPending))
	mock.ExpectQuery(lockBooking).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("b1"))
	mock.ExpectExec(updatePayment).WithArgs(model.PaymentFailed, "chapa-b1", model.PaymentPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectPayment).WillReturnRows(paymentRow("chapa-b1", "b1", model.PaymentFailed))
	mock.ExpectCommit()

	p, won, err := ledger.SettlePayment(context.Background(), "chapa-b1", model.PaymentFailed)
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, model.PaymentFailed, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlePayment_SecondCompletionConflicts(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewLedger(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selectPayment).WillReturnRows(paymentRow("chapa-b1-2", "b1", model.PaymentPending))
	mock.ExpectQuery(lockBooking).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("b1"))
	mock.ExpectQuery(countCompleted).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectRollback()

	p, won, err := ledger.SettlePayment(context.Background(), "chapa-b1-2", model.PaymentCompleted)
	assert.ErrorIs(t, err, ErrConflict)
	assert.False(t, won)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlePayment_UniqueIndexViolationIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewLedger(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selectPayment).WillReturnRows(paymentRow("chapa-b1", "b1", model.PaymentPending))
	mock.ExpectQuery(lockBooking).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("b1"))
	mock.ExpectQuery(countCompleted).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(updatePayment).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	_, _, err := ledger.SettlePayment(context.Background(), "chapa-b1", model.PaymentCompleted)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlePayment_UnknownRef(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewLedger(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selectPayment).WithArgs("nope").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, _, err := ledger.SettlePayment(context.Background(), "nope", model.PaymentFailed)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlePayment_RejectsNonTerminal(t *testing.T) {
	db, mock := newMockDB(t)

	_, _, err := NewLedger(db).SettlePayment(context.Background(), "chapa-b1", model.PaymentPending)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_CreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'chapa-b1' for key 'tx_ref'"})

	p := &model.Payment{BookingID: "b1", TxRef: "chapa-b1", Currency: "ETB"}
	err := repo.Create(context.Background(), p)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.Equal(t, model.MethodChapa, p.Method)
}

func TestPaymentRepo_CreatePassesOtherErrors(t *testing.T) {
	db, mock := newMockDB(t)

	boom := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).WillReturnError(boom)

	err := NewPaymentRepo(db).Create(context.Background(), &model.Payment{TxRef: "chapa-b1"})
	assert.ErrorIs(t, err, boom)
}

func TestPaymentRepo_GetByTxRefNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(selectPayment).WithArgs("missing").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewPaymentRepo(db).GetByTxRef(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachCheckout_FillsMissingURL(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewLedger(db)
	setURL := regexp.QuoteMeta("UPDATE payments SET checkout_url = ? WHERE tx_ref = ? AND status = ? AND checkout_url IS NULL")

	mock.ExpectExec(setURL).WithArgs("https://checkout.example/x", "chapa-b1", model.PaymentPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectPayment).WithArgs("chapa-b1").WillReturnRows(paymentRow("chapa-b1", "b1", model.PaymentPending))

	p, err := ledger.AttachCheckout(context.Background(), "chapa-b1", "https://checkout.example/x")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/x", p.CheckoutURL.String)
	assert.Equal(t, "300.00", p.Amount.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachCheckout_KeepsExistingRow(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewLedger(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET checkout_url = ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectPayment).WithArgs("chapa-b1").WillReturnRows(paymentRow("chapa-b1", "b1", model.PaymentCompleted))

	p, err := ledger.AttachCheckout(context.Background(), "chapa-b1", "https://checkout.example/other")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, p.Status)
	assert.Equal(t, "https://checkout.example/x", p.CheckoutURL.String)
	assert.NoError(t, mock.ExpectationsWereMet())
}
