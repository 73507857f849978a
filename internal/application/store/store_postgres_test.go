package store

import (
	"context"
	"database/sql"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formdesk/internal/application/models"
	"formdesk/pkg/platform/sentinel"
)

var columnNames = []string{
	"id", "firstName", "lastName", "birthDate", "birthPlace", "nationality", "gender",
	"street", "houseNumber", "postalCode", "city", "email", "taxId", "deliveryMethod",
	"status", "createdAt", "updatedAt", "paidAt", "paymentMethod", "paymentId", "amount",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgres(db), mock
}

func rowFor(app *models.Application) *sqlmock.Rows {
	var paidAt any
	if app.PaidAt != nil {
		paidAt = *app.PaidAt
	}
	var method, paymentID, amount any
	if app.PaymentID != "" {
		// lib/pq hands NUMERIC values over as text.
		numeric := []byte(strconv.FormatFloat(models.CentsToEuros(app.AmountCents), 'f', 2, 64))
		method, paymentID, amount = string(app.PaymentMethod), app.PaymentID, numeric
	}
	return sqlmock.NewRows(columnNames).AddRow(
		app.ID.String(), app.FirstName, app.LastName, app.BirthDate, app.BirthPlace, app.Nationality, app.Gender,
		app.Street, app.HouseNumber, app.PostalCode, app.City, app.Email, app.TaxID, string(app.DeliveryMethod),
		string(app.Status), app.CreatedAt, app.UpdatedAt, paidAt, method, paymentID, amount,
	)
}

func TestPostgresSave(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts all columns", func(t *testing.T) {
		store, mock := newMockStore(t)
		app := newPending(time.Now().UTC())
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO applications`)).
			WithArgs(app.ID, app.FirstName, app.LastName, app.BirthDate, app.BirthPlace, app.Nationality, app.Gender,
				app.Street, app.HouseNumber, app.PostalCode, app.City, app.Email, app.TaxID, "email",
				"pending", app.CreatedAt, app.UpdatedAt, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Save(ctx, app))
	})

	t.Run("unique violation maps to ErrAlreadyUsed", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO applications`)).
			WillReturnError(&pq.Error{Code: uniqueViolation})

		err := store.Save(ctx, newPending(time.Now().UTC()))
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})
}

func TestPostgresFindByID(t *testing.T) {
	ctx := context.Background()

	t.Run("scans nullable payment columns", func(t *testing.T) {
		store, mock := newMockStore(t)
		app := newPending(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
		require.NoError(t, app.ApplyPayment(models.Payment{Method: models.PaymentWallet, ID: "PAYPAL_AB12", AmountCents: models.FlatFeeCents}, app.CreatedAt.Add(time.Minute)))

		mock.ExpectQuery(regexp.QuoteMeta(`FROM applications WHERE "id" = $1`)).
			WithArgs(app.ID).
			WillReturnRows(rowFor(app))

		found, err := store.FindByID(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, app.ID, found.ID)
		assert.Equal(t, models.StatusPaid, found.Status)
		assert.Equal(t, models.PaymentWallet, found.PaymentMethod)
		assert.Equal(t, "PAYPAL_AB12", found.PaymentID)
		assert.Equal(t, models.FlatFeeCents, found.AmountCents)
		require.NotNil(t, found.PaidAt)
	})

	t.Run("no rows is ErrNotFound", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM applications WHERE "id" = $1`)).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		_, err := store.FindByID(ctx, id)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestPostgresListAll(t *testing.T) {
	store, mock := newMockStore(t)
	a := newPending(time.Now().UTC())
	rows := rowFor(a)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY "createdAt" DESC`)).WillReturnRows(rows)

	apps, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Nil(t, apps[0].PaidAt)
	assert.Empty(t, apps[0].PaymentID)
}

func TestPostgresMarkPaid(t *testing.T) {
	ctx := context.Background()
	payment := models.Payment{Method: models.PaymentCard, ID: "cs_pg", AmountCents: models.FlatFeeCents}
	update := regexp.QuoteMeta(`WHERE "id" = $1 AND "status" = 'pending'`)
	exists := regexp.QuoteMeta(`SELECT EXISTS`)

	t.Run("conditional update returns the paid row", func(t *testing.T) {
		store, mock := newMockStore(t)
		app := newPending(time.Now().UTC())
		now := app.CreatedAt.Add(time.Minute)
		paid := app.Clone()
		require.NoError(t, paid.ApplyPayment(payment, now))

		mock.ExpectQuery(update).
			WithArgs(app.ID, now, "stripe", "cs_pg", 14.99).
			WillReturnRows(rowFor(paid))

		got, err := store.MarkPaid(ctx, app.ID, payment, now)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaid, got.Status)
	})

	t.Run("no row and existing record is ErrInvalidState", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := uuid.New()
		mock.ExpectQuery(update).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(exists).WithArgs(id).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := store.MarkPaid(ctx, id, payment, time.Now())
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("no row and no record is ErrNotFound", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := uuid.New()
		mock.ExpectQuery(update).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(exists).WithArgs(id).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := store.MarkPaid(ctx, id, payment, time.Now())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("incomplete payment never reaches the database", func(t *testing.T) {
		store, _ := newMockStore(t)
		_, err := store.MarkPaid(ctx, uuid.New(), models.Payment{Method: models.PaymentCard}, time.Now())
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})
}
