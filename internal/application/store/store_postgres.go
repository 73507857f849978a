package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"formdesk/internal/application/models"
	"formdesk/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

const applicationColumns = `"id", "firstName", "lastName", "birthDate", "birthPlace", "nationality", "gender",
	"street", "houseNumber", "postalCode", "city", "email", "taxId", "deliveryMethod",
	"status", "createdAt", "updatedAt", "paidAt", "paymentMethod", "paymentId", "amount"`

// PostgresStore persists applications in PostgreSQL. MarkPaid is a single
// conditional UPDATE so concurrent verifications cannot both succeed.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, app *models.Application) error {
	query := `INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	_, err := s.db.ExecContext(ctx, query,
		app.ID,
		app.FirstName,
		app.LastName,
		app.BirthDate,
		app.BirthPlace,
		app.Nationality,
		app.Gender,
		app.Street,
		app.HouseNumber,
		app.PostalCode,
		app.City,
		app.Email,
		app.TaxID,
		string(app.DeliveryMethod),
		string(app.Status),
		app.CreatedAt,
		app.UpdatedAt,
		nullTime(app.PaidAt),
		nullString(string(app.PaymentMethod)),
		nullString(app.PaymentID),
		nullAmount(app.AmountCents),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE "id" = $1`
	app, err := scanApplication(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application by id: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) FindByPaymentID(ctx context.Context, paymentID string) (*models.Application, error) {
	if paymentID == "" {
		return nil, sentinel.ErrNotFound
	}
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE "paymentId" = $1 LIMIT 1`
	app, err := scanApplication(s.db.QueryRowContext(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application by payment id: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications ORDER BY "createdAt" DESC, "id"`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	apps := make([]*models.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return apps, nil
}

// MarkPaid flips a pending row to paid. Zero affected rows means the record is
// either missing or no longer pending; a follow-up lookup tells which.
func (s *PostgresStore) MarkPaid(ctx context.Context, id uuid.UUID, payment models.Payment, now time.Time) (*models.Application, error) {
	if err := payment.Validate(); err != nil {
		return nil, err
	}

	query := `UPDATE applications SET
			"status" = 'paid',
			"paidAt" = GREATEST($2, "createdAt"),
			"updatedAt" = GREATEST($2, "createdAt"),
			"paymentMethod" = $3,
			"paymentId" = $4,
			"amount" = $5
		WHERE "id" = $1 AND "status" = 'pending'
		RETURNING ` + applicationColumns

	app, err := scanApplication(s.db.QueryRowContext(ctx, query,
		id, now, string(payment.Method), payment.ID, models.CentsToEuros(payment.AmountCents)))
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mark application paid: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE "id" = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check application exists: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return nil, fmt.Errorf("application %s is not pending: %w", id, sentinel.ErrInvalidState)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app            models.Application
		deliveryMethod string
		status         string
		paidAt         sql.NullTime
		paymentMethod  sql.NullString
		paymentID      sql.NullString
		amount         sql.NullFloat64
	)
	err := row.Scan(
		&app.ID,
		&app.FirstName,
		&app.LastName,
		&app.BirthDate,
		&app.BirthPlace,
		&app.Nationality,
		&app.Gender,
		&app.Street,
		&app.HouseNumber,
		&app.PostalCode,
		&app.City,
		&app.Email,
		&app.TaxID,
		&deliveryMethod,
		&status,
		&app.CreatedAt,
		&app.UpdatedAt,
		&paidAt,
		&paymentMethod,
		&paymentID,
		&amount,
	)
	if err != nil {
		return nil, err
	}
	app.DeliveryMethod = models.DeliveryMethod(deliveryMethod)
	app.Status = models.Status(status)
	if paidAt.Valid {
		t := paidAt.Time
		app.PaidAt = &t
	}
	app.PaymentMethod = models.PaymentMethod(paymentMethod.String)
	app.PaymentID = paymentID.String
	if amount.Valid {
		app.AmountCents = models.EurosToCents(amount.Float64)
	}
	return &app, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullAmount stores cents as the decimal euro "amount" column.
func nullAmount(cents int64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: models.CentsToEuros(cents), Valid: cents != 0}
}
