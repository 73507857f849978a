// Package models holds the application record, its status machine and the
// intake validation rules.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"

	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/platform/sentinel"
)

// FlatFeeCents is the processing fee charged per application (14.99 EUR).
const FlatFeeCents int64 = 1499

// BirthDateLayout is the wire format of Applicant.BirthDate.
const BirthDateLayout = "2006-01-02"

// Status is the lifecycle position of an application. It only moves forward:
// pending < paid < processed < sent.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusProcessed Status = "processed"
	StatusSent      Status = "sent"
)

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusPaid:      1,
	StatusProcessed: 2,
	StatusSent:      3,
}

func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransitionTo reports whether next is strictly ahead of s.
func (s Status) CanTransitionTo(next Status) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	return ok && to > from
}

// IsPaid is true for every status at or past paid.
func (s Status) IsPaid() bool {
	return s.IsValid() && s != StatusPending
}

// DeliveryMethod is chosen at intake and never changes.
type DeliveryMethod string

const (
	DeliveryEmail  DeliveryMethod = "email"
	DeliveryPostal DeliveryMethod = "postal"
)

func (d DeliveryMethod) IsValid() bool {
	return d == DeliveryEmail || d == DeliveryPostal
}

// Label is the German display name used on documents.
func (d DeliveryMethod) Label() string {
	if d == DeliveryPostal {
		return "Briefversand"
	}
	return "E-Mail"
}

// PaymentMethod identifies the provider that settled the fee. The wire values
// are the provider names the frontend already sends.
type PaymentMethod string

const (
	PaymentCard   PaymentMethod = "stripe"
	PaymentWallet PaymentMethod = "paypal"
)

func (p PaymentMethod) IsValid() bool {
	return p == PaymentCard || p == PaymentWallet
}

// Label is the German display name used on invoices.
func (p PaymentMethod) Label() string {
	switch p {
	case PaymentCard:
		return "Kreditkarte"
	case PaymentWallet:
		return "PayPal"
	default:
		return string(p)
	}
}

// Applicant is the intake form payload.
type Applicant struct {
	FirstName      string         `json:"firstName"`
	LastName       string         `json:"lastName"`
	BirthDate      string         `json:"birthDate"`
	BirthPlace     string         `json:"birthPlace"`
	Nationality    string         `json:"nationality"`
	Gender         string         `json:"gender"`
	Street         string         `json:"street"`
	HouseNumber    string         `json:"houseNumber"`
	PostalCode     string         `json:"postalCode"`
	City           string         `json:"city"`
	Email          string         `json:"email"`
	TaxID          string         `json:"taxId,omitempty"`
	DeliveryMethod DeliveryMethod `json:"deliveryMethod"`
}

// Normalize trims surrounding whitespace from every field.
func (a *Applicant) Normalize() {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.BirthDate = strings.TrimSpace(a.BirthDate)
	a.BirthPlace = strings.TrimSpace(a.BirthPlace)
	a.Nationality = strings.TrimSpace(a.Nationality)
	a.Gender = strings.TrimSpace(a.Gender)
	a.Street = strings.TrimSpace(a.Street)
	a.HouseNumber = strings.TrimSpace(a.HouseNumber)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.City = strings.TrimSpace(a.City)
	a.Email = strings.TrimSpace(a.Email)
	a.TaxID = strings.TrimSpace(a.TaxID)
	a.DeliveryMethod = DeliveryMethod(strings.TrimSpace(string(a.DeliveryMethod)))
}

// Validate reports the first missing required field in form order, then
// format problems. Call Normalize first.
func (a *Applicant) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"birthDate", a.BirthDate},
		{"birthPlace", a.BirthPlace},
		{"nationality", a.Nationality},
		{"gender", a.Gender},
		{"street", a.Street},
		{"houseNumber", a.HouseNumber},
		{"postalCode", a.PostalCode},
		{"city", a.City},
		{"email", a.Email},
		{"deliveryMethod", string(a.DeliveryMethod)},
	}
	for _, f := range required {
		if f.value == "" {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("Field %s is required", f.name))
		}
	}

	if _, err := time.Parse(BirthDateLayout, a.BirthDate); err != nil {
		return dErrors.New(dErrors.CodeValidation, "Field birthDate must be a date in YYYY-MM-DD format")
	}
	if !govalidator.IsEmail(a.Email) {
		return dErrors.New(dErrors.CodeValidation, "Field email must be a valid email address")
	}
	if !a.DeliveryMethod.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "Field deliveryMethod must be email or postal")
	}
	return nil
}

// Payment is the settlement recorded when an application is paid.
type Payment struct {
	Method      PaymentMethod
	ID          string
	AmountCents int64
}

// Validate rejects a payment missing its provider, token or amount.
func (p Payment) Validate() error {
	if !p.Method.IsValid() || p.ID == "" || p.AmountCents <= 0 {
		return fmt.Errorf("incomplete payment: %w", sentinel.ErrInvalidState)
	}
	return nil
}

// Application is a stored submission.
//
// Invariants:
//   - ID is assigned once and never changes.
//   - Status only moves forward.
//   - PaidAt, PaymentMethod, PaymentID and AmountCents are set iff Status is not pending.
//   - CreatedAt <= UpdatedAt, and PaidAt >= CreatedAt when set.
type Application struct {
	ID uuid.UUID `json:"id"`
	Applicant

	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`

	PaymentMethod PaymentMethod `json:"paymentMethod,omitempty"`
	PaymentID     string        `json:"paymentId,omitempty"`
	AmountCents   int64         `json:"-"`
}

// applicationRecord has Application's fields without its JSON methods.
type applicationRecord Application

// MarshalJSON writes the stored record shape, with the fee as a decimal
// "amount" in euros.
func (a Application) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		applicationRecord
		Amount float64 `json:"amount,omitempty"`
	}{applicationRecord(a), CentsToEuros(a.AmountCents)})
}

// UnmarshalJSON reads records written by MarshalJSON.
func (a *Application) UnmarshalJSON(data []byte) error {
	aux := struct {
		*applicationRecord
		Amount *float64 `json:"amount"`
	}{applicationRecord: (*applicationRecord)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.AmountCents = 0
	if aux.Amount != nil {
		a.AmountCents = EurosToCents(*aux.Amount)
	}
	return nil
}

// NewApplication creates a pending application from a validated applicant.
func NewApplication(id uuid.UUID, applicant Applicant, now time.Time) *Application {
	return &Application{
		ID:        id,
		Applicant: applicant,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanApplyPayment returns sentinel.ErrInvalidState unless the application can
// still move to paid.
func (a *Application) CanApplyPayment() error {
	if !a.Status.CanTransitionTo(StatusPaid) {
		return fmt.Errorf("application %s is %s: %w", a.ID, a.Status, sentinel.ErrInvalidState)
	}
	return nil
}

// ApplyPayment moves a pending application to paid. now is clamped to CreatedAt
// so timestamps stay ordered under clock skew.
func (a *Application) ApplyPayment(p Payment, now time.Time) error {
	if err := a.CanApplyPayment(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if now.Before(a.CreatedAt) {
		now = a.CreatedAt
	}
	a.Status = StatusPaid
	a.PaidAt = &now
	a.UpdatedAt = now
	a.PaymentMethod = p.Method
	a.PaymentID = p.ID
	a.AmountCents = p.AmountCents
	return nil
}

// Clone returns a deep copy safe to hand out of a store.
func (a *Application) Clone() *Application {
	c := *a
	if a.PaidAt != nil {
		t := *a.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// Stats summarises the listing for the admin dashboard.
type Stats struct {
	Total   int     `json:"total"`
	Paid    int     `json:"paid"`
	Pending int     `json:"pending"`
	Revenue float64 `json:"revenue"`
}

// ComputeStats counts every non-pending record as paid; revenue is paid times
// the flat fee.
func ComputeStats(apps []*Application) Stats {
	var s Stats
	for _, a := range apps {
		s.Total++
		if a.Status.IsPaid() {
			s.Paid++
		} else {
			s.Pending++
		}
	}
	s.Revenue = CentsToEuros(int64(s.Paid) * FlatFeeCents)
	return s
}

// CentsToEuros converts integer cents for display and JSON.
func CentsToEuros(cents int64) float64 {
	return float64(cents) / 100
}

// EurosToCents rounds a decimal euro amount to whole cents.
func EurosToCents(euros float64) int64 {
	return int64(math.Round(euros * 100))
}

// ParseID parses an application id.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid application id %q: %w", raw, err)
	}
	return id, nil
}
