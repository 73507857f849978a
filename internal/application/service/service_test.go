package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"formdesk/internal/application/metrics"
	"formdesk/internal/application/models"
	"formdesk/internal/application/store"
	"formdesk/internal/audit"
	"formdesk/internal/delivery"
	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/requestcontext"
)

type countingNotifier struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (n *countingNotifier) Deliver(ctx context.Context, app *models.Application) ([]delivery.Dispatch, error) {
	n.calls.Add(1)
	if n.delay > 0 {
		time.Sleep(n.delay)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if n.err != nil {
		return nil, n.err
	}
	return []delivery.Dispatch{{ApplicationID: app.ID, Channel: delivery.ChannelEmail, Recipient: app.Email}}, nil
}

type failingStore struct {
	*store.InMemoryStore
	saveErr error
}

func (s *failingStore) Save(ctx context.Context, app *models.Application) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.InMemoryStore.Save(ctx, app)
}

type ServiceSuite struct {
	suite.Suite
	store    *store.InMemoryStore
	notifier *countingNotifier
	audit    *audit.InMemoryStore
	metrics  *metrics.Metrics
	service  *Service
	ctx      context.Context
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.notifier = &countingNotifier{}
	s.audit = audit.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2026, 4, 14, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-1"), s.now)

	svc, err := New(s.store, s.notifier,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditPublisher(audit.NewPublisher(s.audit)),
	)
	s.Require().NoError(err)
	s.service = svc
}

func validApplicant() models.Applicant {
	return models.Applicant{
		FirstName:      "Max",
		LastName:       "Mustermann",
		BirthDate:      "1990-01-15",
		BirthPlace:     "Berlin",
		Nationality:    "deutsch",
		Gender:         "männlich",
		Street:         "Hauptstraße",
		HouseNumber:    "12a",
		PostalCode:     "10115",
		City:           "Berlin",
		Email:          "max@example.de",
		DeliveryMethod: models.DeliveryPostal,
	}
}

func (s *ServiceSuite) submit() *models.Application {
	app, err := s.service.Submit(s.ctx, validApplicant())
	s.Require().NoError(err)
	return app
}

func (s *ServiceSuite) TestSubmit() {
	s.Run("stores a pending application", func() {
		applicant := validApplicant()
		applicant.FirstName = "  Max  "

		app, err := s.service.Submit(s.ctx, applicant)
		s.Require().NoError(err)

		s.Equal(models.StatusPending, app.Status)
		s.Equal("Max", app.FirstName)
		s.Equal(s.now, app.CreatedAt)
		s.Nil(app.PaidAt)

		stored, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(app.ID, stored.ID)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.ApplicationsSubmitted.WithLabelValues("postal")))

		events, err := s.audit.ListBySubject(s.ctx, app.ID.String())
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(audit.ActionApplicationSubmitted, events[0].Action)
	})

	s.Run("reports the first missing field", func() {
		applicant := validApplicant()
		applicant.BirthPlace = ""
		applicant.Email = ""

		_, err := s.service.Submit(s.ctx, applicant)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("Field birthPlace is required", err.Error())
	})

	s.Run("distinct ids", func() {
		a := s.submit()
		b := s.submit()
		s.NotEqual(a.ID, b.ID)
	})
}

func (s *ServiceSuite) TestSubmitMissingFieldPersistsNothing() {
	fields := map[string]func(a *models.Applicant, v string){
		"firstName":      func(a *models.Applicant, v string) { a.FirstName = v },
		"lastName":       func(a *models.Applicant, v string) { a.LastName = v },
		"birthDate":      func(a *models.Applicant, v string) { a.BirthDate = v },
		"birthPlace":     func(a *models.Applicant, v string) { a.BirthPlace = v },
		"nationality":    func(a *models.Applicant, v string) { a.Nationality = v },
		"gender":         func(a *models.Applicant, v string) { a.Gender = v },
		"street":         func(a *models.Applicant, v string) { a.Street = v },
		"houseNumber":    func(a *models.Applicant, v string) { a.HouseNumber = v },
		"postalCode":     func(a *models.Applicant, v string) { a.PostalCode = v },
		"city":           func(a *models.Applicant, v string) { a.City = v },
		"email":          func(a *models.Applicant, v string) { a.Email = v },
		"deliveryMethod": func(a *models.Applicant, v string) { a.DeliveryMethod = models.DeliveryMethod(v) },
	}
	s.Require().Len(fields, 12)

	for field, set := range fields {
		for _, blank := range []string{"", " \t "} {
			s.Run(field+" "+strconv.Quote(blank), func() {
				applicant := validApplicant()
				set(&applicant, blank)

				app, err := s.service.Submit(s.ctx, applicant)
				s.Require().Error(err)
				s.Nil(app)
				s.True(dErrors.HasCode(err, dErrors.CodeValidation))
				s.Equal("Field "+field+" is required", err.Error())

				stored, err := s.store.ListAll(s.ctx)
				s.Require().NoError(err)
				s.Empty(stored)
			})
		}
	}

	s.Equal(0.0, testutil.ToFloat64(s.metrics.ApplicationsSubmitted.WithLabelValues("postal")))
	events, err := s.audit.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *ServiceSuite) TestSubmitStoreFailure() {
	svc, err := New(&failingStore{InMemoryStore: store.NewInMemoryStore(), saveErr: errors.New("disk full")}, s.notifier)
	s.Require().NoError(err)

	_, err = svc.Submit(s.ctx, validApplicant())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestGet() {
	app := s.submit()

	got, err := s.service.Get(s.ctx, app.ID.String())
	s.Require().NoError(err)
	s.Equal(app.ID, got.ID)

	_, err = s.service.Get(s.ctx, uuid.NewString())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Get(s.ctx, "not-a-uuid")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestVerifyPayment() {
	s.Run("card session marks paid and delivers once", func() {
		s.SetupTest()
		app := s.submit()

		paid, err := s.service.VerifyPayment(s.ctx, VerifyRequest{SessionID: "cs_abc", ApplicationID: app.ID.String()})
		s.Require().NoError(err)

		s.Equal(models.StatusPaid, paid.Status)
		s.Equal(models.PaymentCard, paid.PaymentMethod)
		s.Equal("cs_abc", paid.PaymentID)
		s.Equal(models.FlatFeeCents, paid.AmountCents)
		s.Require().NotNil(paid.PaidAt)
		s.Equal(int32(1), s.notifier.calls.Load())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.PaymentsVerified.WithLabelValues("stripe")))
	})

	s.Run("repeat verification is idempotent", func() {
		s.SetupTest()
		app := s.submit()

		first, err := s.service.VerifyPayment(s.ctx, VerifyRequest{WalletOrderID: "PAYPAL_1", ApplicationID: app.ID.String()})
		s.Require().NoError(err)
		second, err := s.service.VerifyPayment(s.ctx, VerifyRequest{WalletOrderID: "PAYPAL_1", ApplicationID: app.ID.String()})
		s.Require().NoError(err)

		s.Equal(first.PaidAt, second.PaidAt)
		s.Equal(models.PaymentWallet, second.PaymentMethod)
		s.Equal(int32(1), s.notifier.calls.Load())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.DuplicateVerifications))
	})

	s.Run("resolves by payment id without application id", func() {
		s.SetupTest()
		app := s.submit()
		_, err := s.service.VerifyPayment(s.ctx, VerifyRequest{SessionID: "cs_linked", ApplicationID: app.ID.String()})
		s.Require().NoError(err)

		again, err := s.service.VerifyPayment(s.ctx, VerifyRequest{SessionID: "cs_linked"})
		s.Require().NoError(err)
		s.Equal(app.ID, again.ID)
		s.Equal(int32(1), s.notifier.calls.Load())
	})

	s.Run("card session takes precedence", func() {
		s.SetupTest()
		app := s.submit()

		paid, err := s.service.VerifyPayment(s.ctx, VerifyRequest{SessionID: "cs_x", WalletOrderID: "PAYPAL_x", ApplicationID: app.ID.String()})
		s.Require().NoError(err)
		s.Equal(models.PaymentCard, paid.PaymentMethod)
		s.Equal("cs_x", paid.PaymentID)
	})

	s.Run("missing token", func() {
		s.SetupTest()
		app := s.submit()

		_, err := s.service.VerifyPayment(s.ctx, VerifyRequest{ApplicationID: app.ID.String()})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Zero(s.notifier.calls.Load())
	})

	s.Run("unknown application", func() {
		s.SetupTest()
		_, err := s.service.VerifyPayment(s.ctx, VerifyRequest{SessionID: "cs_abc", ApplicationID: uuid.NewString()})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		_, err = s.service.VerifyPayment(s.ctx, VerifyRequest{SessionID: "cs_unlinked"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("delivery failure keeps the payment", func() {
		s.SetupTest()
		s.notifier.err = errors.New("smtp down")
		app := s.submit()

		paid, err := s.service.VerifyPayment(s.ctx, VerifyRequest{SessionID: "cs_abc", ApplicationID: app.ID.String()})
		s.Require().NoError(err)
		s.Equal(models.StatusPaid, paid.Status)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.DeliveryFailures))

		stored, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPaid, stored.Status)
	})

	s.Run("delivery survives caller cancellation", func() {
		s.SetupTest()
		app := s.submit()
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()

		_, err := s.service.VerifyPayment(ctx, VerifyRequest{SessionID: "cs_abc", ApplicationID: app.ID.String()})
		s.Require().NoError(err)
		s.Zero(testutil.ToFloat64(s.metrics.DeliveryFailures))
	})
}

func TestVerifyPaymentConcurrentCallsDeliverOnce(t *testing.T) {
	st := store.NewInMemoryStore()
	notifier := &countingNotifier{delay: 10 * time.Millisecond}
	svc, err := New(st, notifier, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	ctx := context.Background()
	app, err := svc.Submit(ctx, validApplicant())
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*models.Application, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.VerifyPayment(ctx, VerifyRequest{SessionID: "cs_race", ApplicationID: app.ID.String()})
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, models.StatusPaid, results[i].Status)
		assert.Equal(t, "cs_race", results[i].PaymentID)
	}
	assert.Equal(t, int32(1), notifier.calls.Load())
}

func (s *ServiceSuite) TestList() {
	first := s.submit()
	s.ctx = requestcontext.WithTime(s.ctx, s.now.Add(time.Minute))
	second := s.submit()
	_, err := s.service.VerifyPayment(s.ctx, VerifyRequest{SessionID: "cs_1", ApplicationID: first.ID.String()})
	s.Require().NoError(err)

	listing, err := s.service.List(s.ctx)
	s.Require().NoError(err)

	s.Require().Len(listing.Applications, 2)
	s.Equal(second.ID, listing.Applications[0].ID)
	s.Equal(models.Stats{Total: 2, Paid: 1, Pending: 1, Revenue: 14.99}, listing.Stats)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, &countingNotifier{})
	assert.Error(t, err)
	_, err = New(store.NewInMemoryStore(), nil)
	assert.Error(t, err)
}
