package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	mailjet "github.com/mailjet/mailjet-apiv3-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formdesk/internal/application/models"
	"formdesk/internal/document"
	"formdesk/pkg/testutil"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type failingSender struct{ err error }

func (f failingSender) Send(context.Context, *models.Application, []document.Document) (string, error) {
	return "", f.err
}

func paid(t *testing.T, method models.DeliveryMethod) *models.Application {
	t.Helper()
	app := models.NewApplication(uuid.New(), models.Applicant{
		FirstName:      "Lena",
		LastName:       "Weber",
		BirthDate:      "1992-07-08",
		BirthPlace:     "Hamburg",
		Nationality:    "deutsch",
		Gender:         "weiblich",
		Street:         "Elbchaussee",
		HouseNumber:    "8",
		PostalCode:     "22763",
		City:           "Hamburg",
		Email:          "lena@example.de",
		DeliveryMethod: method,
	}, time.Now().UTC())
	require.NoError(t, app.ApplyPayment(models.Payment{Method: models.PaymentCard, ID: "cs_1", AmountCents: models.FlatFeeCents}, time.Now().UTC()))
	return app
}

func TestNotifierDeliver(t *testing.T) {
	ctx := context.Background()

	testutil.Given(t, "an email delivery", func(t *testing.T) {
		log := NewInMemoryLog()
		n := NewNotifier(NewSimulatedSender(0, quiet), NewSimulatedPostal(0, quiet), log, WithLogger(quiet))
		app := paid(t, models.DeliveryEmail)

		testutil.When(t, "delivered", func(t *testing.T) {
			dispatches, err := n.Deliver(ctx, app)
			require.NoError(t, err)

			testutil.Then(t, "only the email channel fires", func(t *testing.T) {
				require.Len(t, dispatches, 1)
				assert.Equal(t, ChannelEmail, dispatches[0].Channel)
				assert.Equal(t, "lena@example.de", dispatches[0].Recipient)

				logged, err := log.ListByApplication(ctx, app.ID)
				require.NoError(t, err)
				assert.Len(t, logged, 1)
			})
		})
	})

	testutil.Given(t, "a postal delivery", func(t *testing.T) {
		log := NewInMemoryLog()
		n := NewNotifier(NewSimulatedSender(10*time.Millisecond, quiet), NewSimulatedPostal(20*time.Millisecond, quiet), log, WithLogger(quiet))
		app := paid(t, models.DeliveryPostal)

		testutil.When(t, "delivered", func(t *testing.T) {
			dispatches, err := n.Deliver(ctx, app)
			require.NoError(t, err)

			channels := map[Channel]Dispatch{}
			for _, d := range dispatches {
				channels[d.Channel] = d
			}

			testutil.Then(t, "both channels fire", func(t *testing.T) {
				require.Len(t, dispatches, 2)
				assert.Contains(t, channels, ChannelEmail)
				assert.Contains(t, channels, ChannelPostal)
			})
			testutil.And(t, "the letter carries a tracking id", func(t *testing.T) {
				require.Contains(t, channels, ChannelPostal)
				assert.Regexp(t, `^EB[0-9A-F]{10}$`, channels[ChannelPostal].TrackingID)
				assert.Equal(t, "Elbchaussee 8, 22763 Hamburg", channels[ChannelPostal].Recipient)
			})
		})
	})

	testutil.Given(t, "a failing email provider", func(t *testing.T) {
		log := NewInMemoryLog()
		n := NewNotifier(failingSender{errors.New("smtp down")}, NewSimulatedPostal(0, quiet), log, WithLogger(quiet))
		app := paid(t, models.DeliveryPostal)

		testutil.Then(t, "postal still fires and the email error is returned", func(t *testing.T) {
			dispatches, err := n.Deliver(ctx, app)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "email delivery")
			require.Len(t, dispatches, 1)
			assert.Equal(t, ChannelPostal, dispatches[0].Channel)
		})
	})
}

func TestSimulatedSenderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulatedSender(time.Hour, quiet).Send(ctx, paid(t, models.DeliveryEmail), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMailjetSenderBuildsMessage(t *testing.T) {
	var captured *mailjet.MessagesV31
	s := &MailjetSender{
		sender: "noreply@formdesk.local",
		send: func(m *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
			captured = m
			return &mailjet.ResultsV31{ResultsV31: []mailjet.ResultV31{{
				To: []mailjet.GeneratedMessageV31{{Email: "lena@example.de", MessageUUID: "uuid-1"}},
			}}}, nil
		},
	}
	app := paid(t, models.DeliveryEmail)
	docs := []document.Document{document.RenderApplication(app), document.RenderInvoice(app)}

	id, err := s.Send(context.Background(), app, docs)
	require.NoError(t, err)
	assert.Equal(t, "uuid-1", id)

	require.NotNil(t, captured)
	require.Len(t, captured.Info, 1)
	msg := captured.Info[0]
	assert.Equal(t, "noreply@formdesk.local", msg.From.Email)
	assert.Equal(t, "lena@example.de", (*msg.To)[0].Email)
	assert.Equal(t, "Ihr Antrag "+document.InvoiceNumber(app), msg.Subject)
	require.NotNil(t, msg.Attachments)
	assert.Len(t, *msg.Attachments, 2)
}

func TestMailjetSenderWrapsErrors(t *testing.T) {
	s := &MailjetSender{send: func(*mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
		return nil, errors.New("401 unauthorized")
	}}
	_, err := s.Send(context.Background(), paid(t, models.DeliveryEmail), nil)
	assert.ErrorContains(t, err, "could not send mail")
}

func TestPostgresLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	log := NewPostgresLog(db)
	ctx := context.Background()
	appID := uuid.New()
	sentAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO deliveries")).
		WithArgs(appID, "postal", "Elbchaussee 8", "EB0123456789", sentAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, log.Record(ctx, Dispatch{
		ApplicationID: appID,
		Channel:       ChannelPostal,
		Recipient:     "Elbchaussee 8",
		TrackingID:    "EB0123456789",
		SentAt:        sentAt,
	}))

	mock.ExpectQuery(regexp.QuoteMeta("FROM deliveries")).
		WithArgs(appID).
		WillReturnRows(sqlmock.NewRows([]string{"application_id", "channel", "recipient", "tracking_id", "sent_at"}).
			AddRow(appID.String(), "email", "lena@example.de", "", sentAt))
	got, err := log.ListByApplication(ctx, appID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ChannelEmail, got[0].Channel)

	assert.NoError(t, mock.ExpectationsWereMet())
}
