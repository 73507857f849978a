package document

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formdesk/internal/application/models"
	"formdesk/internal/application/store"
	"formdesk/internal/audit"
	dErrors "formdesk/pkg/domain-errors"
)

func paidApplication(t *testing.T, method models.PaymentMethod) *models.Application {
	t.Helper()
	id := uuid.MustParse("3f2a9c1e-5b7d-4e8f-9a0b-1c2d3e4f5a6b")
	created := time.Date(2026, 4, 14, 9, 0, 0, 0, time.UTC)
	app := models.NewApplication(id, models.Applicant{
		FirstName:      "Erika",
		LastName:       "Mustermann",
		BirthDate:      "1985-04-12",
		BirthPlace:     "Köln",
		Nationality:    "deutsch",
		Gender:         "weiblich",
		Street:         "Heidestraße",
		HouseNumber:    "17",
		PostalCode:     "51147",
		City:           "Köln",
		Email:          "erika@example.de",
		TaxID:          "65929970489",
		DeliveryMethod: models.DeliveryPostal,
	}, created)
	require.NoError(t, app.ApplyPayment(models.Payment{Method: method, ID: "cs_test", AmountCents: models.FlatFeeCents}, created.Add(time.Hour)))
	return app
}

func TestComputeInvoice(t *testing.T) {
	inv := ComputeInvoice()
	assert.Equal(t, int64(1499), inv.NetCents)
	assert.Equal(t, int64(285), inv.VATCents)
	assert.Equal(t, int64(1784), inv.GrossCents)
	assert.Equal(t, "17,84 €", FormatEuro(inv.GrossCents))
}

func TestInvoiceNumberAndFilenames(t *testing.T) {
	app := paidApplication(t, models.PaymentCard)
	assert.Equal(t, "RG-3F2A9C1E", InvoiceNumber(app))
	assert.Equal(t, "rechnung_RG-3F2A9C1E.pdf", InvoiceFilename(app))
	assert.Equal(t, "antrag_Mustermann_Erika.pdf", ApplicationFilename(app))
}

func TestRenderInvoice(t *testing.T) {
	doc := RenderInvoice(paidApplication(t, models.PaymentWallet))
	body := string(doc.Body)

	assert.Equal(t, ContentTypePDF, doc.ContentType)
	assert.Contains(t, body, "Rechnungsnummer: RG-3F2A9C1E")
	assert.Contains(t, body, "Rechnungsdatum: 14.04.2026")
	assert.Contains(t, body, "Zahlungsart: PayPal")
	assert.Contains(t, body, "Mehrwertsteuer (19%):")
	assert.Contains(t, body, "2,85 €")
	assert.Contains(t, body, "GESAMTBETRAG:")
	assert.Contains(t, body, "17,84 €")
	assert.Contains(t, body, "- Briefversand")
}

func TestRenderApplication(t *testing.T) {
	app := paidApplication(t, models.PaymentCard)
	body := string(RenderApplication(app).Body)

	assert.Contains(t, body, "Antragsnummer: "+app.ID.String())
	assert.Contains(t, body, "Geburtsdatum: 12.04.1985")
	assert.Contains(t, body, "Steuer-ID: 65929970489")
	assert.Contains(t, body, "Zustellungsart: Briefversand")

	app.TaxID = ""
	assert.False(t, strings.Contains(string(RenderApplication(app).Body), "Steuer-ID"))
}

func TestServiceGuards(t *testing.T) {
	ctx := context.Background()
	apps := store.NewInMemoryStore()
	events := audit.NewInMemoryStore()
	svc := NewService(apps, WithAuditPublisher(audit.NewPublisher(events)))

	pending := models.NewApplication(uuid.New(), models.Applicant{FirstName: "A", LastName: "B"}, time.Now())
	require.NoError(t, apps.Save(ctx, pending))
	paid := paidApplication(t, models.PaymentCard)
	require.NoError(t, apps.Save(ctx, paid))

	t.Run("pending application is forbidden", func(t *testing.T) {
		_, err := svc.Invoice(ctx, pending.ID.String())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = svc.Application(ctx, pending.ID.String())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("unknown and malformed ids are not found", func(t *testing.T) {
		_, err := svc.Invoice(ctx, uuid.NewString())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = svc.Application(ctx, "../../etc/passwd")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("paid application renders and is audited", func(t *testing.T) {
		doc, err := svc.Invoice(ctx, paid.ID.String())
		require.NoError(t, err)
		assert.Equal(t, "rechnung_RG-3F2A9C1E.pdf", doc.Filename)

		recorded, err := events.ListBySubject(ctx, paid.ID.String())
		require.NoError(t, err)
		require.Len(t, recorded, 1)
		assert.Equal(t, audit.ActionDocumentDownloaded, recorded[0].Action)
		assert.Equal(t, "invoice", recorded[0].Detail["document"])
	})
}
