// Package document renders the application summary and invoice for paid
// applications. Output is formatted text served as application/pdf.
package document

import (
	"fmt"
	"strings"
	"time"

	"formdesk/internal/application/models"
)

// VATPercent is the German standard rate applied to the processing fee.
const VATPercent = 19

const (
	ContentTypePDF = "application/pdf"
	dateLayout     = "02.01.2006"
	rule           = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
)

// Issuer is the invoicing company printed on every invoice.
var Issuer = struct {
	Name, Street, City, Country, TaxNumber, VATID string
}{
	Name:      "BehördenAssistent GmbH",
	Street:    "Musterstraße 123",
	City:      "12345 Berlin",
	Country:   "Deutschland",
	TaxNumber: "123/456/78901",
	VATID:     "DE123456789",
}

// Document is a rendered file ready for download or attachment.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Invoice amounts in cents.
type Invoice struct {
	NetCents   int64
	VATCents   int64
	GrossCents int64
}

// ComputeInvoice applies VAT on top of the flat fee, rounding half up to the cent.
func ComputeInvoice() Invoice {
	net := models.FlatFeeCents
	vat := (net*VATPercent + 50) / 100
	return Invoice{NetCents: net, VATCents: vat, GrossCents: net + vat}
}

// InvoiceNumber is "RG-" followed by the first eight characters of the id, upper-cased.
func InvoiceNumber(app *models.Application) string {
	id := app.ID.String()
	return "RG-" + strings.ToUpper(id[:8])
}

func ApplicationFilename(app *models.Application) string {
	return fmt.Sprintf("antrag_%s_%s.pdf", app.LastName, app.FirstName)
}

func InvoiceFilename(app *models.Application) string {
	return fmt.Sprintf("rechnung_%s.pdf", InvoiceNumber(app))
}

// FormatEuro renders cents the German way: 1784 -> "17,84 €".
func FormatEuro(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d,%02d €", sign, cents/100, cents%100)
}

func formatBirthDate(raw string) string {
	t, err := time.Parse(models.BirthDateLayout, raw)
	if err != nil {
		return raw
	}
	return t.Format(dateLayout)
}

// RenderApplication produces the application summary.
func RenderApplication(app *models.Application) Document {
	var b strings.Builder
	fmt.Fprintln(&b, "ANTRAG AUF SOZIALVERSICHERUNGSAUSWEIS")
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Antragsnummer: %s\n", app.ID)
	fmt.Fprintf(&b, "Datum: %s\n", app.CreatedAt.Format(dateLayout))

	section(&b, "PERSÖNLICHE DATEN")
	fmt.Fprintf(&b, "Name: %s %s\n", app.FirstName, app.LastName)
	fmt.Fprintf(&b, "Geburtsdatum: %s\n", formatBirthDate(app.BirthDate))
	fmt.Fprintf(&b, "Geburtsort: %s\n", app.BirthPlace)
	fmt.Fprintf(&b, "Geschlecht: %s\n", app.Gender)
	fmt.Fprintf(&b, "Staatsangehörigkeit: %s\n", app.Nationality)
	if app.TaxID != "" {
		fmt.Fprintf(&b, "Steuer-ID: %s\n", app.TaxID)
	}

	section(&b, "ADRESSE")
	fmt.Fprintf(&b, "%s %s\n", app.Street, app.HouseNumber)
	fmt.Fprintf(&b, "%s %s\n", app.PostalCode, app.City)

	section(&b, "KONTAKT")
	fmt.Fprintf(&b, "E-Mail: %s\n", app.Email)
	fmt.Fprintf(&b, "Zustellungsart: %s\n", app.DeliveryMethod.Label())

	fmt.Fprintf(&b, "\n%s\n\n", rule)
	fmt.Fprintln(&b, "Hiermit beantrage ich die Ausstellung eines neuen Sozialversicherungsausweises.")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Mit freundlichen Grüßen")
	fmt.Fprintf(&b, "%s %s\n\n", app.FirstName, app.LastName)
	fmt.Fprintln(&b, "Diese Unterlage wurde elektronisch erstellt und ist ohne Unterschrift gültig.")

	return Document{
		Filename:    ApplicationFilename(app),
		ContentType: ContentTypePDF,
		Body:        []byte(b.String()),
	}
}

// RenderInvoice produces the invoice. The invoice date is the payment date.
func RenderInvoice(app *models.Application) Document {
	inv := ComputeInvoice()
	date := app.UpdatedAt
	if app.PaidAt != nil {
		date = *app.PaidAt
	}

	var b strings.Builder
	fmt.Fprintln(&b, "RECHNUNG")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, Issuer.Name)
	fmt.Fprintln(&b, Issuer.Street)
	fmt.Fprintln(&b, Issuer.City)
	fmt.Fprintln(&b, Issuer.Country)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Steuer-Nr: %s\n", Issuer.TaxNumber)
	fmt.Fprintf(&b, "USt-IdNr: %s\n", Issuer.VATID)

	section(&b, "RECHNUNGSADRESSE:")
	fmt.Fprintf(&b, "%s %s\n", app.FirstName, app.LastName)
	fmt.Fprintf(&b, "%s %s\n", app.Street, app.HouseNumber)
	fmt.Fprintf(&b, "%s %s\n", app.PostalCode, app.City)

	fmt.Fprintf(&b, "\n%s\n\n", rule)
	fmt.Fprintf(&b, "Rechnungsnummer: %s\n", InvoiceNumber(app))
	fmt.Fprintf(&b, "Rechnungsdatum: %s\n", date.Format(dateLayout))
	fmt.Fprintf(&b, "Leistungsdatum: %s\n", date.Format(dateLayout))
	fmt.Fprintf(&b, "Zahlungsart: %s\n", app.PaymentMethod.Label())

	section(&b, "LEISTUNGEN:")
	fmt.Fprintf(&b, "%-4s | %-40s | %-5s | %s\n", "Pos.", "Beschreibung", "Menge", "Preis")
	fmt.Fprintf(&b, "%-4s | %-40s | %5s | %s\n", " 1", "Bearbeitung Sozialversicherungsausweis", "1", FormatEuro(inv.NetCents))
	fmt.Fprintf(&b, "%-4s | %-40s |\n", "", "- Antragsbearbeitung")
	fmt.Fprintf(&b, "%-4s | %-40s |\n", "", "- PDF-Erstellung")
	fmt.Fprintf(&b, "%-4s | %-40s |\n", "", "- "+shippingLabel(app.DeliveryMethod))

	fmt.Fprintf(&b, "\n%s\n\n", rule)
	fmt.Fprintf(&b, "%-40s %12s\n", "Zwischensumme:", FormatEuro(inv.NetCents))
	fmt.Fprintf(&b, "%-40s %12s\n", fmt.Sprintf("Mehrwertsteuer (%d%%):", VATPercent), FormatEuro(inv.VATCents))
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "%-40s %12s\n", "GESAMTBETRAG:", FormatEuro(inv.GrossCents))
	fmt.Fprintf(&b, "\n%s\n\n", rule)
	fmt.Fprintln(&b, "Vielen Dank für Ihr Vertrauen!")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Diese Rechnung wurde elektronisch erstellt und ist ohne Unterschrift gültig.")

	return Document{
		Filename:    InvoiceFilename(app),
		ContentType: ContentTypePDF,
		Body:        []byte(b.String()),
	}
}

func shippingLabel(d models.DeliveryMethod) string {
	if d == models.DeliveryPostal {
		return "Briefversand"
	}
	return "E-Mail-Versand"
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n%s\n%s\n\n", title, rule)
}
