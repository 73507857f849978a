package delivery

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	mailjet "github.com/mailjet/mailjet-apiv3-go"

	"formdesk/internal/application/models"
	"formdesk/internal/document"
)

// EmailSender delivers the documents to the applicant's mailbox and returns a
// provider message id.
type EmailSender interface {
	Send(ctx context.Context, app *models.Application, docs []document.Document) (string, error)
}

func emailSubject(app *models.Application) string {
	return fmt.Sprintf("Ihr Antrag %s", document.InvoiceNumber(app))
}

func emailBody(app *models.Application) string {
	return fmt.Sprintf("Guten Tag %s %s,\n\nvielen Dank für Ihre Zahlung. Im Anhang finden Sie Ihren Antrag und die Rechnung %s.\n",
		app.FirstName, app.LastName, document.InvoiceNumber(app))
}

// SimulatedSender logs instead of sending and waits delay to mimic provider latency.
type SimulatedSender struct {
	delay  time.Duration
	logger *slog.Logger
}

func NewSimulatedSender(delay time.Duration, logger *slog.Logger) *SimulatedSender {
	return &SimulatedSender{delay: delay, logger: logger}
}

func (s *SimulatedSender) Send(ctx context.Context, app *models.Application, docs []document.Document) (string, error) {
	if err := sleep(ctx, s.delay); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "simulated email sent",
		"application_id", app.ID.String(),
		"recipient", app.Email,
		"subject", emailSubject(app),
		"attachments", len(docs),
	)
	return "sim-" + app.ID.String()[:8], nil
}

// MailjetSender sends through the Mailjet v3.1 send API with the documents attached.
type MailjetSender struct {
	send   func(*mailjet.MessagesV31) (*mailjet.ResultsV31, error)
	sender string
}

func NewMailjetSender(publicKey, privateKey, sender string) *MailjetSender {
	client := mailjet.NewMailjetClient(publicKey, privateKey)
	return &MailjetSender{
		send: func(m *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
			return client.SendMailV31(m)
		},
		sender: sender,
	}
}

func (s *MailjetSender) Send(ctx context.Context, app *models.Application, docs []document.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	attachments := make(mailjet.AttachmentsV31, 0, len(docs))
	for _, d := range docs {
		attachments = append(attachments, mailjet.AttachmentV31{
			ContentType:   d.ContentType,
			Filename:      d.Filename,
			Base64Content: base64.StdEncoding.EncodeToString(d.Body),
		})
	}

	msgs := mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{{
		From:        &mailjet.RecipientV31{Email: s.sender},
		To:          &mailjet.RecipientsV31{mailjet.RecipientV31{Email: app.Email, Name: app.FirstName + " " + app.LastName}},
		Subject:     emailSubject(app),
		TextPart:    emailBody(app),
		Attachments: &attachments,
		CustomID:    app.ID.String(),
	}}}

	res, err := s.send(&msgs)
	if err != nil {
		return "", fmt.Errorf("could not send mail: %w", err)
	}
	if res != nil && len(res.ResultsV31) > 0 && len(res.ResultsV31[0].To) > 0 {
		return res.ResultsV31[0].To[0].MessageUUID, nil
	}
	return "", nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
