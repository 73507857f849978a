// Package delivery sends the documents of a paid application to the
// applicant by email and, when requested, by post.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"formdesk/internal/application/models"
	"formdesk/internal/document"
)

// Notifier fans a paid application out to its delivery channels. Email always
// fires; postal fires only for postal delivery. Both run concurrently and
// Deliver waits for both.
type Notifier struct {
	email  EmailSender
	postal PostalSender
	log    Log
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		n.now = now
	}
}

func NewNotifier(email EmailSender, postal PostalSender, log Log, opts ...Option) *Notifier {
	n := &Notifier{
		email:  email,
		postal: postal,
		log:    log,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Deliver sends the rendered documents and records a Dispatch per channel that
// succeeded. The first channel error is returned after both channels finish.
func (n *Notifier) Deliver(ctx context.Context, app *models.Application) ([]Dispatch, error) {
	docs := []document.Document{document.RenderApplication(app), document.RenderInvoice(app)}

	var (
		mu         sync.Mutex
		dispatches []Dispatch
	)
	record := func(ctx context.Context, channel Channel, recipient, tracking string) error {
		d := Dispatch{
			ApplicationID: app.ID,
			Channel:       channel,
			Recipient:     recipient,
			TrackingID:    tracking,
			SentAt:        n.now(),
		}
		if err := n.log.Record(ctx, d); err != nil {
			return fmt.Errorf("record %s dispatch: %w", channel, err)
		}
		mu.Lock()
		dispatches = append(dispatches, d)
		mu.Unlock()
		return nil
	}

	// A plain Group: one channel failing must not cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		id, err := n.email.Send(ctx, app, docs)
		if err != nil {
			return fmt.Errorf("email delivery: %w", err)
		}
		n.logger.InfoContext(ctx, "documents emailed",
			"application_id", app.ID.String(),
			"message_id", id,
		)
		return record(ctx, ChannelEmail, app.Email, id)
	})
	if app.DeliveryMethod == models.DeliveryPostal {
		g.Go(func() error {
			tracking, err := n.postal.Send(ctx, app, docs)
			if err != nil {
				return fmt.Errorf("postal delivery: %w", err)
			}
			n.logger.InfoContext(ctx, "documents posted",
				"application_id", app.ID.String(),
				"tracking_id", tracking,
			)
			address := fmt.Sprintf("%s %s, %s %s", app.Street, app.HouseNumber, app.PostalCode, app.City)
			return record(ctx, ChannelPostal, address, tracking)
		})
	}

	err := g.Wait()
	return dispatches, err
}
