package delivery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"formdesk/internal/application/models"
	"formdesk/internal/document"
)

// PostalSender hands printed documents to a letter service and returns its
// tracking id.
type PostalSender interface {
	Send(ctx context.Context, app *models.Application, docs []document.Document) (string, error)
}

// SimulatedPostal stands in for the eBrief letter API.
type SimulatedPostal struct {
	delay  time.Duration
	logger *slog.Logger
}

func NewSimulatedPostal(delay time.Duration, logger *slog.Logger) *SimulatedPostal {
	return &SimulatedPostal{delay: delay, logger: logger}
}

func (p *SimulatedPostal) Send(ctx context.Context, app *models.Application, docs []document.Document) (string, error) {
	if err := sleep(ctx, p.delay); err != nil {
		return "", err
	}
	tracking := NewTrackingID()
	p.logger.InfoContext(ctx, "simulated postal letter sent",
		"application_id", app.ID.String(),
		"city", app.City,
		"pages", len(docs),
		"tracking_id", tracking,
	)
	return tracking, nil
}

// NewTrackingID returns "EB" followed by ten upper-case hex characters.
func NewTrackingID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "EB" + strings.ToUpper(raw[:10])
}
