package delivery

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Log records fired dispatches.
type Log interface {
	Record(ctx context.Context, d Dispatch) error
	ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]Dispatch, error)
}

type InMemoryLog struct {
	mu         sync.RWMutex
	dispatches map[uuid.UUID][]Dispatch
}

func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{dispatches: make(map[uuid.UUID][]Dispatch)}
}

func (l *InMemoryLog) Record(_ context.Context, d Dispatch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dispatches[d.ApplicationID] = append(l.dispatches[d.ApplicationID], d)
	return nil
}

func (l *InMemoryLog) ListByApplication(_ context.Context, applicationID uuid.UUID) ([]Dispatch, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Dispatch{}, l.dispatches[applicationID]...), nil
}

// PostgresLog stores dispatches in the deliveries table.
type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) Record(ctx context.Context, d Dispatch) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO deliveries (application_id, channel, recipient, tracking_id, sent_at)
		VALUES ($1, $2, $3, $4, $5)`,
		d.ApplicationID, string(d.Channel), d.Recipient, d.TrackingID, d.SentAt,
	)
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

func (l *PostgresLog) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]Dispatch, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT application_id, channel, recipient, tracking_id, sent_at
		FROM deliveries
		WHERE application_id = $1
		ORDER BY sent_at, id`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close()

	var out []Dispatch
	for rows.Next() {
		var (
			d       Dispatch
			channel string
		)
		if err := rows.Scan(&d.ApplicationID, &channel, &d.Recipient, &d.TrackingID, &d.SentAt); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		d.Channel = Channel(channel)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return out, nil
}
