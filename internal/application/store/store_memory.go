// Package store persists application records. Every backend returns
// sentinel.ErrNotFound for unknown ids and sentinel.ErrInvalidState when a
// conditional update finds the record in the wrong state.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"formdesk/internal/application/models"
	"formdesk/pkg/platform/sentinel"
)

// InMemoryStore keeps applications in a map guarded by a RWMutex. Records are
// cloned on the way in and out so callers never share state with the store.
type InMemoryStore struct {
	mu   sync.RWMutex
	apps map[uuid.UUID]*models.Application
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{apps: make(map[uuid.UUID]*models.Application)}
}

func (s *InMemoryStore) Save(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(app)
}

func (s *InMemoryStore) insertLocked(app *models.Application) error {
	if _, exists := s.apps[app.ID]; exists {
		return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrAlreadyUsed)
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

// FindByPaymentID returns the application already linked to the provider token.
func (s *InMemoryStore) FindByPaymentID(_ context.Context, paymentID string) (*models.Application, error) {
	if paymentID == "" {
		return nil, sentinel.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, app := range s.apps {
		if app.PaymentID == paymentID {
			return app.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListAll returns every application, newest first.
func (s *InMemoryStore) ListAll(_ context.Context) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), nil
}

func (s *InMemoryStore) snapshotLocked() []*models.Application {
	out := make([]*models.Application, 0, len(s.apps))
	for _, app := range s.apps {
		out = append(out, app.Clone())
	}
	sortNewestFirst(out)
	return out
}

// MarkPaid applies the payment only if the record is still pending. The check
// and the write happen under one lock, so concurrent callers see exactly one
// success.
func (s *InMemoryStore) MarkPaid(_ context.Context, id uuid.UUID, payment models.Payment, now time.Time) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated, _, err := s.markPaidLocked(id, payment, now)
	return updated, err
}

// markPaidLocked returns the updated record and the previous one for rollback.
func (s *InMemoryStore) markPaidLocked(id uuid.UUID, payment models.Payment, now time.Time) (*models.Application, *models.Application, error) {
	current, ok := s.apps[id]
	if !ok {
		return nil, nil, sentinel.ErrNotFound
	}
	next := current.Clone()
	if err := next.ApplyPayment(payment, now); err != nil {
		return nil, nil, err
	}
	s.apps[id] = next
	return next.Clone(), current, nil
}

func (s *InMemoryStore) restoreLocked(app *models.Application) {
	s.apps[app.ID] = app
}

func (s *InMemoryStore) deleteLocked(id uuid.UUID) {
	delete(s.apps, id)
}

func (s *InMemoryStore) loadLocked(apps []*models.Application) {
	s.apps = make(map[uuid.UUID]*models.Application, len(apps))
	for _, app := range apps {
		s.apps[app.ID] = app.Clone()
	}
}

func sortNewestFirst(apps []*models.Application) {
	sort.SliceStable(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].ID.String() < apps[j].ID.String()
		}
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
}
