package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"formdesk/internal/application/models"
)

// FileStore keeps the working set in memory and rewrites a JSON array file on
// every mutation. Writes go to a temp file that is renamed over the target, so
// a crash leaves either the old or the new file.
type FileStore struct {
	mem  *InMemoryStore
	path string
}

// NewFileStore loads path if it exists. A missing file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &FileStore{mem: NewInMemoryStore(), path: path}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var apps []*models.Application
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &apps); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	s.mem.loadLocked(apps)
	return s, nil
}

func (s *FileStore) Save(_ context.Context, app *models.Application) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	if err := s.mem.insertLocked(app); err != nil {
		return err
	}
	if err := s.flushLocked(); err != nil {
		s.mem.deleteLocked(app.ID)
		return err
	}
	return nil
}

func (s *FileStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	return s.mem.FindByID(ctx, id)
}

func (s *FileStore) FindByPaymentID(ctx context.Context, paymentID string) (*models.Application, error) {
	return s.mem.FindByPaymentID(ctx, paymentID)
}

func (s *FileStore) ListAll(ctx context.Context) ([]*models.Application, error) {
	return s.mem.ListAll(ctx)
}

func (s *FileStore) MarkPaid(_ context.Context, id uuid.UUID, payment models.Payment, now time.Time) (*models.Application, error) {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	updated, previous, err := s.mem.markPaidLocked(id, payment, now)
	if err != nil {
		return nil, err
	}
	if err := s.flushLocked(); err != nil {
		s.mem.restoreLocked(previous)
		return nil, err
	}
	return updated, nil
}

// flushLocked must be called with s.mem.mu held.
func (s *FileStore) flushLocked() error {
	raw, err := json.MarshalIndent(s.mem.snapshotLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode applications: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".applications-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
