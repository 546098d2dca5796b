package reports

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/skinlens/internal/models"
)

const defaultReportTTL = 15 * time.Minute

// ErrNotFound is returned when a report does not exist, has expired or belongs to
// another session.
var ErrNotFound = errors.New("report not found")

// Store keeps rendered reports until they are downloaded or expire.
// Put assigns and returns the id; ExpiresAt must be set by the caller.
type Store interface {
	Put(ctx context.Context, report models.StoredReport) (string, error)
	Get(ctx context.Context, ownerID, id string) (*models.StoredReport, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps reports in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	reports map[string]models.StoredReport
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[string]models.StoredReport),
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, report models.StoredReport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cleanupLocked(now)

	report.ID = uuid.NewString()
	if report.ExpiresAt.IsZero() {
		report.ExpiresAt = now.Add(defaultReportTTL)
	}
	report.Content = append([]byte(nil), report.Content...)
	s.reports[report.ID] = report

	return report.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, ownerID, id string) (*models.StoredReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupLocked(s.now())

	report, ok := s.reports[id]
	if !ok || report.OwnerID != ownerID {
		return nil, ErrNotFound
	}

	copyReport := report
	copyReport.Content = append([]byte(nil), report.Content...)
	return &copyReport, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, id)
	return nil
}

func (s *MemoryStore) cleanupLocked(now time.Time) {
	for id, report := range s.reports {
		if !now.Before(report.ExpiresAt) {
			delete(s.reports, id)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
