package reports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/johnrirwin/skinlens/internal/models"
)

// DirSink delivers reports by writing them into a directory.
type DirSink struct {
	Dir string
}

// NewDirSink creates a sink writing into dir ("." when empty).
func NewDirSink(dir string) *DirSink {
	if dir == "" {
		dir = "."
	}
	return &DirSink{Dir: dir}
}

// Deliver writes the file and returns its path.
func (s *DirSink) Deliver(ctx context.Context, file models.ReportFile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(s.Dir, filepath.Base(file.Filename))
	if err := os.WriteFile(path, file.Content, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// StoreSink delivers reports into a Store for a one-shot download by the owning session.
type StoreSink struct {
	store   Store
	ownerID string
	ttl     time.Duration
	now     func() time.Time
}

// NewStoreSink creates a sink scoped to ownerID.
func NewStoreSink(store Store, ownerID string, ttl time.Duration) *StoreSink {
	if ttl <= 0 {
		ttl = defaultReportTTL
	}
	return &StoreSink{
		store:   store,
		ownerID: ownerID,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Deliver stores the file and returns the report id.
func (s *StoreSink) Deliver(ctx context.Context, file models.ReportFile) (string, error) {
	now := s.now()
	id, err := s.store.Put(ctx, models.StoredReport{
		OwnerID:     s.ownerID,
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Content:     file.Content,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	return id, nil
}
