package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/skinlens/internal/models"
	"github.com/johnrirwin/skinlens/internal/reports"
)

// ReportStore persists exported reports in PostgreSQL or SQLite.
type ReportStore struct {
	db  *DB
	now func() time.Time
}

// NewReportStore creates a new report store.
func NewReportStore(db *DB) *ReportStore {
	return &ReportStore{db: db, now: time.Now}
}

// Put stores a report under a fresh id.
func (s *ReportStore) Put(ctx context.Context, report models.StoredReport) (string, error) {
	if report.OwnerID == "" {
		return "", fmt.Errorf("owner id is required")
	}

	now := s.now()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	if report.ExpiresAt.IsZero() {
		report.ExpiresAt = now.Add(15 * time.Minute)
	}
	if report.Content == nil {
		report.Content = []byte{}
	}
	report.ID = uuid.NewString()

	query := s.db.rebind(`
		INSERT INTO reports (id, owner_id, filename, content_type, content, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)

	_, err := s.db.ExecContext(ctx, query,
		report.ID,
		report.OwnerID,
		report.Filename,
		report.ContentType,
		report.Content,
		report.CreatedAt.UnixMilli(),
		report.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}

	return report.ID, nil
}

// Get loads an unexpired report owned by ownerID.
func (s *ReportStore) Get(ctx context.Context, ownerID, id string) (*models.StoredReport, error) {
	query := s.db.rebind(`
		SELECT id, owner_id, filename, content_type, content, created_at, expires_at
		FROM reports
		WHERE id = $1 AND owner_id = $2 AND expires_at > $3
	`)

	var report models.StoredReport
	var createdAt, expiresAt int64
	err := s.db.QueryRowContext(ctx, query, id, ownerID, s.now().UnixMilli()).Scan(
		&report.ID,
		&report.OwnerID,
		&report.Filename,
		&report.ContentType,
		&report.Content,
		&createdAt,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}

	report.CreatedAt = time.UnixMilli(createdAt)
	report.ExpiresAt = time.UnixMilli(expiresAt)
	return &report, nil
}

// Delete removes a report.
func (s *ReportStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.db.rebind(`DELETE FROM reports WHERE id = $1`), id); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

// DeleteExpired removes every expired report and returns how many were deleted.
func (s *ReportStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.rebind(`DELETE FROM reports WHERE expires_at <= $1`), s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired reports: %w", err)
	}
	return res.RowsAffected()
}

var _ reports.Store = (*ReportStore)(nil)
