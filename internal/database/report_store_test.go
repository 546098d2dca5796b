package database

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/johnrirwin/skinlens/internal/models"
	"github.com/johnrirwin/skinlens/internal/reports"
	"github.com/johnrirwin/skinlens/internal/testutil"
)

func newSQLiteStore(t *testing.T) *ReportStore {
	t.Helper()

	db := Wrap(testutil.NewSQLiteDB(t), DriverSQLite)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewReportStore(db)
}

func TestRebind(t *testing.T) {
	query := `SELECT * FROM reports WHERE id = $1 AND owner_id = $2`

	if got := (&DB{driver: DriverPostgres}).rebind(query); got != query {
		t.Errorf("postgres rebind changed the query: %q", got)
	}
	if got := (&DB{driver: DriverSQLite}).rebind(query); got != `SELECT * FROM reports WHERE id = ?1 AND owner_id = ?2` {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestReportStore_PutGet(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	content := []byte(`{"analysis_id": "abc123"}`)
	id, err := store.Put(ctx, models.StoredReport{
		OwnerID:     "session-a",
		Filename:    "skincare_analysis_user_2024-03-05.json",
		ContentType: "application/json",
		Content:     content,
		ExpiresAt:   time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "session-a", id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Filename != "skincare_analysis_user_2024-03-05.json" || !bytes.Equal(got.Content, content) {
		t.Errorf("unexpected report: %+v", got)
	}

	if _, err := store.Get(ctx, "session-b", id); !errors.Is(err, reports.ErrNotFound) {
		t.Errorf("other owner error = %v, want ErrNotFound", err)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "session-a", id); !errors.Is(err, reports.ErrNotFound) {
		t.Errorf("after delete error = %v, want ErrNotFound", err)
	}
}

func TestReportStore_Expiry(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	expiring, _ := store.Put(ctx, models.StoredReport{OwnerID: "s", Filename: "a.json", ContentType: "application/json", Content: []byte("{}"), ExpiresAt: now.Add(time.Minute)})
	_, _ = store.Put(ctx, models.StoredReport{OwnerID: "s", Filename: "b.json", ContentType: "application/json", Content: []byte("{}"), ExpiresAt: now.Add(time.Hour)})

	now = now.Add(2 * time.Minute)

	if _, err := store.Get(ctx, "s", expiring); !errors.Is(err, reports.ErrNotFound) {
		t.Fatalf("expired report error = %v, want ErrNotFound", err)
	}

	removed, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("DeleteExpired() removed %d, want 1", removed)
	}
}

func TestReportStore_Postgres(t *testing.T) {
	db := Wrap(testutil.NewPostgresDB(t), DriverPostgres)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	store := NewReportStore(db)

	id, err := store.Put(context.Background(), models.StoredReport{OwnerID: "s", Filename: "a.json", ContentType: "application/json", Content: []byte("{}")})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	defer store.Delete(context.Background(), id)

	if _, err := store.Get(context.Background(), "s", id); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestNew_SQLiteMemory(t *testing.T) {
	db, err := New(Config{Driver: DriverSQLite, Path: ":memory:"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer db.Close()

	if db.Driver() != DriverSQLite {
		t.Errorf("Driver() = %q", db.Driver())
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
}
