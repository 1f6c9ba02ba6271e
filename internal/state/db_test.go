package state

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/autocoder/pkg/models"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func newBuild(id, parent string, started time.Time) *models.BuildRecord {
	return &models.BuildRecord{
		ID:            id,
		ParentID:      parent,
		Coder:         "python",
		Specification: models.Specification("spec for " + id),
		ProjectHome:   "/tmp/project",
		Status:        models.BuildStatusRunning,
		StartedAt:     started,
	}
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	path := filepath.Join(nested, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if _, err := os.Stat(nested); os.IsNotExist(err) {
		t.Errorf("parent directories not created: %s", nested)
	}
}

func TestOpenProject(t *testing.T) {
	home := t.TempDir()
	db, err := OpenProject(home)
	if err != nil {
		t.Fatalf("OpenProject failed: %v", err)
	}
	defer db.Close()

	want := filepath.Join(home, ".autocoder", "state.db")
	if db.Path() != want {
		t.Errorf("Path() = %q, want %q", db.Path(), want)
	}
	if _, err := db.ListBuilds(context.Background(), 0); err != nil {
		t.Errorf("ListBuilds on fresh project db: %v", err)
	}
}

func TestClose(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Subsequent operations should fail
	_, err = db.Query(context.Background(), "SELECT 1")
	if err == nil {
		t.Error("expected error after close, got nil")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate (iteration %d) failed: %v", i, err)
		}
	}

	var version int
	row := db.QueryRow(context.Background(), "SELECT MAX(version) FROM schema_version")
	if err := row.Scan(&version); err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != 2 {
		t.Errorf("schema version = %d, want 2", version)
	}

	for _, table := range []string{"builds", "iterations"} {
		var count int
		row := db.QueryRow(context.Background(), "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
		if err := row.Scan(&count); err != nil {
			t.Errorf("failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestBuildRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 10, 0, 0, 123000000, time.UTC)

	b := newBuild("b1", "", started)
	if err := db.CreateBuild(ctx, b); err != nil {
		t.Fatalf("CreateBuild failed: %v", err)
	}

	finished := started.Add(90 * time.Second)
	b.Status = models.BuildStatusFailed
	b.Iterations = 3
	b.FilesTouched = 4
	b.Error = "convergence failed"
	b.FinishedAt = &finished
	if err := db.UpdateBuild(ctx, b); err != nil {
		t.Fatalf("UpdateBuild failed: %v", err)
	}

	got, err := db.GetBuild(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBuild failed: %v", err)
	}
	if got.Status != models.BuildStatusFailed || got.Iterations != 3 || got.FilesTouched != 4 {
		t.Errorf("GetBuild = %+v", got)
	}
	if got.Error != "convergence failed" {
		t.Errorf("Error = %q", got.Error)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}
	if got.ParentID != "" {
		t.Errorf("ParentID = %q, want empty", got.ParentID)
	}
}

func TestGetBuild_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetBuild(context.Background(), "missing")
	if !errors.Is(err, ErrBuildNotFound) {
		t.Errorf("GetBuild error = %v, want ErrBuildNotFound", err)
	}

	err = db.UpdateBuild(context.Background(), newBuild("missing", "", time.Now()))
	if !errors.Is(err, ErrBuildNotFound) {
		t.Errorf("UpdateBuild error = %v, want ErrBuildNotFound", err)
	}
}

func TestListBuildsAndChildren(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, b := range []*models.BuildRecord{
		newBuild("root-old", "", base),
		newBuild("root-new", "", base.Add(time.Hour)),
		newBuild("child-2", "root-new", base.Add(time.Hour+2*time.Second)),
		newBuild("child-1", "root-new", base.Add(time.Hour+500*time.Millisecond)),
	} {
		if err := db.CreateBuild(ctx, b); err != nil {
			t.Fatalf("CreateBuild(%s) failed: %v", b.ID, err)
		}
	}

	builds, err := db.ListBuilds(ctx, 0)
	if err != nil {
		t.Fatalf("ListBuilds failed: %v", err)
	}
	if len(builds) != 2 || builds[0].ID != "root-new" || builds[1].ID != "root-old" {
		t.Errorf("ListBuilds = %v", ids(builds))
	}

	limited, err := db.ListBuilds(ctx, 1)
	if err != nil {
		t.Fatalf("ListBuilds(1) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListBuilds(1) returned %d builds", len(limited))
	}

	children, err := db.ListChildren(ctx, "root-new")
	if err != nil {
		t.Fatalf("ListChildren failed: %v", err)
	}
	if len(children) != 2 || children[0].ID != "child-1" || children[1].ID != "child-2" {
		t.Errorf("ListChildren = %v", ids(children))
	}
}

func ids(builds []models.BuildRecord) []string {
	out := make([]string, len(builds))
	for i, b := range builds {
		out[i] = b.ID
	}
	return out
}

func TestIterations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	if err := db.CreateBuild(ctx, newBuild("b1", "", time.Now())); err != nil {
		t.Fatalf("CreateBuild failed: %v", err)
	}

	for i, success := range []bool{false, true} {
		it := &models.IterationRecord{
			BuildID:      "b1",
			Iteration:    i,
			Success:      success,
			TestFiles:    2,
			LinesAdded:   i * 5,
			LinesRemoved: i,
			Diagnostics:  "run output",
			RecordedAt:   time.Now(),
		}
		if err := db.RecordIteration(ctx, it); err != nil {
			t.Fatalf("RecordIteration(%d) failed: %v", i, err)
		}
	}

	its, err := db.ListIterations(ctx, "b1")
	if err != nil {
		t.Fatalf("ListIterations failed: %v", err)
	}
	if len(its) != 2 {
		t.Fatalf("ListIterations returned %d rows, want 2", len(its))
	}
	if its[0].Success || !its[1].Success {
		t.Errorf("success flags = %v, %v", its[0].Success, its[1].Success)
	}
	if its[1].LinesAdded != 5 || its[1].Diagnostics != "run output" {
		t.Errorf("iteration 1 = %+v", its[1])
	}

	if err := db.RecordIteration(ctx, &models.IterationRecord{BuildID: "unknown", RecordedAt: time.Now()}); err == nil {
		t.Error("expected foreign key error for unknown build")
	}
}

func TestMarkInterrupted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	done := newBuild("done", "", time.Now())
	done.Status = models.BuildStatusSucceeded
	for _, b := range []*models.BuildRecord{newBuild("running", "", time.Now()), done} {
		if err := db.CreateBuild(ctx, b); err != nil {
			t.Fatalf("CreateBuild failed: %v", err)
		}
	}

	n, err := db.MarkInterrupted(ctx)
	if err != nil {
		t.Fatalf("MarkInterrupted failed: %v", err)
	}
	if n != 1 {
		t.Errorf("MarkInterrupted affected %d rows, want 1", n)
	}

	got, err := db.GetBuild(ctx, "running")
	if err != nil {
		t.Fatalf("GetBuild failed: %v", err)
	}
	if got.Status != models.BuildStatusCancelled || got.Error != "interrupted" || got.FinishedAt == nil {
		t.Errorf("interrupted build = %+v", got)
	}
}

func TestPurgeOldBuilds(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateBuild(ctx, newBuild("old", "", time.Now().Add(-48*time.Hour))); err != nil {
		t.Fatalf("CreateBuild failed: %v", err)
	}
	if err := db.RecordIteration(ctx, &models.IterationRecord{BuildID: "old", RecordedAt: time.Now()}); err != nil {
		t.Fatalf("RecordIteration failed: %v", err)
	}
	if err := db.CreateBuild(ctx, newBuild("new", "", time.Now())); err != nil {
		t.Fatalf("CreateBuild failed: %v", err)
	}

	n, err := db.PurgeOldBuilds(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldBuilds failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d builds, want 1", n)
	}
	if _, err := db.GetBuild(ctx, "old"); !errors.Is(err, ErrBuildNotFound) {
		t.Errorf("old build still present: %v", err)
	}
	its, err := db.ListIterations(ctx, "old")
	if err != nil {
		t.Fatalf("ListIterations failed: %v", err)
	}
	if len(its) != 0 {
		t.Errorf("iterations of purged build remain: %d", len(its))
	}
}

func TestRecorder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	rec := NewRecorder(db)

	b := newBuild("r1", "", time.Now())
	if err := rec.RecordBuildStarted(ctx, b); err != nil {
		t.Fatalf("RecordBuildStarted failed: %v", err)
	}
	if err := rec.RecordIteration(ctx, &models.IterationRecord{BuildID: "r1", Success: true, RecordedAt: time.Now()}); err != nil {
		t.Fatalf("RecordIteration failed: %v", err)
	}
	now := time.Now()
	b.Status = models.BuildStatusSucceeded
	b.FinishedAt = &now
	if err := rec.RecordBuildFinished(ctx, b); err != nil {
		t.Fatalf("RecordBuildFinished failed: %v", err)
	}

	got, err := db.GetBuild(ctx, "r1")
	if err != nil {
		t.Fatalf("GetBuild failed: %v", err)
	}
	if got.Status != models.BuildStatusSucceeded {
		t.Errorf("Status = %s, want succeeded", got.Status)
	}
}

func TestFormatAndParseTime(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 500, time.UTC)
	got, err := parseTime(formatTime(now))
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("round trip = %v, want %v", got, now)
	}
	if formatTime(now) >= formatTime(now.Add(time.Second)) {
		t.Error("formatted times do not sort lexically")
	}
}

func TestParseNullableTime(t *testing.T) {
	if got := parseNullableTime(sql.NullString{}); got != nil {
		t.Errorf("parseNullableTime(null) = %v, want nil", got)
	}
	if got := parseNullableTime(sql.NullString{String: "garbage", Valid: true}); got != nil {
		t.Errorf("parseNullableTime(garbage) = %v, want nil", got)
	}
}
