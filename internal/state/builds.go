package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/autocoder/pkg/models"
)

// ErrBuildNotFound is returned when a build ID is not in the ledger.
var ErrBuildNotFound = errors.New("build not found")

const buildColumns = `id, parent_id, coder, specification, project_home, depth, status,
	iterations, files_touched, error, started_at, finished_at`

// CreateBuild inserts a new build row.
func (db *DB) CreateBuild(ctx context.Context, b *models.BuildRecord) error {
	_, err := db.Exec(ctx, `
		INSERT INTO builds (`+buildColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, nullString(b.ParentID), b.Coder, string(b.Specification), b.ProjectHome, b.Depth,
		string(b.Status), b.Iterations, b.FilesTouched, nullString(b.Error),
		formatTime(b.StartedAt), nullTime(b.FinishedAt))
	if err != nil {
		return fmt.Errorf("create build: %w", err)
	}
	return nil
}

// UpdateBuild updates the mutable fields of a build row.
func (db *DB) UpdateBuild(ctx context.Context, b *models.BuildRecord) error {
	result, err := db.Exec(ctx, `
		UPDATE builds SET status = ?, iterations = ?, files_touched = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, string(b.Status), b.Iterations, b.FilesTouched, nullString(b.Error), nullTime(b.FinishedAt), b.ID)
	if err != nil {
		return fmt.Errorf("update build: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update build %s: %w", b.ID, ErrBuildNotFound)
	}
	return nil
}

// GetBuild retrieves a build by ID.
func (db *DB) GetBuild(ctx context.Context, id string) (*models.BuildRecord, error) {
	row := db.QueryRow(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get build %s: %w", id, ErrBuildNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get build: %w", err)
	}
	return b, nil
}

// ListBuilds returns top-level builds, most recent first. A limit of zero
// returns every build.
func (db *DB) ListBuilds(ctx context.Context, limit int) ([]models.BuildRecord, error) {
	query := `SELECT ` + buildColumns + ` FROM builds WHERE parent_id IS NULL ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return db.queryBuilds(ctx, query, args...)
}

// ListChildren returns the sub-builds delegated by parentID in start order.
func (db *DB) ListChildren(ctx context.Context, parentID string) ([]models.BuildRecord, error) {
	return db.queryBuilds(ctx, `SELECT `+buildColumns+` FROM builds WHERE parent_id = ? ORDER BY started_at ASC`, parentID)
}

// MarkInterrupted marks builds still recorded as running as cancelled.
// A running row found on startup belongs to a process that died.
func (db *DB) MarkInterrupted(ctx context.Context) (int64, error) {
	result, err := db.Exec(ctx, `
		UPDATE builds SET status = ?, error = COALESCE(error, 'interrupted'), finished_at = ?
		WHERE status = ?
	`, string(models.BuildStatusCancelled), formatTime(time.Now()), string(models.BuildStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("mark interrupted builds: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) queryBuilds(ctx context.Context, query string, args ...any) ([]models.BuildRecord, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var builds []models.BuildRecord
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		builds = append(builds, *b)
	}
	return builds, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(s scanner) (*models.BuildRecord, error) {
	var (
		b          models.BuildRecord
		parentID   sql.NullString
		spec       string
		status     string
		errMsg     sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)
	err := s.Scan(&b.ID, &parentID, &b.Coder, &spec, &b.ProjectHome, &b.Depth, &status,
		&b.Iterations, &b.FilesTouched, &errMsg, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	b.ParentID = parentID.String
	b.Specification = models.Specification(spec)
	b.Status = models.BuildStatus(status)
	b.Error = errMsg.String
	b.StartedAt, _ = parseTime(startedAt)
	b.FinishedAt = parseNullableTime(finishedAt)
	return &b, nil
}

// RecordIteration inserts an iteration row.
func (db *DB) RecordIteration(ctx context.Context, it *models.IterationRecord) error {
	success := 0
	if it.Success {
		success = 1
	}
	_, err := db.Exec(ctx, `
		INSERT OR REPLACE INTO iterations
			(build_id, iteration, success, test_files, lines_added, lines_removed, diagnostics, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, it.BuildID, it.Iteration, success, it.TestFiles, it.LinesAdded, it.LinesRemoved,
		nullString(it.Diagnostics), formatTime(it.RecordedAt))
	if err != nil {
		return fmt.Errorf("record iteration: %w", err)
	}
	return nil
}

// ListIterations returns the iterations of a build in order.
func (db *DB) ListIterations(ctx context.Context, buildID string) ([]models.IterationRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT build_id, iteration, success, test_files, lines_added, lines_removed, diagnostics, recorded_at
		FROM iterations WHERE build_id = ? ORDER BY iteration ASC
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var out []models.IterationRecord
	for rows.Next() {
		var (
			it          models.IterationRecord
			success     int
			diagnostics sql.NullString
			recordedAt  string
		)
		if err := rows.Scan(&it.BuildID, &it.Iteration, &success, &it.TestFiles,
			&it.LinesAdded, &it.LinesRemoved, &diagnostics, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		it.Success = success != 0
		it.Diagnostics = diagnostics.String
		it.RecordedAt, _ = parseTime(recordedAt)
		out = append(out, it)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
