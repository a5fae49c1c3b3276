package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	_ "modernc.org/sqlite"
)

// takenAtLayout is fixed width so that text ordering matches time ordering.
const takenAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// HistoryStore keeps health snapshots in SQLite.
type HistoryStore struct {
	DBPath string
	db     *sql.DB
}

// OpenHistory opens or creates the snapshot database at path.
func OpenHistory(path string) (*HistoryStore, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve history db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0700); err != nil {
		return nil, fmt.Errorf("ensure history db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// Single writer; concurrent assessments queue here instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &HistoryStore{DBPath: absPath, db: db}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *HistoryStore) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS health_snapshots (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	job_name TEXT NOT NULL,
	taken_at TEXT NOT NULL,
	health_status TEXT NOT NULL,
	priority TEXT NOT NULL,
	cpi REAL,
	budget_utilization REAL NOT NULL,
	progress_percent REAL NOT NULL,
	issues_json TEXT NOT NULL,
	degraded_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_job_taken ON health_snapshots(job_id, taken_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// Append stores a snapshot.
func (s *HistoryStore) Append(ctx context.Context, snap finance.Snapshot) error {
	issues, err := json.Marshal(snap.Issues)
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}
	degraded, err := json.Marshal(snap.Degraded)
	if err != nil {
		return fmt.Errorf("marshal degraded feeds: %w", err)
	}

	var cpi sql.NullFloat64
	if snap.CPI != nil {
		cpi = sql.NullFloat64{Float64: *snap.CPI, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO health_snapshots (
			id, job_id, job_name, taken_at, health_status, priority,
			cpi, budget_utilization, progress_percent, issues_json, degraded_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.ID, snap.JobID, snap.JobName, snap.TakenAt.UTC().Format(takenAtLayout),
		string(snap.HealthStatus), string(snap.Priority),
		cpi, snap.BudgetUtilization, snap.ProgressPercent, string(issues), string(degraded),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

const selectSnapshot = `
	SELECT id, job_id, job_name, taken_at, health_status, priority,
	       cpi, budget_utilization, progress_percent, issues_json, degraded_json
	FROM health_snapshots`

// Latest returns the newest snapshot for jobID, or nil when there is none.
func (s *HistoryStore) Latest(ctx context.Context, jobID string) (*finance.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, selectSnapshot+`
		WHERE job_id = ?
		ORDER BY taken_at DESC, rowid DESC
		LIMIT 1
	`, jobID)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// List returns up to limit snapshots for jobID, newest first. A limit of
// zero or less returns all of them.
func (s *HistoryStore) List(ctx context.Context, jobID string, limit int) ([]finance.Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectSnapshot+`
		WHERE job_id = ?
		ORDER BY taken_at DESC, rowid DESC
		LIMIT ?
	`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var result []finance.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return result, nil
}

// Prune deletes snapshots taken before cutoff and returns how many were removed.
func (s *HistoryStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM health_snapshots WHERE taken_at < ?",
		cutoff.UTC().Format(takenAtLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (finance.Snapshot, error) {
	var (
		snap         finance.Snapshot
		takenAt      string
		health       string
		priority     string
		cpi          sql.NullFloat64
		issuesJSON   string
		degradedJSON string
	)
	err := row.Scan(
		&snap.ID, &snap.JobID, &snap.JobName, &takenAt, &health, &priority,
		&cpi, &snap.BudgetUtilization, &snap.ProgressPercent, &issuesJSON, &degradedJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, err
		}
		return snap, fmt.Errorf("scan snapshot: %w", err)
	}

	t, err := time.Parse(takenAtLayout, takenAt)
	if err != nil {
		return snap, fmt.Errorf("parse taken_at %q: %w", takenAt, err)
	}
	snap.TakenAt = t
	snap.HealthStatus = finance.HealthStatus(health)
	snap.Priority = finance.Priority(priority)
	if cpi.Valid {
		v := cpi.Float64
		snap.CPI = &v
	}
	if err := json.Unmarshal([]byte(issuesJSON), &snap.Issues); err != nil {
		return snap, fmt.Errorf("unmarshal issues: %w", err)
	}
	if snap.Issues == nil {
		snap.Issues = []finance.Issue{}
	}
	if err := json.Unmarshal([]byte(degradedJSON), &snap.Degraded); err != nil {
		return snap, fmt.Errorf("unmarshal degraded feeds: %w", err)
	}
	return snap, nil
}
