package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mpataki/foundry/internal/models"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Batch runs save from several goroutines; sqlite wants one writer.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		project_name TEXT NOT NULL,
		template_id TEXT NOT NULL,
		language TEXT NOT NULL,
		requirement TEXT NOT NULL,
		iteration_budget INTEGER NOT NULL,
		stage_timeout_ms INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		fault TEXT,
		iterations INTEGER NOT NULL DEFAULT 0,
		markers TEXT,
		dependencies TEXT
	);

	CREATE TABLE IF NOT EXISTS iterations (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		idx INTEGER NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		overall_success INTEGER NOT NULL,
		failed_stage TEXT,
		record TEXT NOT NULL,
		PRIMARY KEY (session_id, idx)
	);

	CREATE TABLE IF NOT EXISTS files (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		path TEXT NOT NULL,
		language TEXT,
		content TEXT NOT NULL,
		PRIMARY KEY (session_id, path)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSession stores a finished session with its iterations and final
// files, replacing any earlier copy.
func (s *Storage) SaveSession(ctx context.Context, result *models.SessionResult) error {
	markers, err := json.Marshal(result.Markers)
	if err != nil {
		return err
	}
	deps, err := json.Marshal(result.MergedDependencies)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteSession(ctx, tx, result.ID); err != nil {
		return err
	}

	var completedAt *time.Time
	if !result.CompletedAt.IsZero() {
		completedAt = &result.CompletedAt
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, completed_at, project_name, template_id, language, requirement,
		 iteration_budget, stage_timeout_ms, status, fault, iterations, markers, dependencies)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.StartedAt, completedAt, result.Spec.ProjectName, result.Spec.TemplateID,
		string(result.Spec.Language), result.Spec.Requirement, result.Spec.IterationBudget,
		result.Spec.StageTimeout.Milliseconds(), string(result.Status), result.Fault,
		len(result.Iterations), string(markers), string(deps),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, it := range result.Iterations {
		record, err := json.Marshal(it)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO iterations (session_id, idx, started_at, completed_at, overall_success, failed_stage, record)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			result.ID, it.Index, it.StartedAt, it.CompletedAt, it.OverallSuccess, string(it.FailedStage()), string(record),
		)
		if err != nil {
			return fmt.Errorf("insert iteration %d: %w", it.Index, err)
		}
	}

	for _, p := range result.FinalFiles.Paths() {
		f := result.FinalFiles[p]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO files (session_id, path, language, content) VALUES (?, ?, ?, ?)`,
			result.ID, f.Path, f.Language, f.Content,
		)
		if err != nil {
			return fmt.Errorf("insert file %s: %w", p, err)
		}
	}

	return tx.Commit()
}

const summaryColumns = `id, created_at, completed_at, project_name, template_id, language, requirement, status, fault, iterations`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (*models.SessionSummary, error) {
	var sum models.SessionSummary
	var completedAt sql.NullTime
	var fault sql.NullString

	err := row.Scan(
		&sum.ID, &sum.CreatedAt, &completedAt, &sum.ProjectName, &sum.TemplateID,
		&sum.Language, &sum.Requirement, &sum.Status, &fault, &sum.Iterations,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		sum.CompletedAt = &completedAt.Time
	}
	if fault.Valid {
		sum.Fault = fault.String
	}
	return &sum, nil
}

func (s *Storage) ListSessions(limit int) ([]*models.SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT `+summaryColumns+` FROM sessions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.SessionSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sum)
	}

	return sessions, rows.Err()
}

func (s *Storage) GetSummary(id string) (*models.SessionSummary, error) {
	row := s.db.QueryRow(`SELECT `+summaryColumns+` FROM sessions WHERE id = ?`, id)
	return scanSummary(row)
}

// GetSession loads a stored session with its full history. A missing
// session yields sql.ErrNoRows.
func (s *Storage) GetSession(id string) (*models.SessionResult, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, completed_at, project_name, template_id, language, requirement,
		 iteration_budget, stage_timeout_ms, status, fault, markers, dependencies
		 FROM sessions WHERE id = ?`, id,
	)

	var result models.SessionResult
	var completedAt sql.NullTime
	var fault, markers, deps sql.NullString
	var timeoutMS int64

	err := row.Scan(
		&result.ID, &result.StartedAt, &completedAt, &result.Spec.ProjectName, &result.Spec.TemplateID,
		&result.Spec.Language, &result.Spec.Requirement, &result.Spec.IterationBudget, &timeoutMS,
		&result.Status, &fault, &markers, &deps,
	)
	if err != nil {
		return nil, err
	}

	result.Spec.StageTimeout = time.Duration(timeoutMS) * time.Millisecond
	if completedAt.Valid {
		result.CompletedAt = completedAt.Time
	}
	if fault.Valid {
		result.Fault = fault.String
	}
	if markers.Valid {
		if err := json.Unmarshal([]byte(markers.String), &result.Markers); err != nil {
			return nil, fmt.Errorf("decode markers: %w", err)
		}
	}
	if deps.Valid {
		if err := json.Unmarshal([]byte(deps.String), &result.MergedDependencies); err != nil {
			return nil, fmt.Errorf("decode dependencies: %w", err)
		}
	}

	if result.Iterations, err = s.GetIterations(id); err != nil {
		return nil, err
	}
	if result.FinalFiles, err = s.GetFiles(id); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Storage) GetIterations(sessionID string) ([]models.IterationRecord, error) {
	rows, err := s.db.Query(
		`SELECT record FROM iterations WHERE session_id = ? ORDER BY idx`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.IterationRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec models.IterationRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode iteration: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (s *Storage) GetFiles(sessionID string) (models.FileSet, error) {
	rows, err := s.db.Query(
		`SELECT path, language, content FROM files WHERE session_id = ? ORDER BY path`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stored []*models.GeneratedFile
	for rows.Next() {
		var f models.GeneratedFile
		var lang sql.NullString
		if err := rows.Scan(&f.Path, &lang, &f.Content); err != nil {
			return nil, err
		}
		f.Language = lang.String
		stored = append(stored, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return models.NewFileSet(stored...)
}

func (s *Storage) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteSession(context.Background(), tx, id); err != nil {
		return err
	}

	return tx.Commit()
}

func deleteSession(ctx context.Context, tx *sql.Tx, id string) error {
	for _, stmt := range []string{
		`DELETE FROM files WHERE session_id = ?`,
		`DELETE FROM iterations WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return nil
}

// Helper to format time for display
func FormatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}
