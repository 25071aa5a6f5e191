package db

import (
	"fmt"
	"time"

	"github.com/lwt-sadais/EnsoAI/internal/git"
)

// defaultHistoryLimit caps List when the caller does not.
const defaultHistoryLimit = 50

// MergeHistory is the append-only record of merge attempts, one row per
// terminal outcome. It implements git.HistoryRecorder.
type MergeHistory struct {
	db *DB
}

// NewMergeHistory creates a merge history store over db.
func NewMergeHistory(db *DB) *MergeHistory {
	return &MergeHistory{db: db}
}

// Record appends one merge attempt.
func (h *MergeHistory) Record(rec git.MergeRecord) error {
	p := h.db.Placeholder
	query := fmt.Sprintf(`
		INSERT INTO merge_history
			(id, repo_path, source_branch, target_branch, strategy, outcome,
			 conflicts, duration_ms, started_at, finished_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		p(1), p(2), p(3), p(4), p(5), p(6), p(7), p(8), p(9), p(10),
	)

	_, err := h.db.Exec(query,
		rec.ID, rec.RepoPath, rec.SourceBranch, rec.TargetBranch,
		rec.Strategy, rec.Outcome, rec.Conflicts,
		rec.Duration.Milliseconds(),
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record merge %s: %w", rec.ID, err)
	}
	return nil
}

// List returns the most recent attempts for a repository, newest first.
// limit <= 0 applies the default.
func (h *MergeHistory) List(repoPath string, limit int) ([]git.MergeRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := fmt.Sprintf(`
		SELECT id, repo_path, source_branch, target_branch, strategy, outcome,
		       conflicts, duration_ms, started_at, finished_at
		FROM merge_history
		WHERE repo_path = %s
		ORDER BY started_at DESC
		LIMIT %s`,
		h.db.Placeholder(1), h.db.Placeholder(2),
	)

	rows, err := h.db.Query(query, repoPath, limit)
	if err != nil {
		return nil, fmt.Errorf("list merge history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []git.MergeRecord
	for rows.Next() {
		var rec git.MergeRecord
		var durationMs int64
		var startedAt, finishedAt string

		if err := rows.Scan(&rec.ID, &rec.RepoPath, &rec.SourceBranch, &rec.TargetBranch,
			&rec.Strategy, &rec.Outcome, &rec.Conflicts, &durationMs, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan merge record: %w", err)
		}

		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			rec.StartedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
			rec.FinishedAt = ts
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merge history: %w", err)
	}
	return records, nil
}
