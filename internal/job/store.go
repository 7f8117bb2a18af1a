package job

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sidekick-bot/sidekick/internal/mention"
)

// Store persists job records in SQLite so finished jobs survive restarts and
// can be evicted on a TTL rather than accumulating forever.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the job database at the given directory.
func NewStore(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "sidekick.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		issue_number INTEGER NOT NULL,
		comment_id INTEGER NOT NULL,
		author TEXT NOT NULL,
		status TEXT NOT NULL,
		mention_json TEXT,
		command_json TEXT,
		result_json TEXT,
		error TEXT,
		is_pr INTEGER NOT NULL DEFAULT 0,
		is_issue INTEGER NOT NULL DEFAULT 0,
		is_pr_review INTEGER NOT NULL DEFAULT 0,
		pr_url TEXT,
		notification_thread_id TEXT,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME
	)`)
	return err
}

// Save upserts a job record.
func (s *Store) Save(j *Job) error {
	mentionJSON, err := json.Marshal(j.Mention)
	if err != nil {
		return fmt.Errorf("failed to marshal mention: %w", err)
	}
	commandJSON, err := json.Marshal(j.Command)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	var resultJSON []byte
	if j.Result != nil {
		resultJSON, err = json.Marshal(j.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	_, err = s.db.Exec(`INSERT INTO jobs (
			id, repository, issue_number, comment_id, author, status,
			mention_json, command_json, result_json, error,
			is_pr, is_issue, is_pr_review, pr_url, notification_thread_id,
			created_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result_json = excluded.result_json,
			error = excluded.error,
			pr_url = excluded.pr_url,
			notification_thread_id = excluded.notification_thread_id,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		j.ID, j.Repository, j.IssueNumber, j.CommentID, j.Author, string(j.Status),
		string(mentionJSON), string(commandJSON), nullableString(resultJSON), j.Error,
		boolToInt(j.IsPR), boolToInt(j.IsIssue), boolToInt(j.IsPRReview),
		j.PullRequestURL, j.NotificationThreadID,
		j.CreatedAt, nullableTime(j.StartedAt), nullableTime(j.CompletedAt),
	)
	return err
}

// Load fetches a job by id. Returns nil, nil when not found.
func (s *Store) Load(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT
			id, repository, issue_number, comment_id, author, status,
			mention_json, command_json, result_json, error,
			is_pr, is_issue, is_pr_review, pr_url, notification_thread_id,
			created_at, started_at, completed_at
		FROM jobs WHERE id = ?`, id)

	var j Job
	var status string
	var mentionJSON, commandJSON string
	var resultJSON, errText, prURL, threadID sql.NullString
	var isPR, isIssue, isPRReview int
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.Repository, &j.IssueNumber, &j.CommentID, &j.Author, &status,
		&mentionJSON, &commandJSON, &resultJSON, &errText,
		&isPR, &isIssue, &isPRReview, &prURL, &threadID,
		&j.CreatedAt, &startedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	j.Status = Status(status)
	j.Error = errText.String
	j.PullRequestURL = prURL.String
	j.NotificationThreadID = threadID.String
	j.IsPR = isPR != 0
	j.IsIssue = isIssue != 0
	j.IsPRReview = isPRReview != 0
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}

	if mentionJSON != "" && mentionJSON != "null" {
		j.Mention = &mention.Mention{}
		if err := json.Unmarshal([]byte(mentionJSON), j.Mention); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mention for %s: %w", id, err)
		}
	}
	if commandJSON != "" && commandJSON != "null" {
		j.Command = &mention.ParsedCommand{}
		if err := json.Unmarshal([]byte(commandJSON), j.Command); err != nil {
			return nil, fmt.Errorf("failed to unmarshal command for %s: %w", id, err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		j.Result = &Result{}
		if err := json.Unmarshal([]byte(resultJSON.String), j.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result for %s: %w", id, err)
		}
	}

	return &j, nil
}

// Prune deletes terminal jobs completed before the cutoff. Returns the number
// of rows removed.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM jobs WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(StatusCompleted), string(StatusFailed), cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
