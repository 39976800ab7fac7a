package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Job struct {
	ID          string          `json:"id"`
	URLs        []string        `json:"urls"`
	Industry    string          `json:"industry,omitempty"`
	Status      string          `json:"status"`
	Total       int             `json:"total"`
	Completed   int             `json:"completed"`
	Failed      int             `json:"failed"`
	Results     json.RawMessage `json:"results,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (s *Store) SaveJob(j *Job) error {
	urls, err := json.Marshal(j.URLs)
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, urls, industry, status, total)
		VALUES (?, ?, ?, ?, ?)`,
		j.ID, string(urls), j.Industry, j.Status, j.Total)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT id, urls, industry, status, total, completed, failed, results, error,
		       created_at, started_at, completed_at
		FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *Store) ListJobs(limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, urls, industry, status, total, completed, failed, results, error,
		       created_at, started_at, completed_at
		FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ClaimJob atomically moves the oldest pending job to running and returns
// it. Returns nil when no job is pending. Safe to call from concurrent
// workers: the conditional UPDATE ensures only one claimer wins.
func (s *Store) ClaimJob() (*Job, error) {
	for {
		var id string
		err := s.db.QueryRow(`
			SELECT id FROM jobs WHERE status = 'pending' ORDER BY created_at LIMIT 1`).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find pending job: %w", err)
		}

		res, err := s.db.Exec(`
			UPDATE jobs SET status = 'running', started_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = 'pending'`, id)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim job rows: %w", err)
		}
		if n == 0 {
			// Another worker claimed it first, try the next one.
			continue
		}

		return s.GetJob(id)
	}
}

func (s *Store) UpdateJobProgress(id string, completed, failed int, results json.RawMessage) error {
	var res any
	if len(results) > 0 {
		res = string(results)
	}
	_, err := s.db.Exec(`
		UPDATE jobs SET completed = ?, failed = ?, results = ? WHERE id = ?`,
		completed, failed, res, id)
	return err
}

func (s *Store) FinishJob(id string, status string, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE jobs SET status = ?, error = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, errMsg, id)
	return err
}

func (s *Store) CountActiveJobs() (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM jobs WHERE status IN ('pending', 'running')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return n, nil
}

func scanJob(sc scanner) (*Job, error) {
	j := &Job{}
	var urls string
	var industry, results, errMsg sql.NullString
	err := sc.Scan(&j.ID, &urls, &industry, &j.Status, &j.Total, &j.Completed, &j.Failed,
		&results, &errMsg, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(urls), &j.URLs); err != nil {
		return nil, fmt.Errorf("unmarshal urls: %w", err)
	}
	j.Industry = industry.String
	j.Error = errMsg.String
	if results.Valid {
		j.Results = json.RawMessage(results.String)
	}
	return j, nil
}
