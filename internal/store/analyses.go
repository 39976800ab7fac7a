package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Analysis struct {
	ID         string          `json:"id"`
	URL        string          `json:"url"`
	UserID     string          `json:"user_id,omitempty"`
	Industry   string          `json:"industry,omitempty"`
	Success    bool            `json:"success"`
	Score      int             `json:"score"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	Errors     []string        `json:"errors,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (s *Store) SaveAnalysis(a *Analysis) error {
	var errs any
	if len(a.Errors) > 0 {
		data, err := json.Marshal(a.Errors)
		if err != nil {
			return fmt.Errorf("marshal errors: %w", err)
		}
		errs = string(data)
	}

	var summary any
	if len(a.Summary) > 0 {
		summary = string(a.Summary)
	}

	_, err := s.db.Exec(`
		INSERT INTO analyses (id, url, user_id, industry, success, score, summary, errors, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.URL, a.UserID, a.Industry, boolToInt(a.Success), a.Score, summary, errs, a.DurationMS)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

func (s *Store) GetAnalysis(id string) (*Analysis, error) {
	row := s.db.QueryRow(`
		SELECT id, url, user_id, industry, success, score, summary, errors, duration_ms, created_at
		FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

func (s *Store) ListAnalyses(limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, url, user_id, industry, success, score, summary, errors, duration_ms, created_at
		FROM analyses ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		analyses = append(analyses, *a)
	}
	return analyses, rows.Err()
}

func (s *Store) ListAnalysesForURL(url string, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, url, user_id, industry, success, score, summary, errors, duration_ms, created_at
		FROM analyses WHERE url = ? ORDER BY created_at DESC LIMIT ?`, url, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses for url: %w", err)
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		analyses = append(analyses, *a)
	}
	return analyses, rows.Err()
}

func (s *Store) CountAnalysesSince(since time.Time) (int, error) {
	// created_at is filled by CURRENT_TIMESTAMP, so the boundary must use
	// the same UTC text format for the comparison to order correctly.
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM analyses WHERE created_at >= ?`,
		since.UTC().Format("2006-01-02 15:04:05")).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count analyses: %w", err)
	}
	return n, nil
}

func scanAnalysis(sc scanner) (*Analysis, error) {
	a := &Analysis{}
	var success int
	var userID, industry, summary, errs sql.NullString
	err := sc.Scan(&a.ID, &a.URL, &userID, &industry, &success, &a.Score,
		&summary, &errs, &a.DurationMS, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Success = success == 1
	a.UserID = userID.String
	a.Industry = industry.String
	if summary.Valid {
		a.Summary = json.RawMessage(summary.String)
	}
	if errs.Valid {
		if err := json.Unmarshal([]byte(errs.String), &a.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal errors: %w", err)
		}
	}
	return a, nil
}
