package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Scan struct {
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	CompetitorURLs []string   `json:"competitor_urls,omitempty"`
	Industry       string     `json:"industry,omitempty"`
	Schedule       string     `json:"schedule"`
	Status         string     `json:"status"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastStatus     string     `json:"last_status,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	LastScore      int        `json:"last_score,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func scanScan(sc scanner) (*Scan, error) {
	n := &Scan{}
	var competitors, industry, lastStatus, lastError sql.NullString
	err := sc.Scan(&n.ID, &n.URL, &competitors, &industry, &n.Schedule, &n.Status,
		&n.NextRunAt, &n.LastRunAt, &lastStatus, &lastError, &n.LastScore, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.Industry = industry.String
	n.LastStatus = lastStatus.String
	n.LastError = lastError.String
	if competitors.Valid && competitors.String != "" {
		if err := json.Unmarshal([]byte(competitors.String), &n.CompetitorURLs); err != nil {
			return nil, fmt.Errorf("unmarshal competitor urls: %w", err)
		}
	}
	return n, nil
}

func (s *Store) SaveScan(n *Scan) error {
	var competitors any
	if len(n.CompetitorURLs) > 0 {
		data, err := json.Marshal(n.CompetitorURLs)
		if err != nil {
			return fmt.Errorf("marshal competitor urls: %w", err)
		}
		competitors = string(data)
	}

	_, err := s.db.Exec(`
		INSERT INTO scans (id, url, competitor_urls, industry, schedule, status, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			competitor_urls = excluded.competitor_urls,
			industry = excluded.industry,
			schedule = excluded.schedule,
			status = excluded.status,
			next_run_at = excluded.next_run_at`,
		n.ID, n.URL, competitors, n.Industry, n.Schedule, n.Status, n.NextRunAt)
	if err != nil {
		return fmt.Errorf("save scan: %w", err)
	}
	return nil
}

func (s *Store) GetScan(id string) (*Scan, error) {
	row := s.db.QueryRow(`
		SELECT id, url, competitor_urls, industry, schedule, status,
		       next_run_at, last_run_at, last_status, last_error, last_score, created_at
		FROM scans WHERE id = ?`, id)
	n, err := scanScan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return n, nil
}

func (s *Store) ListScans() ([]Scan, error) {
	rows, err := s.db.Query(`
		SELECT id, url, competitor_urls, industry, schedule, status,
		       next_run_at, last_run_at, last_status, last_error, last_score, created_at
		FROM scans ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		n, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		scans = append(scans, *n)
	}
	return scans, rows.Err()
}

func (s *Store) GetDueScans(now time.Time) ([]Scan, error) {
	rows, err := s.db.Query(`
		SELECT id, url, competitor_urls, industry, schedule, status,
		       next_run_at, last_run_at, last_status, last_error, last_score, created_at
		FROM scans
		WHERE status = 'active' AND next_run_at <= ?
		ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("get due scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		n, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		scans = append(scans, *n)
	}
	return scans, rows.Err()
}

func (s *Store) UpdateScanRun(id string, lastStatus, lastError string, lastScore int, nextRunAt *time.Time) error {
	_, err := s.db.Exec(`
		UPDATE scans
		SET last_run_at = CURRENT_TIMESTAMP, last_status = ?, last_error = ?, last_score = ?, next_run_at = ?
		WHERE id = ?`, lastStatus, lastError, lastScore, nextRunAt, id)
	return err
}

func (s *Store) UpdateScanStatus(id string, status string) error {
	_, err := s.db.Exec(`UPDATE scans SET status = ? WHERE id = ?`, status, id)
	return err
}

func (s *Store) DeleteScan(id string) error {
	_, err := s.db.Exec(`DELETE FROM scans WHERE id = ?`, id)
	return err
}
