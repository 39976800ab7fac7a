package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mtzanidakis/skopos/internal/event"
)

type InsightRow struct {
	ID         int64           `json:"id"`
	AnalysisID string          `json:"analysis_id"`
	AgentID    string          `json:"agent_id"`
	AgentName  string          `json:"agent_name,omitempty"`
	Content    string          `json:"content"`
	Category   string          `json:"category,omitempty"`
	Priority   string          `json:"priority,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SaveInsights persists every insight of one analysis run in a single
// transaction, preserving emission order.
func (s *Store) SaveInsights(analysisID string, insights []event.Insight) error {
	if len(insights) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ins := range insights {
		var data any
		if len(ins.Data) > 0 {
			raw, err := json.Marshal(ins.Data)
			if err != nil {
				return fmt.Errorf("marshal insight data: %w", err)
			}
			data = string(raw)
		}
		if _, err := tx.Exec(`
			INSERT INTO insights (analysis_id, agent_id, agent_name, content, category, priority, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			analysisID, ins.AgentID, ins.AgentName, ins.Message,
			string(ins.Category), string(ins.Priority), data); err != nil {
			return fmt.Errorf("insert insight: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) ListInsights(analysisID string) ([]InsightRow, error) {
	rows, err := s.db.Query(`
		SELECT id, analysis_id, agent_id, agent_name, content, category, priority, data, created_at
		FROM insights WHERE analysis_id = ? ORDER BY id`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	var insights []InsightRow
	for rows.Next() {
		r := &InsightRow{}
		var name, category, priority, data sql.NullString
		if err := rows.Scan(&r.ID, &r.AnalysisID, &r.AgentID, &name, &r.Content,
			&category, &priority, &data, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		r.AgentName = name.String
		r.Category = category.String
		r.Priority = priority.String
		if data.Valid {
			r.Data = json.RawMessage(data.String)
		}
		insights = append(insights, *r)
	}
	return insights, rows.Err()
}
