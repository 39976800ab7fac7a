package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/skopos/internal/natsbus"
	"github.com/mtzanidakis/skopos/internal/schedule"
	"github.com/mtzanidakis/skopos/internal/store"
	"github.com/mtzanidakis/skopos/internal/swarm"
	"github.com/nats-io/nats.go"
)

// analyzeTimeout bounds one IPC-triggered analysis; the CLI side waits
// slightly longer.
const analyzeTimeout = 3 * time.Minute

type IPCCommand struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Scheduler) subscribeIPC() error {
	if s.client == nil {
		return nil
	}
	_, err := s.client.Subscribe(natsbus.TopicOpsIPC, s.handleIPC)
	return err
}

func (s *Scheduler) handleIPC(msg *nats.Msg) {
	var cmd IPCCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		slog.Warn("invalid IPC command", "error", err)
		s.respondIPC(msg, map[string]any{"error": "invalid command"})
		return
	}

	slog.Info("IPC command received", "type", cmd.Type)

	switch cmd.Type {
	case "analyze":
		s.ipcAnalyze(msg, cmd.Payload)
	case "create_scan":
		s.ipcCreateScan(msg, cmd.Payload)
	case "list_scans":
		s.ipcListScans(msg)
	case "delete_scan":
		s.ipcDeleteScan(msg, cmd.Payload)
	case "status":
		s.ipcStatus(msg)
	default:
		slog.Warn("unknown IPC command", "type", cmd.Type)
		s.respondIPC(msg, map[string]any{"error": "unknown command: " + cmd.Type})
	}
}

func (s *Scheduler) respondIPC(msg *nats.Msg, data any) {
	resp, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to marshal IPC response", "error", err)
		return
	}
	if err := msg.Respond(resp); err != nil {
		slog.Error("failed to respond to IPC", "error", err)
	}
}

func (s *Scheduler) ipcAnalyze(msg *nats.Msg, payload json.RawMessage) {
	var req struct {
		URL         string   `json:"url"`
		Competitors []string `json:"competitors"`
		Industry    string   `json:"industry"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		s.respondIPC(msg, map[string]any{"error": "invalid payload"})
		return
	}
	if req.URL == "" {
		s.respondIPC(msg, map[string]any{"error": "url is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), analyzeTimeout)
	defer cancel()

	out, err := s.svc.Analyze(ctx, swarm.Request{
		URL:            req.URL,
		CompetitorURLs: req.Competitors,
		Industry:       req.Industry,
	}, swarm.Callbacks{})
	if err != nil {
		s.respondIPC(msg, map[string]any{"error": err.Error()})
		return
	}

	s.respondIPC(msg, map[string]any{
		"ok":              true,
		"id":              out.ID,
		"success":         out.Result.Success,
		"score":           out.Summary.YourScore,
		"ranking":         out.Summary.YourRanking,
		"revenue_at_risk": out.Summary.RevenueAtRisk,
		"quadrant":        out.Summary.PositionQuadrant,
		"errors":          out.Result.Errors,
	})
}

func (s *Scheduler) ipcCreateScan(msg *nats.Msg, payload json.RawMessage) {
	var req struct {
		URL         string   `json:"url"`
		Competitors []string `json:"competitors"`
		Industry    string   `json:"industry"`
		Schedule    string   `json:"schedule"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		s.respondIPC(msg, map[string]any{"error": "invalid payload"})
		return
	}
	if req.URL == "" || req.Schedule == "" {
		s.respondIPC(msg, map[string]any{"error": "url and schedule are required"})
		return
	}

	normalized, err := schedule.NormalizeSchedule(req.Schedule)
	if err != nil {
		s.respondIPC(msg, map[string]any{"error": fmt.Sprintf("invalid schedule: %v", err)})
		return
	}

	n := &store.Scan{
		ID:             uuid.New().String(),
		URL:            req.URL,
		CompetitorURLs: req.Competitors,
		Industry:       req.Industry,
		Schedule:       normalized,
		Status:         "active",
		NextRunAt:      schedule.CalculateNextRun(normalized),
	}

	if err := s.store.SaveScan(n); err != nil {
		s.respondIPC(msg, map[string]any{"error": fmt.Sprintf("save failed: %v", err)})
		return
	}

	slog.Info("scan created via IPC", "id", n.ID, "url", n.URL)
	s.Wake()
	s.respondIPC(msg, map[string]any{"ok": true, "id": n.ID, "next_run_at": n.NextRunAt})
}

func (s *Scheduler) ipcListScans(msg *nats.Msg) {
	scans, err := s.store.ListScans()
	if err != nil {
		s.respondIPC(msg, map[string]any{"error": fmt.Sprintf("list failed: %v", err)})
		return
	}

	type scanEntry struct {
		ID         string     `json:"id"`
		URL        string     `json:"url"`
		Schedule   string     `json:"schedule"`
		Status     string     `json:"status"`
		LastStatus string     `json:"last_status,omitempty"`
		LastScore  int        `json:"last_score,omitempty"`
		NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	}
	out := make([]scanEntry, 0, len(scans))
	for _, n := range scans {
		out = append(out, scanEntry{
			ID:         n.ID,
			URL:        n.URL,
			Schedule:   schedule.FormatSchedule(n.Schedule),
			Status:     n.Status,
			LastStatus: n.LastStatus,
			LastScore:  n.LastScore,
			NextRunAt:  n.NextRunAt,
		})
	}
	s.respondIPC(msg, map[string]any{"ok": true, "scans": out})
}

func (s *Scheduler) ipcDeleteScan(msg *nats.Msg, payload json.RawMessage) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ID == "" {
		s.respondIPC(msg, map[string]any{"error": "id is required"})
		return
	}
	if err := s.store.DeleteScan(req.ID); err != nil {
		s.respondIPC(msg, map[string]any{"error": fmt.Sprintf("delete failed: %v", err)})
		return
	}
	slog.Info("scan deleted via IPC", "id", req.ID)
	s.Wake()
	s.respondIPC(msg, map[string]any{"ok": true})
}

func (s *Scheduler) ipcStatus(msg *nats.Msg) {
	monthStart := time.Now().AddDate(0, 0, -30)
	analyses, err := s.store.CountAnalysesSince(monthStart)
	if err != nil {
		s.respondIPC(msg, map[string]any{"error": fmt.Sprintf("count analyses: %v", err)})
		return
	}
	jobs, err := s.store.CountActiveJobs()
	if err != nil {
		s.respondIPC(msg, map[string]any{"error": fmt.Sprintf("count jobs: %v", err)})
		return
	}
	scans, err := s.store.ListScans()
	if err != nil {
		s.respondIPC(msg, map[string]any{"error": fmt.Sprintf("list scans: %v", err)})
		return
	}
	active := 0
	for _, n := range scans {
		if n.Status == "active" {
			active++
		}
	}

	s.respondIPC(msg, map[string]any{
		"ok":           true,
		"analyses_30d": analyses,
		"active_jobs":  jobs,
		"total_scans":  len(scans),
		"active_scans": active,
	})
}
