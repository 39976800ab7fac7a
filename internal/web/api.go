package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/skopos/internal/report"
	"github.com/mtzanidakis/skopos/internal/schedule"
	"github.com/mtzanidakis/skopos/internal/store"
	"github.com/mtzanidakis/skopos/internal/swarm"
)

// maxActiveJobs caps concurrent batch jobs accepted at submission.
const maxActiveJobs = 10

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Agents
	mux.HandleFunc("GET /api/agents/info", s.getAgentsInfo)
	mux.HandleFunc("GET /api/agents/status", s.getAgentsStatus)
	mux.HandleFunc("POST /api/agents/analyze", s.runAnalysis)

	// Analyses
	mux.HandleFunc("GET /api/analyses", s.listAnalyses)
	mux.HandleFunc("GET /api/analyses/{id}", s.getAnalysis)
	mux.HandleFunc("GET /api/usage", s.getUsage)

	// Scans
	mux.HandleFunc("GET /api/scans", s.listScans)
	mux.HandleFunc("POST /api/scans", s.createScan)
	mux.HandleFunc("DELETE /api/scans/{id}", s.deleteScan)

	// Jobs
	mux.HandleFunc("GET /api/jobs", s.listJobs)
	mux.HandleFunc("POST /api/jobs", s.createJob)
	mux.HandleFunc("GET /api/jobs/{id}", s.getJob)

	// Secrets
	mux.HandleFunc("GET /api/secrets", s.listSecrets)
	mux.HandleFunc("POST /api/secrets", s.createSecret)
	mux.HandleFunc("GET /api/secrets/{id}", s.getSecret)
	mux.HandleFunc("DELETE /api/secrets/{id}", s.deleteSecret)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) getAgentsInfo(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"agents":         s.svc.Roster(),
		"execution_flow": s.svc.ExecutionPlan(),
	})
}

func (s *Server) getAgentsStatus(w http.ResponseWriter, r *http.Request) {
	active := s.svc.ActiveRuns()
	jsonResponse(w, map[string]any{
		"running":        len(active) > 0,
		"registered":     len(s.svc.Roster()),
		"execution_plan": s.svc.ExecutionPlan(),
		"active_runs":    active,
	})
}

// analysisResponse flattens the summary and names the stored analysis row.
type analysisResponse struct {
	AnalysisID string `json:"analysis_id"`
	*report.Summary
}

func (s *Server) runAnalysis(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL             string   `json:"url"`
		CompetitorURLs  []string `json:"competitor_urls"`
		Language        string   `json:"language"`
		IndustryContext string   `json:"industry_context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.URL == "" {
		jsonError(w, "url is required", http.StatusBadRequest)
		return
	}
	if len(body.CompetitorURLs) > s.svc.MaxCompetitors() {
		jsonError(w, fmt.Sprintf("too many competitors (max %d)", s.svc.MaxCompetitors()), http.StatusBadRequest)
		return
	}

	out, err := s.svc.Analyze(r.Context(), swarm.Request{
		URL:            body.URL,
		CompetitorURLs: body.CompetitorURLs,
		Language:       body.Language,
		Industry:       body.IndustryContext,
		UserID:         "web",
	}, swarm.Callbacks{})
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResponse(w, analysisResponse{AnalysisID: out.ID, Summary: out.Summary})
}

func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	analyses, err := s.store.ListAnalyses(limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(analyses))
	for _, a := range analyses {
		entry := map[string]any{
			"id":          a.ID,
			"url":         a.URL,
			"success":     a.Success,
			"score":       a.Score,
			"duration_ms": a.DurationMS,
			"created_at":  a.CreatedAt,
		}
		var sum struct {
			YourRanking      int `json:"your_ranking"`
			TotalCompetitors int `json:"total_competitors"`
		}
		if len(a.Summary) > 0 && json.Unmarshal(a.Summary, &sum) == nil {
			entry["ranking"] = sum.YourRanking
			entry["total_competitors"] = sum.TotalCompetitors
		}
		out = append(out, entry)
	}
	jsonResponse(w, out)
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.store.GetAnalysis(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if a == nil {
		jsonError(w, "analysis not found", http.StatusNotFound)
		return
	}

	insights, err := s.store.ListInsights(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if insights == nil {
		insights = []store.InsightRow{}
	}

	jsonResponse(w, map[string]any{
		"analysis": a,
		"insights": insights,
	})
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	total, err := s.store.CountAnalysesSince(time.Time{})
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	month, err := s.store.CountAnalysesSince(monthStart)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]any{
		"total_analyses":      total,
		"analyses_this_month": month,
	})
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.store.ListScans()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if scans == nil {
		scans = []store.Scan{}
	}
	jsonResponse(w, scans)
}

func (s *Server) createScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL            string   `json:"url"`
		CompetitorURLs []string `json:"competitor_urls"`
		Industry       string   `json:"industry"`
		Schedule       string   `json:"schedule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.URL == "" || body.Schedule == "" {
		jsonError(w, "url and schedule are required", http.StatusBadRequest)
		return
	}

	normalized, err := schedule.NormalizeSchedule(body.Schedule)
	if err != nil {
		jsonError(w, fmt.Sprintf("invalid schedule: %v", err), http.StatusBadRequest)
		return
	}

	n := &store.Scan{
		ID:             uuid.New().String(),
		URL:            body.URL,
		CompetitorURLs: body.CompetitorURLs,
		Industry:       body.Industry,
		Schedule:       normalized,
		Status:         "active",
		NextRunAt:      schedule.CalculateNextRun(normalized),
	}
	if err := s.store.SaveScan(n); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.wakeScheduler()
	jsonResponse(w, n)
}

func (s *Server) deleteScan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteScan(id); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.wakeScheduler()
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) wakeScheduler() {
	if s.sched != nil {
		s.sched.Wake()
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(50)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []store.Job{}
	}
	jsonResponse(w, jobs)
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		jsonError(w, "batch jobs not available", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		URLs     []string `json:"urls"`
		Industry string   `json:"industry"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.URLs) == 0 {
		jsonError(w, "urls are required", http.StatusBadRequest)
		return
	}

	active, err := s.store.CountActiveJobs()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if active >= maxActiveJobs {
		jsonError(w, "too many active jobs", http.StatusTooManyRequests)
		return
	}

	job, err := s.runner.Enqueue(body.URLs, body.Industry)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"id":     job.ID,
		"status": job.Status,
		"total":  job.Total,
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.store.GetJob(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, job)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	active := s.svc.ActiveRuns()

	scans, _ := s.store.ListScans()
	activeScans := 0
	for _, n := range scans {
		if n.Status == "active" {
			activeScans++
		}
	}

	activeJobs, _ := s.store.CountActiveJobs()
	total, _ := s.store.CountAnalysesSince(time.Time{})

	natsStatus := "down"
	if s.nats != nil {
		natsStatus = "ok"
	}

	jsonResponse(w, map[string]any{
		"status":       "ok",
		"active_runs":  len(active),
		"active_scans": activeScans,
		"active_jobs":  activeJobs,
		"analyses":     total,
		"uptime":       formatUptime(time.Since(s.startedAt)),
		"nats":         natsStatus,
		"timestamp":    time.Now().UTC(),
		"version":      s.version,
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
