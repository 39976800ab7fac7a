package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mtzanidakis/skopos/internal/agent"
	"github.com/mtzanidakis/skopos/internal/config"
	"github.com/mtzanidakis/skopos/internal/jobs"
	"github.com/mtzanidakis/skopos/internal/natsbus"
	"github.com/mtzanidakis/skopos/internal/store"
	"github.com/mtzanidakis/skopos/internal/swarm"
	"github.com/mtzanidakis/skopos/internal/vault"
)

type fakeFetcher struct{}

func (fakeFetcher) Fetch(_ context.Context, rawURL string) (*agent.Snapshot, error) {
	return &agent.Snapshot{
		URL:            rawURL,
		Domain:         "example.com",
		Reachable:      true,
		StatusCode:     200,
		TLS:            true,
		ResponseMillis: 300,
		Title:          "Example",
		WordCount:      800,
		HasViewport:    true,
	}, nil
}

type testEnv struct {
	ts    *httptest.Server
	srv   *Server
	store *store.Store
	svc   *swarm.Service
}

func newTestServer(t *testing.T, auth string, withBus bool) *testEnv {
	t.Helper()

	dir := t.TempDir()
	st, err := store.New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	var bus *natsbus.Bus
	var client *natsbus.Client
	if withBus {
		bus, err = natsbus.New(config.NATSConfig{Port: 0, DataDir: filepath.Join(dir, "nats")})
		if err != nil {
			t.Fatalf("create bus: %v", err)
		}
		t.Cleanup(bus.Close)

		client, err = natsbus.NewClient(bus)
		if err != nil {
			t.Fatalf("create client: %v", err)
		}
		t.Cleanup(client.Close)
	}

	svc := swarm.NewService(st, client, fakeFetcher{}, swarm.ServiceOptions{})
	runner := jobs.New(st, svc, config.JobsConfig{Workers: 1})
	v := vault.New("test-passphrase")

	srv := NewServer(st, bus, svc, runner, nil, v, config.WebConfig{Auth: auth}, "test")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ts := httptest.NewServer(srv.Handler(ctx))
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, srv: srv, store: st, svc: svc}
}

func (e *testEnv) request(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func decodeJSON(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode response %s: %v", data, err)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestServer(t, "hunter2", false)

	resp, _ := env.request(t, "GET", "/api/status", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}

	resp, _ = env.request(t, "POST", "/api/login", map[string]string{"password": "wrong"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}

	resp, body := env.request(t, "POST", "/api/login", map[string]string{"password": "hunter2"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for login, got %d", resp.StatusCode)
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeJSON(t, body, &login)
	if len(login.Token) != 64 {
		t.Fatalf("expected 32-byte hex token, got %q", login.Token)
	}

	resp, _ = env.request(t, "GET", "/api/status", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with bearer token, got %d", resp.StatusCode)
	}

	resp, _ = env.request(t, "GET", "/api/status?token="+login.Token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with query token, got %d", resp.StatusCode)
	}

	// Basic auth for programmatic access
	req, _ := http.NewRequest("GET", env.ts.URL+"/api/status", nil)
	req.SetBasicAuth("", "hunter2")
	basicResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("basic auth request: %v", err)
	}
	basicResp.Body.Close()
	if basicResp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with basic auth, got %d", basicResp.StatusCode)
	}

	resp, _ = env.request(t, "GET", "/api/auth/check", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 auth check without token, got %d", resp.StatusCode)
	}
	resp, _ = env.request(t, "GET", "/api/auth/check", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 auth check with token, got %d", resp.StatusCode)
	}
}

func TestAuthDisabled(t *testing.T) {
	env := newTestServer(t, "", false)

	resp, _ := env.request(t, "GET", "/api/status", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected open access without auth config, got %d", resp.StatusCode)
	}

	resp, _ = env.request(t, "GET", "/api/auth/check", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 auth check, got %d", resp.StatusCode)
	}
}

func TestAgentsInfo(t *testing.T) {
	env := newTestServer(t, "", false)

	resp, body := env.request(t, "GET", "/api/agents/info", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var info struct {
		Agents []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"agents"`
		ExecutionFlow [][]string `json:"execution_flow"`
	}
	decodeJSON(t, body, &info)

	if len(info.Agents) != 6 {
		t.Errorf("expected 6 agents, got %d", len(info.Agents))
	}
	if len(info.ExecutionFlow) != 5 {
		t.Errorf("expected 5 execution tiers, got %v", info.ExecutionFlow)
	}
	if info.ExecutionFlow[0][0] != "scout" {
		t.Errorf("expected scout in first tier, got %v", info.ExecutionFlow[0])
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	env := newTestServer(t, "", false)

	resp, body := env.request(t, "POST", "/api/agents/analyze", map[string]any{
		"url":             "https://example.com",
		"competitor_urls": []string{"https://rival.example"},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var result struct {
		AnalysisID string `json:"analysis_id"`
		YourScore  int    `json:"your_score"`
		Success    bool   `json:"success"`
	}
	decodeJSON(t, body, &result)
	if result.AnalysisID == "" {
		t.Error("expected analysis_id in response")
	}
	if result.YourScore <= 0 {
		t.Errorf("expected positive score, got %d", result.YourScore)
	}
	if !result.Success {
		t.Error("expected successful analysis")
	}

	// History should list the stored analysis
	resp, body = env.request(t, "GET", "/api/analyses", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing analyses, got %d", resp.StatusCode)
	}
	var list []map[string]any
	decodeJSON(t, body, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 analysis in history, got %d", len(list))
	}

	// Detail includes the stored summary and insights
	resp, body = env.request(t, "GET", "/api/analyses/"+result.AnalysisID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for detail, got %d", resp.StatusCode)
	}
	var detail struct {
		Analysis struct {
			ID    string `json:"id"`
			Score int    `json:"score"`
		} `json:"analysis"`
		Insights []struct {
			AgentID string `json:"agent_id"`
		} `json:"insights"`
	}
	decodeJSON(t, body, &detail)
	if detail.Analysis.ID != result.AnalysisID {
		t.Errorf("expected analysis %s, got %s", result.AnalysisID, detail.Analysis.ID)
	}
	if len(detail.Insights) == 0 {
		t.Error("expected stored insights")
	}

	resp, body = env.request(t, "GET", "/api/usage", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for usage, got %d", resp.StatusCode)
	}
	var usage struct {
		Total int `json:"total_analyses"`
		Month int `json:"analyses_this_month"`
	}
	decodeJSON(t, body, &usage)
	if usage.Total != 1 || usage.Month != 1 {
		t.Errorf("expected usage 1/1, got %d/%d", usage.Total, usage.Month)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	env := newTestServer(t, "", false)

	resp, _ := env.request(t, "POST", "/api/agents/analyze", map[string]any{}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing url, got %d", resp.StatusCode)
	}

	many := make([]string, 6)
	for i := range many {
		many[i] = fmt.Sprintf("https://rival%d.example", i)
	}
	resp, body := env.request(t, "POST", "/api/agents/analyze", map[string]any{
		"url":             "https://example.com",
		"competitor_urls": many,
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for too many competitors, got %d: %s", resp.StatusCode, body)
	}

	resp, _ = env.request(t, "GET", "/api/analyses/nope", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown analysis, got %d", resp.StatusCode)
	}
}

func TestScanEndpoints(t *testing.T) {
	env := newTestServer(t, "", false)

	resp, body := env.request(t, "POST", "/api/scans", map[string]any{
		"url":      "https://example.com",
		"schedule": "daily",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 creating scan, got %d: %s", resp.StatusCode, body)
	}
	var scan struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		NextRunAt string `json:"next_run_at"`
	}
	decodeJSON(t, body, &scan)
	if scan.ID == "" || scan.Status != "active" || scan.NextRunAt == "" {
		t.Fatalf("unexpected scan response: %s", body)
	}

	resp, _ = env.request(t, "POST", "/api/scans", map[string]any{
		"url":      "https://example.com",
		"schedule": "whenever I feel like it",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad schedule, got %d", resp.StatusCode)
	}

	resp, body = env.request(t, "GET", "/api/scans", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing scans, got %d", resp.StatusCode)
	}
	var scans []map[string]any
	decodeJSON(t, body, &scans)
	if len(scans) != 1 {
		t.Fatalf("expected 1 scan, got %d", len(scans))
	}

	resp, _ = env.request(t, "DELETE", "/api/scans/"+scan.ID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 deleting scan, got %d", resp.StatusCode)
	}

	_, body = env.request(t, "GET", "/api/scans", nil, nil)
	decodeJSON(t, body, &scans)
	if len(scans) != 0 {
		t.Errorf("expected no scans after delete, got %d", len(scans))
	}
}

func TestJobEndpoints(t *testing.T) {
	env := newTestServer(t, "", false)

	resp, _ := env.request(t, "POST", "/api/jobs", map[string]any{"urls": []string{}}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty urls, got %d", resp.StatusCode)
	}

	resp, body := env.request(t, "POST", "/api/jobs", map[string]any{
		"urls": []string{"https://a.example", "https://b.example"},
	}, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 creating job, got %d: %s", resp.StatusCode, body)
	}
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Total  int    `json:"total"`
	}
	decodeJSON(t, body, &created)
	if created.ID == "" || created.Status != "pending" || created.Total != 2 {
		t.Fatalf("unexpected job response: %s", body)
	}

	resp, body = env.request(t, "GET", "/api/jobs/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for job detail, got %d", resp.StatusCode)
	}
	var job struct {
		Status string `json:"status"`
		Total  int    `json:"total"`
	}
	decodeJSON(t, body, &job)
	if job.Total != 2 {
		t.Errorf("expected total 2, got %d", job.Total)
	}

	resp, _ = env.request(t, "GET", "/api/jobs/nope", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", resp.StatusCode)
	}
}

func TestSecretEndpoints(t *testing.T) {
	env := newTestServer(t, "", false)

	resp, body := env.request(t, "POST", "/api/secrets", map[string]string{
		"host":     "staging.example.com",
		"username": "deploy",
		"value":    "sw0rdfish",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 creating secret, got %d: %s", resp.StatusCode, body)
	}
	var created struct {
		ID   string `json:"id"`
		Host string `json:"host"`
	}
	decodeJSON(t, body, &created)
	if created.ID == "" || created.Host != "staging.example.com" {
		t.Fatalf("unexpected secret response: %s", body)
	}

	// Same host upserts and keeps the original id
	resp, body = env.request(t, "POST", "/api/secrets", map[string]string{
		"host":  "staging.example.com",
		"value": "rotated",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 updating secret, got %d", resp.StatusCode)
	}
	var updated struct {
		ID string `json:"id"`
	}
	decodeJSON(t, body, &updated)
	if updated.ID != created.ID {
		t.Errorf("expected upsert to keep id %s, got %s", created.ID, updated.ID)
	}

	resp, body = env.request(t, "GET", "/api/secrets", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing secrets, got %d", resp.StatusCode)
	}
	if strings.Contains(string(body), "sw0rdfish") || strings.Contains(string(body), "rotated") {
		t.Error("secret values must not appear in list responses")
	}
	var secrets []map[string]any
	decodeJSON(t, body, &secrets)
	if len(secrets) != 1 {
		t.Fatalf("expected 1 secret, got %d", len(secrets))
	}

	resp, _ = env.request(t, "DELETE", "/api/secrets/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 deleting secret, got %d", resp.StatusCode)
	}

	resp, _ = env.request(t, "GET", "/api/secrets/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestServer(t, "", false)

	resp, body := env.request(t, "GET", "/api/status", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Uptime  string `json:"uptime"`
	}
	decodeJSON(t, body, &status)
	if status.Status != "ok" || status.Version != "test" || status.Uptime == "" {
		t.Errorf("unexpected status payload: %s", body)
	}
}
