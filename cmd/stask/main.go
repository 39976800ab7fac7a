package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// ipcTopic is where the gateway scheduler answers operational commands.
const ipcTopic = "ops.ipc"

const (
	// analyzeTimeout exceeds the gateway-side run timeout so slow
	// analyses report their own error instead of a bus timeout.
	analyzeTimeout = 210 * time.Second
	ipcTimeout     = 10 * time.Second
)

type ipcRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type ipcResponse struct {
	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
	ID    string `json:"id,omitempty"`

	// analyze
	Success       bool     `json:"success,omitempty"`
	Score         int      `json:"score,omitempty"`
	Ranking       int      `json:"ranking,omitempty"`
	RevenueAtRisk float64  `json:"revenue_at_risk,omitempty"`
	Quadrant      string   `json:"quadrant,omitempty"`
	Errors        []string `json:"errors,omitempty"`

	// scan list
	Scans []scanEntry `json:"scans,omitempty"`

	// status
	Analyses30d int `json:"analyses_30d,omitempty"`
	ActiveJobs  int `json:"active_jobs,omitempty"`
	TotalScans  int `json:"total_scans,omitempty"`
	ActiveScans int `json:"active_scans,omitempty"`
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

func sendIPC(natsURL, reqType string, payload map[string]any, timeout time.Duration) (*ipcResponse, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	defer conn.Close()

	data, err := json.Marshal(ipcRequest{Type: reqType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	msg, err := conn.Request(ipcTopic, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("ipc request: %w", err)
	}

	var resp ipcResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

func parseArgs(args []string) map[string]string {
	result := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if len(args[i]) > 2 && args[i][:2] == "--" && i+1 < len(args) {
			result[args[i][2:]] = args[i+1]
			i++
		}
	}
	return result
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, `  stask analyze --url "..." [--competitors "a.com,b.com"] [--industry "..."]`)
	fmt.Fprintln(os.Stderr, `  stask scan create --url "..." --schedule "..." [--competitors "..."] [--industry "..."]`)
	fmt.Fprintln(os.Stderr, "  stask scan list")
	fmt.Fprintln(os.Stderr, `  stask scan delete --id "..."`)
	fmt.Fprintln(os.Stderr, "  stask status")
	os.Exit(1)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	natsURL := os.Getenv("SKOPOS_NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "analyze":
		runAnalyze(natsURL, os.Args[2:])
	case "scan":
		if len(os.Args) < 3 {
			usage()
		}
		switch os.Args[2] {
		case "create":
			runScanCreate(natsURL, os.Args[3:])
		case "list":
			runScanList(natsURL)
		case "delete":
			runScanDelete(natsURL, os.Args[3:])
		default:
			usage()
		}
	case "status":
		runStatus(natsURL)
	default:
		fatal("unknown command: %s", os.Args[1])
	}
}

func runAnalyze(natsURL string, rest []string) {
	args := parseArgs(rest)
	if args["url"] == "" {
		fatal("--url is required")
	}

	fmt.Printf("Analyzing %s ...\n", args["url"])
	resp, err := sendIPC(natsURL, "analyze", map[string]any{
		"url":         args["url"],
		"competitors": splitCSV(args["competitors"]),
		"industry":    args["industry"],
	}, analyzeTimeout)
	if err != nil {
		fatal("%v", err)
	}
	if resp.Error != "" {
		fatal("%s", resp.Error)
	}

	fmt.Printf("Analysis %s\n", resp.ID)
	fmt.Printf("Score: %d/100\n", resp.Score)
	if resp.Ranking > 0 {
		fmt.Printf("Ranking: #%d\n", resp.Ranking)
	}
	if resp.RevenueAtRisk > 0 {
		fmt.Printf("Revenue at risk: $%.0f/mo\n", resp.RevenueAtRisk)
	}
	if resp.Quadrant != "" {
		fmt.Printf("Market position: %s\n", resp.Quadrant)
	}
	for _, e := range resp.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}

func runScanCreate(natsURL string, rest []string) {
	args := parseArgs(rest)
	if args["url"] == "" || args["schedule"] == "" {
		fatal("--url and --schedule are required")
	}

	resp, err := sendIPC(natsURL, "create_scan", map[string]any{
		"url":         args["url"],
		"schedule":    args["schedule"],
		"competitors": splitCSV(args["competitors"]),
		"industry":    args["industry"],
	}, ipcTimeout)
	if err != nil {
		fatal("%v", err)
	}
	if resp.Error != "" {
		fatal("%s", resp.Error)
	}
	fmt.Printf("Scan created: %s\n", resp.ID)
}

func runScanList(natsURL string) {
	resp, err := sendIPC(natsURL, "list_scans", map[string]any{}, ipcTimeout)
	if err != nil {
		fatal("%v", err)
	}
	if resp.Error != "" {
		fatal("%s", resp.Error)
	}
	if len(resp.Scans) == 0 {
		fmt.Println("No scans found.")
		return
	}
	for _, n := range resp.Scans {
		line := fmt.Sprintf("  %s  %s  %s  [%s]", n.ID, n.Status, n.URL, n.Schedule)
		if n.LastScore > 0 {
			line += fmt.Sprintf("  score %d", n.LastScore)
		}
		fmt.Println(line)
	}
}

func runScanDelete(natsURL string, rest []string) {
	args := parseArgs(rest)
	if args["id"] == "" {
		fatal("--id is required")
	}

	resp, err := sendIPC(natsURL, "delete_scan", map[string]any{"id": args["id"]}, ipcTimeout)
	if err != nil {
		fatal("%v", err)
	}
	if resp.Error != "" {
		fatal("%s", resp.Error)
	}
	fmt.Println("Scan deleted.")
}

func runStatus(natsURL string) {
	resp, err := sendIPC(natsURL, "status", map[string]any{}, ipcTimeout)
	if err != nil {
		fatal("%v", err)
	}
	if resp.Error != "" {
		fatal("%s", resp.Error)
	}
	fmt.Printf("Analyses (last 30 days): %d\n", resp.Analyses30d)
	fmt.Printf("Active jobs: %d\n", resp.ActiveJobs)
	fmt.Printf("Scans: %d (%d active)\n", resp.TotalScans, resp.ActiveScans)
}
