package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mtzanidakis/skopos/internal/config"
	"github.com/mtzanidakis/skopos/internal/natsbus"
	"github.com/nats-io/nats.go"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]string
	}{
		{
			name: "empty",
			args: []string{},
			want: map[string]string{},
		},
		{
			name: "single flag",
			args: []string{"--url", "https://example.com"},
			want: map[string]string{"url": "https://example.com"},
		},
		{
			name: "multiple flags",
			args: []string{"--url", "https://example.com", "--schedule", "daily", "--industry", "saas"},
			want: map[string]string{"url": "https://example.com", "schedule": "daily", "industry": "saas"},
		},
		{
			name: "flag without value is ignored",
			args: []string{"--url"},
			want: map[string]string{},
		},
		{
			name: "non-flag args ignored",
			args: []string{"positional", "--url", "https://example.com"},
			want: map[string]string{"url": "https://example.com"},
		},
		{
			name: "short prefix not treated as flag",
			args: []string{"-u", "https://example.com"},
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseArgs(tt.args)
			if len(got) != len(tt.want) {
				t.Errorf("parseArgs(%v) returned %d entries, want %d", tt.args, len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseArgs(%v)[%q] = %q, want %q", tt.args, k, got[k], v)
				}
			}
		})
	}
}

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a.com", []string{"a.com"}},
		{"a.com,b.com", []string{"a.com", "b.com"}},
		{" a.com , b.com ", []string{"a.com", "b.com"}},
		{"a.com,,b.com,", []string{"a.com", "b.com"}},
	}

	for _, tt := range tests {
		got := splitCSV(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("splitCSV(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitCSV(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

func startTestNATS(t *testing.T) *natsbus.Bus {
	t.Helper()
	bus, err := natsbus.New(config.NATSConfig{
		Port:    0,
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestSendIPCCreateScan(t *testing.T) {
	bus := startTestNATS(t)
	url := bus.ClientURL()

	// Mock IPC responder
	conn, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	_, err = conn.Subscribe(ipcTopic, func(msg *nats.Msg) {
		var req ipcRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Type != "create_scan" {
			t.Errorf("expected type create_scan, got %s", req.Type)
		}
		if req.Payload["url"] != "https://example.com" {
			t.Errorf("expected url https://example.com, got %v", req.Payload["url"])
		}
		resp, _ := json.Marshal(ipcResponse{OK: true, ID: "scan-123"})
		msg.Respond(resp)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	conn.Flush()

	resp, err := sendIPC(url, "create_scan", map[string]any{
		"url":      "https://example.com",
		"schedule": "daily",
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("sendIPC: %v", err)
	}
	if resp.ID != "scan-123" {
		t.Errorf("expected id scan-123, got %s", resp.ID)
	}
}

func TestSendIPCListScans(t *testing.T) {
	bus := startTestNATS(t)
	url := bus.ClientURL()

	conn, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	_, err = conn.Subscribe(ipcTopic, func(msg *nats.Msg) {
		var req ipcRequest
		json.Unmarshal(msg.Data, &req)
		if req.Type != "list_scans" {
			t.Errorf("expected type list_scans, got %s", req.Type)
		}
		resp, _ := json.Marshal(ipcResponse{
			OK: true,
			Scans: []scanEntry{
				{ID: "s1", URL: "https://one.example", Schedule: "daily", Status: "active"},
				{ID: "s2", URL: "https://two.example", Schedule: "weekly", Status: "active", LastScore: 72},
			},
		})
		msg.Respond(resp)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	conn.Flush()

	resp, err := sendIPC(url, "list_scans", map[string]any{}, 5*time.Second)
	if err != nil {
		t.Fatalf("sendIPC: %v", err)
	}
	if len(resp.Scans) != 2 {
		t.Fatalf("expected 2 scans, got %d", len(resp.Scans))
	}
	if resp.Scans[0].ID != "s1" || resp.Scans[1].ID != "s2" {
		t.Errorf("unexpected scan IDs: %v", resp.Scans)
	}
	if resp.Scans[1].LastScore != 72 {
		t.Errorf("expected last score 72, got %d", resp.Scans[1].LastScore)
	}
}

func TestSendIPCDeleteScan(t *testing.T) {
	bus := startTestNATS(t)
	url := bus.ClientURL()

	conn, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	_, err = conn.Subscribe(ipcTopic, func(msg *nats.Msg) {
		var req ipcRequest
		json.Unmarshal(msg.Data, &req)
		if req.Type != "delete_scan" {
			t.Errorf("expected type delete_scan, got %s", req.Type)
		}
		if req.Payload["id"] != "scan-123" {
			t.Errorf("expected id scan-123, got %v", req.Payload["id"])
		}
		resp, _ := json.Marshal(ipcResponse{OK: true})
		msg.Respond(resp)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	conn.Flush()

	resp, err := sendIPC(url, "delete_scan", map[string]any{"id": "scan-123"}, 5*time.Second)
	if err != nil {
		t.Fatalf("sendIPC: %v", err)
	}
	if resp.Error != "" {
		t.Errorf("unexpected error: %s", resp.Error)
	}
}

func TestSendIPCErrorResponse(t *testing.T) {
	bus := startTestNATS(t)
	url := bus.ClientURL()

	conn, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	_, err = conn.Subscribe(ipcTopic, func(msg *nats.Msg) {
		resp, _ := json.Marshal(ipcResponse{Error: "scan not found"})
		msg.Respond(resp)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	conn.Flush()

	resp, err := sendIPC(url, "delete_scan", map[string]any{"id": "nonexistent"}, 5*time.Second)
	if err != nil {
		t.Fatalf("sendIPC: %v", err)
	}
	if resp.Error != "scan not found" {
		t.Errorf("expected error 'scan not found', got %q", resp.Error)
	}
}
