package schedule

import (
	"strings"
	"testing"
	"time"
)

func TestParseScheduleCron(t *testing.T) {
	raw := `{"kind":"cron","cron_expr":"0 9 * * *"}`
	s, err := ParseSchedule(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Kind != "cron" || s.CronExpr != "0 9 * * *" {
		t.Errorf("unexpected schedule: %+v", s)
	}
}

func TestNormalizePresets(t *testing.T) {
	tests := []struct {
		in   string
		expr string
	}{
		{"hourly", "0 * * * *"},
		{"daily", "0 9 * * *"},
		{"weekly", "0 9 * * 1"},
		{"@weekly", "0 9 * * 1"},
		{"Daily", "0 9 * * *"},
	}
	for _, tt := range tests {
		got, err := NormalizeSchedule(tt.in)
		if err != nil {
			t.Fatalf("normalize %q: %v", tt.in, err)
		}
		s, err := ParseSchedule(got)
		if err != nil {
			t.Fatalf("parse %q: %v", got, err)
		}
		if s.Kind != "cron" || s.CronExpr != tt.expr {
			t.Errorf("normalize %q: expected cron %q, got %+v", tt.in, tt.expr, s)
		}
	}
}

func TestNormalizePlainCron(t *testing.T) {
	got, err := NormalizeSchedule("30 8 * * 5")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	s, err := ParseSchedule(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Kind != "cron" || s.CronExpr != "30 8 * * 5" {
		t.Errorf("unexpected schedule: %+v", s)
	}
}

func TestNormalizeInterval(t *testing.T) {
	got, err := NormalizeSchedule("every 6h")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	s, err := ParseSchedule(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Kind != "interval" || s.IntervalMs != int64(6*time.Hour/time.Millisecond) {
		t.Errorf("unexpected schedule: %+v", s)
	}

	if _, err := NormalizeSchedule("every 5s"); err == nil {
		t.Error("expected sub-minute interval rejected")
	}
}

func TestNormalizeJSONPassthrough(t *testing.T) {
	raw := `{"kind":"cron","cron_expr":"0 9 * * 1"}`
	got, err := NormalizeSchedule(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != raw {
		t.Errorf("expected passthrough, got %s", got)
	}

	if _, err := NormalizeSchedule(`{"kind":"cron","cron_expr":"not a cron"}`); err == nil {
		t.Error("expected invalid cron rejected")
	}
	if _, err := NormalizeSchedule(`{"kind":"interval","interval_ms":0}`); err == nil {
		t.Error("expected zero interval rejected")
	}
	if _, err := NormalizeSchedule(`{"kind":"lunar"}`); err == nil {
		t.Error("expected unknown kind rejected")
	}
}

func TestNormalizeGarbage(t *testing.T) {
	if _, err := NormalizeSchedule("whenever you feel like it"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestCalculateNextRunInterval(t *testing.T) {
	raw, err := NormalizeSchedule("every 60m")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	before := time.Now()
	next := CalculateNextRun(raw)
	if next == nil {
		t.Fatal("expected next run time")
	}
	lower := before.Add(59 * time.Minute)
	upper := time.Now().Add(61 * time.Minute)
	if next.Before(lower) || next.After(upper) {
		t.Errorf("next run %v outside expected hour window", next)
	}
}

func TestCalculateNextRunCron(t *testing.T) {
	raw, err := NormalizeSchedule("daily")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	next := CalculateNextRun(raw)
	if next == nil {
		t.Fatal("expected next run time")
	}
	if !next.After(time.Now()) {
		t.Errorf("next run %v not in the future", next)
	}

	if got := CalculateNextRun("not json"); got != nil {
		t.Errorf("expected nil for invalid schedule, got %v", got)
	}
}

func TestFormatSchedule(t *testing.T) {
	daily, _ := NormalizeSchedule("daily")
	if got := FormatSchedule(daily); got != "daily" {
		t.Errorf("expected 'daily', got %q", got)
	}

	cron, _ := NormalizeSchedule("15 7 * * 3")
	if got := FormatSchedule(cron); got != "15 7 * * 3" {
		t.Errorf("expected raw cron, got %q", got)
	}

	interval, _ := NormalizeSchedule("every 2h")
	if got := FormatSchedule(interval); got != "Every 2 hours" {
		t.Errorf("expected 'Every 2 hours', got %q", got)
	}

	minutes, _ := NormalizeSchedule("every 90m")
	if got := FormatSchedule(minutes); !strings.Contains(got, "90 minutes") {
		t.Errorf("expected minutes formatting, got %q", got)
	}
}
