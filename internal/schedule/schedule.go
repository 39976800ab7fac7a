// Package schedule parses and evaluates scan schedules. A schedule is
// stored as a small JSON envelope so cron expressions and fixed intervals
// share one column; user-facing input also accepts the presets hourly,
// daily, and weekly.
package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

type Schedule struct {
	Kind       string `json:"kind"`        // "cron" or "interval"
	CronExpr   string `json:"cron_expr"`   // Cron expression (if kind=cron)
	IntervalMs int64  `json:"interval_ms"` // Interval in ms (if kind=interval)
}

// Presets map the shorthand most scans use onto cron expressions. Daily and
// weekly land at 09:00 so reports are waiting at the start of the workday.
var presets = map[string]string{
	"hourly": "0 * * * *",
	"daily":  "0 9 * * *",
	"weekly": "0 9 * * 1",
}

func ParseSchedule(raw string) (*Schedule, error) {
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CalculateNextRun returns when a stored schedule fires next, or nil when
// it cannot be evaluated.
func CalculateNextRun(scheduleJSON string) *time.Time {
	s, err := ParseSchedule(scheduleJSON)
	if err != nil {
		return nil
	}

	var next time.Time

	switch s.Kind {
	case "cron":
		nextTime, err := gronx.NextTick(s.CronExpr, false)
		if err != nil {
			return nil
		}
		next = nextTime
	case "interval":
		next = time.Now().Add(time.Duration(s.IntervalMs) * time.Millisecond)
	default:
		return nil
	}

	return &next
}

// FormatSchedule returns a human-readable description of a schedule JSON string.
func FormatSchedule(scheduleJSON string) string {
	s, err := ParseSchedule(scheduleJSON)
	if err != nil {
		return scheduleJSON
	}

	switch s.Kind {
	case "cron":
		for name, expr := range presets {
			if s.CronExpr == expr {
				return name
			}
		}
		return s.CronExpr
	case "interval":
		d := time.Duration(s.IntervalMs) * time.Millisecond
		switch {
		case d%time.Hour == 0 && d >= time.Hour:
			h := int(d.Hours())
			if h == 1 {
				return "Every hour"
			}
			return fmt.Sprintf("Every %d hours", h)
		case d%time.Minute == 0:
			m := int(d.Minutes())
			if m == 1 {
				return "Every minute"
			}
			return fmt.Sprintf("Every %d minutes", m)
		default:
			return fmt.Sprintf("Every %d seconds", int(d.Seconds()))
		}
	default:
		return scheduleJSON
	}
}

// NormalizeSchedule turns user input into the stored JSON form. It accepts
// a preset name, a plain cron expression, a Go duration prefixed with
// "every " (e.g. "every 6h"), or an already-wrapped JSON envelope.
func NormalizeSchedule(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	if expr, ok := presets[strings.ToLower(strings.TrimPrefix(raw, "@"))]; ok {
		return wrapCron(expr)
	}

	if rest, ok := strings.CutPrefix(strings.ToLower(raw), "every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d < time.Minute {
			return "", fmt.Errorf("invalid interval: %s", raw)
		}
		data, err := json.Marshal(Schedule{Kind: "interval", IntervalMs: d.Milliseconds()})
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	// Already valid JSON with a kind field: validate and pass through
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err == nil && s.Kind != "" {
		switch s.Kind {
		case "cron":
			if !gronx.New().IsValid(s.CronExpr) {
				return "", fmt.Errorf("invalid cron expression: %s", s.CronExpr)
			}
		case "interval":
			if s.IntervalMs <= 0 {
				return "", fmt.Errorf("interval_ms must be positive")
			}
		default:
			return "", fmt.Errorf("unknown schedule kind: %s", s.Kind)
		}
		return raw, nil
	}

	// Not JSON, try as plain cron expression
	if !gronx.New().IsValid(raw) {
		return "", fmt.Errorf("invalid schedule: not a preset, interval, or cron expression: %s", raw)
	}
	return wrapCron(raw)
}

func wrapCron(expr string) (string, error) {
	data, err := json.Marshal(Schedule{Kind: "cron", CronExpr: expr})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
