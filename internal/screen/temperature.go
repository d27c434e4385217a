// internal/screen/temperature.go
//
// Temperature monitoring helpers.
//
// The backend stores raw readings and point bounds.  The dashboard shows,
// per reading, whether it was in range and how bad the violation was, and,
// per point, when the next check is due.  Both are derived here so the list
// can be filtered and sorted on them.
package screen

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/yanizio/storedash/internal/apiclient"
)

const (
	pointsResource = "/temperature/monitoring-points"
	logsResource   = "/temperature/logs"

	// severityDeviation is how far (°F) from the midpoint of the allowed
	// range a reading must be before a violation counts as high severity.
	severityDeviation = 10.0
)

// Reading is the classification of one temperature reading.
type Reading struct {
	WithinRange bool   `json:"within_range"`
	Violation   string `json:"violation_type,omitempty"` // too_cold or too_hot.
	Severity    string `json:"severity,omitempty"`       // medium or high.
}

// ClassifyReading compares reading against the inclusive [min, max] range.
func ClassifyReading(min, max, reading float64) Reading {
	if reading >= min && reading <= max {
		return Reading{WithinRange: true}
	}
	r := Reading{Violation: "too_hot", Severity: "medium"}
	if reading < min {
		r.Violation = "too_cold"
	}
	if math.Abs(reading-(min+max)/2) > severityDeviation {
		r.Severity = "high"
	}
	return r
}

type bounds struct{ min, max float64 }

// enrichReadings adds within_range, violation_type, and severity to each log
// whose monitoring point bounds are known.
func enrichReadings(ctx context.Context, api Backend, items []apiclient.Record) error {
	if len(items) == 0 {
		return nil
	}
	points, err := listAll(ctx, api, pointsResource, nil, 0, nil)
	if err != nil {
		return err
	}
	byID := make(map[string]bounds, len(points))
	for _, p := range points {
		lo, ok1 := p["min_temp_fahrenheit"].(float64)
		hi, ok2 := p["max_temp_fahrenheit"].(float64)
		if ok1 && ok2 {
			byID[apiclient.RecordID(p)] = bounds{lo, hi}
		}
	}

	for _, rec := range items {
		b, ok := byID[display(rec["monitoring_point_id"])]
		t, tok := rec["recorded_temp_fahrenheit"].(float64)
		if !ok || !tok {
			continue
		}
		r := ClassifyReading(b.min, b.max, t)
		rec["within_range"] = r.WithinRange
		if r.Violation != "" {
			rec["violation_type"] = r.Violation
			rec["severity"] = r.Severity
		}
	}
	return nil
}

// DueCheck reports when a monitoring point needs its next reading.
type DueCheck struct {
	LastChecked time.Time
	NextDue     time.Time
	Overdue     bool
}

// NextCheck computes the due time from the last reading and the point's
// frequency.  A point never checked is due immediately.
func NextCheck(last time.Time, frequencyHours float64, now time.Time) DueCheck {
	if last.IsZero() {
		return DueCheck{NextDue: now, Overdue: true}
	}
	next := last.Add(time.Duration(frequencyHours * float64(time.Hour)))
	return DueCheck{LastChecked: last, NextDue: next, Overdue: !next.After(now)}
}

var now = time.Now

// enrichDueChecks adds last_checked, next_check_due, and is_overdue to each
// active monitoring point.
func enrichDueChecks(ctx context.Context, api Backend, items []apiclient.Record) error {
	if len(items) == 0 {
		return nil
	}
	logs, err := listAll(ctx, api, logsResource, nil, 0, nil)
	if err != nil {
		return err
	}
	latest := make(map[string]time.Time)
	for _, l := range logs {
		at, ok := parseTime(l["recorded_at"])
		if !ok {
			continue
		}
		id := display(l["monitoring_point_id"])
		if at.After(latest[id]) {
			latest[id] = at
		}
	}

	ts := now()
	for _, rec := range items {
		if active, ok := rec["is_active"].(bool); ok && !active {
			continue
		}
		freq, ok := rec["check_frequency_hours"].(float64)
		if !ok || freq <= 0 {
			freq = 4
		}
		dc := NextCheck(latest[apiclient.RecordID(rec)], freq, ts)
		if dc.LastChecked.IsZero() {
			rec["last_checked"] = nil
		} else {
			rec["last_checked"] = dc.LastChecked.Format(time.RFC3339)
		}
		rec["next_check_due"] = dc.NextDue.Format(time.RFC3339)
		rec["is_overdue"] = dc.Overdue
	}
	return nil
}

// parseTime accepts the ISO forms the backend emits, with or without zone
// and fractional seconds.  Zoneless times are read as UTC.
func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(int64(f), 0).UTC(), true
	}
	return time.Time{}, false
}
