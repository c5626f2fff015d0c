package telegraph

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/rapidaid/internal/lifecycle"
	"github.com/zulandar/rapidaid/internal/models"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// waitSeverity grades how long a request has gone unclaimed. Medical and
// Trapped requests escalate sooner.
func waitSeverity(category string, waited, staleAfter time.Duration) string {
	limit := 3 * staleAfter
	if category == lifecycle.CategoryMedical || category == lifecycle.CategoryTrapped {
		limit = 2 * staleAfter
	}
	if waited >= limit {
		return "error"
	}
	return "warning"
}

// FormatStaleRequest formats one pending request that nobody has claimed.
func FormatStaleRequest(rec models.SOSRequest, now time.Time, staleAfter time.Duration) FormattedEvent {
	waited := now.Sub(rec.CreatedAt).Truncate(time.Minute)
	severity := waitSeverity(rec.Category, waited, staleAfter)

	var body []string
	if rec.Description != "" {
		body = append(body, rec.Description)
	}
	if rec.Location.Address != "" {
		body = append(body, rec.Location.Address)
	}

	return FormattedEvent{
		Title:    fmt.Sprintf("%s request %s unclaimed for %s", rec.Category, rec.ID, formatWait(waited)),
		Body:     strings.Join(body, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields: []Field{
			{Name: "Category", Value: rec.Category, Short: true},
			{Name: "Reporter", Value: rec.ReporterID, Short: true},
			{Name: "Location", Value: fmt.Sprintf("%.5f, %.5f", rec.Location.Latitude, rec.Location.Longitude), Short: true},
			{Name: "Submitted", Value: rec.CreatedAt.UTC().Format(time.RFC3339), Short: true},
		},
	}
}

// FormatDigest renders the unclaimed-request digest. Requests are listed in
// the order given.
func FormatDigest(recs []models.SOSRequest, now time.Time, staleAfter time.Duration) OutboundMessage {
	noun := "requests"
	if len(recs) == 1 {
		noun = "request"
	}
	msg := OutboundMessage{
		Text: fmt.Sprintf("%d SOS %s pending for more than %s", len(recs), noun, formatWait(staleAfter)),
	}
	for _, rec := range recs {
		msg.Events = append(msg.Events, FormatStaleRequest(rec, now, staleAfter))
	}
	return msg
}

// formatWait renders a duration as "1h5m" or "12m".
func formatWait(d time.Duration) string {
	d = d.Truncate(time.Minute)
	if d < time.Minute {
		return "<1m"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%dm", h, m)
}
