package telegraph

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/rapidaid/internal/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	recs   []models.SOSRequest
	err    error
	cutoff time.Time
}

func (f *fakeSource) ListStalePending(_ context.Context, olderThan time.Time) ([]models.SOSRequest, error) {
	f.cutoff = olderThan
	if f.err != nil {
		return nil, f.err
	}
	var out []models.SOSRequest
	for _, r := range f.recs {
		if r.CreatedAt.Before(olderThan) {
			out = append(out, r)
		}
	}
	return out, nil
}

func pending(id, category string, age time.Duration) models.SOSRequest {
	return models.SOSRequest{
		ID:          id,
		ReporterID:  "dan",
		Category:    category,
		Description: category + " emergency",
		Location:    models.Location{Latitude: 37.7749, Longitude: -122.4194, Address: "Market St"},
		Status:      "pending",
		CreatedAt:   now.Add(-age),
	}
}

func newTestDaemon(t *testing.T, src PendingSource) (*Daemon, *MockAdapter) {
	t.Helper()
	adapter := NewMockAdapter()
	d, err := NewDaemon(DaemonOpts{
		Source:     src,
		Adapter:    adapter,
		Schedule:   "*/5 * * * *",
		StaleAfter: 10 * time.Minute,
		Now:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	return d, adapter
}

func TestNewDaemon_Validation(t *testing.T) {
	src := &fakeSource{}
	tests := []struct {
		name string
		opts DaemonOpts
	}{
		{"no source", DaemonOpts{Adapter: NewMockAdapter(), Schedule: "* * * * *", StaleAfter: time.Minute}},
		{"no adapter", DaemonOpts{Source: src, Schedule: "* * * * *", StaleAfter: time.Minute}},
		{"no stale-after", DaemonOpts{Source: src, Adapter: NewMockAdapter(), Schedule: "* * * * *"}},
		{"bad schedule", DaemonOpts{Source: src, Adapter: NewMockAdapter(), Schedule: "every minute", StaleAfter: time.Minute}},
		{"six fields", DaemonOpts{Source: src, Adapter: NewMockAdapter(), Schedule: "0 * * * * *", StaleAfter: time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDaemon(tt.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFire_SendsStaleRequests(t *testing.T) {
	src := &fakeSource{recs: []models.SOSRequest{
		pending("sos-aaaaaaaaaaaa", "Medical", 25*time.Minute),
		pending("sos-bbbbbbbbbbbb", "Supplies", 12*time.Minute),
		pending("sos-cccccccccccc", "Other", 2*time.Minute),
	}}
	d, adapter := newTestDaemon(t, src)

	n, err := d.Fire(context.Background())
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if n != 2 {
		t.Fatalf("reported %d requests, want 2", n)
	}
	if want := now.Add(-10 * time.Minute); !src.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", src.cutoff, want)
	}

	sent := adapter.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	msg := sent[0]
	if msg.Text != "2 SOS requests pending for more than 10m" {
		t.Errorf("text = %q", msg.Text)
	}
	if len(msg.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(msg.Events))
	}
	if msg.Events[0].Severity != "error" || msg.Events[0].Color != ColorError {
		t.Errorf("25m medical should be error, got %s/%s", msg.Events[0].Severity, msg.Events[0].Color)
	}
	if msg.Events[1].Severity != "warning" {
		t.Errorf("12m supplies should be warning, got %s", msg.Events[1].Severity)
	}
}

func TestFire_NothingStale(t *testing.T) {
	d, adapter := newTestDaemon(t, &fakeSource{recs: []models.SOSRequest{
		pending("sos-aaaaaaaaaaaa", "Medical", time.Minute),
	}})
	n, err := d.Fire(context.Background())
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if n != 0 || len(adapter.Sent()) != 0 {
		t.Errorf("expected no digest, got n=%d sent=%d", n, len(adapter.Sent()))
	}
}

func TestFire_Errors(t *testing.T) {
	d, _ := newTestDaemon(t, &fakeSource{err: errors.New("db down")})
	if _, err := d.Fire(context.Background()); err == nil || !strings.Contains(err.Error(), "db down") {
		t.Errorf("expected source error, got %v", err)
	}

	d, adapter := newTestDaemon(t, &fakeSource{recs: []models.SOSRequest{pending("sos-1", "Other", time.Hour)}})
	adapter.SetSendError(errors.New("rate limited"))
	if _, err := d.Fire(context.Background()); err == nil || !strings.Contains(err.Error(), "send digest") {
		t.Errorf("expected send error, got %v", err)
	}
}

func TestRun_StopsAndClosesAdapter(t *testing.T) {
	d, adapter := newTestDaemon(t, &fakeSource{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !adapter.Closed() {
		t.Error("adapter not closed")
	}
}

func TestFormatStaleRequest(t *testing.T) {
	evt := FormatStaleRequest(pending("sos-aaaaaaaaaaaa", "Trapped", 75*time.Minute), now, 10*time.Minute)
	if evt.Title != "Trapped request sos-aaaaaaaaaaaa unclaimed for 1h15m" {
		t.Errorf("title = %q", evt.Title)
	}
	if evt.Body != "Trapped emergency\nMarket St" {
		t.Errorf("body = %q", evt.Body)
	}
	if len(evt.Fields) != 4 {
		t.Fatalf("fields = %d, want 4", len(evt.Fields))
	}
	if evt.Fields[2].Value != "37.77490, -122.41940" {
		t.Errorf("location field = %q", evt.Fields[2].Value)
	}
}

func TestWaitSeverity(t *testing.T) {
	stale := 10 * time.Minute
	tests := []struct {
		category string
		waited   time.Duration
		want     string
	}{
		{"Medical", 15 * time.Minute, "warning"},
		{"Medical", 20 * time.Minute, "error"},
		{"Trapped", 20 * time.Minute, "error"},
		{"Supplies", 20 * time.Minute, "warning"},
		{"Other", 30 * time.Minute, "error"},
	}
	for _, tt := range tests {
		if got := waitSeverity(tt.category, tt.waited, stale); got != tt.want {
			t.Errorf("waitSeverity(%s, %v) = %s, want %s", tt.category, tt.waited, got, tt.want)
		}
	}
}

func TestFormatWait(t *testing.T) {
	tests := map[time.Duration]string{
		30 * time.Second:  "<1m",
		12 * time.Minute:  "12m",
		2 * time.Hour:     "2h",
		125 * time.Minute: "2h5m",
	}
	for d, want := range tests {
		if got := formatWait(d); got != want {
			t.Errorf("formatWait(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestSeverityColor(t *testing.T) {
	tests := map[string]string{
		"success": ColorSuccess,
		"info":    ColorInfo,
		"warning": ColorWarning,
		"error":   ColorError,
		"":        ColorInfo,
	}
	for sev, want := range tests {
		if got := severityColor(sev); got != want {
			t.Errorf("severityColor(%q) = %q, want %q", sev, got, want)
		}
	}
}

func TestNextRun(t *testing.T) {
	next, err := NextRun("*/15 * * * *", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if want := now.Add(15 * time.Minute); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
	if _, err := NextRun("nope", now); err == nil {
		t.Error("expected parse error")
	}
}

func TestWriterAdapter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterAdapter(&buf)
	msg := FormatDigest([]models.SOSRequest{pending("sos-aaaaaaaaaaaa", "Medical", 30*time.Minute)}, now, 10*time.Minute)
	if err := w.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "1 SOS request pending for more than 10m\n") {
		t.Errorf("header missing: %q", out)
	}
	if !strings.Contains(out, "[error] Medical request sos-aaaaaaaaaaaa unclaimed for 30m") {
		t.Errorf("event line missing: %q", out)
	}
	if !strings.Contains(out, "      Market St") {
		t.Errorf("body line missing: %q", out)
	}
}
