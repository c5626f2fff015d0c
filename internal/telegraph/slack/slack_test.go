package slack

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/zulandar/rapidaid/internal/telegraph"
)

// --- Mock Slack client ---

type mockSlackClient struct {
	mu      sync.Mutex
	posted  []postedMessage
	postErr func(call int) error
	calls   int
}

type postedMessage struct {
	channelID string
	options   []slackapi.MsgOption
}

func (m *mockSlackClient) PostMessageContext(_ context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.postErr != nil {
		if err := m.postErr(m.calls); err != nil {
			return "", "", err
		}
	}
	m.posted = append(m.posted, postedMessage{channelID: channelID, options: options})
	return channelID, "1234567890.123456", nil
}

func (m *mockSlackClient) postedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posted)
}

func (m *mockSlackClient) lastPosted() postedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posted[len(m.posted)-1]
}

func newTestAdapter(t *testing.T) (*Adapter, *mockSlackClient) {
	t.Helper()
	client := &mockSlackClient{}
	a, err := New(AdapterOpts{Client: client, ChannelID: "C_DEFAULT"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, client
}

func TestNew_RequiresBotToken(t *testing.T) {
	if _, err := New(AdapterOpts{}); err == nil {
		t.Fatal("expected error without bot token")
	}
}

func TestNew_WithToken(t *testing.T) {
	a, err := New(AdapterOpts{BotToken: "xoxb-test", ChannelID: "C1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.client == nil {
		t.Error("expected real client to be created")
	}
}

func TestSend_SimpleText(t *testing.T) {
	a, client := newTestAdapter(t)

	err := a.Send(context.Background(), telegraph.OutboundMessage{
		ChannelID: "C1",
		Text:      "hello world",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.postedCount() != 1 {
		t.Fatalf("expected 1 posted message, got %d", client.postedCount())
	}
	if last := client.lastPosted(); last.channelID != "C1" {
		t.Errorf("channel = %q, want C1", last.channelID)
	}
}

func TestSend_DefaultChannel(t *testing.T) {
	a, client := newTestAdapter(t)

	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "hello default"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last := client.lastPosted(); last.channelID != "C_DEFAULT" {
		t.Errorf("channel = %q, want C_DEFAULT", last.channelID)
	}
}

func TestSend_NoChannel(t *testing.T) {
	a, _ := New(AdapterOpts{Client: &mockSlackClient{}})
	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "no channel"}); err == nil {
		t.Fatal("expected error for no channel")
	}
}

func TestSend_AfterClose(t *testing.T) {
	a, client := newTestAdapter(t)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "late"}); err == nil {
		t.Fatal("expected error after close")
	}
	if client.postedCount() != 0 {
		t.Error("nothing should be posted after close")
	}
}

func TestSend_PostError(t *testing.T) {
	a, client := newTestAdapter(t)
	client.postErr = func(int) error { return fmt.Errorf("channel_not_found") }

	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if client.calls != 1 {
		t.Errorf("non rate-limit errors should not retry, calls = %d", client.calls)
	}
}

func TestSend_RetriesOnRateLimit(t *testing.T) {
	a, client := newTestAdapter(t)
	client.postErr = func(call int) error {
		if call < 3 {
			return &slackapi.RateLimitedError{RetryAfter: time.Millisecond}
		}
		return nil
	}

	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "retry"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 calls, got %d", client.calls)
	}
	if client.postedCount() != 1 {
		t.Errorf("expected 1 posted message, got %d", client.postedCount())
	}
}

func TestBuildMessageOptions_TextOnly(t *testing.T) {
	opts := buildMessageOptions(telegraph.OutboundMessage{Text: "hello"})
	if len(opts) != 1 {
		t.Errorf("expected 1 option, got %d", len(opts))
	}
}

func TestBuildMessageOptions_WithEvents(t *testing.T) {
	opts := buildMessageOptions(telegraph.OutboundMessage{
		Text: "events",
		Events: []telegraph.FormattedEvent{
			{Title: "Test", Body: "body", Color: "#fff"},
		},
	})
	// Should have: text + attachments.
	if len(opts) != 2 {
		t.Errorf("expected 2 options, got %d", len(opts))
	}
}

func TestBuildMessageOptions_EventsWithoutText(t *testing.T) {
	opts := buildMessageOptions(telegraph.OutboundMessage{
		Events: []telegraph.FormattedEvent{{Title: "Test"}},
	})
	if len(opts) != 1 {
		t.Errorf("expected attachments only, got %d options", len(opts))
	}
}

func TestEventToAttachment(t *testing.T) {
	evt := telegraph.FormattedEvent{
		Title:    "Medical request sos-1 unclaimed for 25m",
		Body:     "Medical emergency",
		Color:    "#e53935",
		Severity: "error",
		Fields: []telegraph.Field{
			{Name: "Category", Value: "Medical", Short: true},
			{Name: "Reporter", Value: "dan", Short: true},
		},
	}

	att := eventToAttachment(evt)
	if att.Title != evt.Title || att.Fallback != evt.Title {
		t.Errorf("title = %q, fallback = %q", att.Title, att.Fallback)
	}
	if att.Text != "Medical emergency" {
		t.Errorf("text = %q", att.Text)
	}
	if att.Color != "#e53935" {
		t.Errorf("color = %q", att.Color)
	}
	if len(att.Fields) != 2 {
		t.Fatalf("fields count = %d, want 2", len(att.Fields))
	}
	if att.Fields[0].Title != "Category" || !att.Fields[0].Short {
		t.Errorf("field[0] = %+v", att.Fields[0])
	}
}

func TestRetryOnRateLimit_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := retryOnRateLimit(context.Background(), func() error {
		calls++
		return &slackapi.RateLimitedError{RetryAfter: time.Millisecond}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// maxRetries+1 total calls (initial + retries).
	if calls != maxRetries+1 {
		t.Errorf("expected %d calls, got %d", maxRetries+1, calls)
	}
}

func TestRetryOnRateLimit_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryOnRateLimit(ctx, func() error {
		calls++
		return &slackapi.RateLimitedError{RetryAfter: time.Second}
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before context cancel, got %d", calls)
	}
}
