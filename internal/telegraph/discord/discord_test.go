package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/zulandar/rapidaid/internal/telegraph"
)

// --- Mock session ---

type mockSession struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr func(call int) error
	calls   int
}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.sendErr != nil {
		if err := m.sendErr(m.calls); err != nil {
			return nil, err
		}
	}
	m.sent = append(m.sent, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: "M1", ChannelID: channelID}, nil
}

func (m *mockSession) lastSent() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func newTestAdapter(t *testing.T) (*Adapter, *mockSession) {
	t.Helper()
	sess := &mockSession{}
	a, err := New(AdapterOpts{Session: sess, ChannelID: "CH_DEFAULT"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.baseBackoff = time.Millisecond
	a.maxBackoff = 5 * time.Millisecond
	return a, sess
}

func rateLimited() error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
}

func TestNew_RequiresBotToken(t *testing.T) {
	if _, err := New(AdapterOpts{}); err == nil {
		t.Fatal("expected error without bot token")
	}
}

func TestNew_WithBotToken(t *testing.T) {
	a, err := New(AdapterOpts{BotToken: "test-token", ChannelID: "CH1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.sess == nil {
		t.Error("expected real session to be created")
	}
}

func TestSend_WithEvents(t *testing.T) {
	a, sess := newTestAdapter(t)

	err := a.Send(context.Background(), telegraph.OutboundMessage{
		ChannelID: "CH1",
		Text:      "1 SOS request pending",
		Events: []telegraph.FormattedEvent{{
			Title:  "Trapped request sos-1 unclaimed for 12m",
			Color:  "#ff9800",
			Fields: []telegraph.Field{{Name: "Category", Value: "Trapped", Short: true}},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := sess.lastSent()
	if last.channelID != "CH1" {
		t.Errorf("channel = %q, want CH1", last.channelID)
	}
	if len(last.data.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(last.data.Embeds))
	}
	if last.data.Embeds[0].Color != 0xff9800 {
		t.Errorf("color = %x", last.data.Embeds[0].Color)
	}
}

func TestSend_DefaultChannel(t *testing.T) {
	a, sess := newTestAdapter(t)
	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sess.lastSent().channelID; got != "CH_DEFAULT" {
		t.Errorf("channel = %q, want CH_DEFAULT", got)
	}
}

func TestSend_NoChannel(t *testing.T) {
	a, _ := New(AdapterOpts{Session: &mockSession{}})
	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error for no channel")
	}
}

func TestSend_AfterClose(t *testing.T) {
	a, sess := newTestAdapter(t)
	a.Close()
	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error after close")
	}
	if sess.calls != 0 {
		t.Error("nothing should be sent after close")
	}
}

func TestSend_RetriesOnRateLimit(t *testing.T) {
	a, sess := newTestAdapter(t)
	sess.sendErr = func(call int) error {
		if call < 3 {
			return rateLimited()
		}
		return nil
	}
	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.calls != 3 {
		t.Errorf("expected 3 calls, got %d", sess.calls)
	}
}

func TestSend_OtherErrorNotRetried(t *testing.T) {
	a, sess := newTestAdapter(t)
	sess.sendErr = func(int) error {
		return &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	}
	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if sess.calls != 1 {
		t.Errorf("expected 1 call, got %d", sess.calls)
	}
}

func TestBuildMessageSend_CapsEmbeds(t *testing.T) {
	var events []telegraph.FormattedEvent
	for i := 0; i < 13; i++ {
		events = append(events, telegraph.FormattedEvent{Title: fmt.Sprintf("req %d", i)})
	}
	data := buildMessageSend(telegraph.OutboundMessage{Text: "13 SOS requests", Events: events})
	if len(data.Embeds) != maxEmbeds {
		t.Errorf("embeds = %d, want %d", len(data.Embeds), maxEmbeds)
	}
	if !strings.HasSuffix(data.Content, "(3 more not shown)") {
		t.Errorf("content = %q", data.Content)
	}
}

func TestEventToEmbed(t *testing.T) {
	embed := eventToEmbed(telegraph.FormattedEvent{
		Title: "t",
		Body:  "b",
		Fields: []telegraph.Field{
			{Name: "Category", Value: "Medical", Short: true},
			{Name: "Location", Value: "1, 2"},
		},
	})
	if embed.Title != "t" || embed.Description != "b" {
		t.Errorf("embed = %+v", embed)
	}
	if embed.Color != 0 {
		t.Errorf("color without hint = %d, want 0", embed.Color)
	}
	if len(embed.Fields) != 2 || !embed.Fields[0].Inline || embed.Fields[1].Inline {
		t.Errorf("fields = %+v", embed.Fields)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"#36a64f", 0x36a64f},
		{"36a64f", 0x36a64f},
		{"#ffffff", 0xffffff},
		{"#000000", 0x000000},
		{"#FF0000", 0xff0000},
		{"#fff", 0xfff},
		{"", 0},
	}
	for _, tt := range tests {
		got := parseHexColor(tt.input)
		if got != tt.want {
			t.Errorf("parseHexColor(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestRetryOnRateLimit_ExhaustsRetries(t *testing.T) {
	a, _ := newTestAdapter(t)
	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		return rateLimited()
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != maxRetries+1 {
		t.Errorf("expected %d calls, got %d", maxRetries+1, calls)
	}
}

func TestRetryOnRateLimit_RespectsContext(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.baseBackoff = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.retryOnRateLimit(ctx, rateLimited)
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
