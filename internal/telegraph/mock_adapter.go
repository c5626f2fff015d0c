package telegraph

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MockAdapter implements Adapter for testing. It records sent messages.
type MockAdapter struct {
	mu      sync.Mutex
	closed  bool
	sent    []OutboundMessage
	sendErr error
}

// NewMockAdapter creates a MockAdapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

// Send records the outbound message.
func (m *MockAdapter) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: closed")
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Close marks the adapter as closed.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetSendError makes subsequent Send calls fail with err.
func (m *MockAdapter) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Sent returns a copy of all sent messages.
func (m *MockAdapter) Sent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Closed reports whether Close was called.
func (m *MockAdapter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// WriterAdapter prints messages as plain text. It is used when no chat
// platform is configured.
type WriterAdapter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriterAdapter returns an Adapter writing to out.
func NewWriterAdapter(out io.Writer) *WriterAdapter {
	return &WriterAdapter{out: out}
}

// Send writes msg as text.
func (w *WriterAdapter) Send(_ context.Context, msg OutboundMessage) error {
	var b strings.Builder
	b.WriteString(msg.Text)
	b.WriteByte('\n')
	for _, evt := range msg.Events {
		fmt.Fprintf(&b, "  [%s] %s\n", evt.Severity, evt.Title)
		if evt.Body != "" {
			for _, line := range strings.Split(evt.Body, "\n") {
				fmt.Fprintf(&b, "      %s\n", line)
			}
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := io.WriteString(w.out, b.String())
	return err
}

// Close implements Adapter.
func (w *WriterAdapter) Close() error { return nil }
