package protocol

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mockTransport implements Transport for testing.
type mockTransport struct {
	mu        sync.Mutex
	messages  [][]byte
	sent      chan []byte
	msgChan   chan map[string]any
	errChan   chan error
	closeOnce sync.Once
	sendErr   error
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		messages: make([][]byte, 0, 10),
		sent:     make(chan []byte, 100),
		msgChan:  make(chan map[string]any, 10),
		errChan:  make(chan error, 1),
	}
}

func (m *mockTransport) ReadMessages(_ context.Context) (<-chan map[string]any, <-chan error) {
	return m.msgChan, m.errChan
}

func (m *mockTransport) SendMessage(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return m.sendErr
	}

	m.messages = append(m.messages, data)

	select {
	case m.sent <- data:
	default:
	}

	return nil
}

func (m *mockTransport) getMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([][]byte, len(m.messages))
	copy(result, m.messages)

	return result
}

// sendToCorrelator delivers msg as if the server had written it.
func (m *mockTransport) sendToCorrelator(msg map[string]any) {
	m.msgChan <- msg
}

// closeStream ends the stream, optionally reporting err first.
func (m *mockTransport) closeStream(err error) {
	m.closeOnce.Do(func() {
		if err != nil {
			m.errChan <- err
		}

		close(m.errChan)
		close(m.msgChan)
	})
}

// nextSent returns the next message written by the client.
func (m *mockTransport) nextSent(t *testing.T) map[string]any {
	t.Helper()

	select {
	case data := <-m.sent:
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))

		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message sent")

		return nil
	}
}

// nextRequest returns the next message carrying an id, skipping notifications.
func (m *mockTransport) nextRequest(t *testing.T) map[string]any {
	t.Helper()

	for {
		msg := m.nextSent(t)
		if _, ok := msg["id"]; ok {
			return msg
		}
	}
}

// respond answers a request captured with nextSent.
func (m *mockTransport) respond(req map[string]any, result any) {
	m.sendToCorrelator(map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": result})
}

func newStartedCorrelator(t *testing.T) (*Correlator, *mockTransport) {
	t.Helper()

	transport := newMockTransport()
	correlator := NewCorrelator(slog.Default(), transport)
	correlator.Start(context.Background())

	t.Cleanup(correlator.Stop)

	return correlator, transport
}

type callResult struct {
	resp *Response
	err  error
}

// callAsync runs Call in a goroutine.
func callAsync(c *Correlator, method string, params any, timeout time.Duration) <-chan callResult {
	ch := make(chan callResult, 1)

	go func() {
		resp, err := c.Call(context.Background(), method, params, timeout)
		ch <- callResult{resp: resp, err: err}
	}()

	return ch
}

func waitResult(t *testing.T, ch <-chan callResult) callResult {
	t.Helper()

	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("call did not return")

		return callResult{}
	}
}
