package websocket

import (
	"errors"
	"io"
	"sync"
	"time"
)

// mockConnection records writes and blocks reads until closed.
type mockConnection struct {
	mu       sync.Mutex
	written  [][]byte
	types    []int
	closed   bool
	closeCh  chan struct{}
	failNext bool
}

func newMockConnection() *mockConnection {
	return &mockConnection{closeCh: make(chan struct{})}
}

func (m *mockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("connection closed")
	}
	if m.failNext {
		m.failNext = false
		return errors.New("write failed")
	}
	m.types = append(m.types, messageType)
	m.written = append(m.written, append([]byte(nil), data...))
	return nil
}

func (m *mockConnection) ReadMessage() (int, []byte, error) {
	<-m.closeCh
	return 0, nil, io.EOF
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closeCh)
	}
	return nil
}

func (m *mockConnection) SetReadDeadline(time.Time) error { return nil }
func (m *mockConnection) SetWriteDeadline(time.Time) error { return nil }
func (m *mockConnection) SetReadLimit(int64) {}
func (m *mockConnection) SetPongHandler(func(string) error) {}
func (m *mockConnection) RemoteAddr() string { return "127.0.0.1:9000" }

func (m *mockConnection) messages() ([]int, [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.types...), append([][]byte(nil), m.written...)
}

func (m *mockConnection) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
