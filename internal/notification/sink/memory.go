// Package sink provides notification delivery adapters.
package sink

import (
	"context"
	"sync"

	"transplant/internal/notification"
)

// Memory records notifications for tests. Fail, when set, is returned from Send.
type Memory struct {
	mu   sync.Mutex
	sent []notification.Notification
	Fail error
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Send(_ context.Context, n notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *Memory) Sent() []notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Notification(nil), m.sent...)
}

// ByType filters recorded notifications.
func (m *Memory) ByType(t notification.Type) []notification.Notification {
	var out []notification.Notification
	for _, n := range m.Sent() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}
