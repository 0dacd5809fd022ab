package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Mock settings ---

var errMiss = errors.New("not found")

type mockRawStore struct {
	mu      sync.Mutex
	version int
	value   []byte
	set     bool
	gets    int
}

func (m *mockRawStore) GetSetting(_ context.Context, key string) (int, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if !m.set {
		return 0, nil, errMiss
	}
	return m.version, m.value, nil
}

func (m *mockRawStore) PutSetting(_ context.Context, key string, version int, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version, m.value, m.set = version, value, true
	return nil
}

type staticSettings EmailSettings

func (s staticSettings) Get(context.Context) (EmailSettings, error) {
	return EmailSettings(s), nil
}

// --- Mock queue ---

type mockQueue struct {
	mu     sync.Mutex
	emails map[string]FollowUpEmail
}

func newMockQueue() *mockQueue {
	return &mockQueue{emails: make(map[string]FollowUpEmail)}
}

func (q *mockQueue) EnqueueReminder(_ context.Context, e FollowUpEmail) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.emails[e.ID] = e
	return nil
}

func (q *mockQueue) DueReminders(_ context.Context, now time.Time) ([]FollowUpEmail, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []FollowUpEmail
	for _, e := range q.emails {
		if !e.Sent && !e.TriggerDate.After(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerDate.Before(out[j].TriggerDate) })
	return out, nil
}

func (q *mockQueue) MarkReminderSent(_ context.Context, id string, at time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.emails[id]
	if !ok || e.Sent {
		return false, nil
	}
	e.Sent = true
	e.SentAt = &at
	q.emails[id] = e
	return true, nil
}

func (q *mockQueue) PruneSentReminders(_ context.Context, before time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for id, e := range q.emails {
		if e.Sent && e.SentAt != nil && e.SentAt.Before(before) {
			delete(q.emails, id)
			n++
		}
	}
	return n, nil
}

func (q *mockQueue) ListReminders(_ context.Context, includeSent bool, limit int) ([]FollowUpEmail, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []FollowUpEmail
	for _, e := range q.emails {
		if includeSent || !e.Sent {
			out = append(out, e)
		}
	}
	return out, nil
}

func (q *mockQueue) get(id string) FollowUpEmail {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.emails[id]
}

// --- Mock notifier ---

type mockNotifier struct {
	mu       sync.Mutex
	sent     []string
	err      error
	delay    time.Duration
	prepared int
}

func (n *mockNotifier) Notify(_ context.Context, e FollowUpEmail) error {
	time.Sleep(n.delay)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, e.ID)
	return n.err
}

func (n *mockNotifier) Prepare(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prepared++
	return nil
}

func (n *mockNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
