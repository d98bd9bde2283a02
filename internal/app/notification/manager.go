// Package notification broadcasts published session state to subscribers.
package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

const (
	// DefaultSendTimeout bounds one send to one subscriber.
	DefaultSendTimeout = 500 * time.Millisecond
	// DefaultMaxMisses is how many consecutive timed-out sends a subscriber
	// survives.
	DefaultMaxMisses = 3
)

// Notification is one published message. SequenceNo increases by one per
// broadcast so subscribers can detect gaps.
type Notification struct {
	SequenceNo uint64 `json:"seq"`
	Type       string `json:"type"`
	Payload    any    `json:"payload,omitempty"`
}

// Stream receives notifications for one subscriber.
type Stream interface {
	Send(*Notification) error
}

type subscriber struct {
	id     string
	stream Stream
	misses atomic.Int32
}

// Option configures a Manager.
type Option func(*Manager)

// WithSendTimeout sets the per-subscriber send timeout.
func WithSendTimeout(d time.Duration) Option {
	return func(m *Manager) { m.sendTimeout = d }
}

// WithMaxMisses sets how many consecutive timeouts drop a subscriber.
// Zero keeps slow subscribers forever.
func WithMaxMisses(n int) Option {
	return func(m *Manager) { m.maxMisses = int32(n) }
}

// Manager fans notifications out to subscribers.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber

	seq         atomic.Uint64
	sendTimeout time.Duration
	maxMisses   int32
}

// NewManager creates a new notification manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		subscribers: make(map[string]*subscriber),
		sendTimeout: DefaultSendTimeout,
		maxMisses:   DefaultMaxMisses,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers stream and returns its subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	sub := &subscriber{id: uuid.NewString(), stream: stream}

	m.mu.Lock()
	m.subscribers[sub.id] = sub
	m.mu.Unlock()
	return sub.id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	delete(m.subscribers, subscriptionID)
	m.mu.Unlock()
}

// SequenceNo returns the last assigned sequence number.
func (m *Manager) SequenceNo() uint64 {
	return m.seq.Load()
}

// Broadcast stamps the next sequence number on n and sends it to every
// subscriber concurrently, waiting at most the send timeout for each. A
// subscriber whose send fails, or times out too many times in a row, is
// dropped.
func (m *Manager) Broadcast(n *Notification) {
	n.SequenceNo = m.seq.Add(1)

	m.mu.RLock()
	subs := make([]*subscriber, 0, len(m.subscribers))
	for _, sub := range m.subscribers {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.deliver(sub, n)
		}()
	}
	wg.Wait()
}

func (m *Manager) deliver(sub *subscriber, n *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sub.stream.Send(n) }()

	select {
	case err := <-done:
		if err != nil {
			zlog.Debug().Msgf("notification: dropping subscriber: id=%s error=%v", sub.id, err)
			m.Unsubscribe(sub.id)
			return
		}
		sub.misses.Store(0)
	case <-ctx.Done():
		misses := sub.misses.Add(1)
		zlog.Debug().Msgf("notification: send timed out: id=%s seq=%d misses=%d", sub.id, n.SequenceNo, misses)
		if m.maxMisses > 0 && misses >= m.maxMisses {
			zlog.Info().Msgf("notification: dropping slow subscriber: id=%s", sub.id)
			m.Unsubscribe(sub.id)
		}
	}
}

// Send delivers n to one subscriber without consuming a sequence number. It
// carries the current one so a fresh subscriber can sync. Unknown IDs are
// ignored.
func (m *Manager) Send(subscriptionID string, n *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscribers[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	n.SequenceNo = m.SequenceNo()
	return sub.stream.Send(n)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	clear(m.subscribers)
	m.mu.Unlock()
}
