package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu    sync.Mutex
	got   []uint64
	err   error
	block chan struct{}
}

func (s *recordingStream) Send(n *Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, n.SequenceNo)
	return nil
}

func (s *recordingStream) seqs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.got...)
}

func TestManager_BroadcastSequence(t *testing.T) {
	m := NewManager()
	a, b := &recordingStream{}, &recordingStream{}
	m.Subscribe(a)
	m.Subscribe(b)

	for i := 0; i < 3; i++ {
		m.Broadcast(&Notification{Type: "state"})
	}

	assert.Equal(t, []uint64{1, 2, 3}, a.seqs())
	assert.Equal(t, []uint64{1, 2, 3}, b.seqs())
	assert.Equal(t, uint64(3), m.SequenceNo())
}

func TestManager_FailingSubscriberIsDropped(t *testing.T) {
	m := NewManager()
	good := &recordingStream{}
	m.Subscribe(good)
	m.Subscribe(&recordingStream{err: errors.New("closed")})
	require.Equal(t, 2, m.SubscriberCount())

	m.Broadcast(&Notification{Type: "state"})

	assert.Equal(t, 1, m.SubscriberCount())
	assert.Equal(t, []uint64{1}, good.seqs())
}

func TestManager_SlowSubscriberTimesOut(t *testing.T) {
	m := NewManager(WithSendTimeout(20 * time.Millisecond))

	slow := &recordingStream{block: make(chan struct{})}
	defer close(slow.block)
	fast := &recordingStream{}
	m.Subscribe(slow)
	m.Subscribe(fast)

	start := time.Now()
	m.Broadcast(&Notification{Type: "state"})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []uint64{1}, fast.seqs())
	assert.Equal(t, 2, m.SubscriberCount())
}

func TestManager_SendKeepsSequence(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	id := m.Subscribe(s)

	m.Broadcast(&Notification{Type: "state"})
	require.NoError(t, m.Send(id, &Notification{Type: "hello"}))
	require.NoError(t, m.Send("missing", &Notification{Type: "hello"}))

	assert.Equal(t, []uint64{1, 1}, s.seqs())

	m.Unsubscribe(id)
	assert.Zero(t, m.SubscriberCount())
}

func TestManager_RepeatedTimeoutsDropSubscriber(t *testing.T) {
	m := NewManager(WithSendTimeout(10*time.Millisecond), WithMaxMisses(2))

	slow := &recordingStream{block: make(chan struct{})}
	defer close(slow.block)
	m.Subscribe(slow)
	m.Subscribe(&recordingStream{})

	m.Broadcast(&Notification{Type: "state"})
	assert.Equal(t, 2, m.SubscriberCount())

	m.Broadcast(&Notification{Type: "state"})
	assert.Equal(t, 1, m.SubscriberCount())
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	m.Subscribe(s)

	m.Close()
	m.Broadcast(&Notification{Type: "state"})

	assert.Zero(t, m.SubscriberCount())
	assert.Empty(t, s.seqs())
	assert.Equal(t, uint64(1), m.SequenceNo())
}
