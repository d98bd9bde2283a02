// Package history provides the bounded list of previously played tracks.
package history

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/domain/track"
)

// Capacity is the maximum number of entries kept.
const Capacity = 50

// Store persists the history for one user.
type Store interface {
	LoadHistory(ctx context.Context) ([]track.Track, error)
	SaveHistory(ctx context.Context, tracks []track.Track) error
}

// Log is a most-recent-first stack of played tracks. Each track appears at
// most once. Methods are safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []track.Track

	store  Store
	saveCh chan []track.Track
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates an empty log. When store is non-nil, every change is written
// through asynchronously; only the latest pending snapshot is kept.
func New(store Store) *Log {
	l := &Log{
		entries: make([]track.Track, 0, Capacity),
		store:   store,
	}
	if store != nil {
		l.saveCh = make(chan []track.Track, 1)
		l.done = make(chan struct{})
		l.wg.Add(1)
		go l.writer()
	}
	return l
}

// Load replaces the in-memory entries with the persisted ones.
func (l *Log) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	entries, err := l.store.LoadHistory(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = normalize(entries)
	zlog.Debug().Msgf("history: loaded %d entries", len(l.entries))
	return nil
}

// Push records t as the most recent entry, dropping any older entry with the
// same ID and the oldest entries beyond Capacity.
func (l *Log) Push(t track.Track) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]track.Track, 0, len(l.entries)+1)
	entries = append(entries, t)
	for _, e := range l.entries {
		if e.ID != t.ID {
			entries = append(entries, e)
		}
	}
	if len(entries) > Capacity {
		entries = entries[:Capacity]
	}
	l.entries = entries
	l.persistLocked()
}

// Pop removes and returns the most recent entry.
func (l *Log) Pop() (track.Track, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return track.Track{}, false
	}
	t := l.entries[0]
	l.entries = append(make([]track.Track, 0, Capacity), l.entries[1:]...)
	l.persistLocked()
	return t, true
}

// Remove drops the entry for trackID. It reports whether anything changed.
func (l *Log) Remove(trackID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := track.IndexOf(l.entries, trackID)
	if idx == -1 {
		return false
	}
	entries := make([]track.Track, 0, len(l.entries)-1)
	entries = append(entries, l.entries[:idx]...)
	entries = append(entries, l.entries[idx+1:]...)
	l.entries = entries
	l.persistLocked()
	return true
}

// ReplaceTrack swaps in an updated record for an existing entry.
func (l *Log) ReplaceTrack(t track.Track) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := track.IndexOf(l.entries, t.ID)
	if idx == -1 {
		return false
	}
	l.entries[idx] = t
	l.persistLocked()
	return true
}

// Snapshot returns a copy of the entries, most recent first.
func (l *Log) Snapshot() []track.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]track.Track, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close flushes the pending write and stops the writer.
func (l *Log) Close() {
	if l.store == nil {
		return
	}
	close(l.done)
	l.wg.Wait()
}

func (l *Log) persistLocked() {
	if l.store == nil {
		return
	}
	snapshot := make([]track.Track, len(l.entries))
	copy(snapshot, l.entries)

	// Replace any write that has not started yet.
	select {
	case <-l.saveCh:
	default:
	}
	select {
	case l.saveCh <- snapshot:
	default:
	}
}

func (l *Log) writer() {
	defer l.wg.Done()
	for {
		select {
		case entries := <-l.saveCh:
			l.save(entries)
		case <-l.done:
			select {
			case entries := <-l.saveCh:
				l.save(entries)
			default:
			}
			return
		}
	}
}

func (l *Log) save(entries []track.Track) {
	if err := l.store.SaveHistory(context.Background(), entries); err != nil {
		zlog.Warn().Err(err).Msg("history: failed to save")
	}
}

func normalize(entries []track.Track) []track.Track {
	out := make([]track.Track, 0, Capacity)
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
		if len(out) == Capacity {
			break
		}
	}
	return out
}
