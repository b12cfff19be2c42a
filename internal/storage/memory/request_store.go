// Package memory provides in-memory store implementations for tests and
// DSN-less local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fediarchive/archivebot/internal/archive"
)

// RequestStore is an in-memory archive.RequestStore.
type RequestStore struct {
	mu    sync.RWMutex
	items map[string]archive.RequestItem
	order []string
	next  int
}

// NewRequestStore constructs a RequestStore.
func NewRequestStore() *RequestStore {
	return &RequestStore{items: make(map[string]archive.RequestItem)}
}

// Upsert inserts or updates one request, assigning a sequential ID when
// empty.
func (s *RequestStore) Upsert(_ context.Context, item *archive.RequestItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		s.next++
		item.ID = fmt.Sprintf("req-%d", s.next)
	}
	if _, ok := s.items[item.ID]; !ok {
		s.order = append(s.order, item.ID)
	}
	s.items[item.ID] = *item
	return nil
}

// All returns stored requests in insertion order.
func (s *RequestStore) All(_ context.Context) ([]archive.RequestItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]archive.RequestItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out, nil
}

// Pending returns requests awaiting submission.
func (s *RequestStore) Pending(_ context.Context) ([]archive.RequestItem, error) {
	return s.filter(func(item archive.RequestItem) bool {
		return item.State == archive.StatePending
	})
}

// ReadyForReply returns requests still owing a reply.
func (s *RequestStore) ReadyForReply(_ context.Context) ([]archive.RequestItem, error) {
	return s.filter(func(item archive.RequestItem) bool {
		return item.State.Replyable()
	})
}

// DeleteOlderThan removes requests in the given states created before
// cutoff.
func (s *RequestStore) DeleteOlderThan(_ context.Context, states []archive.State, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match := stateSet(states)
	var deleted int64
	kept := s.order[:0]
	for _, id := range s.order {
		item := s.items[id]
		if match[item.State] && item.CreatedAt.Before(cutoff) {
			delete(s.items, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return deleted, nil
}

func (s *RequestStore) filter(keep func(archive.RequestItem) bool) ([]archive.RequestItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []archive.RequestItem
	for _, id := range s.order {
		if item := s.items[id]; keep(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

func stateSet(states []archive.State) map[archive.State]bool {
	set := make(map[archive.State]bool, len(states))
	for _, st := range states {
		set[st] = true
	}
	return set
}
