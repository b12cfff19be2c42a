package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fediarchive/archivebot/internal/archive"
)

// HashtagStore is an in-memory archive.HashtagStore.
type HashtagStore struct {
	mu    sync.RWMutex
	items map[string]*archive.HashtagItem
	order []string
	next  int
}

// NewHashtagStore constructs a HashtagStore.
func NewHashtagStore() *HashtagStore {
	return &HashtagStore{items: make(map[string]*archive.HashtagItem)}
}

// Upsert stores one tag's record, assigning IDs to new embedded requests.
func (s *HashtagStore) Upsert(_ context.Context, item *archive.HashtagItem) error {
	if item.Tag == "" {
		return fmt.Errorf("hashtag tag is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range item.Items {
		item.Items[i].Tag = item.Tag
		if item.Items[i].ID == "" {
			s.next++
			item.Items[i].ID = fmt.Sprintf("tagreq-%d", s.next)
		}
	}
	if _, ok := s.items[item.Tag]; !ok {
		s.order = append(s.order, item.Tag)
	}
	copied := archive.HashtagItem{Tag: item.Tag, Items: append([]archive.RequestItem(nil), item.Items...)}
	s.items[item.Tag] = &copied
	return nil
}

// All returns every tag record in first-seen order.
func (s *HashtagStore) All(_ context.Context) ([]archive.HashtagItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]archive.HashtagItem, 0, len(s.order))
	for _, tag := range s.order {
		item := s.items[tag]
		out = append(out, archive.HashtagItem{
			Tag:   item.Tag,
			Items: append([]archive.RequestItem(nil), item.Items...),
		})
	}
	return out, nil
}

// Get loads one tag's record.
func (s *HashtagStore) Get(_ context.Context, tag string) (archive.HashtagItem, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[tag]
	if !ok {
		return archive.HashtagItem{}, false, nil
	}
	return archive.HashtagItem{
		Tag:   item.Tag,
		Items: append([]archive.RequestItem(nil), item.Items...),
	}, true, nil
}

// DeleteItemsOlderThan removes embedded requests in the given states
// created before cutoff, across all tags.
func (s *HashtagStore) DeleteItemsOlderThan(_ context.Context, states []archive.State, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match := stateSet(states)
	var deleted int64
	for _, item := range s.items {
		kept := item.Items[:0]
		for _, req := range item.Items {
			if match[req.State] && req.CreatedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, req)
		}
		item.Items = kept
	}
	return deleted, nil
}
