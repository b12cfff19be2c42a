package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fediarchive/archivebot/internal/archive"
	"github.com/fediarchive/archivebot/internal/storage/memory"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type postedReply struct {
	Text       string
	InReplyTo  string
	EditID     string
	Visibility string
}

type timelineCall struct {
	Tag     string
	SinceID string
	Limit   int
}

type fakeMessenger struct {
	mu            sync.Mutex
	self          archive.Account
	notifications []archive.Notification
	statuses      map[string]archive.Status
	timelines     map[string][]archive.Status
	failPost      bool

	posts         []postedReply
	favourites    []string
	cleared       int
	timelineCalls []timelineCall
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		self:      archive.Account{ID: "bot-1", Handle: "archivebot"},
		statuses:  make(map[string]archive.Status),
		timelines: make(map[string][]archive.Status),
	}
}

func (m *fakeMessenger) Notifications(context.Context) ([]archive.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifications, nil
}

func (m *fakeMessenger) ClearNotifications(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
	return nil
}

func (m *fakeMessenger) PostReply(_ context.Context, text, inReplyTo, editID, visibility string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPost {
		return "", fmt.Errorf("instance unavailable")
	}
	m.posts = append(m.posts, postedReply{Text: text, InReplyTo: inReplyTo, EditID: editID, Visibility: visibility})
	if editID != "" {
		return editID, nil
	}
	return fmt.Sprintf("reply-%d", len(m.posts)), nil
}

func (m *fakeMessenger) Status(_ context.Context, id string) (archive.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.statuses[id]
	if !ok {
		return archive.Status{}, fmt.Errorf("status %s not found", id)
	}
	return status, nil
}

func (m *fakeMessenger) TagTimeline(_ context.Context, tag, sinceID string, limit int) ([]archive.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timelineCalls = append(m.timelineCalls, timelineCall{Tag: tag, SinceID: sinceID, Limit: limit})
	return m.timelines[tag], nil
}

func (m *fakeMessenger) Favourite(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.favourites = append(m.favourites, id)
	return nil
}

func (m *fakeMessenger) Me(context.Context) (archive.Account, error) {
	return m.self, nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	existing map[string]string
	captures map[string]string
	failures map[string]error
	calls    []string
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{
		existing: make(map[string]string),
		captures: make(map[string]string),
		failures: make(map[string]error),
	}
}

func (a *fakeArchiver) ExistingSnapshot(_ context.Context, url string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "existing:"+url)
	if err, ok := a.failures[url]; ok {
		return "", err
	}
	return a.existing[url], nil
}

func (a *fakeArchiver) Capture(_ context.Context, url string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "capture:"+url)
	if err, ok := a.failures[url]; ok {
		return "", err
	}
	snapshot, ok := a.captures[url]
	if !ok {
		return "", fmt.Errorf("capture refused for %s", url)
	}
	return snapshot, nil
}

func (a *fakeArchiver) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: make(map[string][]byte), errs: make(map[string]error)}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return f.bodies[url], nil
}

type testHarness struct {
	engine    *Engine
	requests  *memory.RequestStore
	hashtags  *memory.HashtagStore
	messenger *fakeMessenger
	archiver  *fakeArchiver
	fetcher   *fakeFetcher
	clock     *fixedClock
}

func newHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()
	h := &testHarness{
		requests:  memory.NewRequestStore(),
		hashtags:  memory.NewHashtagStore(),
		messenger: newFakeMessenger(),
		archiver:  newFakeArchiver(),
		fetcher:   newFakeFetcher(),
		clock:     &fixedClock{now: time.Unix(1700000000, 0).UTC()},
	}
	eng, err := New(cfg, h.requests, h.hashtags, h.messenger, h.archiver, h.fetcher, h.clock, zap.NewNop())
	require.NoError(t, err)
	h.engine = eng
	return h
}
