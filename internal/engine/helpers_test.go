package engine_test

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/healthconnect/feed-engine/internal/cache"
	"github.com/healthconnect/feed-engine/internal/domain"
	"github.com/healthconnect/feed-engine/internal/engine"
	"github.com/healthconnect/feed-engine/pkg/config"
	"github.com/healthconnect/feed-engine/pkg/logger"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)               {}
func (nopLogger) Info(string, ...any)                {}
func (nopLogger) Warn(string, ...any)                {}
func (nopLogger) Error(string, ...any)               {}
func (nopLogger) WithComponent(string) logger.Logger { return nopLogger{} }

type queryCall struct {
	authorIDs []string
	cursor    string
	limit     int
}

// fakeSource records calls and delegates to the per-test function fields.
// Unset fields behave like an empty, exhausted store.
type fakeSource struct {
	mu        sync.Mutex
	queries   []queryCall
	likeCalls int

	queryFn   func(q queryCall) (domain.FeedPage, error)
	likeFn    func(postID, viewerID string, like bool) error
	createFn  func(post domain.Post) (domain.Post, error)
	deleteFn  func(postID, authorID string) error
	commentFn func(postID string, delta int) error
}

func (f *fakeSource) QueryFeedPage(_ context.Context, authorIDs []string, cursor string, limit int) (domain.FeedPage, error) {
	q := queryCall{authorIDs: slices.Clone(authorIDs), cursor: cursor, limit: limit}
	f.mu.Lock()
	f.queries = append(f.queries, q)
	fn := f.queryFn
	f.mu.Unlock()
	if fn == nil {
		return domain.FeedPage{IsLastPage: true}, nil
	}
	return fn(q)
}

func (f *fakeSource) MutatePostLike(_ context.Context, postID, viewerID string, like bool) error {
	f.mu.Lock()
	f.likeCalls++
	fn := f.likeFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(postID, viewerID, like)
}

func (f *fakeSource) CreatePost(_ context.Context, post domain.Post) (domain.Post, error) {
	f.mu.Lock()
	fn := f.createFn
	f.mu.Unlock()
	if fn == nil {
		return post, nil
	}
	return fn(post)
}

func (f *fakeSource) DeletePost(_ context.Context, postID, authorID string) error {
	f.mu.Lock()
	fn := f.deleteFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(postID, authorID)
}

func (f *fakeSource) AdjustCommentCount(_ context.Context, postID string, delta int) error {
	f.mu.Lock()
	fn := f.commentFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(postID, delta)
}

func (f *fakeSource) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeSource) query(i int) queryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[i]
}

func (f *fakeSource) likeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.likeCalls
}

type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return slices.Clone(v), nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = slices.Clone(value)
	return nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *fakeStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

type fakeMonitor struct {
	ch chan bool
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{ch: make(chan bool, 16)}
}

func (m *fakeMonitor) Transitions() <-chan bool { return m.ch }
func (m *fakeMonitor) Close()                   { close(m.ch) }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Cache.FreshnessWindow = 24 * time.Hour
	cfg.Feed.PageSize = 2
	cfg.Feed.FanOutLimit = 10
	cfg.Feed.OverFetchFactor = 3
	cfg.Feed.ReconnectDebounce = 40 * time.Millisecond
	cfg.Feed.MutationRate = 100
	cfg.Feed.MutationBurst = 100
	return cfg
}

func newTestEngine(src *fakeSource, store *fakeStore, mon *fakeMonitor, cfg *config.Config) *engine.Engine {
	opts := engine.Opts{
		Source: src,
		Cache:  store,
		Logger: nopLogger{},
		Config: cfg,
	}
	if mon != nil {
		opts.Monitor = mon
	}
	return engine.New(opts)
}

func mkPost(id, author string, sec int64) domain.Post {
	return domain.Post{ID: id, AuthorID: author, CreatedAt: time.Unix(sec, 0)}
}

func postIDs(st domain.FeedState) []string {
	ids := make([]string, 0, len(st.Posts))
	for _, p := range st.Posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func findPost(st domain.FeedState, id string) (domain.Post, bool) {
	for _, p := range st.Posts {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Post{}, false
}

func waitResult(t *testing.T, e *engine.Engine) domain.MutationResult {
	t.Helper()
	select {
	case res := <-e.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for mutation result")
		return domain.MutationResult{}
	}
}

func assertNoResult(t *testing.T, e *engine.Engine) {
	t.Helper()
	select {
	case res := <-e.Results():
		t.Fatalf("unexpected mutation result: %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
}
