package engine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/healthconnect/feed-engine/internal/cache"
	"github.com/healthconnect/feed-engine/internal/connectivity"
	"github.com/healthconnect/feed-engine/internal/domain"
	"github.com/healthconnect/feed-engine/internal/ratelimit"
	"github.com/healthconnect/feed-engine/internal/source"
	"github.com/healthconnect/feed-engine/pkg/config"
	"github.com/healthconnect/feed-engine/pkg/debounce"
	apperrors "github.com/healthconnect/feed-engine/pkg/errors"
	"github.com/healthconnect/feed-engine/pkg/logger"
)

var ErrNotInitialized = errors.New("engine not initialized")

const resultsBuffer = 64

type Opts struct {
	fx.In

	Source  source.Client
	Cache   cache.Store
	Monitor connectivity.Monitor `optional:"true"`
	Logger  logger.Logger
	Config  *config.Config
}

// Engine reconciles the durable snapshot cache, the remote paginated source
// and the local optimistic mutation queue into one ordered, duplicate-free
// feed. One instance serves one viewer at a time.
type Engine struct {
	source    source.Client
	cache     cache.Store
	monitor   connectivity.Monitor
	logger    logger.Logger
	cfg       *config.Config
	limiter   ratelimit.Limiter
	debouncer *debounce.Debouncer
	results   chan domain.MutationResult

	mu       sync.Mutex
	viewerID string
	allowed  map[string]struct{}
	filter   []string
	base     map[string]domain.Post
	pending  []*pendingEntry
	seq      uint64
	cursor   string
	hasMore  bool
	offline  bool
	fetching bool
	closed   bool
}

func New(opts Opts) *Engine {
	feedCfg := opts.Config.Feed
	return &Engine{
		source:    opts.Source,
		cache:     opts.Cache,
		monitor:   opts.Monitor,
		logger:    opts.Logger.WithComponent("FeedEngine"),
		cfg:       opts.Config,
		limiter:   ratelimit.NewInMemoryLimiter(feedCfg.MutationRate, time.Second, feedCfg.MutationBurst),
		debouncer: debounce.New(feedCfg.ReconnectDebounce),
		results:   make(chan domain.MutationResult, resultsBuffer),
		base:      make(map[string]domain.Post),
	}
}

// Results delivers asynchronous mutation outcomes. Failures arrive here,
// never as panics out of Apply calls.
func (e *Engine) Results() <-chan domain.MutationResult {
	return e.results
}

// Start begins watching connectivity transitions. Safe to skip when no
// monitor is wired; the engine then never flips offline on its own.
func (e *Engine) Start(ctx context.Context) {
	if e.monitor == nil {
		return
	}
	go e.watchConnectivity(ctx)
}

// Close marks the engine torn down. In-flight fetches and confirmations
// observe the flag and discard their results instead of mutating state.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.debouncer.Stop()
}

// State returns the current reconciled state without touching the network.
func (e *Engine) State() domain.FeedState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deriveLocked()
}

// Initialize performs the cold-start load for viewerID: remote first page
// when reachable, cached snapshot within the freshness window otherwise,
// empty state with a retryable error when neither works. Exactly one of the
// three outcomes is produced.
func (e *Engine) Initialize(ctx context.Context, viewerID string, followedIDs, blockedIDs []string) (domain.FeedState, error) {
	if viewerID == "" {
		return domain.FeedState{}, errors.New("viewer id is required")
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.FeedState{}, nil
	}
	if e.fetching {
		st := e.deriveLocked()
		e.mu.Unlock()
		return st, nil
	}
	e.fetching = true
	e.viewerID = viewerID
	e.allowed, e.filter = buildFilter(viewerID, followedIDs, blockedIDs)
	e.base = make(map[string]domain.Post)
	e.pending = nil
	e.cursor = ""
	e.hasMore = false
	offline := e.offline
	filter := e.filter
	allowed := e.allowed
	e.mu.Unlock()

	var (
		page domain.FeedPage
		full bool
		err  error
	)
	if offline {
		err = apperrors.Transient(nil, "connectivity reported down")
	} else {
		page, full, err = e.fetchPage(ctx, "", filter, allowed)
	}

	if err != nil {
		return e.fallbackToCache(ctx, viewerID, err)
	}

	e.mu.Lock()
	e.fetching = false
	if e.closed {
		e.mu.Unlock()
		return domain.FeedState{}, nil
	}
	e.base = make(map[string]domain.Post, len(page.Items))
	for _, item := range page.Items {
		if _, ok := e.base[item.ID]; !ok {
			e.base[item.ID] = item
		}
	}
	e.cursor = page.NextCursor
	e.hasMore = full && !page.IsLastPage
	e.offline = false
	st := e.deriveLocked()
	e.mu.Unlock()

	e.writeSnapshot(ctx, viewerID, page.Items)
	return st, nil
}

// LoadMore appends the next remote page. No-op while offline, exhausted, or
// while another fetch is in flight (single-flight: dropped, not queued).
func (e *Engine) LoadMore(ctx context.Context) (domain.FeedState, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.FeedState{}, nil
	}
	if e.viewerID == "" {
		e.mu.Unlock()
		return domain.FeedState{}, ErrNotInitialized
	}
	if e.offline || e.fetching || !e.hasMore {
		st := e.deriveLocked()
		e.mu.Unlock()
		return st, nil
	}
	e.fetching = true
	cur := e.cursor
	filter := e.filter
	allowed := e.allowed
	e.mu.Unlock()

	page, full, err := e.fetchPage(ctx, cur, filter, allowed)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetching = false
	if e.closed {
		return domain.FeedState{}, nil
	}
	if err != nil {
		return e.deriveLocked(), err
	}

	// An id already present is dropped rather than duplicated; overlapping
	// pages happen on createdAt ties.
	for _, item := range page.Items {
		if _, ok := e.base[item.ID]; !ok {
			e.base[item.ID] = item
		}
	}
	e.cursor = page.NextCursor
	e.hasMore = full && !page.IsLastPage
	return e.deriveLocked(), nil
}

// Refresh clears the cursor and replaces the visible window with a fresh
// first page. Pending mutations survive, so locally created posts that have
// not round-tripped stay visible.
func (e *Engine) Refresh(ctx context.Context) (domain.FeedState, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.FeedState{}, nil
	}
	if e.viewerID == "" {
		e.mu.Unlock()
		return domain.FeedState{}, ErrNotInitialized
	}
	if e.offline || e.fetching {
		st := e.deriveLocked()
		e.mu.Unlock()
		return st, nil
	}
	e.fetching = true
	viewerID := e.viewerID
	filter := e.filter
	allowed := e.allowed
	e.mu.Unlock()

	page, full, err := e.fetchPage(ctx, "", filter, allowed)

	e.mu.Lock()
	e.fetching = false
	if e.closed {
		e.mu.Unlock()
		return domain.FeedState{}, nil
	}
	if err != nil {
		st := e.deriveLocked()
		e.mu.Unlock()
		return st, err
	}

	e.base = make(map[string]domain.Post, len(page.Items))
	for _, item := range page.Items {
		if _, ok := e.base[item.ID]; !ok {
			e.base[item.ID] = item
		}
	}
	e.cursor = page.NextCursor
	e.hasMore = full && !page.IsLastPage
	e.offline = false
	st := e.deriveLocked()
	e.mu.Unlock()

	e.writeSnapshot(ctx, viewerID, page.Items)
	return st, nil
}

// fetchPage issues one remote query. Below the fan-out ceiling the author
// filter goes to the source; above it the engine over-fetches unfiltered
// and filters client-side, trading read volume for correctness.
func (e *Engine) fetchPage(ctx context.Context, cur string, filter []string, allowed map[string]struct{}) (domain.FeedPage, bool, error) {
	limit := e.cfg.Feed.PageSize

	if len(filter) <= e.cfg.Feed.FanOutLimit {
		page, err := e.source.QueryFeedPage(ctx, filter, cur, limit)
		if err != nil {
			return domain.FeedPage{}, false, err
		}
		return page, len(page.Items) == limit, nil
	}

	rawLimit := limit * e.cfg.Feed.OverFetchFactor
	raw, err := e.source.QueryFeedPage(ctx, nil, cur, rawLimit)
	if err != nil {
		return domain.FeedPage{}, false, err
	}

	filtered := make([]domain.Post, 0, limit)
	for _, item := range raw.Items {
		if _, ok := allowed[item.AuthorID]; !ok {
			continue
		}
		filtered = append(filtered, item)
		if len(filtered) == limit {
			break
		}
	}

	page := domain.FeedPage{
		Items:      filtered,
		NextCursor: raw.NextCursor,
		IsLastPage: raw.IsLastPage,
	}
	return page, len(raw.Items) == rawLimit, nil
}

// fallbackToCache seeds state from the snapshot when the remote path failed
// and the snapshot is inside the freshness window.
func (e *Engine) fallbackToCache(ctx context.Context, viewerID string, cause error) (domain.FeedState, error) {
	raw, cacheErr := e.cache.Get(ctx, cache.SnapshotKey(viewerID))
	if cacheErr == nil {
		if snap, decodeErr := cache.DecodeSnapshot(raw); decodeErr == nil {
			if time.Since(snap.CachedAt) <= e.cfg.Cache.FreshnessWindow {
				e.mu.Lock()
				e.fetching = false
				if e.closed {
					e.mu.Unlock()
					return domain.FeedState{}, nil
				}
				e.base = make(map[string]domain.Post, len(snap.Posts))
				for _, item := range snap.Posts {
					if _, ok := e.base[item.ID]; !ok {
						e.base[item.ID] = item
					}
				}
				e.cursor = ""
				e.hasMore = false
				e.offline = true
				st := e.deriveLocked()
				e.mu.Unlock()
				return st, nil
			}
		} else {
			e.logger.Warn("Discarding malformed feed snapshot", "viewer", viewerID, "error", decodeErr)
		}
	} else if !errors.Is(cacheErr, cache.ErrNotFound) {
		e.logger.Warn("Snapshot read failed", "viewer", viewerID, "error", cacheErr)
	}

	e.mu.Lock()
	e.fetching = false
	if e.closed {
		e.mu.Unlock()
		return domain.FeedState{}, nil
	}
	st := e.deriveLocked()
	e.mu.Unlock()

	if apperrors.Retryable(cause) {
		return st, cause
	}
	return st, apperrors.Transient(cause, "initial feed load failed")
}

func (e *Engine) writeSnapshot(ctx context.Context, viewerID string, posts []domain.Post) {
	raw, err := cache.EncodeSnapshot(posts, time.Now())
	if err != nil {
		e.logger.Error("Snapshot encode failed", "viewer", viewerID, "error", err)
		return
	}
	if err := e.cache.Set(ctx, cache.SnapshotKey(viewerID), raw); err != nil {
		e.logger.Warn("Snapshot write failed", "viewer", viewerID, "error", err)
	}
}

// watchConnectivity consumes the transition stream. Going offline freezes
// remote calls; coming back online fires exactly one debounced refresh so
// flappy links do not cause a refresh storm.
func (e *Engine) watchConnectivity(ctx context.Context) {
	transitions := e.monitor.Transitions()
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-transitions:
			if !ok {
				return
			}
			if !online {
				e.mu.Lock()
				e.offline = true
				e.mu.Unlock()
				continue
			}

			e.mu.Lock()
			e.offline = false
			initialized := e.viewerID != ""
			e.mu.Unlock()
			if !initialized {
				continue
			}

			e.debouncer.Trigger(func() {
				if _, err := e.Refresh(context.Background()); err != nil {
					e.logger.Warn("Reconnect refresh failed", "error", err)
				}
			})
		}
	}
}

func buildFilter(viewerID string, followedIDs, blockedIDs []string) (map[string]struct{}, []string) {
	blocked := make(map[string]struct{}, len(blockedIDs))
	for _, id := range blockedIDs {
		blocked[id] = struct{}{}
	}

	allowed := make(map[string]struct{}, len(followedIDs)+1)
	for _, id := range append(slices.Clone(followedIDs), viewerID) {
		if id == "" {
			continue
		}
		if _, ok := blocked[id]; ok {
			continue
		}
		allowed[id] = struct{}{}
	}

	filter := make([]string, 0, len(allowed))
	for id := range allowed {
		filter = append(filter, id)
	}
	slices.Sort(filter)
	return allowed, filter
}
