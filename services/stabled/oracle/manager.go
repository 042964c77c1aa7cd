package oracle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"lukechampine.com/blake3"

	"stablebond/native/stable"
	"stablebond/observability"
	"stablebond/services/stabled/storage"
)

var (
	// ErrUnknownFeed is returned for feeds the manager was not configured with.
	ErrUnknownFeed = errors.New("oracle: unknown feed")
	// ErrNoReading is returned before the first reading for a feed arrives.
	ErrNoReading = errors.New("oracle: no reading available")
)

// futureTolerance bounds how far ahead of the local clock a source may stamp
// its readings.
const futureTolerance = 5 * time.Second

// Source resolves the current mantissa for a feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context, feed string) (stable.PriceReading, error)
}

// Feed binds a feed name to the sources quoting it.
type Feed struct {
	Name    string
	Sources []Source
}

// Manager polls the configured sources, aggregates their readings per feed,
// and serves the latest aggregate to the issuance engine.
type Manager struct {
	logger     *slog.Logger
	storage    *storage.Storage
	feeds      []Feed
	minSources int
	maxAge     time.Duration
	interval   time.Duration
	metrics    *observability.OracleMetrics
	clock      func() time.Time

	mu     sync.RWMutex
	latest map[string]storage.Snapshot
	once   sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the wall clock used to judge reading freshness.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// New constructs a manager instance.
func New(store *storage.Storage, feeds []Feed, interval, maxAge time.Duration, minSources int, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("at least one feed required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	if minSources <= 0 {
		minSources = 1
	}
	normalized := make([]Feed, 0, len(feeds))
	for _, feed := range feeds {
		name := feedKey(feed.Name)
		if name == "" {
			return nil, fmt.Errorf("feed name required")
		}
		if len(feed.Sources) == 0 {
			return nil, fmt.Errorf("feed %s: at least one source required", name)
		}
		normalized = append(normalized, Feed{Name: name, Sources: append([]Source{}, feed.Sources...)})
	}
	mgr := &Manager{
		logger:     slog.Default(),
		storage:    store,
		feeds:      normalized,
		minSources: minSources,
		maxAge:     maxAge,
		interval:   interval,
		metrics:    observability.Oracle(),
		clock:      time.Now,
		latest:     make(map[string]storage.Snapshot, len(normalized)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr, nil
}

// Run blocks, periodically polling upstream feeds until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.once.Do(func() {
		m.logger.Info("stabled: oracle manager started", "feeds", len(m.feeds))
	})
	for {
		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("stabled: oracle tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs a single polling cycle across every feed. A failing feed does
// not stop the others; the joined error reports all of them.
func (m *Manager) Tick(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	var errs []error
	for _, feed := range m.feeds {
		if err := m.processFeed(ctx, feed); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) processFeed(ctx context.Context, feed Feed) error {
	now := m.clock()
	mantissas := make([]int64, 0, len(feed.Sources))
	sources := make([]string, 0, len(feed.Sources))
	var observed time.Time
	for _, src := range feed.Sources {
		if src == nil {
			continue
		}
		reading, err := src.Fetch(ctx, feed.Name)
		if err != nil {
			m.logger.Warn("stabled: oracle source failed", "feed", feed.Name, "source", src.Name(), "error", err)
			m.metrics.RecordReject(feed.Name, "fetch")
			continue
		}
		if reason := m.reject(reading, now); reason != "" {
			m.logger.Warn("stabled: oracle reading rejected", "feed", feed.Name, "source", src.Name(), "reason", reason)
			m.metrics.RecordReject(feed.Name, reason)
			continue
		}
		mantissas = append(mantissas, reading.Mantissa)
		sources = append(sources, src.Name())
		// The aggregate is only as fresh as its oldest input.
		if observed.IsZero() || reading.ObservedAt.Before(observed) {
			observed = reading.ObservedAt
		}
		if err := m.storage.RecordSample(ctx, feed.Name, src.Name(), reading.Mantissa, reading.ObservedAt, now); err != nil {
			m.logger.Warn("stabled: record oracle sample", "feed", feed.Name, "error", err)
		}
	}
	if len(mantissas) < m.minSources {
		return fmt.Errorf("insufficient oracle sources for %s: %d of %d", feed.Name, len(mantissas), m.minSources)
	}
	snap := storage.Snapshot{
		Feed:       feed.Name,
		Mantissa:   median(mantissas),
		Sources:    sources,
		ObservedAt: observed.UTC(),
	}
	if snap.Mantissa == 0 {
		m.metrics.RecordReject(feed.Name, "zero")
		return fmt.Errorf("median reading for %s is zero", feed.Name)
	}
	snap.ProofID = proofID(snap)
	if err := m.storage.RecordSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	m.mu.Lock()
	m.latest[feed.Name] = snap
	m.mu.Unlock()
	m.metrics.RecordUpdate(feed.Name, strings.Join(sources, ","), now.Sub(snap.ObservedAt))
	return nil
}

func (m *Manager) reject(reading stable.PriceReading, now time.Time) string {
	switch {
	case reading.Mantissa == 0:
		return "zero"
	case reading.ObservedAt.IsZero():
		return "untimed"
	case reading.ObservedAt.After(now.Add(futureTolerance)):
		return "future"
	case reading.ObservedAt.Before(now.Add(-m.maxAge)):
		return "expired"
	}
	return ""
}

// Latest implements stable.PriceOracle. Before the first successful poll the
// manager falls back to the last snapshot persisted for the feed; the engine
// applies its own staleness rules to whatever is returned.
func (m *Manager) Latest(ctx context.Context, feed string) (stable.PriceReading, error) {
	if m == nil {
		return stable.PriceReading{}, fmt.Errorf("manager not configured")
	}
	name := feedKey(feed)
	if !m.configured(name) {
		return stable.PriceReading{}, fmt.Errorf("%w: %s", ErrUnknownFeed, name)
	}
	m.mu.RLock()
	snap, ok := m.latest[name]
	m.mu.RUnlock()
	if !ok {
		stored, err := m.storage.LatestSnapshot(ctx, name)
		if err != nil {
			if errors.Is(err, storage.ErrSnapshotNotFound) {
				return stable.PriceReading{}, fmt.Errorf("%w: %s", ErrNoReading, name)
			}
			return stable.PriceReading{}, err
		}
		m.mu.Lock()
		if _, raced := m.latest[name]; !raced {
			m.latest[name] = stored
		}
		m.mu.Unlock()
		snap = stored
	}
	return stable.PriceReading{Mantissa: snap.Mantissa, ObservedAt: snap.ObservedAt}, nil
}

// Snapshot returns the latest aggregate with its provenance.
func (m *Manager) Snapshot(feed string) (storage.Snapshot, bool) {
	if m == nil {
		return storage.Snapshot{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.latest[feedKey(feed)]
	return snap, ok
}

func (m *Manager) configured(name string) bool {
	for _, feed := range m.feeds {
		if feed.Name == name {
			return true
		}
	}
	return false
}

func median(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int64{}, values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	a, b := sorted[mid-1], sorted[mid]
	return a/2 + b/2 + (a%2+b%2)/2
}

func proofID(snap storage.Snapshot) string {
	digest := blake3.New(32, nil)
	digest.Write([]byte(snap.Feed))
	digest.Write([]byte{'/'})
	digest.Write([]byte(strconv.FormatInt(snap.Mantissa, 10)))
	digest.Write([]byte(snap.ObservedAt.UTC().Format(time.RFC3339Nano)))
	sorted := append([]string{}, snap.Sources...)
	sort.Strings(sorted)
	for _, s := range sorted {
		digest.Write([]byte(strings.ToLower(strings.TrimSpace(s))))
	}
	return hex.EncodeToString(digest.Sum(nil))
}

func feedKey(feed string) string {
	return strings.ToLower(strings.TrimSpace(feed))
}
