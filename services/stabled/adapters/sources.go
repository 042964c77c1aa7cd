package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"

	"stablebond/native/stable"
	"stablebond/services/stabled/config"
	"stablebond/services/stabled/oracle"
)

const (
	defaultRetryDelay = 500 * time.Millisecond
	defaultField      = "price"
	maxBodyBytes      = 1 << 20
)

// errTransient marks failures worth retrying: transport errors, 429, and 5xx.
var errTransient = errors.New("transient oracle failure")

// Registry constructs oracle sources based on configuration.
type Registry struct {
	HTTPClient *http.Client
	Retries    uint
	RetryDelay time.Duration
	Logger     *slog.Logger
	Clock      func() time.Time
}

// NewRegistry builds a registry with sane defaults.
func NewRegistry(retries uint) *Registry {
	return &Registry{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Retries:    retries,
		RetryDelay: defaultRetryDelay,
		Logger:     slog.Default(),
		Clock:      time.Now,
	}
}

// Build creates a source from the supplied configuration.
func (r *Registry) Build(src config.Source) (oracle.Source, error) {
	switch strings.ToLower(strings.TrimSpace(src.Type)) {
	case config.SourceStatic:
		if src.Mantissa == 0 {
			return nil, fmt.Errorf("static source %q requires a mantissa", src.Name)
		}
		return &staticSource{name: label(src.Name, "static"), mantissa: src.Mantissa, clock: r.clock()}, nil
	case config.SourceHTTP, "":
		endpoint := strings.TrimSpace(src.Endpoint)
		if endpoint == "" {
			return nil, fmt.Errorf("http source %q requires an endpoint", src.Name)
		}
		field := strings.TrimSpace(src.Field)
		if field == "" {
			field = defaultField
		}
		return &httpSource{
			name:     label(src.Name, "http"),
			client:   r.client(),
			endpoint: endpoint,
			apiKey:   strings.TrimSpace(src.APIKey),
			field:    field,
			attempts: r.attempts(),
			delay:    r.delay(),
			logger:   r.logger(),
			clock:    r.clock(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown oracle type %q", src.Type)
	}
}

// BuildFeeds converts configured feeds into manager feeds.
func (r *Registry) BuildFeeds(feeds []config.Feed) ([]oracle.Feed, error) {
	out := make([]oracle.Feed, 0, len(feeds))
	for _, feed := range feeds {
		sources := make([]oracle.Source, 0, len(feed.Sources))
		for _, src := range feed.Sources {
			built, err := r.Build(src)
			if err != nil {
				return nil, fmt.Errorf("feed %s: %w", feed.Name, err)
			}
			sources = append(sources, built)
		}
		out = append(out, oracle.Feed{Name: feed.Name, Sources: sources})
	}
	return out, nil
}

func (r *Registry) client() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (r *Registry) attempts() uint {
	if r.Retries == 0 {
		return 1
	}
	return r.Retries
}

func (r *Registry) delay() time.Duration {
	if r.RetryDelay <= 0 {
		return defaultRetryDelay
	}
	return r.RetryDelay
}

func (r *Registry) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Registry) clock() func() time.Time {
	if r.Clock != nil {
		return r.Clock
	}
	return time.Now
}

type staticSource struct {
	name     string
	mantissa int64
	clock    func() time.Time
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Fetch(context.Context, string) (stable.PriceReading, error) {
	return stable.PriceReading{Mantissa: s.mantissa, ObservedAt: s.clock().UTC()}, nil
}

// httpSource reads a JSON document of the form
//
//	{"price": 1000000, "observed_at": 1700000000}
//
// where the mantissa key is configurable and observed_at (unix seconds) is
// optional. A {feed} placeholder in the endpoint is replaced by the feed name.
type httpSource struct {
	name     string
	client   *http.Client
	endpoint string
	apiKey   string
	field    string
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
	clock    func() time.Time
}

func (s *httpSource) Name() string { return s.name }

func (s *httpSource) Fetch(ctx context.Context, feed string) (stable.PriceReading, error) {
	return retry.DoWithData(func() (stable.PriceReading, error) {
		return s.fetchOnce(ctx, feed)
	},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errTransient)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("stabled: retrying oracle source",
				"source", s.name,
				"feed", feed,
				"attempt", n+1,
				"max_attempts", s.attempts,
				"error", err)
		}))
}

func (s *httpSource) fetchOnce(ctx context.Context, feed string) (stable.PriceReading, error) {
	url := strings.ReplaceAll(s.endpoint, "{feed}", feed)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return stable.PriceReading{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return stable.PriceReading{}, fmt.Errorf("%w: %v", errTransient, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return stable.PriceReading{}, fmt.Errorf("%w: read body: %v", errTransient, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return stable.PriceReading{}, fmt.Errorf("%w: status %d", errTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return stable.PriceReading{}, fmt.Errorf("oracle %s: unexpected status %d", s.name, resp.StatusCode)
	}
	return s.decode(body)
}

func (s *httpSource) decode(body []byte) (stable.PriceReading, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		return stable.PriceReading{}, fmt.Errorf("oracle %s: decode: %w", s.name, err)
	}
	raw, ok := doc[s.field]
	if !ok {
		return stable.PriceReading{}, fmt.Errorf("oracle %s: field %q missing", s.name, s.field)
	}
	mantissa, err := parseInt(raw)
	if err != nil {
		return stable.PriceReading{}, fmt.Errorf("oracle %s: field %q: %w", s.name, s.field, err)
	}
	reading := stable.PriceReading{Mantissa: mantissa, ObservedAt: s.clock().UTC()}
	if rawTS, ok := doc["observed_at"]; ok {
		ts, err := parseInt(rawTS)
		if err != nil {
			return stable.PriceReading{}, fmt.Errorf("oracle %s: observed_at: %w", s.name, err)
		}
		reading.ObservedAt = time.Unix(ts, 0).UTC()
	}
	return reading, nil
}

// parseInt accepts integers encoded as JSON numbers or strings.
func parseInt(raw json.RawMessage) (int64, error) {
	var num json.Number
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, err
		}
		num = json.Number(strings.TrimSpace(s))
	} else if err := json.Unmarshal(trimmed, &num); err != nil {
		return 0, err
	}
	return num.Int64()
}

func label(name, fallback string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed != "" {
		return trimmed
	}
	return fallback
}
