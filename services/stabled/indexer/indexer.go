package indexer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"stablebond/core/events"
	"stablebond/observability"
)

// Record is one indexed engine event.
type Record struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Type       string            `gorm:"size:64;index" json:"type"`
	Asset      string            `gorm:"size:42;index" json:"asset,omitempty"`
	Bond       string            `gorm:"size:42;index" json:"bond,omitempty"`
	Attributes map[string]string `gorm:"serializer:json" json:"attributes"`
	Digest     string            `gorm:"size:64;index" json:"digest"`
	OccurredAt time.Time         `gorm:"index" json:"occurredAt"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (Record) TableName() string { return "stable_events" }

// Open connects to the configured database. postgres:// and postgresql://
// DSNs use the Postgres driver; everything else is handed to sqlite.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errors.New("indexer dsn must be configured")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open indexer database: %w", err)
	}
	return db, nil
}

// Indexer persists emitted engine events. It implements events.Emitter;
// persistence failures are logged and counted, never surfaced to the engine.
type Indexer struct {
	db      *gorm.DB
	logger  *slog.Logger
	timeout time.Duration
	clock   func() time.Time
}

// New migrates the schema and returns an indexer bound to db.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer database required")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate stable_events: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{db: db, logger: log, timeout: 5 * time.Second, clock: time.Now}, nil
}

// Emit implements events.Emitter.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil || evt == nil {
		return
	}
	kind := evt.EventType()
	record := i.record(evt)
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	if err := i.db.WithContext(ctx).Create(&record).Error; err != nil {
		observability.Events().RecordDropped(kind)
		i.logger.Error("stabled: index event failed", "type", kind, "error", err)
		return
	}
	observability.Events().RecordIndexed(kind)
}

func (i *Indexer) record(evt events.Event) Record {
	record := Record{
		ID:         uuid.New(),
		Type:       evt.EventType(),
		Attributes: map[string]string{},
		OccurredAt: i.clock().UTC(),
	}
	if renderer, ok := evt.(events.Renderer); ok {
		if rendered := renderer.Event(); rendered != nil {
			if rendered.Attributes != nil {
				record.Attributes = rendered.Attributes
			}
			if rendered.Timestamp != 0 {
				record.OccurredAt = time.Unix(rendered.Timestamp, 0).UTC()
			}
		}
	}
	record.Asset = record.Attributes["asset"]
	record.Bond = record.Attributes["bond"]
	record.Digest = digest(record.Type, record.OccurredAt, record.Attributes)
	return record
}

// Query filters List results. Zero values match everything.
type Query struct {
	Type  string
	Asset string
	Bond  string
	Since time.Time
	Limit int
}

const maxListLimit = 500

// List returns matching events, newest first.
func (i *Indexer) List(ctx context.Context, q Query) ([]Record, error) {
	if i == nil {
		return nil, errors.New("indexer not configured")
	}
	limit := q.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	tx := i.db.WithContext(ctx).Model(&Record{})
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.Asset != "" {
		tx = tx.Where("asset = ?", q.Asset)
	}
	if q.Bond != "" {
		tx = tx.Where("bond = ?", q.Bond)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("occurred_at >= ?", q.Since.UTC())
	}
	var out []Record
	if err := tx.Order("occurred_at DESC").Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// digest fingerprints an event independent of attribute ordering so that
// consumers can detect replays.
func digest(kind string, at time.Time, attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := blake3.New(32, nil)
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(at.Unix(), 10)))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(attrs[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}
