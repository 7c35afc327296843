// Package store provides storage backends for Jeeves.
//
// It keeps an audit log of webhook deliveries and the inbound message IDs used to drop
// gateway redeliveries. Scheduling sessions are never stored here; they live in memory
// for the lifetime of the process.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultListLimit caps ListDeliveries when no positive limit is given.
	DefaultListLimit = 50
	// DefaultMaxInMemoryDeliveries is how many attempts InMemoryStore keeps; older ones are dropped.
	DefaultMaxInMemoryDeliveries = 1000
)

// Delivery records one webhook attempt.
type Delivery struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	UserID      string    `json:"user_id"`
	ChannelID   string    `json:"channel_id"`
	PayloadJSON string    `json:"payload_json"`
	StatusCode  int       `json:"status_code"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeliveryRepo persists webhook delivery attempts.
type DeliveryRepo interface {
	// RecordDelivery appends an attempt to the log.
	RecordDelivery(d Delivery) error
	// ListDeliveries returns the most recent attempts, newest first.
	ListDeliveries(limit int) ([]Delivery, error)
}

// Store is the full storage interface used by the bot.
type Store interface {
	DeliveryRepo
	DedupRepo
	Close() error
}

// Opts holds configuration options for the store.
type Opts struct {
	DSN string
}

// Option defines a configuration option for the store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	// libpq key=value form, e.g. "host=localhost user=jeeves dbname=jeeves"
	for _, key := range []string{"host=", "user=", "dbname="} {
		if strings.Contains(dsn, key) {
			return "postgres"
		}
	}
	return "sqlite3"
}

// InMemoryStore is the default store when no database is configured.
type InMemoryStore struct {
	mu            sync.RWMutex
	deliveries    []Delivery
	maxDeliveries int
	inbound       map[string]*DedupRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		maxDeliveries: DefaultMaxInMemoryDeliveries,
		inbound:       make(map[string]*DedupRecord),
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) RecordDelivery(d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	if over := len(s.deliveries) - s.maxDeliveries; s.maxDeliveries > 0 && over > 0 {
		n := copy(s.deliveries, s.deliveries[over:])
		clear(s.deliveries[n:])
		s.deliveries = s.deliveries[:n]
	}
	return nil
}

func (s *InMemoryStore) ListDeliveries(limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.RLock()
	out := make([]Delivery, len(s.deliveries))
	copy(out, s.deliveries)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) RecordInbound(messageID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[messageID]; ok {
		return false, nil
	}
	s.inbound[messageID] = &DedupRecord{MessageID: messageID, UserID: userID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.inbound[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) PruneProcessedBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.inbound {
		if rec.ProcessedAt != nil && rec.ProcessedAt.Before(cutoff) {
			delete(s.inbound, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
