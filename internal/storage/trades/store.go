// Package trades persists trade records in an append-only WAL. Records are
// never deleted; status updates append a new version and the latest version
// wins on replay.
package trades

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/pegbot/internal/domain"
)

const (
	tradeKeyPrefix   = "trade_"
	segmentThreshold = 1000
	maxSegments      = 100
)

// Filter narrows History results. Zero values mean "no restriction".
type Filter struct {
	Status domain.TradeStatus
	Hours  int
	Limit  int
}

// Store is a WAL-backed trade record store with an in-memory index rebuilt
// on open.
type Store struct {
	mu      sync.RWMutex
	wal     *gowal.Wal
	records map[string]*domain.TradeRecord
}

// NewStore opens the WAL in dir and replays it into the index.
func NewStore(dir string) (*Store, error) {
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "log_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init trade WAL")
	}

	records := make(map[string]*domain.TradeRecord)
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, tradeKeyPrefix) {
			continue
		}
		var rec domain.TradeRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			return nil, errors.Wrapf(err, "decode trade record %s", msg.Key)
		}
		// later versions of the same trade overwrite earlier ones
		records[rec.TradeID] = &rec
	}

	return &Store{wal: wal, records: records}, nil
}

// Save persists a new trade record.
func (s *Store) Save(rec *domain.TradeRecord) error {
	return s.append(rec, "save trade")
}

// Update persists a new version of an existing record.
func (s *Store) Update(rec *domain.TradeRecord) error {
	return s.append(rec, "update trade")
}

func (s *Store) append(rec *domain.TradeRecord, op string) error {
	if rec == nil || rec.TradeID == "" {
		return &domain.PersistenceError{Op: op, Err: errors.New("trade record requires an id")}
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return &domain.PersistenceError{Op: op, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.wal.Write(s.wal.CurrentIndex()+1, tradeKeyPrefix+rec.TradeID, payload); err != nil {
		return &domain.PersistenceError{Op: op, Err: err}
	}

	clone := *rec
	s.records[rec.TradeID] = &clone
	return nil
}

// Get returns the latest version of a trade record.
func (s *Store) Get(tradeID string) (*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[tradeID]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	clone := *rec
	return &clone, nil
}

// Count returns the number of stored trade records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// History returns records matching the filter, newest first.
func (s *Store) History(f Filter) []*domain.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if f.Hours > 0 {
		cutoff = time.Now().UTC().Add(-time.Duration(f.Hours) * time.Hour)
	}

	out := make([]*domain.TradeRecord, 0)
	for _, rec := range s.records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if !cutoff.IsZero() && rec.CreatedAt.Before(cutoff) {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// DailyActivity aggregates records created on the given UTC calendar day.
// Volume counts successful trades only; the trade count covers every record
// opened that day.
func (s *Store) DailyActivity(day time.Time) (domain.DailyActivity, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	activity := domain.DailyActivity{Volume: decimal.Zero}
	for _, rec := range s.records {
		created := rec.CreatedAt.UTC()
		if created.Before(dayStart) || !created.Before(dayEnd) {
			continue
		}
		activity.TradeCount++
		if rec.Status == domain.TradeStatusSuccess {
			activity.Volume = activity.Volume.Add(rec.InputAmount)
		}
	}
	return activity, nil
}

// Statistics summarizes records created inside the rolling window. This is
// a reporting view; limit enforcement uses DailyActivity.
func (s *Store) Statistics(window time.Duration) domain.TradeStatistics {
	cutoff := time.Now().UTC().Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.TradeStatistics{Volume: decimal.Zero, SuccessRate: decimal.Zero}
	for _, rec := range s.records {
		if window > 0 && rec.CreatedAt.UTC().Before(cutoff) {
			continue
		}
		stats.Total++
		switch rec.Status {
		case domain.TradeStatusSuccess:
			stats.Succeeded++
			stats.Volume = stats.Volume.Add(rec.InputAmount)
		case domain.TradeStatusFailed:
			stats.Failed++
		case domain.TradeStatusPending:
			stats.Pending++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = decimal.NewFromInt(int64(stats.Succeeded)).
			Div(decimal.NewFromInt(int64(stats.Total))).
			Mul(decimal.NewFromInt(100))
	}
	return stats
}

// StalePending counts records stuck in PENDING for longer than olderThan.
// A non-zero count means a crash happened between open and reconcile and
// operators need to reconcile manually.
func (s *Store) StalePending(olderThan time.Duration) int {
	cutoff := time.Now().UTC().Add(-olderThan)

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.records {
		if rec.Status == domain.TradeStatusPending && rec.CreatedAt.UTC().Before(cutoff) {
			count++
		}
	}
	return count
}

// Ping reports store liveness.
func (s *Store) Ping() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wal == nil {
		return errors.New("trade store is not initialized")
	}
	return nil
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}
