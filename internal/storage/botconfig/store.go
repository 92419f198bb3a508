// Package botconfig persists the bot configuration singleton in a WAL so a
// restart resumes with the last applied state (including a circuit-breaker
// pause).
package botconfig

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/pegbot/internal/domain"
)

const (
	configKeyPrefix  = "bot_config_"
	segmentThreshold = 100
	maxSegments      = 10
)

// Store is a WAL-backed configuration store, last writer wins.
type Store struct {
	mu  sync.Mutex
	wal *gowal.Wal
}

// NewStore opens the config WAL in dir.
func NewStore(dir string) (*Store, error) {
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "cfg_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init config WAL")
	}
	return &Store{wal: wal}, nil
}

// Save appends the current configuration state.
func (s *Store) Save(cfg domain.BotConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return &domain.PersistenceError{Op: "save config", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.wal.Write(s.wal.CurrentIndex()+1, configKeyPrefix+cfg.Identity, payload); err != nil {
		return &domain.PersistenceError{Op: "save config", Err: err}
	}
	return nil
}

// Load returns the last saved configuration for the identity. found is false
// when the WAL holds no state for it.
func (s *Store) Load(identity string) (cfg domain.BotConfig, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := configKeyPrefix + identity
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, key) {
			continue
		}
		var decoded domain.BotConfig
		if err := json.Unmarshal(msg.Value, &decoded); err != nil {
			return domain.BotConfig{}, false, errors.Wrap(err, "decode config record")
		}
		cfg = decoded
		found = true
	}
	return cfg, found, nil
}

// Ping reports store liveness.
func (s *Store) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wal == nil {
		return errors.New("config store is not initialized")
	}
	return nil
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}
