// Package principal holds per-origin state: anonymization keys and
// remembered permission decisions.
package principal

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/hpungsan/mediamgr/internal/db"
	"github.com/hpungsan/mediamgr/internal/errors"
)

// KeySize is the number of random bytes behind every origin key.
const KeySize = 32

type originKey struct {
	key       string
	stamp     int64
	persisted bool
}

// KeyService hands out stable per-origin keys used to anonymize device ids.
// Private browsing keys live in memory only. Regular keys are written to the
// database when a caller asks for persistence.
type KeyService struct {
	db  *sql.DB
	log logging.LeveledLogger
	now func() time.Time

	mu      sync.Mutex
	private map[string]*originKey
	regular map[string]*originKey
	loaded  bool
}

// NewKeyService returns a key service. A nil database keeps all keys in memory.
func NewKeyService(database *sql.DB, log logging.LeveledLogger) *KeyService {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("principal")
	}
	return &KeyService{
		db:      database,
		log:     log,
		now:     time.Now,
		private: make(map[string]*originKey),
		regular: make(map[string]*originKey),
	}
}

// GetOriginKey returns the key for origin, creating it on first use.
// persist is ignored for private browsing.
func (s *KeyService) GetOriginKey(ctx context.Context, origin string, private, persist bool) (string, error) {
	if origin == "" {
		return "", errors.NewInvalidRequest("origin is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if private {
		k, ok := s.private[origin]
		if !ok {
			var err error
			if k, err = s.generate(); err != nil {
				return "", err
			}
			s.private[origin] = k
		}
		return k.key, nil
	}

	if err := s.load(ctx); err != nil {
		return "", err
	}

	k, ok := s.regular[origin]
	if !ok {
		var err error
		if k, err = s.generate(); err != nil {
			return "", err
		}
		s.regular[origin] = k
	}
	if persist && !k.persisted && s.db != nil {
		if err := db.PutOriginKey(ctx, s.db, &db.OriginKey{Origin: origin, Key: k.key, SecondsStamp: k.stamp}); err != nil {
			return "", err
		}
		k.persisted = true
		s.log.Debugf("persisted origin key for %s", origin)
	}
	return k.key, nil
}

// Sanitize forgets keys created at or after since. A zero since forgets all
// keys. With onlyPrivate, regular keys are kept.
func (s *KeyService) Sanitize(ctx context.Context, since time.Time, onlyPrivate bool) (int, error) {
	var stamp int64
	if !since.IsZero() {
		stamp = since.Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := forget(s.private, stamp)
	if onlyPrivate {
		s.log.Infof("forgot %d private origin keys", removed)
		return removed, nil
	}

	if err := s.load(ctx); err != nil {
		return removed, err
	}
	removed += forget(s.regular, stamp)
	if s.db != nil {
		if _, err := db.DeleteOriginKeysSince(ctx, s.db, stamp); err != nil {
			return removed, err
		}
	}
	s.log.Infof("forgot %d origin keys", removed)
	return removed, nil
}

// load reads persisted keys once. Callers hold s.mu.
func (s *KeyService) load(ctx context.Context) error {
	if s.loaded || s.db == nil {
		return nil
	}
	keys, err := db.ListOriginKeys(ctx, s.db)
	if err != nil {
		return err
	}
	for _, k := range keys {
		s.regular[k.Origin] = &originKey{key: k.Key, stamp: k.SecondsStamp, persisted: true}
	}
	s.loaded = true
	s.log.Debugf("loaded %d origin keys", len(keys))
	return nil
}

func (s *KeyService) generate() (*originKey, error) {
	buf := make([]byte, KeySize)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &originKey{
		key:   base64.StdEncoding.EncodeToString(buf),
		stamp: s.now().Unix(),
	}, nil
}

func forget(keys map[string]*originKey, stamp int64) int {
	n := 0
	for origin, k := range keys {
		if k.stamp >= stamp {
			delete(keys, origin)
			n++
		}
	}
	return n
}
