package autotune

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// picksBucket holds encoded picks keyed by the 8-byte big-endian Key.
var picksBucket = []byte("picksv1")

// pickSize is the fixed encoded size of a Pick.
const pickSize = 24

// Store persists a Cache's picks in a bolt database.
type Store struct {
	path   string
	db     *bolt.DB
	logger *zap.Logger
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger on the store. It must be called before Open.
func (s *Store) WithLogger(log *zap.Logger) {
	s.logger = log.With(zap.String("service", "autotune"))
}

// Open creates the bolt file if it doesn't exist and opens it otherwise.
func (s *Store) Open(ctx context.Context) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "Store.Open")
	defer span.Finish()

	// Ensure the required directory structure exists.
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return errors.Wrapf(err, "unable to create directory %s", filepath.Dir(s.path))
	}

	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return errors.Wrapf(err, "unable to open autotune database %s", s.path)
	}
	s.db = db

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(picksBucket)
		return err
	}); err != nil {
		return errors.Wrap(err, "unable to initialize autotune bucket")
	}

	s.logger.Info("Autotune store opened", zap.String("path", s.path))
	return nil
}

// Close closes the bolt database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load merges persisted picks into c. Picks already in memory win over
// persisted ones, and records that fail to decode are skipped, so a stale
// or truncated database degrades to a smaller cache rather than an error.
func (s *Store) Load(ctx context.Context, c *Cache) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "Store.Load")
	defer span.Finish()

	var loaded, skipped int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(picksBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 8 || len(v) != pickSize {
				skipped++
				return nil
			}
			c.Add(Key(binary.BigEndian.Uint64(k)), decodePick(v))
			loaded++
			return nil
		})
	})
	if err != nil {
		return errors.Wrap(err, "unable to load autotune picks")
	}

	if skipped > 0 {
		s.logger.Warn("Skipped undecodable autotune records", zap.Int("count", skipped))
	}
	s.logger.Debug("Loaded autotune picks", zap.Int("count", loaded))
	return nil
}

// Flush writes every pick in c to the database.
func (s *Store) Flush(ctx context.Context, c *Cache) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "Store.Flush")
	defer span.Finish()

	picks := c.Snapshot()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(picksBucket)
		if err != nil {
			return err
		}
		for k, p := range picks {
			var key [8]byte
			binary.BigEndian.PutUint64(key[:], uint64(k))
			if err := b.Put(key[:], encodePick(p)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "unable to flush autotune picks")
	}

	s.logger.Debug("Flushed autotune picks", zap.Int("count", len(picks)))
	return nil
}

func encodePick(p Pick) []byte {
	var v [pickSize]byte
	binary.BigEndian.PutUint64(v[0:8], uint64(p.Algorithm))
	binary.BigEndian.PutUint64(v[8:16], uint64(p.ScratchBytes))
	binary.BigEndian.PutUint64(v[16:24], uint64(p.Runtime))
	return v[:]
}

func decodePick(v []byte) Pick {
	return Pick{
		Algorithm:    int64(binary.BigEndian.Uint64(v[0:8])),
		ScratchBytes: int64(binary.BigEndian.Uint64(v[8:16])),
		Runtime:      time.Duration(binary.BigEndian.Uint64(v[16:24])),
	}
}
