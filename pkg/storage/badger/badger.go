package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/series"
	"github.com/nicktill/clusterwatch/pkg/storage"
)

// Key prefixes
const (
	prefixDataset byte = 'd' // [d][entity hash (8 bytes)][range index (1 byte)]
	prefixEntity  byte = 'e' // [e][entity id]
)

// Storage implements storage.Repository using BadgerDB (LSM tree)
type Storage struct {
	db    *badger.DB
	codec *storage.Codec
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly default)
	MaxMemoryMB int64

	// Logger receives BadgerDB's internal logs at warn level and above (nil = discard)
	Logger *zap.Logger
}

// zapLogger adapts zap to badger.Logger
type zapLogger struct {
	*zap.SugaredLogger
}

func (l zapLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

// Badger is chatty at info level; only surface warnings and errors.
func (l zapLogger) Infof(string, ...interface{})  {}
func (l zapLogger) Debugf(string, ...interface{}) {}

// New creates a BadgerDB repository
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.Logger != nil {
		opts = opts.WithLogger(zapLogger{cfg.Logger.Named("badger").Sugar()})
	}

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// Datasets are rewritten wholesale, so the working set is small.
	// Default to 16 MB memtable unless told otherwise.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	opts = opts.
		// Payloads are already zstd-compressed by the codec
		WithCompression(options.None).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20) // 64 MB value log files instead of default 2GB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	codec, err := storage.NewCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db, codec: codec}, nil
}

// Load reads one dataset
func (s *Storage) Load(ctx context.Context, entityID string, tr series.TimeRange) (*storage.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, ok := rangeIndex(tr)
	if !ok {
		return nil, storage.ErrNotFound
	}

	var d *storage.Dataset
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(datasetKey(entityID, idx))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := s.codec.Decode(val)
			if err != nil {
				return err
			}
			d = decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Hash collision between two entity ids
	if d.EntityID != entityID {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

// ReplaceAll deletes the entity's datasets and writes the new set in one
// transaction. Cancellation is checked last inside the transaction, so an
// error return always means nothing was committed.
func (s *Storage) ReplaceAll(ctx context.Context, entityID string, datasets []storage.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.ValidateReplace(entityID, datasets); err != nil {
		return err
	}

	// Encode before opening the transaction
	encoded := make(map[byte][]byte, len(datasets))
	for i := range datasets {
		idx, _ := rangeIndex(datasets[i].TimeRange)
		val, err := s.codec.Encode(&datasets[i])
		if err != nil {
			return err
		}
		encoded[idx] = val
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := s.checkOwner(txn, entityID); err != nil {
			return err
		}
		if err := deleteEntity(txn, entityID); err != nil {
			return err
		}
		for idx, val := range encoded {
			if err := txn.Set(datasetKey(entityID, idx), val); err != nil {
				return fmt.Errorf("failed to write dataset: %w", err)
			}
		}
		if err := txn.Set(entityKey(entityID), nil); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("replace operation cancelled: %w", err)
		}
		return nil
	})
}

// Entities lists entity ids in sorted order
func (s *Storage) Entities(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{prefixEntity}

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[1:]))
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

// Delete removes every dataset of an entity
func (s *Storage) Delete(ctx context.Context, entityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := s.checkOwner(txn, entityID); err != nil {
			return err
		}
		return deleteEntity(txn, entityID)
	})
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	s.codec.Close()
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection
// This reclaims disk space from replaced datasets
// discardRatio: run GC if this fraction of file can be discarded (0.5 = 50%)
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Stats returns storage statistics. The scan checks ctx between datasets.
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &storage.Stats{}
	entities := make(map[string]bool)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixDataset}

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("stats operation cancelled: %w", err)
			}

			err := it.Item().Value(func(val []byte) error {
				d, err := s.codec.Decode(val)
				if err != nil {
					return err
				}
				entities[d.EntityID] = true
				stats.Observe(d)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.Entities = uint64(len(entities))
	lsmSize, vlogSize := s.db.Size()
	stats.SizeBytes = uint64(lsmSize + vlogSize)
	return stats, nil
}

// checkOwner fails when datasets stored under the entity's hash belong to a
// different entity id
func (s *Storage) checkOwner(txn *badger.Txn, entityID string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 1
	opts.Prefix = entityPrefix(entityID)

	it := txn.NewIterator(opts)
	defer it.Close()

	it.Rewind()
	if !it.Valid() {
		return nil
	}
	return it.Item().Value(func(val []byte) error {
		d, err := s.codec.Decode(val)
		if err != nil {
			return err
		}
		if d.EntityID != entityID {
			return fmt.Errorf("%w: %q hashes to the key of %q", storage.ErrEntityCollision, entityID, d.EntityID)
		}
		return nil
	})
}

// deleteEntity removes the entity's dataset keys and index entry inside txn
func deleteEntity(txn *badger.Txn, entityID string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = entityPrefix(entityID)

	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return txn.Delete(entityKey(entityID))
}

// entityPrefix is [d][xxhash(entity)]
func entityPrefix(entityID string) []byte {
	key := make([]byte, 9)
	key[0] = prefixDataset
	binary.BigEndian.PutUint64(key[1:9], xxhash.Sum64String(entityID))
	return key
}

func datasetKey(entityID string, rangeIdx byte) []byte {
	return append(entityPrefix(entityID), rangeIdx)
}

func entityKey(entityID string) []byte {
	return append([]byte{prefixEntity}, entityID...)
}

// rangeIndex maps a time range to its position in span order
func rangeIndex(tr series.TimeRange) (byte, bool) {
	for i, r := range series.AllTimeRanges() {
		if r == tr {
			return byte(i), true
		}
	}
	return 0, false
}
