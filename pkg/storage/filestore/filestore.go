// Package filestore persists window datasets as zstd-compressed files, one
// directory generation per regeneration pass.
//
// Layout:
//
//	<root>/<entity hash>/current -> gen-<uuid>
//	<root>/<entity hash>/gen-<uuid>/manifest.json
//	<root>/<entity hash>/gen-<uuid>/<range>.ds.zst
//
// ReplaceAll writes a complete new generation, then repoints the current
// symlink with a rename, which is atomic on POSIX filesystems. A reader
// resolves the link once per open and always sees one whole generation.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/series"
	"github.com/nicktill/clusterwatch/pkg/storage"
)

const (
	currentLink  = "current"
	manifestName = "manifest.json"
	genPrefix    = "gen-"
	fileSuffix   = ".ds.zst"
)

// manifest identifies the entity a generation belongs to
type manifest struct {
	EntityID    string             `json:"entityId"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Ranges      []series.TimeRange `json:"ranges"`
}

// Storage implements storage.Repository on the local filesystem
type Storage struct {
	root   string
	codec  *storage.Codec
	logger *zap.Logger
}

// New creates a file repository rooted at dir, creating it if needed.
func New(dir string, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}

	codec, err := storage.NewCodec()
	if err != nil {
		return nil, err
	}

	return &Storage{root: dir, codec: codec, logger: logger}, nil
}

// Load reads <entity>/current/<range>.ds.zst
func (s *Storage) Load(ctx context.Context, entityID string, tr series.TimeRange) (*storage.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !tr.Valid() {
		return nil, storage.ErrNotFound
	}

	path := filepath.Join(s.entityDir(entityID), currentLink, datasetFile(tr))
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	d, err := s.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if d.EntityID != entityID {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

// ReplaceAll writes a new generation and swaps the current link to it
func (s *Storage) ReplaceAll(ctx context.Context, entityID string, datasets []storage.Dataset) error {
	if err := storage.ValidateReplace(entityID, datasets); err != nil {
		return err
	}

	dir := s.entityDir(entityID)
	if err := checkOwner(dir, entityID); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create entity directory: %w", err)
	}

	genName := genPrefix + uuid.NewString()
	genDir := filepath.Join(dir, genName)
	if err := s.writeGeneration(ctx, genDir, entityID, datasets); err != nil {
		os.RemoveAll(genDir)
		return err
	}

	// Publish: symlink under a temp name, then rename over current
	tmpLink := filepath.Join(dir, "."+currentLink+"-"+uuid.NewString())
	if err := os.Symlink(genName, tmpLink); err != nil {
		os.RemoveAll(genDir)
		return fmt.Errorf("failed to create generation link: %w", err)
	}
	if err := os.Rename(tmpLink, filepath.Join(dir, currentLink)); err != nil {
		os.Remove(tmpLink)
		os.RemoveAll(genDir)
		return fmt.Errorf("failed to publish generation: %w", err)
	}

	if err := s.pruneGenerations(dir, genName); err != nil {
		// The new generation is live; stale directories only cost disk
		s.logger.Warn("failed to prune old dataset generations",
			zap.String("entity_id", entityID), zap.Error(err))
	}
	return nil
}

func (s *Storage) writeGeneration(ctx context.Context, genDir, entityID string, datasets []storage.Dataset) error {
	if err := os.Mkdir(genDir, 0755); err != nil {
		return fmt.Errorf("failed to create generation directory: %w", err)
	}

	m := manifest{EntityID: entityID}
	for i := range datasets {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := &datasets[i]
		data, err := s.codec.Encode(d)
		if err != nil {
			return err
		}
		if err := writeFileSync(filepath.Join(genDir, datasetFile(d.TimeRange)), data); err != nil {
			return err
		}
		m.Ranges = append(m.Ranges, d.TimeRange)
		if d.GeneratedAt.After(m.GeneratedAt) {
			m.GeneratedAt = d.GeneratedAt
		}
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return writeFileSync(filepath.Join(genDir, manifestName), raw)
}

// pruneGenerations removes every generation directory except keep
func (s *Storage) pruneGenerations(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var result error
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || name == keep || !strings.HasPrefix(name, genPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Entities lists entity ids from each current manifest
func (s *Storage) Entities(ctx context.Context) ([]string, error) {
	manifests, err := s.manifests(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(manifests))
	for _, m := range manifests {
		ids = append(ids, m.EntityID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the entity directory with every generation in it
func (s *Storage) Delete(ctx context.Context, entityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.entityDir(entityID)
	if err := checkOwner(dir, entityID); err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// Close releases codec resources. Files need no shutdown.
func (s *Storage) Close() error {
	return s.codec.Close()
}

// Stats decodes every current dataset and sums file sizes
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	manifests, err := s.manifests(ctx)
	if err != nil {
		return nil, err
	}

	stats := &storage.Stats{Entities: uint64(len(manifests))}
	for _, m := range manifests {
		for _, tr := range m.Ranges {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(s.entityDir(m.EntityID), currentLink, datasetFile(tr))
			if info, err := os.Stat(path); err == nil {
				stats.SizeBytes += uint64(info.Size())
			}
			d, err := s.Load(ctx, m.EntityID, tr)
			if err != nil {
				return nil, err
			}
			stats.Observe(d)
		}
	}
	return stats, nil
}

func (s *Storage) manifests(ctx context.Context) ([]manifest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset directory: %w", err)
	}

	var out []manifest
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		m, err := readManifest(filepath.Join(s.root, e.Name()))
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

// readManifest returns the current generation's manifest, or nil if the
// entity directory has none
func readManifest(dir string) (*manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, currentLink, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("corrupt manifest in %s: %w", filepath.Base(dir), err)
	}
	return &m, nil
}

// checkOwner fails when the directory the entity hashes to holds another entity
func checkOwner(dir, entityID string) error {
	m, err := readManifest(dir)
	if err != nil {
		return err
	}
	if m != nil && m.EntityID != entityID {
		return fmt.Errorf("%w: %q hashes to the directory of %q", storage.ErrEntityCollision, entityID, m.EntityID)
	}
	return nil
}

// entityDir hashes the id so arbitrary entity ids are safe path components
func (s *Storage) entityDir(entityID string) string {
	return filepath.Join(s.root, strconv.FormatUint(xxhash.Sum64String(entityID), 16))
}

func datasetFile(tr series.TimeRange) string {
	return string(tr) + fileSuffix
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
