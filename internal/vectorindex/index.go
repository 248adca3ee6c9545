// Package vectorindex holds the in-memory nearest-neighbor index over chunk
// embeddings. It is a flat index using squared L2 distance, matching the
// metric of the original embedding pipeline. The index is a cache over the
// chunk table: it can always be rebuilt from persisted chunk vectors, so
// losing the in-memory structure or its snapshot never loses data.
package vectorindex

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Entry pairs a chunk identifier with its embedding, used when rebuilding
// from the store.
type Entry struct {
	ID     string
	Vector []float32
}

// Index is a flat L2 nearest-neighbor structure. Reads run concurrently
// under an RWMutex; Add briefly excludes readers.
type Index struct {
	mu      sync.RWMutex
	dim     int
	ids     []string
	vectors [][]float32
	present map[string]struct{}

	// gen increments on every mutation; snappedGen records the generation the
	// on-disk snapshot captured. Snapshot skips when they match and only
	// advances snappedGen to the captured generation, so vectors added during
	// a write are still flushed by the next one.
	gen        uint64
	snappedGen uint64

	snapshotPath string
	loadOnce     sync.Once
	loadErr      error
}

func New(dim int, snapshotPath string) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid vector dimension: %d", dim)
	}
	return &Index{
		dim:          dim,
		present:      make(map[string]struct{}),
		snapshotPath: snapshotPath,
	}, nil
}

// EnsureLoaded initializes the index exactly once. A valid disk snapshot
// seeds the index, but the store is the source of truth: the callback always
// runs and tops up any vectors persisted after the snapshot was taken.
// Construction is explicit and deferred to first use, not an import side
// effect.
func (ix *Index) EnsureLoaded(rebuild func() ([]Entry, error)) error {
	ix.loadOnce.Do(func() {
		// Seed failures are fine; the callback rebuilds from scratch.
		_ = ix.loadSnapshot()

		entries, err := rebuild()
		if err != nil {
			ix.loadErr = fmt.Errorf("failed to rebuild vector index: %w", err)
			return
		}
		for _, e := range entries {
			if err := ix.Add(e.ID, e.Vector); err != nil {
				ix.loadErr = err
				return
			}
		}
		// Best effort; the snapshot job retries periodically.
		_ = ix.Snapshot()
	})
	return ix.loadErr
}

// Add inserts a vector under the given chunk identifier. Adding an
// identifier that is already present is a no-op.
func (ix *Index) Add(id string, vec []float32) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(vec), ix.dim)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.present[id]; ok {
		return nil
	}

	stored := make([]float32, len(vec))
	copy(stored, vec)

	ix.ids = append(ix.ids, id)
	ix.vectors = append(ix.vectors, stored)
	ix.present[id] = struct{}{}
	ix.gen++
	return nil
}

// Search returns up to k chunk identifiers ordered by ascending L2 distance,
// nearest first. Exact distance ties resolve to the earlier-inserted entry.
// An empty index yields an empty result, never an error.
func (ix *Index) Search(vec []float32, k int) ([]string, error) {
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, want %d", len(vec), ix.dim)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if k <= 0 || len(ix.ids) == 0 {
		return []string{}, nil
	}

	distances := make([]float32, len(ix.vectors))
	for i, v := range ix.vectors {
		distances[i] = sqDistance(v, vec)
	}

	idxs := make([]int, len(ix.ids))
	for i := range idxs {
		idxs[i] = i
	}
	// Stable sort preserves insertion order for equal distances.
	sort.SliceStable(idxs, func(a, b int) bool {
		return distances[idxs[a]] < distances[idxs[b]]
	})

	if k > len(idxs) {
		k = len(idxs)
	}
	results := make([]string, 0, k)
	for i := 0; i < k; i++ {
		results = append(results, ix.ids[idxs[i]])
	}
	return results, nil
}

// Size returns the number of indexed vectors.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

// snapshot is the gob-serialized on-disk form.
type snapshot struct {
	Dim     int
	IDs     []string
	Vectors [][]float32
}

// Snapshot writes the index to disk if it changed since the last write.
// The write goes through a temp file and rename so a crash never leaves a
// truncated snapshot behind.
func (ix *Index) Snapshot() error {
	ix.mu.RLock()
	if ix.gen == ix.snappedGen {
		ix.mu.RUnlock()
		return nil
	}
	captured := ix.gen
	snap := snapshot{
		Dim:     ix.dim,
		IDs:     append([]string(nil), ix.ids...),
		Vectors: append([][]float32(nil), ix.vectors...),
	}
	ix.mu.RUnlock()

	if dir := filepath.Dir(ix.snapshotPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	tmp := ix.snapshotPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, ix.snapshotPath); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	ix.mu.Lock()
	if captured > ix.snappedGen {
		ix.snappedGen = captured
	}
	ix.mu.Unlock()
	return nil
}

func (ix *Index) loadSnapshot() error {
	f, err := os.Open(ix.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("corrupt snapshot: %w", err)
	}
	if snap.Dim != ix.dim {
		return errors.New("snapshot dimension mismatch")
	}
	if len(snap.IDs) != len(snap.Vectors) {
		return errors.New("corrupt snapshot: id/vector length mismatch")
	}
	for _, v := range snap.Vectors {
		if len(v) != snap.Dim {
			return errors.New("corrupt snapshot: bad vector length")
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.ids = snap.IDs
	ix.vectors = snap.Vectors
	ix.present = make(map[string]struct{}, len(snap.IDs))
	for _, id := range snap.IDs {
		ix.present[id] = struct{}{}
	}
	// The disk already reflects this state.
	ix.snappedGen = ix.gen
	return nil
}

func sqDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
