// Package sourcemap maps compiled stack-frame positions back to original
// source locations using uploaded source map artifacts.
package sourcemap

import (
	"bytes"
	"context"
	"log/slog"
	"path"
	"sort"
	"sync"

	"github.com/neelance/sourcemap"

	"github.com/telescope-hq/telescope/internal/domain"
)

// ArtifactStore is the lookup surface for uploaded artifacts.
type ArtifactStore interface {
	FindSourceMap(ctx context.Context, dsn, version, filename string) (*domain.SourceMapArtifact, error)
}

// Resolver translates compiled (line, column) positions to source
// positions. Decoded mapping tables are cached per artifact so repeated
// views of the same error never re-parse the map.
type Resolver struct {
	store  ArtifactStore
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*mappingIndex
}

func NewResolver(store ArtifactStore, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
		cache:  make(map[string]*mappingIndex),
	}
}

// Resolve maps every frame it can and passes the rest through unresolved.
// A missing artifact or an unmappable position degrades to the compiled
// position; resolution never fails the whole stack.
func (r *Resolver) Resolve(ctx context.Context, frames []domain.StackFrame, dsn, version string) []domain.ResolvedFrame {
	resolved := make([]domain.ResolvedFrame, 0, len(frames))
	for _, f := range frames {
		resolved = append(resolved, r.resolveFrame(ctx, f, dsn, version))
	}
	return resolved
}

func (r *Resolver) resolveFrame(ctx context.Context, f domain.StackFrame, dsn, version string) domain.ResolvedFrame {
	unresolved := domain.ResolvedFrame{
		Function: f.Function,
		File:     f.File,
		Line:     f.Line,
		Column:   f.Column,
		Resolved: false,
	}

	if f.File == "" {
		return unresolved
	}

	idx, err := r.indexFor(ctx, dsn, version, mapFilename(f.File))
	if err != nil {
		r.logger.Warn("sourcemap lookup failed",
			"error", err, "dsn", dsn, "version", version, "file", f.File)
		return unresolved
	}
	if idx == nil {
		return unresolved
	}

	m := idx.lookup(f.Line, f.Column)
	if m == nil {
		return unresolved
	}

	fn := m.OriginalName
	if fn == "" {
		fn = f.Function
	}
	return domain.ResolvedFrame{
		Function:       fn,
		File:           m.OriginalFile,
		Line:           m.OriginalLine,
		Column:         m.OriginalColumn,
		Resolved:       true,
		CompiledFile:   f.File,
		CompiledLine:   f.Line,
		CompiledColumn: f.Column,
	}
}

// mapFilename derives the artifact filename for a compiled asset path:
// "https://cdn.example.com/static/bundle.js" → "bundle.js.map".
func mapFilename(asset string) string {
	return path.Base(asset) + ".map"
}

func (r *Resolver) indexFor(ctx context.Context, dsn, version, filename string) (*mappingIndex, error) {
	artifact, err := r.store.FindSourceMap(ctx, dsn, version, filename)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, nil
	}

	r.mu.RLock()
	idx, ok := r.cache[artifact.ID]
	r.mu.RUnlock()
	if ok {
		return idx, nil
	}

	sm, err := sourcemap.ReadFrom(bytes.NewReader(artifact.Content))
	if err != nil {
		return nil, err
	}
	idx = buildIndex(sm)

	r.mu.Lock()
	r.cache[artifact.ID] = idx
	r.mu.Unlock()

	return idx, nil
}

// mappingIndex is a decoded mapping table arranged for position lookup:
// per generated line, column-sorted mappings.
type mappingIndex struct {
	lines map[int][]*sourcemap.Mapping
}

func buildIndex(sm *sourcemap.Map) *mappingIndex {
	idx := &mappingIndex{lines: make(map[int][]*sourcemap.Mapping)}
	for _, m := range sm.DecodedMappings() {
		idx.lines[m.GeneratedLine] = append(idx.lines[m.GeneratedLine], m)
	}
	for _, ms := range idx.lines {
		sort.Slice(ms, func(i, j int) bool {
			return ms[i].GeneratedColumn < ms[j].GeneratedColumn
		})
	}
	return idx
}

// lookup finds the mapping at (line, col), falling back to the nearest
// mapping at or before col on the same line. Returns nil when the line has
// no mappings at all.
func (idx *mappingIndex) lookup(line, col int) *sourcemap.Mapping {
	ms := idx.lines[line]
	if len(ms) == 0 {
		return nil
	}
	// First mapping with GeneratedColumn > col; the one before it covers col.
	i := sort.Search(len(ms), func(i int) bool {
		return ms[i].GeneratedColumn > col
	})
	if i == 0 {
		return nil
	}
	return ms[i-1]
}
