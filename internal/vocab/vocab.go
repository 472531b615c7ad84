// Package vocab holds the process-wide vocabulary of known categorical
// values (distinct entries of the groupable columns) together with their
// precomputed embedding vectors. The vocabulary is read-heavy: it is built
// at startup and replaced wholesale on refresh, never mutated in place.
package vocab

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/salescope/salescope/internal/embedding"
)

// Snapshot is one immutable vocabulary generation. Vectors is either nil
// (embeddings unavailable) or exactly parallel to Entities.
type Snapshot struct {
	Entities []string
	Vectors  [][]float32
}

// DistinctSource lists the distinct values of a column in the dataset.
type DistinctSource interface {
	DistinctValues(ctx context.Context, column string) ([]string, error)
}

type Service struct {
	current atomic.Pointer[Snapshot]
}

func NewService() *Service {
	s := &Service{}
	s.current.Store(&Snapshot{})
	return s
}

// Current returns the live snapshot. Safe for concurrent use; callers must
// not mutate the returned slices.
func (s *Service) Current() *Snapshot {
	return s.current.Load()
}

// Replace swaps in a new snapshot atomically. Concurrent readers observe
// either the old or the new generation, never a mix.
func (s *Service) Replace(snapshot *Snapshot) {
	if snapshot == nil {
		snapshot = &Snapshot{}
	}
	s.current.Store(snapshot)
}

// Refresh rebuilds the vocabulary from the distinct values of the given
// columns and swaps it in. An embedding failure degrades to a snapshot
// without vectors rather than failing the refresh.
func (s *Service) Refresh(ctx context.Context, source DistinctSource, columns []string, embedder embedding.Embedder, logger *slog.Logger) error {
	if source == nil {
		return fmt.Errorf("distinct source is required")
	}

	var raw []string
	for _, column := range columns {
		values, err := source.DistinctValues(ctx, column)
		if err != nil {
			// Column may be absent in a reduced dataset; keep going with the rest.
			if logger != nil {
				logger.Warn("skipping vocabulary column", slog.String("column", column), slog.Any("error", err))
			}
			continue
		}
		raw = append(raw, values...)
	}

	snapshot := BuildSnapshot(raw)
	if embedder != nil && len(snapshot.Entities) > 0 {
		vectors, err := embedder.EmbedBatch(ctx, snapshot.Entities)
		if err != nil {
			if logger != nil {
				logger.Warn("vocabulary embeddings unavailable", slog.Any("error", err))
			}
		} else {
			snapshot.Vectors = vectors
		}
	}

	s.Replace(snapshot)
	return nil
}

// BuildSnapshot normalizes raw values into a vocabulary: trimmed, entries
// longer than two characters, duplicates collapsed case-insensitively, and
// sorted for deterministic ordering.
func BuildSnapshot(values []string) *Snapshot {
	seen := make(map[string]struct{}, len(values))
	entities := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if len(trimmed) <= 2 {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		entities = append(entities, trimmed)
	}
	sort.Strings(entities)
	return &Snapshot{Entities: entities}
}

// LookupExact returns the canonical-cased entity matching word
// case-insensitively, if any.
func (s *Snapshot) LookupExact(word string) (string, bool) {
	lower := strings.ToLower(word)
	for _, entity := range s.Entities {
		if strings.ToLower(entity) == lower {
			return entity, true
		}
	}
	return "", false
}

// LongestFirst returns the entities ordered by descending length, so that
// scans prefer specific entries ("Office Supplies") over generic ones.
func (s *Snapshot) LongestFirst() []string {
	ordered := make([]string, len(s.Entities))
	copy(ordered, s.Entities)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i]) > len(ordered[j])
	})
	return ordered
}
