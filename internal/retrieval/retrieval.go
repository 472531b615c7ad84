// Package retrieval answers document-intent questions from a small corpus
// of markdown and text files: documents are split into paragraph-packed
// chunks, embedded once at startup, and searched by cosine similarity.
package retrieval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/salescope/salescope/internal/embedding"
	"github.com/salescope/salescope/internal/observability"
	"github.com/salescope/salescope/internal/storage"
)

// Document is one source file of the corpus.
type Document struct {
	Name string
	Text string
}

// Chunk is one embedded slice of a document.
type Chunk struct {
	Source string
	Text   string
	vector []float32
}

// Match is one retrieval hit.
type Match struct {
	Source string
	Text   string
	Score  float64
}

type Options struct {
	ChunkSize int
	TopK      int
	MinScore  float64
	CacheSize int
}

func (o *Options) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 500
	}
	if o.TopK <= 0 {
		o.TopK = 3
	}
	if o.MinScore <= 0 {
		o.MinScore = 0.2
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 100
	}
}

// Index holds the embedded corpus. It is immutable after construction, so
// concurrent searches need no locking beyond the LRU's own.
type Index struct {
	embedder embedding.Embedder
	chunks   []Chunk
	opts     Options
	cache    *lru.Cache[string, []Match]
}

// NewIndex chunks and embeds the documents. An empty corpus yields a
// usable index that matches nothing.
func NewIndex(ctx context.Context, embedder embedding.Embedder, docs []Document, opts Options) (*Index, error) {
	opts.applyDefaults()

	cache, err := lru.New[string, []Match](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create retrieval cache: %w", err)
	}
	index := &Index{embedder: embedder, opts: opts, cache: cache}

	var texts []string
	for _, doc := range docs {
		for _, text := range chunkText(doc.Text, opts.ChunkSize) {
			index.chunks = append(index.chunks, Chunk{Source: doc.Name, Text: text})
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return index, nil
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed corpus: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed corpus: got %d vectors for %d chunks", len(vectors), len(texts))
	}
	for i := range index.chunks {
		index.chunks[i].vector = vectors[i]
	}
	return index, nil
}

func (i *Index) Len() int {
	return len(i.chunks)
}

// Search returns the top-K chunks scoring above the minimum similarity.
// Results are cached per normalized query.
func (i *Index) Search(ctx context.Context, query string) ([]Match, error) {
	normalized := normalizeQuery(query)
	if matches, ok := i.cache.Get(normalized); ok {
		observability.IncrementRetrievalCacheHit()
		return matches, nil
	}
	observability.IncrementRetrievalCacheMiss()

	if len(i.chunks) == 0 {
		return nil, nil
	}

	queryVector, err := i.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches := make([]Match, 0, len(i.chunks))
	for _, chunk := range i.chunks {
		score := embedding.Cosine(queryVector, chunk.vector)
		if score >= i.opts.MinScore {
			matches = append(matches, Match{Source: chunk.Source, Text: chunk.Text, Score: score})
		}
	}
	sort.Slice(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })
	if len(matches) > i.opts.TopK {
		matches = matches[:i.opts.TopK]
	}

	i.cache.Add(normalized, matches)
	return matches, nil
}

// Render formats matches for the chat response.
func Render(matches []Match) string {
	if len(matches) == 0 {
		return "I couldn't find anything relevant in the documents."
	}
	var sb strings.Builder
	sb.WriteString("From the documents:\n\n")
	for _, match := range matches {
		fmt.Fprintf(&sb, "**%s**\n%s\n\n", match.Source, strings.TrimSpace(match.Text))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// LoadDir reads all markdown and text files from a local directory. A
// missing directory is an empty corpus, not an error.
func LoadDir(dir string, logger *slog.Logger) []Document {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if logger != nil && !os.IsNotExist(err) {
			logger.Warn("read docs dir", slog.String("dir", dir), slog.Any("error", err))
		}
		return nil
	}
	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() || !isDocFile(entry.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			if logger != nil {
				logger.Warn("read doc", slog.String("file", entry.Name()), slog.Any("error", err))
			}
			continue
		}
		docs = append(docs, Document{Name: entry.Name(), Text: string(data)})
	}
	return docs
}

// LoadObjects reads markdown and text objects from the object store under
// the given prefix. Individual object failures are logged and skipped.
func LoadObjects(ctx context.Context, store storage.ObjectStore, prefix string, logger *slog.Logger) []Document {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		if logger != nil {
			logger.Warn("list doc objects", slog.String("prefix", prefix), slog.Any("error", err))
		}
		return nil
	}
	var docs []Document
	for _, object := range objects {
		if !isDocFile(object.Key) {
			continue
		}
		reader, err := store.Get(ctx, object.Key)
		if err != nil {
			if logger != nil {
				logger.Warn("get doc object", slog.String("key", object.Key), slog.Any("error", err))
			}
			continue
		}
		data, err := io.ReadAll(reader)
		_ = reader.Close()
		if err != nil {
			if logger != nil {
				logger.Warn("read doc object", slog.String("key", object.Key), slog.Any("error", err))
			}
			continue
		}
		docs = append(docs, Document{Name: filepath.Base(object.Key), Text: string(data)})
	}
	return docs
}

func isDocFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".txt":
		return true
	default:
		return false
	}
}

// chunkText packs whole paragraphs into chunks of roughly the target size.
// A single paragraph longer than the target becomes its own chunk.
func chunkText(text string, size int) []string {
	var chunks []string
	var current strings.Builder
	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(paragraph) > size {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// queryStopWords are filler words stripped before embedding, so phrasings
// of the same question share one cache entry and one vector.
var queryStopWords = map[string]struct{}{
	"a": {}, "an": {}, "are": {}, "can": {}, "for": {}, "happened": {},
	"in": {}, "is": {}, "me": {}, "of": {}, "please": {}, "show": {},
	"tell": {}, "the": {}, "to": {}, "what": {}, "you": {},
}

func normalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	kept := make([]string, 0, len(words))
	for _, word := range words {
		if _, skip := queryStopWords[word]; skip {
			continue
		}
		kept = append(kept, word)
	}
	// An all-filler query still needs a stable non-empty key.
	if len(kept) == 0 {
		return strings.Join(words, " ")
	}
	return strings.Join(kept, " ")
}
