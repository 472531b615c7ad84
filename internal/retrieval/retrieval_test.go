package retrieval

import (
	"context"
	"strings"
	"testing"
)

// wordOverlapEmbedder embeds text as a bag-of-words vector over a fixed
// vocabulary, so similar texts get similar vectors without a backend.
type wordOverlapEmbedder struct {
	vocabulary []string
	calls      int
}

func (e *wordOverlapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	vector := make([]float32, len(e.vocabulary))
	lowered := strings.ToLower(text)
	for i, word := range e.vocabulary {
		if strings.Contains(lowered, word) {
			vector[i] = 1
		}
	}
	return vector, nil
}

func (e *wordOverlapEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func testDocs() []Document {
	return []Document{
		{Name: "returns.md", Text: "Refund policy\n\nCustomers can return products within 30 days for a full refund."},
		{Name: "shipping.md", Text: "Shipping\n\nOrders ship within two business days from the nearest warehouse."},
	}
}

func newTestIndex(t *testing.T) (*Index, *wordOverlapEmbedder) {
	t.Helper()
	embedder := &wordOverlapEmbedder{
		vocabulary: []string{"refund", "return", "policy", "shipping", "orders", "warehouse"},
	}
	index, err := NewIndex(context.Background(), embedder, testDocs(), Options{})
	if err != nil {
		t.Fatalf("NewIndex error: %v", err)
	}
	return index, embedder
}

func TestSearchFindsRelevantChunk(t *testing.T) {
	index, _ := newTestIndex(t)

	matches, err := index.Search(context.Background(), "what is the refund policy")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("Search returned no matches")
	}
	if matches[0].Source != "returns.md" {
		t.Fatalf("top match source = %q, want returns.md", matches[0].Source)
	}
}

func TestSearchCachesNormalizedQueries(t *testing.T) {
	index, embedder := newTestIndex(t)

	if _, err := index.Search(context.Background(), "Refund   Policy"); err != nil {
		t.Fatalf("Search error: %v", err)
	}
	callsAfterFirst := embedder.calls
	if _, err := index.Search(context.Background(), "refund policy"); err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if embedder.calls != callsAfterFirst {
		t.Fatalf("second search re-embedded: calls %d -> %d", callsAfterFirst, embedder.calls)
	}
}

func TestNormalizeQueryStripsStopWords(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"can you tell me what is the refund policy", "refund policy"},
		{"Refund   Policy", "refund policy"},
		{"what happened to sales in november", "sales november"},
		{"can you please", "can you please"},
	}
	for _, tt := range tests {
		if got := normalizeQuery(tt.query); got != tt.want {
			t.Fatalf("normalizeQuery(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestSearchCachesAcrossPhrasings(t *testing.T) {
	index, embedder := newTestIndex(t)

	if _, err := index.Search(context.Background(), "can you tell me what is the refund policy"); err != nil {
		t.Fatalf("Search error: %v", err)
	}
	callsAfterFirst := embedder.calls
	matches, err := index.Search(context.Background(), "refund policy")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if embedder.calls != callsAfterFirst {
		t.Fatalf("rephrased search re-embedded: calls %d -> %d", callsAfterFirst, embedder.calls)
	}
	if len(matches) == 0 || matches[0].Source != "returns.md" {
		t.Fatalf("matches = %v, want cached returns.md hit", matches)
	}
}

func TestSearchFiltersLowScores(t *testing.T) {
	index, _ := newTestIndex(t)

	matches, err := index.Search(context.Background(), "completely unrelated gibberish")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("matches = %v, want none below the score floor", matches)
	}
}

func TestEmptyIndexMatchesNothing(t *testing.T) {
	embedder := &wordOverlapEmbedder{vocabulary: []string{"refund"}}
	index, err := NewIndex(context.Background(), embedder, nil, Options{})
	if err != nil {
		t.Fatalf("NewIndex error: %v", err)
	}
	matches, err := index.Search(context.Background(), "refund")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if matches != nil {
		t.Fatalf("matches = %v, want nil", matches)
	}
}

func TestChunkTextPacksParagraphs(t *testing.T) {
	text := strings.Repeat("alpha beta gamma. ", 10) + "\n\n" +
		strings.Repeat("delta epsilon. ", 10) + "\n\n" +
		"short tail"
	chunks := chunkText(text, 200)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want paragraphs split across chunks", len(chunks))
	}
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			t.Fatal("chunkText produced an empty chunk")
		}
	}
}

func TestChunkTextKeepsOversizeParagraphWhole(t *testing.T) {
	paragraph := strings.Repeat("word ", 200)
	chunks := chunkText(paragraph, 100)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1 for a single oversize paragraph", len(chunks))
	}
}

func TestRenderEmptyMatches(t *testing.T) {
	got := Render(nil)
	if !strings.Contains(got, "couldn't find") {
		t.Fatalf("Render(nil) = %q, want not-found message", got)
	}
}
