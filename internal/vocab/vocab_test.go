package vocab

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeSource struct {
	values map[string][]string
}

func (f *fakeSource) DistinctValues(_ context.Context, column string) ([]string, error) {
	values, ok := f.values[column]
	if !ok {
		return nil, fmt.Errorf("unknown column %q", column)
	}
	return values, nil
}

type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func TestBuildSnapshotNormalizes(t *testing.T) {
	snapshot := BuildSnapshot([]string{
		"  Technology ", "technology", "Furniture", "OK", "", "Office Supplies",
	})
	want := []string{"Furniture", "Office Supplies", "Technology"}
	if len(snapshot.Entities) != len(want) {
		t.Fatalf("Entities = %v, want %v", snapshot.Entities, want)
	}
	for i := range want {
		if snapshot.Entities[i] != want[i] {
			t.Fatalf("Entities = %v, want %v", snapshot.Entities, want)
		}
	}
}

func TestRefreshSkipsMissingColumnsAndEmbeds(t *testing.T) {
	service := NewService()
	source := &fakeSource{values: map[string][]string{
		"category": {"Technology", "Furniture"},
	}}

	err := service.Refresh(context.Background(), source, []string{"category", "missing"}, &fakeEmbedder{}, nil)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	snapshot := service.Current()
	if len(snapshot.Entities) != 2 {
		t.Fatalf("Entities = %v, want 2 entries", snapshot.Entities)
	}
	if len(snapshot.Vectors) != len(snapshot.Entities) {
		t.Fatalf("Vectors = %d, want parallel to %d entities", len(snapshot.Vectors), len(snapshot.Entities))
	}
}

func TestRefreshDegradesOnEmbeddingFailure(t *testing.T) {
	service := NewService()
	source := &fakeSource{values: map[string][]string{
		"category": {"Technology"},
	}}

	err := service.Refresh(context.Background(), source, []string{"category"}, &fakeEmbedder{fail: true}, nil)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	snapshot := service.Current()
	if len(snapshot.Entities) != 1 {
		t.Fatalf("Entities = %v, want the value without vectors", snapshot.Entities)
	}
	if snapshot.Vectors != nil {
		t.Fatalf("Vectors = %v, want nil after embed failure", snapshot.Vectors)
	}
}

func TestReplaceSwapsAtomically(t *testing.T) {
	service := NewService()
	if len(service.Current().Entities) != 0 {
		t.Fatal("new service must start with an empty snapshot")
	}
	service.Replace(BuildSnapshot([]string{"West"}))
	if len(service.Current().Entities) != 1 {
		t.Fatalf("Entities = %v, want [West]", service.Current().Entities)
	}
	service.Replace(nil)
	if len(service.Current().Entities) != 0 {
		t.Fatal("Replace(nil) must install an empty snapshot")
	}
}

func TestLongestFirst(t *testing.T) {
	snapshot := BuildSnapshot([]string{"West", "Office Supplies", "Technology"})
	ordered := snapshot.LongestFirst()
	if ordered[0] != "Office Supplies" {
		t.Fatalf("LongestFirst[0] = %q, want Office Supplies", ordered[0])
	}
	if ordered[len(ordered)-1] != "West" {
		t.Fatalf("LongestFirst last = %q, want West", ordered[len(ordered)-1])
	}
}
