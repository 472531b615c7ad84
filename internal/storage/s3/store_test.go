package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/salescope/salescope/internal/storage"
)

type fakeClient struct {
	objects map[string][]byte
	buckets map[string]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: map[string][]byte{}, buckets: map[string]bool{}}
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, _ int64, _ string) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.objects[bucket+"/"+key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeClient) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeClient) List(_ context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	var infos []storage.ObjectInfo
	for stored, data := range f.objects {
		key := strings.TrimPrefix(stored, bucket+"/")
		if key == stored {
			continue
		}
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(data))})
	}
	return infos, nil
}

func (f *fakeClient) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeClient) CreateBucket(_ context.Context, bucket, _ string) error {
	f.buckets[bucket] = true
	return nil
}

func TestPutGetWithPrefix(t *testing.T) {
	client := newFakeClient()
	store, err := NewWithClient("docs", "corpus", client)
	if err != nil {
		t.Fatalf("NewWithClient error: %v", err)
	}

	body := []byte("refund policy")
	if _, err := store.Put(context.Background(), "returns.md", bytes.NewReader(body), int64(len(body)), storage.PutOptions{}); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if _, ok := client.objects["docs/corpus/returns.md"]; !ok {
		t.Fatalf("stored keys = %v, want docs/corpus/returns.md", client.objects)
	}

	reader, err := store.Get(context.Background(), "returns.md")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	data, _ := io.ReadAll(reader)
	_ = reader.Close()
	if string(data) != "refund policy" {
		t.Fatalf("Get = %q, want original body", data)
	}
}

func TestGetMissingObject(t *testing.T) {
	store, err := NewWithClient("docs", "", newFakeClient())
	if err != nil {
		t.Fatalf("NewWithClient error: %v", err)
	}
	if _, err := store.Get(context.Background(), "missing.md"); err != storage.ErrObjectNotFound {
		t.Fatalf("Get error = %v, want ErrObjectNotFound", err)
	}
}

func TestKeyNormalizationRejectsTraversal(t *testing.T) {
	store, err := NewWithClient("docs", "corpus", newFakeClient())
	if err != nil {
		t.Fatalf("NewWithClient error: %v", err)
	}
	for _, key := range []string{"", "  ", "../secrets", "a/../../b"} {
		if _, err := store.Get(context.Background(), key); err == nil {
			t.Fatalf("Get(%q) accepted an invalid key", key)
		}
	}
}

func TestListStripsStorePrefix(t *testing.T) {
	client := newFakeClient()
	store, err := NewWithClient("docs", "corpus", client)
	if err != nil {
		t.Fatalf("NewWithClient error: %v", err)
	}
	body := []byte("x")
	if _, err := store.Put(context.Background(), "guides/pricing.md", bytes.NewReader(body), 1, storage.PutOptions{}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	objects, err := store.List(context.Background(), "guides")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(objects) != 1 || objects[0].Key != "guides/pricing.md" {
		t.Fatalf("List = %v, want [guides/pricing.md]", objects)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{"localhost:9000", false, "localhost:9000", false},
		{"http://localhost:9000", true, "localhost:9000", true},
		{"https://s3.example.com", false, "s3.example.com", true},
	}
	for _, tt := range tests {
		host, secure, err := parseEndpoint(tt.raw, tt.useSSL)
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error: %v", tt.raw, err)
		}
		if host != tt.wantHost || secure != tt.wantSecure {
			t.Fatalf("parseEndpoint(%q) = %q/%v, want %q/%v", tt.raw, host, secure, tt.wantHost, tt.wantSecure)
		}
	}
	if _, _, err := parseEndpoint("", false); err == nil {
		t.Fatal("parseEndpoint accepted empty endpoint")
	}
}
