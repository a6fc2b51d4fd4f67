package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
)

func testS3Config(endpoint string) S3Config {
	return S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}
}

func TestNewS3Storage(t *testing.T) {
	cfg := testS3Config("http://localhost:4566") // LocalStack-like endpoint

	storage, err := NewS3Storage(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	if storage.bucket != cfg.Bucket {
		t.Errorf("bucket = %v, want %v", storage.bucket, cfg.Bucket)
	}
	if storage.region != cfg.Region {
		t.Errorf("region = %v, want %v", storage.region, cfg.Region)
	}
}

func TestS3Storage_SaveMirrorsObject(t *testing.T) {
	var (
		mu          sync.Mutex
		gotPath     string
		gotBody     string
		contentType string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		mu.Lock()
		gotPath = r.URL.Path
		gotBody = string(body)
		contentType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	storage, err := NewS3Storage(t.TempDir(), testS3Config(server.URL))
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"
	obj, err := storage.Save(context.Background(), "conversations/c1/images/a.png", strings.NewReader(png))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/test-bucket/conversations/c1/images/a.png" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if !strings.Contains(gotBody, "PNG") {
		t.Errorf("unexpected body: %q", gotBody)
	}
	if contentType != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", contentType)
	}

	wantURL := server.URL + "/test-bucket/conversations/c1/images/a.png"
	if obj.URL != wantURL {
		t.Errorf("URL = %v, want %v", obj.URL, wantURL)
	}
	if _, err := os.Stat(obj.Path); err != nil {
		t.Errorf("local copy missing: %v", err)
	}
}

func TestS3Storage_MirrorFailureKeepsLocalObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
	}))
	defer server.Close()

	storage, err := NewS3Storage(t.TempDir(), testS3Config(server.URL))
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	obj, err := storage.Save(context.Background(), "x/y.bin", strings.NewReader("data"))
	if !errors.Is(err, ErrMirrorFailed) {
		t.Fatalf("Save() error = %v, want ErrMirrorFailed", err)
	}
	if obj.URL != "" {
		t.Errorf("URL = %q, want empty", obj.URL)
	}

	reader, err := storage.Open(context.Background(), "x/y.bin")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()
	content, _ := io.ReadAll(reader)
	if string(content) != "data" {
		t.Errorf("content = %q, want data", content)
	}
}

func TestS3Storage_ObjectURLWithoutEndpoint(t *testing.T) {
	s := &S3Storage{bucket: "test-bucket", region: "us-east-1"}
	want := "https://test-bucket.s3.us-east-1.amazonaws.com/a/b.mp4"
	if got := s.objectURL("a/b.mp4"); got != want {
		t.Errorf("objectURL() = %v, want %v", got, want)
	}
}

func TestS3Storage_DeleteRemovesRemote(t *testing.T) {
	var deletes int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			mu.Lock()
			deletes++
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	storage, err := NewS3Storage(t.TempDir(), testS3Config(server.URL))
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}
	ctx := context.Background()
	if _, err := storage.Save(ctx, "d/1.bin", strings.NewReader("1")); err != nil {
		t.Fatal(err)
	}

	if err := storage.Delete(ctx, []string{"d/1.bin"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if deletes != 1 {
		t.Errorf("deletes = %d, want 1", deletes)
	}
}
