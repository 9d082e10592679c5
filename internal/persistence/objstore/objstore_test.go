package objstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClient_PutFileSignsPathStyleRequest(t *testing.T) {
	var (
		gotPath, gotAuth, gotHash, gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotHash = r.Header.Get("x-amz-content-sha256")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, Bucket: "vp", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	src := filepath.Join(t.TempDir(), "a b.jsonl.zst")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.PutFile(context.Background(), "/turns//a b.jsonl.zst", src); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if gotPath != "/vp/turns/a%20b.jsonl.zst" {
		t.Fatalf("path: %s", gotPath)
	}
	if gotBody != "hello" {
		t.Fatalf("body: %q", gotBody)
	}
	// sha256("hello")
	if gotHash != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("payload hash: %s", gotHash)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20260102/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=") {
		t.Fatalf("authorization: %s", gotAuth)
	}
}

func TestClient_PutFileReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()
	c, err := New(Config{Endpoint: srv.URL, Bucket: "vp", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := filepath.Join(t.TempDir(), "x")
	if err := os.WriteFile(src, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.PutFile(context.Background(), "x", src); err == nil || !strings.Contains(err.Error(), "status=403") {
		t.Fatalf("got %v want status=403", err)
	}
	if _, err := New(Config{Endpoint: srv.URL}); err == nil {
		t.Fatalf("expected config error")
	}
}

type fakePutter struct {
	mu    sync.Mutex
	keys  []string
	fails int
}

func (f *fakePutter) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("flaky")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_UploadsRelativeKeysWithRetry(t *testing.T) {
	dir := t.TempDir()
	put := &fakePutter{fails: 1}
	m := NewMirror(put, dir, MirrorOptions{Prefix: "/srv1/", Workers: 1, Backoff: time.Millisecond})

	m.Enqueue(filepath.Join(dir, "turns", "turns-2026-01-02-03.jsonl.zst"))
	m.Enqueue(filepath.Join(filepath.Dir(dir), "elsewhere"))
	m.Close()

	if len(put.keys) != 1 || put.keys[0] != "srv1/turns/turns-2026-01-02-03.jsonl.zst" {
		t.Fatalf("keys: %v", put.keys)
	}
	st := m.Stats()
	if st.EnqueuedTotal != 2 || st.UploadedTotal != 1 || st.FailedTotal != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestCleanKey(t *testing.T) {
	cases := map[string]string{
		"a/b":        "a/b",
		"\\a\\b\\":   "a/b",
		"../../x":    "x",
		" /./ ":      "",
		"a/../../b/": "b",
	}
	for in, want := range cases {
		if got := CleanKey(in); got != want {
			t.Fatalf("CleanKey(%q) = %q want %q", in, got, want)
		}
	}
}
