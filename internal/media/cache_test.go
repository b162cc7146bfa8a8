package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCacheFetchOnce(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	c := NewCache(t.TempDir())
	ctx := context.Background()

	first, err := c.Fetch(ctx, srv.URL+"/pic")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(first) != ".jpg" {
		t.Errorf("jpeg cached as %q, want .jpg extension", first)
	}
	data, err := os.ReadFile(first)
	if err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("cached content = %q, %v", data, err)
	}

	second, err := c.Fetch(ctx, srv.URL+"/pic")
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("second fetch returned %q, want %q", second, first)
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want 1", hits)
	}
}

func TestCacheDistinctURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	c := NewCache(t.TempDir())
	a, err := c.Fetch(context.Background(), srv.URL+"/a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Fetch(context.Background(), srv.URL+"/b")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("distinct urls mapped to the same file %q", a)
	}
}

func TestCacheFetchErrorLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := NewCache(dir)
	if _, err := c.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatal("fetch of a 404 should fail")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed fetch left %d files behind", len(entries))
	}
}

func TestExtForContentType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"image/jpeg", ".jpg"},
		{"image/jpeg; charset=binary", ".jpg"},
		{"image/png", ".png"},
		{"image/gif", ".gif"},
		{"image/webp", ".webp"},
		{"image/bmp", ".bmp"},
		{"", ""},
		{"garbage;;", ""},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.in, "/", "_"), func(t *testing.T) {
			if got := extForContentType(tt.in); got != tt.want {
				t.Errorf("extForContentType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
