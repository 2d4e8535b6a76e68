package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFetchHTTP(t *testing.T) {
	payload := []byte("image bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != UserAgent {
			t.Errorf("User-Agent = %q, want %q", got, UserAgent)
		}
		w.Write(payload)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	data, err := c.Fetch(context.Background(), srv.URL+"/globe/00.png")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Fetch = %q, want %q", data, payload)
	}
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	if _, err := c.Fetch(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestFetchCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(5 * time.Second)
	if _, err := c.Fetch(ctx, srv.URL); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFetchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "00.png")
	payload := []byte("file bytes")
	if err := os.WriteFile(path, payload, 0644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(5 * time.Second)
	data, err := c.Fetch(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Fetch = %q, want %q", data, payload)
	}

	if _, err := c.Fetch(context.Background(), filepath.Join(dir, "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}
