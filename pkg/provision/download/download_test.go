package download_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/msfg/msfg/pkg/provision/download"
	"github.com/msfg/msfg/pkg/provision/logbook"
)

func TestDownloader_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("payload"))
		case "/big":
			w.Write(make([]byte, 4096))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	logs := logbook.New()
	d := download.New(logs, 10*time.Second, 3)
	ctx := context.Background()

	t.Run("successful download lands on disk", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.jar")
		if err := d.Fetch(ctx, server.URL+"/ok", dest, "req", 1024); err != nil {
			t.Fatal(err)
		}
		got, err := os.ReadFile(dest)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "payload" {
			t.Errorf("want payload, but got %q", string(got))
		}
	})

	t.Run("oversize body is rejected and removed", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.jar")
		err := d.Fetch(ctx, server.URL+"/big", dest, "req", 100)
		if !errors.Is(err, download.ErrTooLarge) {
			t.Fatalf("want ErrTooLarge, but got %v", err)
		}
		if _, serr := os.Stat(dest); serr == nil {
			t.Error("partial file should be removed")
		}
	})

	t.Run("non-2xx is a StatusError", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.jar")
		err := d.Fetch(ctx, server.URL+"/missing", dest, "req", 1024)
		var se download.StatusError
		if !errors.As(err, &se) {
			t.Fatalf("want StatusError, but got %v", err)
		}
		if se.Code != http.StatusNotFound {
			t.Errorf("want 404, but got %d", se.Code)
		}
		if se.Transient() {
			t.Error("404 must not be transient")
		}
	})

	t.Run("non-http scheme is rejected", func(t *testing.T) {
		err := d.Fetch(ctx, "ftp://example.com/x", filepath.Join(t.TempDir(), "x"), "req", 1024)
		if !errors.Is(err, download.ErrBadURL) {
			t.Errorf("want ErrBadURL, but got %v", err)
		}
	})
}

func TestDownloader_FetchWithRetry(t *testing.T) {
	t.Run("transient failure is retried to success", func(t *testing.T) {
		var calls atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("recovered"))
		}))
		defer server.Close()

		d := download.New(logbook.New(), 10*time.Second, 3)
		dest := filepath.Join(t.TempDir(), "out.jar")
		if err := d.FetchWithRetry(context.Background(), server.URL, dest, "req", 1024); err != nil {
			t.Fatal(err)
		}
		if got := calls.Load(); got != 2 {
			t.Errorf("want 2 calls, but got %d", got)
		}
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		var calls atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		d := download.New(logbook.New(), 10*time.Second, 3)
		dest := filepath.Join(t.TempDir(), "out.jar")
		if err := d.FetchWithRetry(context.Background(), server.URL, dest, "req", 1024); err == nil {
			t.Fatal("want error, but got nil")
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("want 1 call, but got %d", got)
		}
	})
}

func TestDownloader_FetchAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("content of " + r.URL.Path))
	}))
	defer server.Close()

	dir := t.TempDir()
	jobs := []download.Job{
		{URL: server.URL + "/a.jar", Dest: filepath.Join(dir, "a.jar"), MaxBytes: 1024},
		{URL: server.URL + "/bad", Dest: filepath.Join(dir, "bad.jar"), MaxBytes: 1024},
		{URL: server.URL + "/b.jar", Dest: filepath.Join(dir, "b.jar"), MaxBytes: 1024},
	}

	d := download.New(logbook.New(), 10*time.Second, 1)
	failed := d.FetchAll(context.Background(), jobs, "req", 4)
	if failed != 1 {
		t.Errorf("want 1 failure, but got %d", failed)
	}
	for _, name := range []string{"a.jar", "b.jar"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s should exist: %v", name, err)
		}
	}
}
