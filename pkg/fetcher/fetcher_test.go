package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mirrorstore/objsync/pkg/objid"
)

func TestFetcherDownloadsToTempFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("object body"))
	}))
	defer srv.Close()

	f := New(t.TempDir(), 2)
	id := objid.New(objid.Checksum{}, objid.File)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !f.Submit(ctx, Request{ID: id, URI: srv.URL}) {
		t.Fatal("Submit returned false")
	}

	res := <-f.Results()
	if res.Err != nil {
		t.Fatalf("download failed: %v", res.Err)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read temp file: %v", err)
	}
	if string(data) != "object body" {
		t.Fatalf("got %q", data)
	}
	if res.Size != int64(len("object body")) {
		t.Fatalf("Size = %d", res.Size)
	}
	if f.BytesTransferred() != res.Size {
		t.Fatalf("BytesTransferred = %d, want %d", f.BytesTransferred(), res.Size)
	}

	f.Close()
}

func TestFetcherRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(t.TempDir(), 1)
	ctx := context.Background()
	f.Submit(ctx, Request{ID: objid.New(objid.Checksum{}, objid.File), URI: srv.URL})

	res := <-f.Results()
	if res.Err != nil {
		t.Fatalf("download failed after retries: %v", res.Err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	f.Close()
}

func TestFetcherDoesNotRetry404(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(t.TempDir(), 1)
	f.Submit(context.Background(), Request{ID: objid.New(objid.Checksum{}, objid.File), URI: srv.URL})

	res := <-f.Results()
	if res.Err == nil {
		t.Fatal("want error for 404")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 404)", calls.Load())
	}
	f.Close()
}

func TestFetcherCancelsInFlightDownload(t *testing.T) {
	unblock := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-unblock:
		}
	}))
	defer srv.Close()
	defer close(unblock)

	f := New(t.TempDir(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	f.Submit(ctx, Request{ID: objid.New(objid.Checksum{}, objid.File), URI: srv.URL, Ctx: ctx})
	cancel()

	select {
	case res := <-f.Results():
		if res.Err == nil {
			t.Fatal("want error for a request cancelled mid-flight")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("download did not observe context cancellation")
	}
	f.Close()
}

func TestFetcherSubmitFailsAfterClose(t *testing.T) {
	f := New(t.TempDir(), 1)
	f.Close()
	if f.Submit(context.Background(), Request{ID: objid.New(objid.Checksum{}, objid.File), URI: "http://example.invalid"}) {
		t.Fatal("Submit after Close should return false")
	}
}
