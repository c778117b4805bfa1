package statusd

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/mirrorstore/objsync/pkg/pull"
)

func TestStatusEndpointReturnsSnapshot(t *testing.T) {
	status := pull.NewStatus()
	srv := httptest.NewServer(NewRouter(status))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var snap pull.StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap != (pull.StatusSnapshot{}) {
		t.Fatalf("snapshot = %+v, want zero value for a fresh Status", snap)
	}
}

func TestStatusEndpointHandlesNilStatus(t *testing.T) {
	srv := httptest.NewServer(NewRouter(nil))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200 even with a nil Status", resp.StatusCode)
	}
}
