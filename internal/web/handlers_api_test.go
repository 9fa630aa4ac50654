package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dyson-go-home/internal/dyson"
	"dyson-go-home/internal/dyson/devicesim"
	"dyson-go-home/internal/entity"
	"dyson-go-home/internal/integration"
	"dyson-go-home/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	server  *Server
	backend *devicesim.Backend
	store   *store.BoltStore
	manager *integration.Manager
}

func newTestEnv(t *testing.T, opts ...ServerOption) *testEnv {
	t.Helper()

	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	backend := devicesim.New()
	logger := testLogger()
	events := integration.NewEventBus(logger)
	registry := entity.NewRegistry()
	refresher := noopRefresher{}

	manager := integration.New(backend.Factory, devicesim.NewAnnouncer(), events, logger,
		entity.NewFanPlatform(refresher, registry, logger),
		entity.NewSensorPlatform(refresher, registry, logger),
		entity.NewBinarySensorPlatform(refresher, registry, logger),
		entity.NewVacuumPlatform(refresher, registry, logger),
	)
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	server, err := NewServer(manager, st, logger, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(server.Stop)

	return &testEnv{server: server, backend: backend, store: st, manager: manager}
}

type noopRefresher struct{}

func (noopRefresher) ScheduleRefresh(string) {}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	return w
}

func TestCreateEntryConnected(t *testing.T) {
	env := newTestEnv(t)
	env.backend.SetReachable("XB1-EU-ABC1234A", "192.168.1.10")

	w := env.do(t, "POST", "/api/entries",
		`{"serial":"XB1-EU-ABC1234A","credential":"secret","device_type":"438","host":"192.168.1.10","name":"Bedroom"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	body := w.Body.String()
	var view EntryView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Status != "connected" {
		t.Errorf("Status = %q, want connected", view.Status)
	}
	if view.ID == "" {
		t.Error("entry has no ID")
	}
	if strings.Contains(body, "secret") {
		t.Error("credential leaked into API response")
	}

	// Persisted with credential intact.
	saved, err := env.store.GetEntry(view.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if saved.Credential != "secret" {
		t.Errorf("stored credential = %q", saved.Credential)
	}
}

func TestCreateEntryUnreachableAccepted(t *testing.T) {
	env := newTestEnv(t)
	// Device exists but nothing is reachable at the configured host.

	w := env.do(t, "POST", "/api/entries",
		`{"serial":"XB1-EU-ABC1234A","credential":"secret","device_type":"438","host":"192.168.1.10"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	// The entry was still saved for the background retry.
	entries, err := env.store.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("saved %d entries, want 1", len(entries))
	}
}

func TestCreateEntryUnreachableRetriesInBackground(t *testing.T) {
	retryCtx, cancelRetry := context.WithCancel(context.Background())

	var env *testEnv
	env = newTestEnv(t, WithRetrySetup(func(entry *store.Entry) {
		go func() {
			for {
				err := env.manager.SetUpEntry(retryCtx, entry)
				if err == nil || !errors.Is(err, integration.ErrNotReady) {
					return
				}
				select {
				case <-retryCtx.Done():
					return
				case <-time.After(10 * time.Millisecond):
				}
			}
		}()
	}))
	t.Cleanup(cancelRetry)

	w := env.do(t, "POST", "/api/entries",
		`{"serial":"XB1-EU-ABC1234A","credential":"secret","device_type":"438","host":"192.168.1.10"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("create = %d, body %s", w.Code, w.Body)
	}
	var view EntryView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Once the device comes up, the hook connects the entry without any
	// further API call.
	env.backend.SetReachable("XB1-EU-ABC1234A", "192.168.1.10")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.manager.Status(view.ID) == "connected" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("entry never connected, status = %q", env.manager.Status(view.ID))
}

func TestCreateEntryValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing fields", `{"serial":"XB1-EU-ABC1234A"}`},
		{"unsupported type", `{"serial":"XB1-EU-ABC1234A","credential":"secret","device_type":"999"}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/entries", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}

	entries, _ := env.store.ListEntries()
	if len(entries) != 0 {
		t.Errorf("invalid requests persisted %d entries", len(entries))
	}
}

func TestCreateEntryDuplicateSerial(t *testing.T) {
	env := newTestEnv(t)
	env.backend.SetReachable("XB1-EU-ABC1234A", "h")

	body := `{"serial":"XB1-EU-ABC1234A","credential":"secret","device_type":"438","host":"h"}`
	if w := env.do(t, "POST", "/api/entries", body); w.Code != http.StatusCreated {
		t.Fatalf("first create: %d", w.Code)
	}
	if w := env.do(t, "POST", "/api/entries", body); w.Code != http.StatusConflict {
		t.Fatalf("duplicate create = %d, want 409", w.Code)
	}
}

func TestDeleteEntry(t *testing.T) {
	env := newTestEnv(t)
	env.backend.SetReachable("XB1-EU-ABC1234A", "h")

	w := env.do(t, "POST", "/api/entries",
		`{"serial":"XB1-EU-ABC1234A","credential":"secret","device_type":"438","host":"h"}`)
	var view EntryView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if w := env.do(t, "DELETE", "/api/entries/"+view.ID, ""); w.Code != http.StatusOK {
		t.Fatalf("delete = %d, body %s", w.Code, w.Body)
	}
	if _, err := env.store.GetEntry(view.ID); err == nil {
		t.Error("entry still stored after delete")
	}
	if dev := env.backend.Device("XB1-EU-ABC1234A"); dev.Connected() {
		t.Error("device still connected after delete")
	}

	if w := env.do(t, "DELETE", "/api/entries/"+view.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestRetryEntry(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/entries",
		`{"serial":"XB1-EU-ABC1234A","credential":"secret","device_type":"438","host":"h"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("create = %d", w.Code)
	}
	var view EntryView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Still unreachable.
	if w := env.do(t, "POST", "/api/entries/"+view.ID+"/retry", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("retry while unreachable = %d, want 503", w.Code)
	}

	env.backend.SetReachable("XB1-EU-ABC1234A", "h")
	if w := env.do(t, "POST", "/api/entries/"+view.ID+"/retry", ""); w.Code != http.StatusOK {
		t.Errorf("retry = %d, want 200", w.Code)
	}
	// Already connected now.
	if w := env.do(t, "POST", "/api/entries/"+view.ID+"/retry", ""); w.Code != http.StatusConflict {
		t.Errorf("retry while active = %d, want 409", w.Code)
	}
}

func TestListAndGetEntries(t *testing.T) {
	env := newTestEnv(t)
	env.backend.SetReachable("XB1-EU-ABC1234A", "h")

	w := env.do(t, "POST", "/api/entries",
		`{"serial":"XB1-EU-ABC1234A","credential":"secret","device_type":"438","host":"h"}`)
	var view EntryView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = env.do(t, "GET", "/api/entries", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var views []EntryView
	if err := json.NewDecoder(w.Body).Decode(&views); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(views) != 1 || views[0].Status != "connected" {
		t.Errorf("list = %+v", views)
	}

	if w := env.do(t, "GET", "/api/entries/"+view.ID, ""); w.Code != http.StatusOK {
		t.Errorf("get = %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/entries/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", w.Code)
	}
}

func TestDeviceTypes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/device-types", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var types []map[string]string
	if err := json.NewDecoder(w.Body).Decode(&types); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(types) != len(dyson.SupportedTypes()) {
		t.Errorf("got %d types, want %d", len(types), len(dyson.SupportedTypes()))
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, WithVersion("1.2.3"))
	env.backend.SetReachable("XB1-EU-ABC1234A", "h")

	env.do(t, "POST", "/api/entries",
		`{"serial":"XB1-EU-ABC1234A","credential":"secret","device_type":"438","host":"h"}`)
	env.do(t, "POST", "/api/entries",
		`{"serial":"JH1-US-DEF5678B","credential":"secret","device_type":"438","host":"h"}`)

	w := env.do(t, "GET", "/api/status", "")
	var status map[string]any
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["version"] != "1.2.3" {
		t.Errorf("version = %v", status["version"])
	}
	if status["entries"] != float64(2) || status["connected"] != float64(1) {
		t.Errorf("status = %v", status)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	env := newTestEnv(t, WithAPIKey("sekrit"))

	if w := env.do(t, "GET", "/api/entries", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no key = %d, want 401", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/entries", nil)
	req.Header.Set("X-API-Key", "wrong")
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key = %d, want 401", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/entries", nil)
	req.Header.Set("X-API-Key", "sekrit")
	w = httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("right key = %d, want 200", w.Code)
	}
}

func TestCORSOriginCheck(t *testing.T) {
	env := newTestEnv(t, WithAllowedOrigins([]string{"http://localhost:3000"}))

	req := httptest.NewRequest("POST", "/api/entries", strings.NewReader(`{}`))
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("cross-origin POST = %d, want 403", w.Code)
	}

	req = httptest.NewRequest("OPTIONS", "/api/entries", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w = httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}
}
