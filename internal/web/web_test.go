package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"famcal/internal/config"
	"famcal/internal/gcal"
	"famcal/internal/model"
	"famcal/internal/refresh"
	"famcal/internal/sse"
)

var jst = time.FixedZone("JST", 9*60*60)

type stubSource struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (s *stubSource) Events(_ context.Context, _, _ time.Time) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events, s.err
}

type stubWeather struct {
	days []model.WeatherDay
}

func (s *stubWeather) Forecast(_ context.Context) ([]model.WeatherDay, error) {
	return s.days, nil
}

func newTestServer(t *testing.T, src refresh.EventSource, wx refresh.WeatherSource) (*Server, *refresh.Refresher) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.AdminPassword = "hunter2"
	cfg.Normalize()

	var sources []refresh.EventSource
	if src != nil {
		sources = append(sources, src)
	}
	r := refresh.New(sources, wx, jst, cfg.Weeks)

	s := NewServer(Options{
		Config:     cfg,
		ConfigPath: cfg.DataDir + "/config.yaml",
		Refresher:  r,
		Hub:        sse.NewHub(),
		Location:   jst,
	})
	return s, r
}

func doRequest(s *Server, method, path string, body string, auth bool) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if auth {
		req.SetBasicAuth("admin", "hunter2")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v\n%s", err, rec.Body.String())
	}
	return resp
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	rec := doRequest(s, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	rec := doRequest(s, http.MethodGet, "/api/status", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("ok = %v", body["ok"])
	}
	if _, found := body["version"]; !found {
		t.Error("version missing")
	}
}

func TestGridAfterRefresh(t *testing.T) {
	now := time.Now().In(jst)
	src := &stubSource{events: []model.Event{{
		ID:       "ev-1",
		Title:    "遠足",
		Start:    time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, jst),
		End:      time.Date(now.Year(), now.Month(), now.Day(), 15, 0, 0, 0, jst),
		SourceID: "school",
		Color:    "#33b679",
	}}}

	s, r := newTestServer(t, src, nil)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}

	rec := doRequest(s, http.MethodGet, "/api/grid", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("grid code = %d", rec.Code)
	}

	resp := decodeEnvelope(t, rec)
	if !resp.Success || resp.LastUpdated == nil {
		t.Fatalf("envelope = %+v", resp)
	}
	if !strings.Contains(rec.Body.String(), "遠足") {
		t.Error("grid does not contain the event")
	}
	if !strings.Contains(rec.Body.String(), `"weeks"`) {
		t.Error("grid payload has no weeks field")
	}
}

func TestCalendarNotAuthorized(t *testing.T) {
	src := &stubSource{err: gcal.ErrNotAuthorized}
	s, r := newTestServer(t, src, nil)

	// Refresh fails; no snapshot exists yet.
	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() should fail when the only source is unauthorized")
	}

	rec := doRequest(s, http.MethodGet, "/api/calendar", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "not_authorized" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestGridNotAuthorized(t *testing.T) {
	src := &stubSource{err: gcal.ErrNotAuthorized}
	s, r := newTestServer(t, src, nil)

	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() should fail when the only source is unauthorized")
	}

	// The display page keys its /setup redirect off this endpoint, so it
	// must answer 401 exactly like /api/calendar.
	rec := doRequest(s, http.MethodGet, "/api/grid", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("grid code = %d, want 401", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "not_authorized" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestGridServesAfterAuthorization(t *testing.T) {
	src := &stubSource{err: gcal.ErrNotAuthorized}
	s, r := newTestServer(t, src, nil)
	_ = r.Refresh(context.Background())

	// Authorization completes and the next refresh succeeds; the grid
	// must stop answering 401.
	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}

	rec := doRequest(s, http.MethodGet, "/api/grid", "", false)
	if rec.Code != http.StatusOK {
		t.Errorf("grid code = %d, want 200", rec.Code)
	}
}

func TestCalendarStartDateFilter(t *testing.T) {
	now := time.Now().In(jst)
	today := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, jst)
	farFuture := today.AddDate(0, 0, 60)

	src := &stubSource{events: []model.Event{
		{ID: "near", Title: "near", Start: today, End: today.Add(time.Hour)},
		{ID: "far", Title: "far", Start: farFuture, End: farFuture.Add(time.Hour)},
	}}
	s, r := newTestServer(t, src, nil)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}

	// Default window: anchored today, the 60-days-out event is excluded.
	rec := doRequest(s, http.MethodGet, "/api/calendar", "", false)
	body := rec.Body.String()
	if !strings.Contains(body, `"near"`) || strings.Contains(body, `"far"`) {
		t.Errorf("default window filtered wrong: %s", body)
	}

	// Re-anchored on the future event's day, only it remains.
	rec = doRequest(s, http.MethodGet, "/api/calendar?startDate="+url.QueryEscape(farFuture.Format(time.RFC3339)), "", false)
	body = rec.Body.String()
	if strings.Contains(body, `"near"`) || !strings.Contains(body, `"far"`) {
		t.Errorf("re-anchored window filtered wrong: %s", body)
	}

	rec = doRequest(s, http.MethodGet, "/api/calendar?startDate=tomorrow", "", false)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid startDate code = %d, want 400", rec.Code)
	}
}

func TestCalendarReturnsSnapshot(t *testing.T) {
	now := time.Now().In(jst)
	src := &stubSource{events: []model.Event{{
		ID:    "ev-1",
		Title: "会議",
		Start: now,
		End:   now.Add(time.Hour),
	}}}
	s, r := newTestServer(t, src, nil)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}

	rec := doRequest(s, http.MethodGet, "/api/calendar", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "会議") {
		t.Error("snapshot event missing from response")
	}
}

func TestWeatherEndpoint(t *testing.T) {
	wx := &stubWeather{days: []model.WeatherDay{
		{DateKey: "2024-06-11", Weather: "くもり", Code: "200", Emoji: "☁️"},
		{DateKey: "2024-06-10", Weather: "晴れ", Code: "100", Emoji: "☀️"},
	}}
	s, r := newTestServer(t, &stubSource{}, wx)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}

	rec := doRequest(s, http.MethodGet, "/api/weather", "", false)
	resp := decodeEnvelope(t, rec)
	if !resp.Success {
		t.Fatalf("envelope = %+v", resp)
	}

	days, ok := resp.Data.([]any)
	if !ok || len(days) != 2 {
		t.Fatalf("data = %#v", resp.Data)
	}
	first := days[0].(map[string]any)
	if first["date"] != "2024-06-10" {
		t.Errorf("days not sorted by date: %v", first["date"])
	}
}

func TestManualRefresh(t *testing.T) {
	src := &stubSource{}
	s, _ := newTestServer(t, src, nil)

	rec := doRequest(s, http.MethodPost, "/api/refresh", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodGet, "/api/refresh", "", false)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET refresh code = %d", rec.Code)
	}
}

func TestAdminRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec := doRequest(s, http.MethodGet, "/api/config", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated code = %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}

	rec = doRequest(s, http.MethodGet, "/api/config", "", true)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated code = %d", rec.Code)
	}
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	s.cfgMu.Lock()
	s.cfg.AdminPassword = ""
	s.cfgMu.Unlock()

	rec := doRequest(s, http.MethodGet, "/api/config", "", true)
	if rec.Code != http.StatusForbidden {
		t.Errorf("code = %d, want 403", rec.Code)
	}
}

func TestConfigGetRedactsSecrets(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	s.cfgMu.Lock()
	s.cfg.Google.ClientSecret = "super-secret"
	s.cfgMu.Unlock()

	rec := doRequest(s, http.MethodGet, "/api/config", "", true)
	if strings.Contains(rec.Body.String(), "super-secret") || strings.Contains(rec.Body.String(), "hunter2") {
		t.Error("secrets leaked in config response")
	}
}

func TestConfigPostValidatesAndApplies(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	applied := false
	s.onConfigChange = func(_ *config.Config) { applied = true }

	rec := doRequest(s, http.MethodPost, "/api/config", "{not json", true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON code = %d", rec.Code)
	}

	bad := `{"calendars":[{"id":"x@example.com"}]}`
	rec = doRequest(s, http.MethodPost, "/api/config", bad, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid config code = %d", rec.Code)
	}

	good := `{"listen":"127.0.0.1:3000","week_start":"monday","weeks":3}`
	rec = doRequest(s, http.MethodPost, "/api/config", good, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid config code = %d: %s", rec.Code, rec.Body.String())
	}
	if !applied {
		t.Error("onConfigChange was not invoked")
	}

	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	if s.cfg.WeekStart != "monday" || s.cfg.Weeks != 3 {
		t.Errorf("config not applied: %+v", s.cfg)
	}
	// Blank password in the payload keeps the stored one.
	if s.cfg.AdminPassword != "hunter2" {
		t.Errorf("admin password lost on update: %q", s.cfg.AdminPassword)
	}
}

func TestAdminReloadReportsClients(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec := doRequest(s, http.MethodPost, "/api/admin/reload", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["totalClients"] != float64(0) {
		t.Errorf("totalClients = %v, want 0", body["totalClients"])
	}
}

func TestAuthStatusUnconfigured(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec := doRequest(s, http.MethodGet, "/auth/status", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["configured"] != false || body["authenticated"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestAuthLoginWithoutClientRedirectsToSetup(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec := doRequest(s, http.MethodGet, "/auth/login", "", false)
	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/setup?error=") {
		t.Errorf("Location = %q", loc)
	}
}

func TestStaticDoesNotServeAPI(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec := doRequest(s, http.MethodGet, "/api/nope", "", false)
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rec.Code)
	}
	if strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Error("API path served HTML")
	}
}

func TestStaticServesDisplayPage(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec := doRequest(s, http.MethodGet, "/", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "data-ready") {
		t.Error("display page missing data-ready marker")
	}
}
