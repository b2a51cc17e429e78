package web

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"famcal/internal/capture"
	"famcal/internal/config"
	"famcal/internal/gcal"
	"famcal/internal/layout"
	appLog "famcal/internal/log"
	"famcal/internal/model"
	"famcal/internal/refresh"
	"famcal/internal/sse"
)

// Version is the reported application version. Overridable at build time
// via -ldflags "-X famcal/internal/web.Version=...".
var Version = "dev"

// Server provides the display page, the grid/weather API, the admin API
// and the SSE attach point.
type Server struct {
	configPath string
	refresher  *refresh.Refresher
	oauth      *gcal.OAuthManager
	gcal       *gcal.Service
	hub        *sse.Hub
	loc        *time.Location
	mux        *http.ServeMux

	// cfgMu guards cfg; POST /api/config swaps it while display requests
	// read grid settings from it.
	cfgMu sync.RWMutex
	cfg   *config.Config

	// onConfigChange is invoked after a config save so the caller can
	// rebuild sources and reschedule refreshes.
	onConfigChange func(*config.Config)

	startedAt time.Time
}

// embeddedStatic contains the display and setup pages.
//
//go:embed all:static
var embeddedStatic embed.FS

// Options wires the server's collaborators. OAuth and GCal may be nil
// when no Google client is configured.
type Options struct {
	Config         *config.Config
	ConfigPath     string
	Refresher      *refresh.Refresher
	OAuth          *gcal.OAuthManager
	GCal           *gcal.Service
	Hub            *sse.Hub
	Location       *time.Location
	OnConfigChange func(*config.Config)
}

// NewServer constructs a new Server.
func NewServer(opts Options) *Server {
	s := &Server{
		cfg:            opts.Config,
		configPath:     opts.ConfigPath,
		refresher:      opts.Refresher,
		oauth:          opts.OAuth,
		gcal:           opts.GCal,
		hub:            opts.Hub,
		loc:            opts.Location,
		onConfigChange: opts.OnConfigChange,
		mux:            http.NewServeMux(),
		startedAt:      time.Now(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/calendar", s.handleCalendar)
	s.mux.HandleFunc("/api/grid", s.handleGrid)
	s.mux.HandleFunc("/api/weather", s.handleWeather)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)

	// Admin API: protected by the configured admin password via HTTP
	// Basic Auth. 비밀번호가 비어 있으면 전부 거부한다.
	s.mux.HandleFunc("/api/config", s.requireAdmin(s.handleConfig))
	s.mux.HandleFunc("/api/calendars", s.requireAdmin(s.handleCalendarList))
	s.mux.HandleFunc("/api/admin/reload", s.requireAdmin(s.handleAdminReload))
	s.mux.HandleFunc("/api/admin/capture", s.requireAdmin(s.handleAdminCapture))
	s.mux.HandleFunc("/preview.png", s.requireAdmin(s.handlePreview))

	s.mux.HandleFunc("/auth/login", s.handleAuthLogin)
	s.mux.HandleFunc("/auth/callback", s.handleAuthCallback)
	s.mux.HandleFunc("/auth/reset", s.handleAuthReset)
	s.mux.HandleFunc("/auth/status", s.handleAuthStatus)

	if s.hub != nil {
		s.mux.Handle("/api/sse/events", s.hub)
	}

	// Static display/setup pages. All non-API paths fall back here.
	s.mux.Handle("/", s.staticFileServer())
}

// apiResponse is the common JSON envelope for data endpoints.
type apiResponse struct {
	Success     bool       `json:"success"`
	Data        any        `json:"data,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Error       *apiError  `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}

	snap := s.refresher.Snapshot()

	status := map[string]any{
		"ok":      true,
		"version": Version,
		"time":    time.Now().In(s.loc).Format(time.RFC3339),
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"clients": s.hub.Count(),
	}
	if !snap.LastSync.IsZero() {
		status["lastSync"] = snap.LastSync.Format(time.RFC3339)
	}
	if err := s.refresher.LastError(); err != nil {
		status["lastError"] = err.Error()
	}

	writeJSON(w, http.StatusOK, status)
}

// needsSetup reports whether the event source is unauthorized and no data
// has ever been synced. In that state the data endpoints answer 401 so the
// display page can redirect to /setup.
func (s *Server) needsSetup(snap refresh.Snapshot) bool {
	return snap.LastSync.IsZero() && errors.Is(s.refresher.LastError(), gcal.ErrNotAuthorized)
}

func writeNotAuthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, apiResponse{
		Success: false,
		Error:   &apiError{Code: "not_authorized", Message: "Google Calendar authorization required"},
	})
}

// handleCalendar returns the flat event list from the current snapshot,
// optionally re-anchored: ?startDate=RFC3339 narrows the list to events
// overlapping the rolling window that starts on that day.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}

	snap := s.refresher.Snapshot()
	if s.needsSetup(snap) {
		writeNotAuthorized(w)
		return
	}

	anchor := time.Now().In(s.loc)
	if v := r.URL.Query().Get("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "startDate must be RFC3339")
			return
		}
		anchor = t.In(s.loc)
	}

	s.cfgMu.RLock()
	weeks := s.cfg.Weeks
	s.cfgMu.RUnlock()

	windowStart := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, s.loc)
	windowEnd := time.Date(anchor.Year(), anchor.Month(), anchor.Day()+weeks*7, 0, 0, 0, 0, s.loc)

	events := make([]model.Event, 0, len(snap.Events))
	for _, ev := range snap.Events {
		if eventInWindow(ev, windowStart, windowEnd) {
			events = append(events, ev)
		}
	}
	writeEnvelope(w, events, snap.LastSync)
}

// eventInWindow reports whether ev overlaps [start, end). Instantaneous
// events count when their point lies inside the window.
func eventInWindow(ev model.Event, start, end time.Time) bool {
	if !ev.End.After(ev.Start) {
		return !ev.Start.Before(start) && ev.Start.Before(end)
	}
	return ev.Start.Before(end) && ev.End.After(start)
}

// handleGrid returns the rendered week grid for the display page. It
// shares the 401 setup redirect contract with /api/calendar, since the
// display page keys its setup flow off this endpoint.
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}

	snap := s.refresher.Snapshot()
	if s.needsSetup(snap) {
		writeNotAuthorized(w)
		return
	}

	s.cfgMu.RLock()
	weeks := s.cfg.Weeks
	ws := layout.ParseWeekStart(s.cfg.WeekStart)
	s.cfgMu.RUnlock()

	grid := layout.BuildGrid(time.Now().In(s.loc), weeks, ws, snap.Events, snap.Weather)

	writeEnvelope(w, grid, snap.LastSync)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}

	snap := s.refresher.Snapshot()

	days := make([]model.WeatherDay, 0, len(snap.Weather))
	for _, d := range snap.Weather {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].DateKey < days[j].DateKey })

	writeEnvelope(w, days, snap.LastSync)
}

// handleRefresh triggers a manual data refresh. Concurrent triggers share
// a single pull.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	if err := s.refresher.Refresh(r.Context()); err != nil {
		if errors.Is(err, gcal.ErrNotAuthorized) {
			writeError(w, http.StatusUnauthorized, "not_authorized", "Google Calendar authorization required")
			return
		}
		appLog.Error("manual refresh failed", err)
		writeError(w, http.StatusBadGateway, "refresh_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

// requireAdmin wraps a handler with HTTP Basic Auth against the admin
// password. An empty password disables the admin API entirely.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.cfgMu.RLock()
		password := s.cfg.AdminPassword
		s.cfgMu.RUnlock()

		if password == "" {
			writeError(w, http.StatusForbidden, "admin_disabled", "admin password is not configured")
			return
		}

		_, p, ok := r.BasicAuth()
		if !ok || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="famcal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "admin authentication required")
			return
		}
		next(w, r)
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// handleConfig serves and updates the application configuration.
//
// GET returns the current config; the admin password and OAuth client
// secret are blanked out of the response. POST accepts a full config
// document, validates it, persists it atomically and applies it.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.cfgMu.RLock()
		redacted := *s.cfg
		s.cfgMu.RUnlock()

		redacted.AdminPassword = ""
		redacted.Google.ClientSecret = ""
		writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: redacted})

	case http.MethodPost:
		var incoming config.Config
		if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}

		s.cfgMu.RLock()
		current := *s.cfg
		s.cfgMu.RUnlock()

		// Blank secrets in the payload mean "keep the stored value".
		if incoming.AdminPassword == "" {
			incoming.AdminPassword = current.AdminPassword
		}
		if incoming.Google.ClientSecret == "" {
			incoming.Google.ClientSecret = current.Google.ClientSecret
		}

		incoming.Normalize()
		if err := incoming.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
			return
		}

		if err := config.Save(s.configPath, &incoming); err != nil {
			appLog.Error("config save failed", err)
			writeError(w, http.StatusInternalServerError, "save_failed", "failed to persist configuration")
			return
		}

		s.cfgMu.Lock()
		s.cfg = &incoming
		s.cfgMu.Unlock()

		appLog.Info("config updated", "calendars", len(incoming.Calendars), "ics", len(incoming.ICS))
		if s.onConfigChange != nil {
			s.onConfigChange(&incoming)
		}

		writeJSON(w, http.StatusOK, apiResponse{Success: true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET or POST only")
	}
}

// handleCalendarList returns the authorized account's Google calendars
// for the admin calendar picker.
func (s *Server) handleCalendarList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}
	if s.gcal == nil {
		writeError(w, http.StatusConflict, "not_configured", "Google client is not configured")
		return
	}

	entries, err := s.gcal.CalendarList(r.Context())
	if err != nil {
		if errors.Is(err, gcal.ErrNotAuthorized) {
			writeError(w, http.StatusUnauthorized, "not_authorized", "Google Calendar authorization required")
			return
		}
		appLog.Error("calendar list failed", err)
		writeError(w, http.StatusBadGateway, "upstream_failed", "failed to list calendars")
		return
	}

	type calendarDTO struct {
		ID      string `json:"id"`
		Summary string `json:"summary"`
		Color   string `json:"color,omitempty"`
		Primary bool   `json:"primary,omitempty"`
	}

	dtos := make([]calendarDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, calendarDTO{
			ID:      e.Id,
			Summary: e.Summary,
			Color:   e.BackgroundColor,
			Primary: e.Primary,
		})
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: dtos})
}

// handleAdminReload broadcasts a reload to every attached display and
// reports how many were reached.
func (s *Server) handleAdminReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	total := s.hub.Broadcast(sse.NewEnvelope(sse.TypeReload))
	appLog.Info("admin reload broadcast", "total_clients", total)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"totalClients": total,
	})
}

// handleAdminCapture renders the display page in headless Chromium and
// stores the PNG under the data directory. Used to sanity-check what the
// wall panel is actually showing.
func (s *Server) handleAdminCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	s.cfgMu.RLock()
	listen := s.cfg.Listen
	dataDir := s.cfg.DataDir
	s.cfgMu.RUnlock()

	// Capture can outlive the HTTP request that started it.
	ctx, cancel := context.WithTimeout(context.Background(), capture.DefaultTimeout)
	defer cancel()

	err := capture.PagePNG(ctx, capture.Options{
		URL:        "http://" + listen + "/",
		OutputPath: filepath.Join(dataDir, "preview.png"),
	})
	if err != nil {
		appLog.Error("preview capture failed", err)
		writeError(w, http.StatusInternalServerError, "capture_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

// handlePreview serves the last captured PNG from the data directory.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.cfgMu.RLock()
	dataDir := s.cfg.DataDir
	s.cfgMu.RUnlock()

	http.ServeFile(w, r, filepath.Join(dataDir, "preview.png"))
}

const oauthStateCookie = "famcal_oauth_state"

// handleAuthLogin starts the Google OAuth consent flow.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		http.Redirect(w, r, "/setup?error="+url.QueryEscape("google client not configured"), http.StatusFound)
		return
	}

	state, err := randomState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to generate state")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, s.oauth.AuthURL(state), http.StatusFound)
}

// handleAuthCallback completes the OAuth flow. On success the browser
// lands back on the display page; on failure it lands on /setup with the
// error in the query string.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	if errMsg := q.Get("error"); errMsg != "" {
		http.Redirect(w, r, "/setup?error="+url.QueryEscape(errMsg), http.StatusFound)
		return
	}

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		http.Redirect(w, r, "/setup?error="+url.QueryEscape("state mismatch"), http.StatusFound)
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Redirect(w, r, "/setup?error="+url.QueryEscape("missing code"), http.StatusFound)
		return
	}

	if err := s.oauth.Exchange(r.Context(), code); err != nil {
		appLog.Error("oauth code exchange failed", err)
		http.Redirect(w, r, "/setup?error="+url.QueryEscape("token exchange failed"), http.StatusFound)
		return
	}

	appLog.Info("google authorization complete")

	// Pull data right away so the display isn't empty after setup.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.refresher.Refresh(ctx); err != nil {
			appLog.Error("post-auth refresh failed", err)
		}
	}()

	http.Redirect(w, r, "/", http.StatusFound)
}

// handleAuthReset removes the stored token, forcing a fresh consent flow.
func (s *Server) handleAuthReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}
	if s.oauth == nil {
		writeError(w, http.StatusConflict, "not_configured", "Google client is not configured")
		return
	}

	if err := s.oauth.Reset(); err != nil {
		appLog.Error("auth reset failed", err)
		writeError(w, http.StatusInternalServerError, "reset_failed", "failed to remove token")
		return
	}

	appLog.Info("google authorization reset")
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}

	configured := s.oauth != nil
	authenticated := false
	if configured {
		authenticated = s.oauth.IsAuthenticated(r.Context())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"configured":    configured,
		"authenticated": authenticated,
	})
}

// staticFileServer serves the embedded display/setup pages from
// internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// API 요청은 정적 UI로 절대 넘기지 않는다.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}

		// Pretty URLs: /setup and /admin resolve to their html files.
		switch path {
		case "/setup":
			r.URL.Path = "/setup.html"
		case "/admin":
			r.URL.Path = "/admin.html"
		}

		fileServer.ServeHTTP(w, r)
	})
}

func randomState() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

func writeEnvelope(w http.ResponseWriter, data any, lastSync time.Time) {
	resp := apiResponse{Success: true, Data: data}
	if !lastSync.IsZero() {
		resp.LastUpdated = &lastSync
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiResponse{
		Success: false,
		Error:   &apiError{Code: code, Message: msg},
	})
}
