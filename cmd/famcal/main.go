package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"famcal/internal/config"
	"famcal/internal/gcal"
	"famcal/internal/ics"
	appLog "famcal/internal/log"
	"famcal/internal/refresh"
	"famcal/internal/sse"
	"famcal/internal/weather"
	"famcal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	appLog.Info("famcal starting", "version", web.Version)

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "timezone", conf.Timezone)
		loc = time.Local
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"weeks", conf.Weeks,
		"refresh", conf.RefreshCron,
		"calendar_count", len(conf.Calendars),
		"ics_count", len(conf.ICS),
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	app, err := buildApp(conf, loc)
	if err != nil {
		appLog.Error("failed to initialize", err)
		os.Exit(1)
	}

	if flags.once {
		if err := app.refresher.Refresh(ctx); err != nil {
			appLog.Error("refresh failed", err)
			os.Exit(1)
		}
		snap := app.refresher.Snapshot()
		appLog.Info("refresh complete; exiting", "events", len(snap.Events))
		return
	}

	server := web.NewServer(web.Options{
		Config:         conf,
		ConfigPath:     flags.configPath,
		Refresher:      app.refresher,
		OAuth:          app.oauth,
		GCal:           app.gcal,
		Hub:            app.hub,
		Location:       loc,
		OnConfigChange: app.applyConfig,
	})

	// Initial pull; the grid stays empty until the first success but the
	// server comes up regardless.
	go func() {
		refreshCtx, refreshCancel := context.WithTimeout(ctx, time.Minute)
		defer refreshCancel()
		if err := app.refresher.Refresh(refreshCtx); err != nil {
			appLog.Error("initial refresh failed", err)
		}
	}()

	app.startCron(ctx, conf.RefreshCron)

	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	app.stopCron()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}

	appLog.Info("famcal exiting")
}

// app bundles the long-lived collaborators so config updates can rebuild
// the sources in one place.
type app struct {
	loc *time.Location
	hub *sse.Hub

	refresher *refresh.Refresher
	oauth     *gcal.OAuthManager
	gcal      *gcal.Service

	cronMu  sync.Mutex
	sched   *cron.Cron
	cronCtx context.Context
}

func buildApp(conf *config.Config, loc *time.Location) (*app, error) {
	if err := os.MkdirAll(conf.DataDir, 0o700); err != nil {
		return nil, err
	}

	a := &app{
		loc: loc,
		hub: sse.NewHub(),
	}
	a.refresher = refresh.New(nil, nil, loc, conf.Weeks)
	a.refresher.OnSuccess(func() {
		a.hub.Broadcast(sse.NewEnvelope(sse.TypeReload))
	})
	a.configureSources(conf)
	return a, nil
}

// configureSources wires the event/weather sources from the given config
// into the shared refresher. Used at startup and after POST /api/config.
// Changing the Google OAuth client itself requires a restart; calendar
// selection, ICS feeds and the weather area apply live.
func (a *app) configureSources(conf *config.Config) {
	if a.oauth == nil && conf.Google.ClientID != "" {
		oauth, err := gcal.NewOAuthManager(conf.Google)
		if err != nil {
			appLog.Error("google client setup failed; source disabled", err)
		} else {
			a.oauth = oauth
			a.gcal = gcal.NewService(oauth, conf.Calendars, a.loc)
		}
	}
	if a.gcal != nil {
		a.gcal.SetCalendars(conf.Calendars)
	}

	sources := make([]refresh.EventSource, 0, 2)
	if a.gcal != nil {
		sources = append(sources, a.gcal)
	}
	if len(conf.ICS) > 0 {
		cacheDir := filepath.Join(conf.DataDir, "ics-cache")
		sources = append(sources, ics.NewClient(conf.ICS, cacheDir, a.loc))
	}

	var wx refresh.WeatherSource
	if conf.Weather.Area != "" {
		wx = weather.New(conf.Weather.Area)
	}

	a.refresher.SetSources(sources, wx, conf.Weeks)
}

// applyConfig rebuilds sources and the refresh schedule after a config
// change, then pulls fresh data.
func (a *app) applyConfig(conf *config.Config) {
	a.configureSources(conf)

	a.cronMu.Lock()
	ctx := a.cronCtx
	a.cronMu.Unlock()
	a.startCron(ctx, conf.RefreshCron)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := a.refresher.Refresh(ctx); err != nil {
			appLog.Error("post-config refresh failed", err)
		}
	}()
}

// startCron (re)schedules the periodic refresh. An invalid cron spec is
// logged and leaves no schedule running; manual refresh still works.
func (a *app) startCron(ctx context.Context, spec string) {
	if ctx == nil {
		ctx = context.Background()
	}

	a.cronMu.Lock()
	defer a.cronMu.Unlock()

	a.cronCtx = ctx
	if a.sched != nil {
		a.sched.Stop()
		a.sched = nil
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := a.refresher.Refresh(refreshCtx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	})
	if err != nil {
		appLog.Error("invalid refresh schedule", err, "spec", spec)
		return
	}

	c.Start()
	a.sched = c
	appLog.Info("refresh scheduled", "spec", spec)
}

func (a *app) stopCron() {
	a.cronMu.Lock()
	defer a.cronMu.Unlock()
	if a.sched != nil {
		a.sched.Stop()
		a.sched = nil
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh cycle and exit")

	flag.Parse()

	return cfg
}
