package refresh

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"famcal/internal/gcal"
	"famcal/internal/log"
	"famcal/internal/model"
)

// EventSource produces display events overlapping [start, end).
// Both the Google Calendar service and the ICS client implement it.
type EventSource interface {
	Events(ctx context.Context, start, end time.Time) ([]model.Event, error)
}

// WeatherSource produces the weekly forecast.
type WeatherSource interface {
	Forecast(ctx context.Context) ([]model.WeatherDay, error)
}

// Snapshot is the last successfully assembled dataset. Weather is keyed
// by date key so the grid builder can merge it per cell.
type Snapshot struct {
	Events   []model.Event
	Weather  map[string]model.WeatherDay
	LastSync time.Time
}

// Refresher pulls events and weather from the configured sources and
// holds the latest snapshot for the HTTP layer. A failed refresh keeps
// the previous snapshot; the display never goes blank because one pull
// failed.
type Refresher struct {
	loc *time.Location

	mu       sync.RWMutex
	sources  []EventSource
	weather  WeatherSource
	weeks    int
	snapshot Snapshot
	lastErr  error

	// group collapses concurrent refresh requests (cron tick racing a
	// manual POST /api/refresh) into a single pull.
	group singleflight.Group

	// onSuccess is invoked after each successful refresh, outside the
	// snapshot lock. The server uses it to broadcast reloads.
	onSuccess func()
}

// New builds a Refresher over the given sources. weather may be nil if
// no forecast area is configured; weeks bounds the query window.
func New(sources []EventSource, weather WeatherSource, loc *time.Location, weeks int) *Refresher {
	if weeks <= 0 {
		weeks = 4
	}
	if loc == nil {
		loc = time.Local
	}
	return &Refresher{
		sources: sources,
		weather: weather,
		loc:     loc,
		weeks:   weeks,
	}
}

// OnSuccess registers a callback fired after every successful refresh.
// Must be called before the first Refresh.
func (r *Refresher) OnSuccess(fn func()) {
	r.onSuccess = fn
}

// SetSources swaps the event and weather sources, e.g. after a config
// update. The current snapshot is kept until the next refresh.
func (r *Refresher) SetSources(sources []EventSource, weather WeatherSource, weeks int) {
	if weeks <= 0 {
		weeks = 4
	}
	r.mu.Lock()
	r.sources = sources
	r.weather = weather
	r.weeks = weeks
	r.mu.Unlock()
}

// Refresh pulls all sources and swaps in a new snapshot. If another
// refresh is already running, this call waits for it and returns its
// outcome rather than starting a second pull.
func (r *Refresher) Refresh(ctx context.Context) error {
	_, err, _ := r.group.Do("refresh", func() (any, error) {
		return nil, r.refresh(ctx)
	})
	return err
}

func (r *Refresher) refresh(ctx context.Context) error {
	r.mu.RLock()
	sources := r.sources
	wx := r.weather
	weeks := r.weeks
	r.mu.RUnlock()

	// The window starts a week early so spans that began before the
	// visible grid still classify as multi-day continuations.
	now := time.Now().In(r.loc)
	start := time.Date(now.Year(), now.Month(), now.Day()-7, 0, 0, 0, 0, r.loc)
	end := time.Date(now.Year(), now.Month(), now.Day()+weeks*7+7, 0, 0, 0, 0, r.loc)

	events := make([]model.Event, 0)
	var firstErr error
	okSources := 0

	for _, src := range sources {
		evs, err := src.Events(ctx, start, end)
		if err != nil {
			if errors.Is(err, gcal.ErrNotAuthorized) {
				// Not a transient failure; surface it so the UI can
				// point at the setup flow, but let other sources run.
				log.Warn("event source not authorized; skipping")
			} else {
				log.Error("event source failed", err)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		events = append(events, evs...)
		okSources++
	}

	if okSources == 0 && len(sources) > 0 {
		r.mu.Lock()
		r.lastErr = firstErr
		r.mu.Unlock()
		return firstErr
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})

	weather := r.pullWeather(ctx, wx)

	r.mu.Lock()
	r.snapshot = Snapshot{
		Events:   events,
		Weather:  weather,
		LastSync: time.Now().In(r.loc),
	}
	r.lastErr = firstErr
	r.mu.Unlock()

	log.Info("refresh complete", "events", len(events), "weather_days", len(weather), "sources_ok", okSources)

	if r.onSuccess != nil {
		r.onSuccess()
	}
	return nil
}

// pullWeather fetches the forecast, falling back to the previous
// snapshot's weather on failure. Weather problems never fail a refresh.
func (r *Refresher) pullWeather(ctx context.Context, wx WeatherSource) map[string]model.WeatherDay {
	r.mu.RLock()
	prev := r.snapshot.Weather
	r.mu.RUnlock()

	if wx == nil {
		return prev
	}

	days, err := wx.Forecast(ctx)
	if err != nil {
		log.Error("weather fetch failed; keeping previous forecast", err)
		return prev
	}

	weather := make(map[string]model.WeatherDay, len(days))
	for _, d := range days {
		weather[d.DateKey] = d
	}
	return weather
}

// Snapshot returns the current snapshot. The events slice and weather
// map must be treated as read-only.
func (r *Refresher) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// LastError returns the most recent per-source error, nil when the last
// refresh was fully clean.
func (r *Refresher) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}
