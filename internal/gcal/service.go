package gcal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"famcal/internal/config"
	"famcal/internal/log"
	"famcal/internal/model"
)

// untitledEvent is the display title for events without a summary.
const untitledEvent = "(タイトルなし)"

// Service fetches events from the configured Google calendars and maps
// them into the display's Event type.
type Service struct {
	oauth *OAuthManager
	loc   *time.Location

	mu        sync.RWMutex
	calendars []config.CalendarConfig
}

func NewService(oauth *OAuthManager, calendars []config.CalendarConfig, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		oauth:     oauth,
		calendars: calendars,
		loc:       loc,
	}
}

// SetCalendars swaps the calendar selection, e.g. after a config update.
func (s *Service) SetCalendars(calendars []config.CalendarConfig) {
	s.mu.Lock()
	s.calendars = calendars
	s.mu.Unlock()
}

// Events returns all events overlapping [start, end) across the configured
// calendars, sorted by start time. A calendar that fails to fetch is
// logged and skipped so one broken feed does not blank the display;
// ErrNotAuthorized propagates so the caller can start the setup flow.
func (s *Service) Events(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	svc, err := s.api(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	calendars := s.calendars
	s.mu.RUnlock()

	all := make([]model.Event, 0)
	for _, cal := range calendars {
		items, err := s.listCalendar(ctx, svc, cal.ID, start, end)
		if err != nil {
			log.Error("calendar fetch failed; skipping", err, "calendar", cal.ID)
			continue
		}

		for _, item := range items {
			ev, err := s.mapEvent(item, cal)
			if err != nil {
				log.Warn("skipping unparsable event", "calendar", cal.ID, "id", item.Id, "reason", err.Error())
				continue
			}
			all = append(all, ev)
		}
		log.Info("calendar fetched", "calendar", cal.Name, "events", len(items))
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Start.Before(all[j].Start)
	})

	return all, nil
}

// CalendarList returns the calendars visible to the authorized account,
// for the admin page's picker.
func (s *Service) CalendarList(ctx context.Context) ([]*calendar.CalendarListEntry, error) {
	svc, err := s.api(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gcal: calendar list failed: %w", err)
	}
	return resp.Items, nil
}

func (s *Service) api(ctx context.Context) (*calendar.Service, error) {
	client, err := s.oauth.Client(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("gcal: service init failed: %w", err)
	}
	return svc, nil
}

func (s *Service) listCalendar(ctx context.Context, svc *calendar.Service, calendarID string, start, end time.Time) ([]*calendar.Event, error) {
	resp, err := svc.Events.List(calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		TimeZone(s.loc.String()).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// mapEvent converts an API event into the display model. All-day events
// keep the API's exclusive end date; the layout engine undoes it during
// bucketing.
func (s *Service) mapEvent(item *calendar.Event, cal config.CalendarConfig) (model.Event, error) {
	allDay := item.Start != nil && item.Start.DateTime == ""

	start, err := s.parseEventTime(item.Start, allDay)
	if err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	end, err := s.parseEventTime(item.End, allDay)
	if err != nil {
		return model.Event{}, fmt.Errorf("end: %w", err)
	}

	title := item.Summary
	if title == "" {
		title = untitledEvent
	}

	return model.Event{
		ID:       item.Id,
		Title:    title,
		Start:    start,
		End:      end,
		AllDay:   allDay,
		SourceID: cal.ID,
		Color:    cal.Color,
	}, nil
}

func (s *Service) parseEventTime(edt *calendar.EventDateTime, allDay bool) (time.Time, error) {
	if edt == nil {
		return time.Time{}, fmt.Errorf("missing date")
	}
	if allDay {
		t, err := time.ParseInLocation("2006-01-02", edt.Date, s.loc)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, edt.DateTime)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(s.loc), nil
}
