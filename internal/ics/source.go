package ics

import (
	"context"
	"sort"
	"time"

	"famcal/internal/config"
	"famcal/internal/log"
	"famcal/internal/model"
)

const untitledEvent = "(タイトルなし)"

// Client aggregates events from configured ICS feeds. It implements the
// same event source shape as the Google Calendar service, so the two can
// be merged by the refresher.
type Client struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location
}

// NewClient builds a Client from the ICS section of the config. cacheDir
// is where fetched feed bodies are cached between refreshes.
func NewClient(feeds []config.ICSConfig, cacheDir string, loc *time.Location) *Client {
	sources := make([]Source, 0, len(feeds))
	for _, f := range feeds {
		sources = append(sources, Source{
			ID:    f.ID,
			URL:   f.URL,
			Color: f.Color,
		})
	}
	return &Client{
		fetcher: NewFetcher(cacheDir),
		sources: sources,
		loc:     loc,
	}
}

// Events fetches, parses and expands all configured feeds, returning the
// events that overlap [start, end) sorted by start time. A feed that
// fails to fetch or parse is skipped; its error is logged and the other
// feeds still contribute.
func (c *Client) Events(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	results, _ := c.fetcher.FetchAll(ctx, c.sources)

	events := make([]model.Event, 0)
	for _, res := range results {
		parsed, err := Parse(res.Body, res.Source, c.loc)
		if err != nil {
			log.Error("ics parse failed", err, "id", res.Source.ID)
			continue
		}

		// Overridden recurrence instances replace the base occurrence
		// with the same start.
		overrides := make(map[string]bool)
		for _, pe := range parsed {
			if !pe.RecurrenceID.IsZero() {
				overrides[pe.UID+"/"+pe.RecurrenceID.Format("20060102T150405")] = true
			}
		}

		for _, pe := range parsed {
			for _, ev := range Expand(pe, start, end) {
				if pe.RRule != "" && overrides[pe.UID+"/"+ev.Start.Format("20060102T150405")] {
					continue
				}
				events = append(events, ev)
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})

	return events, nil
}
