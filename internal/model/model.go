package model

import "time"

// Event is a single concrete calendar entry as delivered by an event
// source (Google Calendar or an ICS subscription). Recurring events are
// already expanded into individual instances by the source; the layout
// engine never sees recurrence rules.
type Event struct {
	// ID is an opaque identifier, unique within one fetch batch. It is
	// the sole identity used for multi-day span detection.
	ID string `json:"id"`

	Title string `json:"title"`

	// Start and End are in the configured display timezone. For all-day
	// events End is exclusive: a one-day event has End == Start + 24h.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	AllDay bool `json:"allDay"`

	// SourceID identifies the origin calendar. Holiday calendars are
	// recognized by substring match on this field.
	SourceID string `json:"calendarId"`

	// Color is the display color, defaulting to the origin calendar's
	// configured color.
	Color string `json:"color,omitempty"`
}

// WeatherDay is one day's forecast entry from the weather source. The
// forecast window is sparse; not every grid day has an entry.
type WeatherDay struct {
	// DateKey is the local calendar date in YYYY-MM-DD form.
	DateKey string `json:"date"`

	// Weather is the human-readable condition text from the feed.
	Weather string `json:"weather"`

	// Code is the raw JMA weather code, Emoji its glyph rendering.
	Code  string `json:"weatherCode"`
	Emoji string `json:"emoji"`

	// PrecipProb and Reliability are optional; empty when the feed does
	// not carry them for this date.
	PrecipProb  string `json:"precipitationProbability,omitempty"`
	Reliability string `json:"reliability,omitempty"`
}
