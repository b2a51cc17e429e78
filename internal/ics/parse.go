package ics

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	icalendar "github.com/arran4/golang-ical"

	"famcal/internal/log"
)

// ParsedEvent is a single VEVENT lifted out of an ICS payload, before
// recurrence expansion.
type ParsedEvent struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
	// RRule is the raw RRULE string (empty if not recurring).
	RRule string
	// ExDates are excluded occurrence starts.
	ExDates []time.Time
	// RecurrenceID marks an overridden instance of a recurring event.
	RecurrenceID time.Time
	Source       Source
}

// Parse parses an ICS payload into events. Individual malformed VEVENTs
// are skipped with a log entry; a malformed calendar as a whole returns
// an error.
func Parse(body []byte, src Source, loc *time.Location) ([]ParsedEvent, error) {
	cal, err := icalendar.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar %s: %w", src.ID, err)
	}

	events := make([]ParsedEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		pe, err := parseVEvent(ve, src, loc)
		if err != nil {
			log.Warn("skipping malformed VEVENT", "source", src.ID, "reason", err.Error())
			continue
		}
		events = append(events, pe)
	}

	return events, nil
}

func parseVEvent(ve *icalendar.VEvent, src Source, loc *time.Location) (ParsedEvent, error) {
	pe := ParsedEvent{Source: src}

	if p := ve.GetProperty(icalendar.ComponentPropertyUniqueId); p != nil {
		pe.UID = p.Value
	}
	if pe.UID == "" {
		return ParsedEvent{}, fmt.Errorf("missing UID")
	}

	if p := ve.GetProperty(icalendar.ComponentPropertySummary); p != nil {
		pe.Summary = p.Value
	}

	startProp := ve.GetProperty(icalendar.ComponentPropertyDtStart)
	if startProp == nil {
		return ParsedEvent{}, fmt.Errorf("missing DTSTART")
	}

	start, allDay, err := parseICSTime(startProp, loc)
	if err != nil {
		return ParsedEvent{}, fmt.Errorf("DTSTART: %w", err)
	}
	pe.Start = start
	pe.AllDay = allDay

	if endProp := ve.GetProperty(icalendar.ComponentPropertyDtEnd); endProp != nil {
		end, _, err := parseICSTime(endProp, loc)
		if err != nil {
			return ParsedEvent{}, fmt.Errorf("DTEND: %w", err)
		}
		pe.End = end
	} else {
		// No DTEND: all-day events run one day, timed events are
		// instantaneous.
		if allDay {
			pe.End = start.AddDate(0, 0, 1)
		} else {
			pe.End = start
		}
	}

	if p := ve.GetProperty(icalendar.ComponentPropertyRrule); p != nil {
		pe.RRule = p.Value
	}

	for _, p := range ve.GetProperties(icalendar.ComponentPropertyExdate) {
		for _, v := range strings.Split(p.Value, ",") {
			t, _, err := parseICSTimeValue(v, p.ICalParameters, loc)
			if err != nil {
				log.Warn("skipping malformed EXDATE", "source", src.ID, "value", v)
				continue
			}
			pe.ExDates = append(pe.ExDates, t)
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		t, _, err := parseICSTimeValue(p.Value, p.ICalParameters, loc)
		if err == nil {
			pe.RecurrenceID = t
		}
	}

	return pe, nil
}

// parseICSTime parses a DTSTART/DTEND property value, handling the
// VALUE=DATE (all-day), UTC ("Z" suffix), TZID, and floating local forms.
func parseICSTime(prop *icalendar.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	return parseICSTimeValue(prop.Value, prop.ICalParameters, loc)
}

func parseICSTimeValue(value string, params map[string][]string, loc *time.Location) (time.Time, bool, error) {
	// All-day date form: VALUE=DATE or a bare 8-digit value.
	isDate := len(value) == 8
	if vs, ok := params["VALUE"]; ok {
		for _, v := range vs {
			if v == "DATE" {
				isDate = true
			}
		}
	}

	if isDate {
		t, err := time.ParseInLocation("20060102", value, loc)
		if err != nil {
			return time.Time{}, false, err
		}
		return t, true, nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.In(loc), false, nil
	}

	// TZID parameter, if present and loadable, wins over the display zone.
	parseLoc := loc
	if tzids, ok := params["TZID"]; ok && len(tzids) > 0 {
		if tzLoc, err := time.LoadLocation(tzids[0]); err == nil {
			parseLoc = tzLoc
		} else {
			log.Warn("unknown TZID; using display timezone", "tzid", tzids[0])
		}
	}

	t, err := time.ParseInLocation("20060102T150405", value, parseLoc)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.In(loc), false, nil
}
