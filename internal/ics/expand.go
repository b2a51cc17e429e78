package ics

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"famcal/internal/log"
	"famcal/internal/model"
)

// Expand turns a parsed ICS event into concrete display events within
// [rangeStart, rangeEnd). Non-recurring events yield at most one event;
// recurring events yield one per occurrence, with EXDATE instances
// removed. Event IDs are "<source>/<uid>" for plain events and
// "<source>/<uid>/<occurrence start>" for recurrence instances, so every
// instance is addressable on its own.
func Expand(pe ParsedEvent, rangeStart, rangeEnd time.Time) []model.Event {
	if pe.RRule == "" {
		if !overlaps(pe.Start, pe.End, rangeStart, rangeEnd) {
			return nil
		}
		return []model.Event{toEvent(pe, pe.Start, pe.End, "")}
	}

	opts, err := rrule.StrToROptionInLocation(pe.RRule, pe.Start.Location())
	if err != nil {
		log.Warn("skipping event with malformed RRULE", "uid", pe.UID, "reason", err.Error())
		return nil
	}
	opts.Dtstart = pe.Start

	rule, err := rrule.NewRRule(*opts)
	if err != nil {
		log.Warn("skipping event with invalid RRULE", "uid", pe.UID, "reason", err.Error())
		return nil
	}

	duration := pe.End.Sub(pe.Start)

	// Widen the query window backwards so occurrences that start before
	// the range but overlap into it are still found.
	queryStart := rangeStart.Add(-duration)
	starts := rule.Between(queryStart, rangeEnd, true)

	excluded := make(map[int64]bool, len(pe.ExDates))
	for _, ex := range pe.ExDates {
		excluded[ex.Unix()] = true
	}

	events := make([]model.Event, 0, len(starts))
	for _, occStart := range starts {
		if excluded[occStart.Unix()] {
			continue
		}
		occEnd := occStart.Add(duration)
		if !overlaps(occStart, occEnd, rangeStart, rangeEnd) {
			continue
		}
		events = append(events, toEvent(pe, occStart, occEnd, occStart.Format("20060102T150405")))
	}

	return events
}

func toEvent(pe ParsedEvent, start, end time.Time, instanceKey string) model.Event {
	id := fmt.Sprintf("%s/%s", pe.Source.ID, pe.UID)
	if instanceKey != "" {
		id = fmt.Sprintf("%s/%s", id, instanceKey)
	}

	title := pe.Summary
	if title == "" {
		title = untitledEvent
	}

	return model.Event{
		ID:       id,
		Title:    title,
		Start:    start,
		End:      end,
		AllDay:   pe.AllDay,
		SourceID: pe.Source.ID,
		Color:    pe.Source.Color,
	}
}

// overlaps reports whether [aStart, aEnd) intersects [bStart, bEnd).
// Zero-length intervals (instantaneous events) count as overlapping when
// their point lies inside the range.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
