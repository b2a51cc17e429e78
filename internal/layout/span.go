package layout

import "famcal/internal/model"

// Span describes how one day relates to an event's multi-day span. The zero
// value means single-day.
type Span struct {
	MultiDay bool
	// Start and End are true on the span's first and last occupied day.
	// They reflect the event's true span, not the visible window: an
	// event starting before the grid is never marked Start on the first
	// visible day.
	Start bool
	End   bool
}

// Classify determines whether the event is part of a multi-day span and,
// if so, where dateKey falls within it. It scans the full bucket map on
// every call; the event list changes between renders, so nothing is cached
// on the event itself.
func Classify(buckets map[string][]model.Event, eventID, dateKey string) Span {
	var first, last string
	count := 0

	for key, evs := range buckets {
		for _, e := range evs {
			if e.ID != eventID {
				continue
			}
			if count == 0 {
				first, last = key, key
			} else {
				// Canonical YYYY-MM-DD keys sort correctly as strings.
				if key < first {
					first = key
				}
				if key > last {
					last = key
				}
			}
			count++
			break
		}
	}

	if count <= 1 {
		return Span{}
	}
	return Span{
		MultiDay: true,
		Start:    dateKey == first,
		End:      dateKey == last,
	}
}
