package layout

import (
	"time"

	"famcal/internal/log"
	"famcal/internal/model"
)

// BucketByDay maps every event onto each calendar day it occupies. Multi-day
// events appear in the bucket of every day from start to end inclusive, so
// the grid can draw them as a continuous bar.
//
// All-day events use an exclusive end (a one-day event ends at start+1d);
// the end date is pulled back one day before bucketing. Events whose range
// is inverted after that adjustment bucket to their start day only; they are
// shown, not dropped.
func BucketByDay(events []model.Event) map[string][]model.Event {
	buckets := make(map[string][]model.Event)

	for _, ev := range events {
		startKey := DateKey(ev.Start)

		ey, em, ed := ev.End.Date()
		if ev.AllDay {
			// Undo the exclusive-end convention.
			ed--
		}
		endDate := time.Date(ey, em, ed, 0, 0, 0, 0, ev.End.Location())
		endKey := DateKey(endDate)

		if endKey < startKey {
			log.Warn("event has inverted date range; bucketing start day only",
				"id", ev.ID, "start", startKey, "end", endKey)
			buckets[startKey] = append(buckets[startKey], ev)
			continue
		}

		if endKey == startKey {
			buckets[startKey] = append(buckets[startKey], ev)
			continue
		}

		// Walk every calendar day of the span. Day stepping goes through
		// time.Date component normalization, not duration addition, so a
		// DST transition cannot skip or repeat a day.
		sy, sm, sd := ev.Start.Date()
		current := time.Date(sy, sm, sd, 0, 0, 0, 0, ev.Start.Location())
		for {
			key := DateKey(current)
			buckets[key] = append(buckets[key], ev)
			if key == endKey {
				break
			}
			cy, cm, cd := current.Date()
			current = time.Date(cy, cm, cd+1, 0, 0, 0, 0, current.Location())
		}
	}

	return buckets
}
