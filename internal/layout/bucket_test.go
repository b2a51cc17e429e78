package layout

import (
	"reflect"
	"testing"
	"time"

	"famcal/internal/model"
)

func TestBucketAllDaySingleDay(t *testing.T) {
	// All-day event with exclusive end: start 06-10, end 06-11 occupies
	// only 06-10.
	ev := model.Event{
		ID:     "a1",
		Start:  date(2024, time.June, 10),
		End:    date(2024, time.June, 11),
		AllDay: true,
	}

	buckets := BucketByDay([]model.Event{ev})

	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d: %v", len(buckets), keys(buckets))
	}
	if len(buckets["2024-06-10"]) != 1 {
		t.Errorf("event should bucket to 2024-06-10, got %v", keys(buckets))
	}
}

func TestBucketTimedSingleDay(t *testing.T) {
	ev := model.Event{
		ID:    "t1",
		Start: dt(2024, time.June, 10, 9, 0),
		End:   dt(2024, time.June, 10, 10, 0),
	}

	buckets := BucketByDay([]model.Event{ev})

	if len(buckets) != 1 || len(buckets["2024-06-10"]) != 1 {
		t.Fatalf("timed event should bucket once under 2024-06-10, got %v", keys(buckets))
	}
	if span := Classify(buckets, "t1", "2024-06-10"); span.MultiDay {
		t.Errorf("single-day timed event classified multi-day")
	}
}

func TestBucketAllDayMultiDay(t *testing.T) {
	// Start 06-10, exclusive end 06-13: occupies 06-10, 06-11, 06-12.
	ev := model.Event{
		ID:     "m1",
		Start:  date(2024, time.June, 10),
		End:    date(2024, time.June, 13),
		AllDay: true,
	}

	buckets := BucketByDay([]model.Event{ev})

	want := []string{"2024-06-10", "2024-06-11", "2024-06-12"}
	if len(buckets) != len(want) {
		t.Fatalf("expected buckets %v, got %v", want, keys(buckets))
	}
	for _, key := range want {
		if len(buckets[key]) != 1 {
			t.Errorf("missing event in bucket %s", key)
		}
	}
}

func TestBucketTimedMultiDayNoGaps(t *testing.T) {
	// A timed event spanning 5 calendar days appears in exactly 5
	// consecutive buckets.
	ev := model.Event{
		ID:    "m2",
		Start: dt(2024, time.June, 28, 18, 0),
		End:   dt(2024, time.July, 2, 9, 0),
	}

	buckets := BucketByDay([]model.Event{ev})

	want := []string{"2024-06-28", "2024-06-29", "2024-06-30", "2024-07-01", "2024-07-02"}
	if len(buckets) != len(want) {
		t.Fatalf("expected %d buckets, got %d: %v", len(want), len(buckets), keys(buckets))
	}
	for _, key := range want {
		if len(buckets[key]) != 1 {
			t.Errorf("gap at %s", key)
		}
	}
}

func TestBucketInvertedRange(t *testing.T) {
	// end < start after adjustment: show the event on its start day only.
	ev := model.Event{
		ID:    "bad",
		Start: dt(2024, time.June, 10, 9, 0),
		End:   dt(2024, time.June, 8, 9, 0),
	}

	buckets := BucketByDay([]model.Event{ev})

	if len(buckets) != 1 || len(buckets["2024-06-10"]) != 1 {
		t.Fatalf("inverted range should bucket start day only, got %v", keys(buckets))
	}
	if span := Classify(buckets, "bad", "2024-06-10"); span.MultiDay {
		t.Errorf("degraded event should classify as single-day")
	}
}

func TestBucketZeroLengthAllDay(t *testing.T) {
	// All-day event where end == start before adjustment; after pulling
	// the exclusive end back it is inverted and degrades to the start day.
	ev := model.Event{
		ID:     "z1",
		Start:  date(2024, time.June, 10),
		End:    date(2024, time.June, 10),
		AllDay: true,
	}

	buckets := BucketByDay([]model.Event{ev})
	if len(buckets) != 1 || len(buckets["2024-06-10"]) != 1 {
		t.Fatalf("expected start-day-only bucket, got %v", keys(buckets))
	}
}

func TestBucketIdempotent(t *testing.T) {
	events := []model.Event{
		{ID: "a", Start: date(2024, time.June, 10), End: date(2024, time.June, 13), AllDay: true},
		{ID: "b", Start: dt(2024, time.June, 11, 9, 0), End: dt(2024, time.June, 11, 10, 0)},
		{ID: "c", Start: dt(2024, time.June, 9, 20, 0), End: dt(2024, time.June, 12, 8, 0)},
	}

	first := BucketByDay(events)
	second := BucketByDay(events)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("bucketing is not idempotent:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func keys(buckets map[string][]model.Event) []string {
	out := make([]string, 0, len(buckets))
	for k := range buckets {
		out = append(out, k)
	}
	return out
}
