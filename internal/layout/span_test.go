package layout

import (
	"testing"
	"time"

	"famcal/internal/model"
)

func TestClassifyMultiDaySpan(t *testing.T) {
	ev := model.Event{
		ID:     "m1",
		Start:  date(2024, time.June, 10),
		End:    date(2024, time.June, 13),
		AllDay: true,
	}
	buckets := BucketByDay([]model.Event{ev})

	cases := []struct {
		dateKey string
		want    Span
	}{
		{"2024-06-10", Span{MultiDay: true, Start: true}},
		{"2024-06-11", Span{MultiDay: true}},
		{"2024-06-12", Span{MultiDay: true, End: true}},
	}
	for _, c := range cases {
		got := Classify(buckets, "m1", c.dateKey)
		if got != c.want {
			t.Errorf("Classify(%s) = %+v, want %+v", c.dateKey, got, c.want)
		}
	}
}

func TestClassifySingleDay(t *testing.T) {
	ev := model.Event{
		ID:    "s1",
		Start: dt(2024, time.June, 10, 9, 0),
		End:   dt(2024, time.June, 10, 10, 0),
	}
	buckets := BucketByDay([]model.Event{ev})

	if got := Classify(buckets, "s1", "2024-06-10"); got != (Span{}) {
		t.Errorf("single-day event: got %+v, want zero Span", got)
	}
}

func TestClassifyIsWindowIndependent(t *testing.T) {
	// Event spans 06-08..06-12. Even if the visible grid begins 06-09,
	// the classifier must not mark 06-09 as the span start; it reports
	// the true span regardless of the window.
	ev := model.Event{
		ID:     "off",
		Start:  date(2024, time.June, 8),
		End:    date(2024, time.June, 13),
		AllDay: true,
	}
	buckets := BucketByDay([]model.Event{ev})

	got := Classify(buckets, "off", "2024-06-09")
	if !got.MultiDay || got.Start || got.End {
		t.Errorf("mid-span day classified %+v, want MultiDay only", got)
	}
	if got := Classify(buckets, "off", "2024-06-08"); !got.Start {
		t.Errorf("true start day not marked Start: %+v", got)
	}
}

func TestClassifyUnknownEvent(t *testing.T) {
	buckets := map[string][]model.Event{}
	if got := Classify(buckets, "missing", "2024-06-10"); got != (Span{}) {
		t.Errorf("unknown event: got %+v, want zero Span", got)
	}
}
