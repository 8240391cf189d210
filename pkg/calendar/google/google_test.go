package google

import (
	"testing"
	"time"
)

func TestOverlapsAny(t *testing.T) {
	ranges := []timeRange{
		{start: mustParse(t, "2026-01-05T09:00:00Z"), end: mustParse(t, "2026-01-05T10:00:00Z")},
	}

	cases := []struct {
		name        string
		start, end  string
		wantOverlap bool
	}{
		{"fully before", "2026-01-05T08:00:00Z", "2026-01-05T08:30:00Z", false},
		{"fully after", "2026-01-05T10:00:00Z", "2026-01-05T10:30:00Z", false},
		{"overlaps start", "2026-01-05T08:30:00Z", "2026-01-05T09:30:00Z", true},
		{"fully contained", "2026-01-05T09:15:00Z", "2026-01-05T09:45:00Z", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := overlapsAny(mustParse(t, tc.start), mustParse(t, tc.end), ranges)
			if got != tc.wantOverlap {
				t.Errorf("overlapsAny(%s, %s) = %v, want %v", tc.start, tc.end, got, tc.wantOverlap)
			}
		})
	}
}

func TestDayStart(t *testing.T) {
	tz := time.UTC
	ts := mustParse(t, "2026-03-15T14:37:22Z")
	got := dayStart(ts, tz)
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, tz)
	if !got.Equal(want) {
		t.Errorf("dayStart = %v, want %v", got, want)
	}
}

func TestMaxTime(t *testing.T) {
	a := mustParse(t, "2026-01-01T00:00:00Z")
	b := mustParse(t, "2026-02-01T00:00:00Z")
	if got := maxTime(a, b); !got.Equal(b) {
		t.Errorf("maxTime(a, b) = %v, want b", got)
	}
	if got := maxTime(b, a); !got.Equal(b) {
		t.Errorf("maxTime(b, a) = %v, want b", got)
	}
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}
