package calendar

import (
	"testing"
	"time"
)

func TestParseDayRoundTrips(t *testing.T) {
	day, err := ParseDay("2025-03-09")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if day.String() != "2025-03-09" {
		t.Fatalf("expected canonical form to round-trip, got %q", day.String())
	}
}

func TestParseDayRejectsMalformedInput(t *testing.T) {
	malformed := []string{"", "2025-3-9", "2025/03/09", "2025-13-01", "2025-02-30", "today"}
	for _, value := range malformed {
		if _, err := ParseDay(value); err == nil {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}

func TestPreviousCrossesMonthAndYearBoundaries(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2025-03-01", "2025-02-28"},
		{"2024-03-01", "2024-02-29"},
		{"2025-01-01", "2024-12-31"},
		{"2025-07-15", "2025-07-14"},
	}
	for _, testCase := range cases {
		day := mustDay(t, testCase.in)
		if got := day.Previous().String(); got != testCase.want {
			t.Fatalf("previous of %s: expected %s, got %s", testCase.in, testCase.want, got)
		}
	}
}

func TestMonthDaysAreContiguousAndCalendarCorrect(t *testing.T) {
	cases := []struct {
		month string
		count int
	}{
		{"2025-02", 28},
		{"2024-02", 29},
		{"2000-02", 29},
		{"1900-02", 28},
		{"2025-04", 30},
		{"2025-12", 31},
	}
	for _, testCase := range cases {
		month, err := ParseMonth(testCase.month)
		if err != nil {
			t.Fatalf("unexpected month parse error: %v", err)
		}
		days := month.Days()
		if len(days) != testCase.count {
			t.Fatalf("%s: expected %d days, got %d", testCase.month, testCase.count, len(days))
		}
		if days[0].String() != testCase.month+"-01" {
			t.Fatalf("%s: expected first day on the 1st, got %s", testCase.month, days[0])
		}
		for i := 1; i < len(days); i++ {
			if !days[i].Equal(days[i-1].Next()) {
				t.Fatalf("%s: days not contiguous at index %d", testCase.month, i)
			}
		}
	}
}

func TestMonthBounds(t *testing.T) {
	month := NewMonth(2024, time.February)
	first, last := month.Bounds()
	if first.String() != "2024-02-01" {
		t.Fatalf("unexpected first day %s", first)
	}
	if last.String() != "2024-02-29" {
		t.Fatalf("unexpected last day %s", last)
	}
}

func TestDaysBetween(t *testing.T) {
	start := mustDay(t, "2024-12-30")
	end := mustDay(t, "2025-01-02")
	if got := DaysBetween(start, end); got != 3 {
		t.Fatalf("expected 3 days between, got %d", got)
	}
	if got := DaysBetween(end, start); got != -3 {
		t.Fatalf("expected -3 days between, got %d", got)
	}
}

func TestIsTodayUsesInjectedClock(t *testing.T) {
	clock := FixedClock{Day: mustDay(t, "2025-06-10")}
	if !IsToday(mustDay(t, "2025-06-10"), clock) {
		t.Fatalf("expected clock day to be today")
	}
	if IsToday(mustDay(t, "2025-06-09"), clock) {
		t.Fatalf("expected previous day to not be today")
	}
}

func mustDay(t *testing.T, value string) Day {
	t.Helper()
	day, err := ParseDay(value)
	if err != nil {
		t.Fatalf("unexpected day parse error: %v", err)
	}
	return day
}
