package store

import (
	"testing"

	"github.com/latticehabits/lattice/backend/internal/calendar"
)

func mustMonth(t *testing.T, value string) calendar.Month {
	t.Helper()
	month, err := calendar.ParseMonth(value)
	if err != nil {
		t.Fatalf("unexpected month parse error: %v", err)
	}
	return month
}
