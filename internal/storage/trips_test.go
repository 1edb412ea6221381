package storage

import (
	"testing"

	"github.com/ridehail/dispatch/internal/domain"
)

func TestActiveStatusStringsMatchesActiveTripStatuses(t *testing.T) {
	got := activeStatusStrings()
	if len(got) != len(domain.ActiveTripStatuses) {
		t.Fatalf("expected %d statuses, got %d", len(domain.ActiveTripStatuses), len(got))
	}
	for i, st := range domain.ActiveTripStatuses {
		if got[i] != string(st) {
			t.Fatalf("index %d: expected %s, got %s", i, st, got[i])
		}
	}
}
