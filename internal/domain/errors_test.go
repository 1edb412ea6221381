package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ridehail/dispatch/internal/domain"
)

func TestErrorIsMatchesOnKindOnly(t *testing.T) {
	a := domain.NotFound("trip", int64(1))
	b := domain.NotFound("driver", int64(2))

	if !errors.Is(a, b) {
		t.Fatal("expected two NOT_FOUND errors to match regardless of entity/details")
	}
	if errors.Is(a, domain.OutOfService) {
		t.Fatal("expected NOT_FOUND to not match OUT_OF_SERVICE")
	}
}

func TestErrorUnwrapReturnsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	wrapped := domain.Internal(cause)

	if !errors.Is(wrapped, cause) {
		t.Fatal("expected errors.Is to see through Internal to its cause")
	}
}

func TestErrorAsRecoversStructuredFields(t *testing.T) {
	err := domain.AlreadyAssigned(42)

	var de *domain.Error
	if !errors.As(err, &de) {
		t.Fatal("expected errors.As to recover *domain.Error")
	}
	if de.Kind != domain.KindAlreadyAssigned {
		t.Fatalf("expected KindAlreadyAssigned, got %s", de.Kind)
	}
	if de.Details["trip_id"] != int64(42) {
		t.Fatalf("expected trip_id detail to round-trip, got %v", de.Details["trip_id"])
	}
}

func TestPreconditionSetsKindField(t *testing.T) {
	err := domain.Precondition(domain.PreconditionNoActiveShift, nil)
	if err.Kind != domain.KindPrecondition {
		t.Fatalf("expected KindPrecondition, got %s", err.Kind)
	}
	if err.Details["precondition"] != domain.PreconditionNoActiveShift {
		t.Fatalf("expected precondition detail to be set, got %v", err.Details["precondition"])
	}
}

func TestErrorMessageIncludesEntityWhenPresent(t *testing.T) {
	withEntity := domain.NotFound("trip", int64(7))
	if withEntity.Error() != "NOT_FOUND: trip" {
		t.Fatalf("unexpected message: %s", withEntity.Error())
	}

	without := domain.Unauthorized
	if without.Error() != "UNAUTHORIZED" {
		t.Fatalf("unexpected message: %s", without.Error())
	}
}
