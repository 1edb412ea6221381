package notify_test

import (
	"testing"

	"github.com/ridehail/dispatch/internal/notify"
)

func TestNewReturnsAUsableBus(t *testing.T) {
	bus := notify.New([]string{"localhost:9092"})
	if bus == nil {
		t.Fatal("expected a non-nil Bus")
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("unexpected error closing an unused writer: %v", err)
	}
}
