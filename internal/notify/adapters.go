package notify

import (
	"context"

	"github.com/ridehail/dispatch/internal/dispatch"
)

// DispatchNotifier adapts Bus to dispatch.Notifier's offer-created shape.
type DispatchNotifier struct{ Bus *Bus }

// PublishOfferCreated satisfies dispatch.Notifier.
func (n DispatchNotifier) PublishOfferCreated(ctx context.Context, e dispatch.OfferCreated) {
	n.Bus.PublishOfferCreated(ctx, OfferCreated{
		TripID: e.TripID, AttemptID: e.AttemptID, DriverID: e.DriverID, Wave: e.Wave, ExpiresAt: e.ExpiresAt,
	})
}

// TripNotifier adapts Bus to trip.Notifier's cancellation shape.
type TripNotifier struct{ Bus *Bus }

// PublishTripCancelled satisfies trip.Notifier.
func (n TripNotifier) PublishTripCancelled(ctx context.Context, tripID int64, reason string) {
	n.Bus.PublishTripCancelled(ctx, TripCancelled{TripID: tripID, Reason: reason})
}
