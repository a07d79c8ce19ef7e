package booking

import (
	"context"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// Invalidator drops cached views of a lot after its spots or bookings
// change.
type Invalidator interface {
	Invalidate(ctx context.Context, lotID uint64) error
}

// NotificationPort is told about new bookings.  Implementations should
// not block; the core only logs their errors.
type NotificationPort interface {
	BookingCreated(ctx context.Context, b model.Booking) error
}

// NopInvalidator discards invalidations.
type NopInvalidator struct{}

func (NopInvalidator) Invalidate(context.Context, uint64) error { return nil }

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) BookingCreated(context.Context, model.Booking) error { return nil }
