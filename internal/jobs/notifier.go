package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/queue"
)

const notifyTimeout = 5 * time.Second

// Enqueuer publishes a task for the worker and returns its job id.
type Enqueuer interface {
	Enqueue(ctx context.Context, task string, args any) (string, error)
}

// Notifier turns new bookings into confirmation mail jobs.  Publishing
// happens in the background so a slow broker never delays the response.
type Notifier struct {
	q   Enqueuer
	log logrus.FieldLogger
}

func NewNotifier(q Enqueuer, log logrus.FieldLogger) *Notifier {
	return &Notifier{q: q, log: log.WithField("component", "notifier")}
}

func (n *Notifier) BookingCreated(ctx context.Context, b model.Booking) error {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		id, err := n.q.Enqueue(ctx, queue.TaskBookingConfirmation, queue.BookingArgs{BookingID: b.ID})
		entry := n.log.WithField("booking_id", b.ID)
		if err != nil {
			entry.WithError(err).Warn("confirmation not queued")
			return
		}
		entry.WithField("job_id", id).Debug("confirmation queued")
	}()
	return nil
}
