// Package queue defines the task envelope exchanged over the message
// broker and the worker-side consumer that dispatches it.
package queue

import (
	"encoding/json"
	"time"
)

// DefaultQueue is the durable queue both sides use unless configured
// otherwise.
const DefaultQueue = "parking.tasks"

// Task names understood by the worker.
const (
	TaskBookingConfirmation = "send_booking_confirmation"
	TaskExportUserBookings  = "export_user_bookings"
	TaskDailyReminder       = "send_daily_reminder"
	TaskMonthlyReport       = "send_monthly_report"
	TaskDailyAdminReport    = "send_daily_admin_report"
)

// Task is the JSON envelope published for every job.  Args is decoded by
// the handler registered for Name.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"task"`
	Args       json.RawMessage `json:"args"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// BookingArgs identifies the booking a confirmation is about.
type BookingArgs struct {
	BookingID uint64 `json:"booking_id"`
}

// UserArgs identifies the user an export is for.
type UserArgs struct {
	UserID uint64 `json:"user_id"`
}
