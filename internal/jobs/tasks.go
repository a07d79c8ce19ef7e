// Package jobs implements the background tasks run by the worker: booking
// confirmations, CSV exports and the periodic reminder and report mails.
package jobs

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/parking-reservation/internal/booking"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/queue"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

const inactivityWindow = 7 * 24 * time.Hour

// Deps are the collaborators the tasks read from and write through.
type Deps struct {
	Bookings  *repository.BookingRepo
	Users     *repository.UserRepo
	Analytics *repository.AnalyticsRepo
	Mailer    Mailer
	ExportDir string
	Clock     booking.Clock
	Log       logrus.FieldLogger
}

// Runner executes tasks.  Every task may run more than once for the
// same envelope; repeats re-send mail or write a second export file.
type Runner struct {
	d   Deps
	log logrus.FieldLogger
}

func NewRunner(d Deps) *Runner {
	if d.Clock == nil {
		d.Clock = booking.RealClock{}
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	return &Runner{d: d, log: d.Log.WithField("component", "jobs")}
}

// Register binds every task to c.
func (r *Runner) Register(c *queue.Consumer) {
	c.Register(queue.TaskBookingConfirmation, r.BookingConfirmation)
	c.Register(queue.TaskExportUserBookings, r.ExportUserBookings)
	c.Register(queue.TaskDailyReminder, r.DailyReminder)
	c.Register(queue.TaskMonthlyReport, r.MonthlyReport)
	c.Register(queue.TaskDailyAdminReport, r.DailyAdminReport)
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("missing task arguments")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode task arguments: %w", err)
	}
	return nil
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func stamp(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 UTC") }

// BookingConfirmation mails the owner of a booking its details.  A
// booking that no longer exists is skipped.
func (r *Runner) BookingConfirmation(ctx context.Context, raw json.RawMessage) error {
	var args queue.BookingArgs
	if err := decode(raw, &args); err != nil {
		return err
	}
	d, err := r.d.Bookings.GetDetail(ctx, args.BookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		r.log.WithField("booking_id", args.BookingID).Warn("confirmation for missing booking skipped")
		return nil
	}
	if err != nil {
		return err
	}
	u, err := r.d.Users.GetByID(ctx, d.UserID)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", u.DisplayName())
	fmt.Fprintf(&b, "Your %s booking #%d is confirmed.\n\n", d.Type, d.ID)
	fmt.Fprintf(&b, "Lot:   %s\n", d.LotName)
	fmt.Fprintf(&b, "Spot:  %d\n", d.SpotNumber)
	w := booking.EffectiveWindow(d.Booking)
	fmt.Fprintf(&b, "From:  %s\n", stamp(w.Start))
	if !w.OpenEnded() {
		fmt.Fprintf(&b, "Until: %s\n", stamp(w.End))
		fmt.Fprintf(&b, "Estimated cost: %s\n", money(booking.ComputeCost(w.Start, w.End, d.PricePerHour)))
	}
	fmt.Fprintf(&b, "Rate:  %s per hour, one hour minimum\n", money(d.PricePerHour))
	return r.d.Mailer.Send(ctx, u.Email, fmt.Sprintf("Booking #%d confirmed", d.ID), b.String())
}

// ExportUserBookings writes the user's bookings to a CSV file under the
// export directory and mails them its location.
func (r *Runner) ExportUserBookings(ctx context.Context, raw json.RawMessage) error {
	var args queue.UserArgs
	if err := decode(raw, &args); err != nil {
		return err
	}
	u, err := r.d.Users.GetByID(ctx, args.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		r.log.WithField("user_id", args.UserID).Warn("export for missing user skipped")
		return nil
	}
	if err != nil {
		return err
	}
	list, err := r.d.Bookings.List(ctx, repository.BookingFilter{UserID: u.ID})
	if err != nil {
		return err
	}
	path, err := r.writeExport(u.ID, list)
	if err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{"user_id": u.ID, "path": path, "rows": len(list)}).Info("export written")

	body := fmt.Sprintf("Hello %s,\n\nYour export of %d bookings is ready:\n%s\n", u.DisplayName(), len(list), path)
	return r.d.Mailer.Send(ctx, u.Email, "Your booking export is ready", body)
}

func (r *Runner) writeExport(userID uint64, list []model.BookingDetail) (string, error) {
	if err := os.MkdirAll(r.d.ExportDir, 0o755); err != nil {
		return "", fmt.Errorf("export dir: %w", err)
	}
	name := fmt.Sprintf("bookings_%d_%s.csv", userID, r.d.Clock.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(r.d.ExportDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"id", "lot", "spot", "type", "start", "end", "hours", "cost", "status"})
	for _, d := range list {
		end, hours := "", ""
		if d.EndTime.Valid {
			end = d.EndTime.Time.UTC().Format(time.RFC3339)
			h := decimal.NewFromFloat(d.EndTime.Time.Sub(d.StartTime).Hours())
			hours = h.StringFixed(2)
		}
		_ = w.Write([]string{
			strconv.FormatUint(d.ID, 10),
			d.LotName,
			strconv.Itoa(d.SpotNumber),
			string(d.Type),
			d.StartTime.UTC().Format(time.RFC3339),
			end,
			hours,
			money(d.TotalCost),
			string(d.Status),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, f.Close()
}

// DailyReminder nudges users who have not started a booking in the last
// week.
func (r *Runner) DailyReminder(ctx context.Context, _ json.RawMessage) error {
	since := r.d.Clock.Now().Add(-inactivityWindow)
	users, err := r.d.Analytics.InactiveUsers(ctx, since)
	if err != nil {
		return err
	}
	return r.each(ctx, "daily reminder", users, func(u model.User) (string, string, error) {
		body := fmt.Sprintf("Hello %s,\n\nYou have not parked with us since %s. "+
			"Spots are available now; book one ahead to skip the queue.\n", u.DisplayName(), since.Format("2006-01-02"))
		return "We miss you", body, nil
	})
}

// MonthlyReport mails every user active last calendar month a summary of
// their month, then mails each administrator the system summary.
func (r *Runner) MonthlyReport(ctx context.Context, _ json.RawMessage) error {
	now := r.d.Clock.Now().UTC()
	to := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, -1, 0)
	month := from.Format("January 2006")

	users, err := r.d.Analytics.UsersActiveIn(ctx, from, to)
	if err != nil {
		return err
	}
	userErr := r.each(ctx, "monthly report", users, func(u model.User) (string, string, error) {
		p, err := r.d.Analytics.UserPeriod(ctx, u.ID, from, to)
		if err != nil {
			return "", "", err
		}
		return "Your parking in " + month, fmt.Sprintf("Hello %s,\n\n%s", u.DisplayName(), periodText(p)), nil
	})

	sys, err := r.d.Analytics.Period(ctx, from, to)
	if err != nil {
		return errors.Join(userErr, err)
	}
	adminErr := r.mailAdmins(ctx, "monthly admin report", "System report for "+month, periodText(sys))
	return errors.Join(userErr, adminErr)
}

// DailyAdminReport mails administrators yesterday's activity and the
// current occupancy.
func (r *Runner) DailyAdminReport(ctx context.Context, _ json.RawMessage) error {
	now := r.d.Clock.Now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -1)

	p, err := r.d.Analytics.Period(ctx, from, to)
	if err != nil {
		return err
	}
	ov, err := r.d.Analytics.Overview(ctx)
	if err != nil {
		return err
	}
	body := periodText(p) + fmt.Sprintf("Occupancy now: %d of %d spots (%.1f%%)\n",
		ov.OccupiedSpots, ov.TotalSpots, ov.OccupancyRate*100)
	return r.mailAdmins(ctx, "daily admin report", "Daily report for "+from.Format("2006-01-02"), body)
}

func periodText(p *repository.PeriodSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Period: %s to %s\n", p.From.Format("2006-01-02"), p.To.Format("2006-01-02"))
	fmt.Fprintf(&b, "Bookings: %d (immediate %d, reserved %d)\n", p.Bookings,
		p.ByType[string(model.BookingImmediate)], p.ByType[string(model.BookingReserved)])
	fmt.Fprintf(&b, "Revenue: %s\n", money(p.Revenue))
	if p.MostPopularLot != "" {
		fmt.Fprintf(&b, "Most used lot: %s\n", p.MostPopularLot)
	}
	return b.String()
}

func (r *Runner) mailAdmins(ctx context.Context, kind, subject, body string) error {
	admins, err := r.d.Users.ListActiveByRole(ctx, model.RoleAdmin)
	if err != nil {
		return err
	}
	return r.each(ctx, kind, admins, func(model.User) (string, string, error) {
		return subject, body, nil
	})
}

// each mails every user the message built by compose.  Individual
// failures are logged; an error is returned only when nothing could be
// sent, so a retry does not repeat mail that already went out.
func (r *Runner) each(ctx context.Context, kind string, users []model.User, compose func(model.User) (string, string, error)) error {
	sent, failed := 0, 0
	var last error
	for _, u := range users {
		subject, body, err := compose(u)
		if err == nil {
			err = r.d.Mailer.Send(ctx, u.Email, subject, body)
		}
		if err != nil {
			failed++
			last = err
			r.log.WithError(err).WithFields(logrus.Fields{"kind": kind, "user_id": u.ID}).Warn("mail failed")
			continue
		}
		sent++
	}
	r.log.WithFields(logrus.Fields{"kind": kind, "sent": sent, "failed": failed}).Info("mail batch done")
	if sent == 0 && failed > 0 {
		return fmt.Errorf("%s: all %d mails failed: %w", kind, failed, last)
	}
	return nil
}
