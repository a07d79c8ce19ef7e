package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"

	"github.com/iliyamo/parking-reservation/internal/model"
)

func at(h, m int) time.Time { return time.Date(2026, 3, 1, h, m, 0, 0, time.UTC) }

func reserved(id, spot uint64, from, to time.Time) model.Booking {
	return model.Booking{
		ID: id, SpotID: spot, Type: model.BookingReserved, Status: model.StatusReserved,
		StartTime: from, ReservedStart: null.TimeFrom(from), ReservedEnd: null.TimeFrom(to),
	}
}

func active(id, spot uint64, from time.Time) model.Booking {
	return model.Booking{ID: id, SpotID: spot, Type: model.BookingImmediate, Status: model.StatusActive, StartTime: from}
}

func TestWindowOverlaps(t *testing.T) {
	w := Window{Start: at(10, 0), End: at(12, 0)}
	assert.True(t, w.Overlaps(Window{Start: at(11, 0), End: at(13, 0)}))
	assert.True(t, w.Overlaps(Window{Start: at(9, 0), End: at(10, 1)}))
	assert.True(t, w.Overlaps(Window{Start: at(10, 30), End: at(11, 0)}))
	assert.False(t, w.Overlaps(Window{Start: at(12, 0), End: at(13, 0)}), "adjacent after")
	assert.False(t, w.Overlaps(Window{Start: at(8, 0), End: at(10, 0)}), "adjacent before")

	open := Window{Start: at(11, 0)}
	assert.True(t, open.Overlaps(Window{Start: at(20, 0), End: at(21, 0)}))
	assert.True(t, w.Overlaps(open))
	assert.False(t, open.Overlaps(Window{Start: at(9, 0), End: at(11, 0)}))
}

func TestHasConflict(t *testing.T) {
	live := []model.Booking{
		reserved(1, 7, at(10, 0), at(12, 0)),
		active(2, 8, at(9, 0)),
	}

	ok, c := HasConflict(live, 7, Window{Start: at(11, 0), End: at(13, 0)}, 0)
	require.True(t, ok)
	assert.Equal(t, uint64(1), c.BookingID)
	assert.True(t, c.Window.Start.Equal(at(10, 0)))
	assert.True(t, c.Window.End.Equal(at(12, 0)))
	assert.ErrorIs(t, c, ErrTimeConflict)

	ok, _ = HasConflict(live, 7, Window{Start: at(12, 0), End: at(13, 0)}, 0)
	assert.False(t, ok, "adjacent window")

	ok, _ = HasConflict(live, 7, Window{Start: at(11, 0), End: at(13, 0)}, 1)
	assert.False(t, ok, "excluded booking")

	ok, c = HasConflict(live, 8, Window{Start: at(15, 0), End: at(16, 0)}, 0)
	require.True(t, ok, "active booking is open ended")
	assert.True(t, c.Window.OpenEnded())

	ok, _ = HasConflict(live, 9, Window{Start: at(11, 0), End: at(13, 0)}, 0)
	assert.False(t, ok, "other spot")
}

func TestHasConflictIgnoresCompleted(t *testing.T) {
	b := reserved(1, 7, at(10, 0), at(12, 0))
	b.Status = model.StatusCompleted
	ok, _ := HasConflict([]model.Booking{b}, 7, Window{Start: at(10, 0), End: at(11, 0)}, 0)
	assert.False(t, ok)
}

func TestHasConflictScansEveryCandidate(t *testing.T) {
	live := []model.Booking{
		reserved(1, 7, at(6, 0), at(7, 0)),
		reserved(2, 7, at(8, 0), at(9, 0)),
		reserved(3, 7, at(14, 0), at(15, 0)),
	}
	ok, c := HasConflict(live, 7, Window{Start: at(14, 30), End: at(16, 0)}, 0)
	require.True(t, ok)
	assert.Equal(t, uint64(3), c.BookingID)
}

func TestEffectiveWindow(t *testing.T) {
	r := reserved(1, 1, at(10, 0), at(12, 0))
	r.StartTime = at(9, 0)
	w := EffectiveWindow(r)
	assert.True(t, w.Start.Equal(at(10, 0)))

	a := active(2, 1, at(9, 0))
	a.EndTime = null.TimeFrom(at(9, 30))
	w = EffectiveWindow(a)
	assert.True(t, w.End.Equal(at(9, 30)))
	assert.Equal(t, 30*time.Minute, w.Duration())
}
