package booking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/model"
)

func lotSpots(lotID uint64, statuses ...model.SpotStatus) []model.ParkingSpot {
	spots := make([]model.ParkingSpot, len(statuses))
	// ids deliberately run backwards so order must come from spot_number
	for i, st := range statuses {
		spots[i] = model.ParkingSpot{ID: uint64(100 - i), LotID: lotID, SpotNumber: i + 1, Status: st}
	}
	return spots
}

func TestAllocateImmediate(t *testing.T) {
	now := at(8, 0)
	spots := lotSpots(1, model.SpotOccupied, model.SpotAvailable, model.SpotAvailable)

	s, err := Allocate(1, spots, nil, Immediate{}, 0, now)
	require.NoError(t, err)
	assert.Equal(t, 2, s.SpotNumber)

	s, err = Allocate(1, spots, nil, Immediate{}, 98, now)
	require.NoError(t, err)
	assert.Equal(t, 3, s.SpotNumber)

	_, err = Allocate(1, spots, nil, Immediate{}, 100, now)
	assert.ErrorIs(t, err, ErrSpotUnavailable)

	_, err = Allocate(1, spots, nil, Immediate{}, 5, now)
	assert.ErrorIs(t, err, ErrSpotUnavailable, "spot outside the lot")

	full := lotSpots(1, model.SpotOccupied, model.SpotOccupied)
	_, err = Allocate(1, full, nil, Immediate{}, 0, now)
	assert.ErrorIs(t, err, ErrNoSpotsAvailable)
}

func TestAllocateReserved(t *testing.T) {
	now := at(8, 0)
	spots := lotSpots(1, model.SpotOccupied, model.SpotAvailable)
	first, second := spots[0].ID, spots[1].ID
	live := []model.Booking{reserved(1, first, at(10, 0), at(12, 0))}

	// occupancy does not matter for reservations
	s, err := Allocate(1, spots, nil, Reserved{Window{at(10, 0), at(11, 0)}}, 0, now)
	require.NoError(t, err)
	assert.Equal(t, first, s.ID)

	s, err = Allocate(1, spots, live, Reserved{Window{at(11, 0), at(13, 0)}}, 0, now)
	require.NoError(t, err)
	assert.Equal(t, second, s.ID)

	_, err = Allocate(1, spots, live, Reserved{Window{at(11, 0), at(13, 0)}}, first, now)
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Window.Start.Equal(at(10, 0)))
	assert.True(t, ce.Window.End.Equal(at(12, 0)))

	s, err = Allocate(1, spots, live, Reserved{Window{at(12, 0), at(13, 0)}}, first, now)
	require.NoError(t, err)
	assert.Equal(t, first, s.ID)

	live = append(live, reserved(2, second, at(9, 0), at(18, 0)))
	_, err = Allocate(1, spots, live, Reserved{Window{at(11, 0), at(13, 0)}}, 0, now)
	assert.ErrorIs(t, err, ErrNoSpotsAvailable)
}

func TestAllocateReservedValidation(t *testing.T) {
	now := at(10, 0)
	spots := lotSpots(1, model.SpotAvailable)
	for name, w := range map[string]Window{
		"missing end":    {Start: at(11, 0)},
		"end before":     {Start: at(12, 0), End: at(11, 0)},
		"empty window":   {Start: at(12, 0), End: at(12, 0)},
		"starts in past": {Start: at(9, 0), End: at(11, 0)},
	} {
		_, err := Allocate(1, spots, nil, Reserved{w}, 0, now)
		assert.ErrorIs(t, err, ErrValidation, name)
	}

	_, err := Allocate(1, spots, nil, Reserved{Window{at(10, 0), at(11, 0)}}, 0, now)
	assert.NoError(t, err, "starting now is allowed")

	_, err = Allocate(1, spots, nil, nil, 0, now)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAllocateIsDeterministic(t *testing.T) {
	now := at(8, 0)
	spots := lotSpots(1, model.SpotAvailable, model.SpotAvailable, model.SpotAvailable)
	live := []model.Booking{reserved(1, spots[0].ID, at(10, 0), at(11, 0))}
	req := Reserved{Window{at(10, 0), at(11, 0)}}
	for i := 0; i < 5; i++ {
		s, err := Allocate(1, spots, live, req, 0, now)
		require.NoError(t, err)
		assert.Equal(t, 2, s.SpotNumber)
	}
}
