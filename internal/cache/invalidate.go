package cache

import (
	"context"
	"errors"
)

// Invalidator matches the booking core's invalidation port.
type Invalidator interface {
	Invalidate(ctx context.Context, lotID uint64) error
}

// LotInvalidator drops the cached views of one lot plus the cross-lot
// listings, whose availability counts include it.
type LotInvalidator struct {
	store *Store
}

func NewLotInvalidator(store *Store) *LotInvalidator { return &LotInvalidator{store: store} }

func (l *LotInvalidator) Invalidate(ctx context.Context, lotID uint64) error {
	if !l.store.Enabled() {
		return nil
	}
	_, errLot := l.store.DeleteMatch(ctx, l.store.lotPattern(lotID))
	_, errList := l.store.DeleteMatch(ctx, l.store.listPattern())
	return errors.Join(errLot, errList)
}

// Fanout invalidates through every member and joins their errors.  A
// failing member does not stop the rest.
type Fanout []Invalidator

func (f Fanout) Invalidate(ctx context.Context, lotID uint64) error {
	var errs []error
	for _, inv := range f {
		if inv == nil {
			continue
		}
		if err := inv.Invalidate(ctx, lotID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
