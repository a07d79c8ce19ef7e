package booking

import "time"

// Clock supplies the current time to the core.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC at second precision, matching
// the DATETIME columns the ledger stores.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// FixedClock always returns T.  Tests advance it by assigning T.
type FixedClock struct{ T time.Time }

func (c *FixedClock) Now() time.Time { return c.T }
