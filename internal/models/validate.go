package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/carpool-match/internal/days"
)

// ErrInvalidCommuter marks every profile validation failure.
var ErrInvalidCommuter = errors.New("invalid commuter")

// Validate checks the invariants the profile form guarantees and the
// scoring engine relies on without re-checking.
func (c *Commuter) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidCommuter}, args...)...))
	}

	if strings.TrimSpace(c.ID) == "" {
		fail("id is required")
	}
	if strings.TrimSpace(c.CompanyName) == "" {
		fail("company name is required")
	}
	if strings.TrimSpace(c.CompanyAddress) == "" {
		fail("company address is required")
	}
	if strings.TrimSpace(c.StartLocation) == "" {
		fail("start location is required")
	}
	if !c.Role.Valid() {
		fail("unknown role %q", c.Role)
	}
	if !c.Status.Valid() {
		fail("unknown status %q", c.Status)
	}
	if c.SeatAvail < 0 {
		fail("seat availability must be >= 0")
	}
	if c.Role == RoleRider && c.SeatAvail != 0 {
		fail("riders cannot offer seats")
	}
	if _, err := days.Decode(c.DaysWorking); err != nil {
		errs = append(errs, fmt.Errorf("%w: days_working: %w", ErrInvalidCommuter, err))
	}
	if (c.StartTime == nil) != (c.EndTime == nil) {
		fail("start and end time must both be set or both be empty")
	}
	return errors.Join(errs...)
}
