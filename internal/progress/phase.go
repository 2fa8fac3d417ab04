package progress

import (
	"errors"
	"time"
)

// Phase is a named milestone of a fast, keyed by elapsed hours.
type Phase struct {
	ThresholdHours float64 `json:"threshold_hours"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
}

func (p Phase) threshold() time.Duration {
	return time.Duration(p.ThresholdHours * float64(time.Hour))
}

// Table is an ordered phase list, strictly increasing by ThresholdHours and
// starting at zero.
type Table []Phase

var errBadTable = errors.New("phase table must start at 0h and strictly increase")

// Validate checks the ordering rules of a custom table.
func (t Table) Validate() error {
	if len(t) == 0 || t[0].ThresholdHours != 0 {
		return errBadTable
	}
	for i := 1; i < len(t); i++ {
		if t[i].ThresholdHours <= t[i-1].ThresholdHours {
			return errBadTable
		}
	}
	return nil
}

// Lookup returns the phase whose threshold is exactly hours.
func (t Table) Lookup(hours float64) (Phase, bool) {
	for _, p := range t {
		if p.ThresholdHours == hours {
			return p, true
		}
	}
	return Phase{}, false
}

var defaultPhases = Table{
	{0, "Fast begins", "Your body is still running on the energy from your last meal."},
	{6, "Glycogen use", "Blood sugar settles and the liver starts drawing down its glycogen stores."},
	{12, "Ketosis start", "Glycogen is running low and fat is broken down into ketones for fuel."},
	{18, "Deep ketosis", "Ketone levels climb and fat becomes the main energy source."},
	{24, "Autophagy", "Cells ramp up recycling of damaged components."},
	{48, "Deep autophagy", "Growth hormone rises and autophagy continues at a high rate."},
	{72, "Immune reset", "Old immune cells are cleared and regeneration is signalled."},
}

// DefaultPhases returns a copy of the built-in phase table.
func DefaultPhases() Table {
	return append(Table(nil), defaultPhases...)
}
