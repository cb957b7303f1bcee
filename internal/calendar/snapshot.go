package calendar

import (
	"fmt"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
)

// kind tags which concrete calendar a Snapshot describes, mirroring the
// trigger package's persistence-discriminator approach for its own closed
// variant set.
type kind string

const (
	kindExcludedDates    kind = "EXCLUDED_DATES"
	kindExcludedWeekdays kind = "EXCLUDED_WEEKDAYS"
	kindDailyWindow      kind = "DAILY_WINDOW"
)

// Snapshot is the JSON-serializable persistence form of a domain.Calendar
// built from this package. Next holds the chained base calendar's own
// snapshot, if any, so a store can round-trip an arbitrarily deep chain
// through one JSONB column.
type Snapshot struct {
	Kind kind      `json:"kind"`
	Next *Snapshot `json:"next,omitempty"`

	Location string `json:"location,omitempty"`

	// ExcludedDates
	Dates []string `json:"dates,omitempty"` // "YYYY-MM-DD"

	// ExcludedWeekdays
	Weekdays []time.Weekday `json:"weekdays,omitempty"`

	// DailyWindow
	StartHour, StartMinute, EndHour, EndMinute int
}

// ToSnapshot captures cal's full persistable state, including any chained
// base calendar. Returns an error if cal isn't one of this package's
// concrete types (spec.md's Non-goals exclude arbitrary user-defined
// calendar persistence; the in-process store can still hold one in
// memory, only a persistent store needs ToSnapshot to succeed).
func ToSnapshot(cal domain.Calendar) (Snapshot, error) {
	switch c := cal.(type) {
	case *ExcludedDates:
		s := Snapshot{Kind: kindExcludedDates, Location: c.loc.String()}
		for dk := range c.dates {
			s.Dates = append(s.Dates, fmt.Sprintf("%04d-%02d-%02d", dk.year, int(dk.month), dk.day))
		}
		next, err := chainSnapshot(c.next)
		if err != nil {
			return Snapshot{}, err
		}
		s.Next = next
		return s, nil
	case *ExcludedWeekdays:
		s := Snapshot{Kind: kindExcludedWeekdays, Location: c.loc.String()}
		for d, on := range c.excluded {
			if on {
				s.Weekdays = append(s.Weekdays, d)
			}
		}
		next, err := chainSnapshot(c.next)
		if err != nil {
			return Snapshot{}, err
		}
		s.Next = next
		return s, nil
	case *DailyWindow:
		s := Snapshot{
			Kind: kindDailyWindow, Location: c.loc.String(),
			StartHour: c.startHour, StartMinute: c.startMinute,
			EndHour: c.endHour, EndMinute: c.endMinute,
		}
		next, err := chainSnapshot(c.next)
		if err != nil {
			return Snapshot{}, err
		}
		s.Next = next
		return s, nil
	default:
		return Snapshot{}, fmt.Errorf("calendar: %T has no persistence snapshot", cal)
	}
}

func chainSnapshot(next domain.Calendar) (*Snapshot, error) {
	if next == nil {
		return nil, nil
	}
	s, err := ToSnapshot(next)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FromSnapshot reconstructs the calendar (and its chain) s describes.
func FromSnapshot(s Snapshot) (domain.Calendar, error) {
	loc := time.UTC
	if s.Location != "" {
		var err error
		loc, err = time.LoadLocation(s.Location)
		if err != nil {
			return nil, fmt.Errorf("calendar: load location %q: %w", s.Location, err)
		}
	}

	var next domain.Calendar
	if s.Next != nil {
		var err error
		next, err = FromSnapshot(*s.Next)
		if err != nil {
			return nil, err
		}
	}

	switch s.Kind {
	case kindExcludedDates:
		c := NewExcludedDates(loc, next)
		for _, d := range s.Dates {
			t, err := time.ParseInLocation("2006-01-02", d, loc)
			if err != nil {
				return nil, fmt.Errorf("calendar: parse excluded date %q: %w", d, err)
			}
			c.Exclude(t)
		}
		return c, nil
	case kindExcludedWeekdays:
		return NewExcludedWeekdays(loc, next, s.Weekdays...), nil
	case kindDailyWindow:
		return NewDailyWindow(loc, next, s.StartHour, s.StartMinute, s.EndHour, s.EndMinute), nil
	default:
		return nil, fmt.Errorf("calendar: unknown persisted kind %q", s.Kind)
	}
}
