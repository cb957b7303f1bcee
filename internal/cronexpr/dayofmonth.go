package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type domSpecial int

const (
	domNone domSpecial = iota
	domLastDay          // L
	domLastWeekday       // LW
	domNearestWeekday    // <n>W
)

// dayOfMonthField is the day-of-month field, including the `?`, `L`, `LW`
// and `dW` Quartz extensions.
type dayOfMonthField struct {
	isQuestion bool
	special    domSpecial
	target     int // the <n> in "<n>W"
	plain      fieldSet
}

func parseDayOfMonth(raw string) (dayOfMonthField, error) {
	if raw == "?" {
		return dayOfMonthField{isQuestion: true}, nil
	}
	upper := strings.ToUpper(raw)

	if upper == "L" {
		return dayOfMonthField{special: domLastDay}, nil
	}
	if upper == "LW" {
		return dayOfMonthField{special: domLastWeekday}, nil
	}
	if strings.HasSuffix(upper, "W") && !strings.Contains(upper, ",") {
		nStr := strings.TrimSuffix(upper, "W")
		n, err := strconv.Atoi(nStr)
		if err != nil || n < 1 || n > 31 {
			return dayOfMonthField{}, fmt.Errorf("%w: invalid nearest-weekday form %q", ErrSyntax, raw)
		}
		return dayOfMonthField{special: domNearestWeekday, target: n}, nil
	}

	fs, err := parseSimpleField(raw, secondField /* no named constants */, 1, 31)
	if err != nil {
		return dayOfMonthField{}, err
	}
	return dayOfMonthField{plain: fs}, nil
}

func (f dayOfMonthField) matches(year int, month time.Month, day, daysInMonth int) bool {
	switch f.special {
	case domLastDay:
		return day == daysInMonth
	case domLastWeekday:
		return day == nearestWeekday(year, month, daysInMonth, daysInMonth)
	case domNearestWeekday:
		target := f.target
		if target > daysInMonth {
			target = daysInMonth
		}
		return day == nearestWeekday(year, month, target, daysInMonth)
	default:
		return f.plain.contains(day)
	}
}

func (f dayOfMonthField) String() string {
	if f.isQuestion {
		return "?"
	}
	switch f.special {
	case domLastDay:
		return "L"
	case domLastWeekday:
		return "LW"
	case domNearestWeekday:
		return fmt.Sprintf("%dW", f.target)
	default:
		return f.plain.String()
	}
}
