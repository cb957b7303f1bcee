// Package cronexpr parses Unix-cron-style expressions — with the Quartz
// extensions ?, L, W, # and named months/days — and evaluates them against
// a time.Location to produce the next fire instant strictly after a given
// instant.
//
// The field layout is six or seven whitespace-separated fields: seconds,
// minutes, hours, day-of-month, month, day-of-week, and an optional year.
// This mirrors spec.md §4.1 exactly; it intentionally does not reuse
// robfig/cron's Parser because that package has no representation for `?`,
// `L`, `W`, or `#` (see DESIGN.md).
package cronexpr

import (
	"fmt"
	"strings"
	"time"
)

const (
	minYear = 1970
	maxYear = 2099
)

// Expression is a parsed, normalized cron expression bound to no
// particular time zone — Next evaluates it in the location passed to it.
type Expression struct {
	seconds    fieldSet
	minutes    fieldSet
	hours      fieldSet
	dayOfMonth dayOfMonthField
	month      fieldSet
	dayOfWeek  dayOfWeekField
	year       fieldSet // empty means "every year" (no explicit field given)
	hasYear    bool
	raw        string
}

// Parse parses a six- or seven-field cron expression. Exactly one of
// day-of-month/day-of-week must be `?`; the other carries the constraint
// (or `*` for "every").
func Parse(expr string) (*Expression, error) {
	original := expr
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 6 && len(fields) != 7 {
		return nil, fmt.Errorf("%w: expected 6 or 7 fields, got %d", ErrSyntax, len(fields))
	}

	e := &Expression{raw: original}

	var err error
	e.seconds, err = parseSimpleField(fields[0], secondField, 0, 59)
	if err != nil {
		return nil, fmt.Errorf("seconds field %q: %w", fields[0], err)
	}
	e.minutes, err = parseSimpleField(fields[1], minuteField, 0, 59)
	if err != nil {
		return nil, fmt.Errorf("minutes field %q: %w", fields[1], err)
	}
	e.hours, err = parseSimpleField(fields[2], hourField, 0, 23)
	if err != nil {
		return nil, fmt.Errorf("hours field %q: %w", fields[2], err)
	}

	domRaw, dowRaw := fields[3], fields[5]
	domQuestion := domRaw == "?"
	dowQuestion := dowRaw == "?"
	if domQuestion == dowQuestion {
		return nil, fmt.Errorf("%w: exactly one of day-of-month/day-of-week must be '?'", ErrAmbiguousDay)
	}

	e.dayOfMonth, err = parseDayOfMonth(domRaw)
	if err != nil {
		return nil, fmt.Errorf("day-of-month field %q: %w", domRaw, err)
	}
	e.month, err = parseSimpleField(fields[4], monthField, 1, 12)
	if err != nil {
		return nil, fmt.Errorf("month field %q: %w", fields[4], err)
	}
	e.dayOfWeek, err = parseDayOfWeek(dowRaw)
	if err != nil {
		return nil, fmt.Errorf("day-of-week field %q: %w", dowRaw, err)
	}

	if len(fields) == 7 {
		e.hasYear = true
		e.year, err = parseSimpleField(fields[6], yearField, minYear, maxYear)
		if err != nil {
			return nil, fmt.Errorf("year field %q: %w", fields[6], err)
		}
	}

	return e, nil
}

// MustParse is Parse but panics on error — for static expressions.
func MustParse(expr string) *Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns a normalized textual form: sorted, de-duplicated field
// lists. parse(format(parse(e))) ≡ parse(e), as spec.md's cron round-trip
// property requires.
func (e *Expression) String() string {
	parts := []string{
		e.seconds.String(),
		e.minutes.String(),
		e.hours.String(),
		e.dayOfMonth.String(),
		e.month.String(),
		e.dayOfWeek.String(),
	}
	if e.hasYear {
		parts = append(parts, e.year.String())
	}
	return strings.Join(parts, " ")
}

// Next returns the strictly-greater-next instant, in loc's calendar, that
// satisfies every field constraint, or ok=false if none exists within
// [minYear, maxYear].
func (e *Expression) Next(after time.Time, loc *time.Location) (next time.Time, ok bool) {
	t := after.In(loc)
	// Start the search one second past `after` — strictly greater.
	cursor := cursorFrom(t)

	for cursor.year <= maxYear {
		// Month.
		if !e.month.contains(int(cursor.month)) {
			cursor = cursor.nextMonth()
			continue
		}

		// Day: only one of dayOfMonth/dayOfWeek constrains; the other is `?`.
		dayOK, skip := e.dayMatches(cursor)
		if skip {
			cursor = cursor.nextMonth()
			continue
		}
		if !dayOK {
			cursor = cursor.nextDay()
			continue
		}

		if !e.hours.contains(cursor.hour) {
			cursor = cursor.nextHour()
			continue
		}
		if !e.minutes.contains(cursor.minute) {
			cursor = cursor.nextMinute()
			continue
		}
		if !e.seconds.contains(cursor.second) {
			cursor = cursor.nextSecond()
			continue
		}
		if e.hasYear && !e.year.contains(cursor.year) {
			cursor = cursor.nextYear()
			continue
		}

		candidate, valid := cursor.toTime(loc)
		if !valid {
			// Spring-forward: this local time does not exist. Forget it
			// (spec.md §9 Open Question, resolved as "forgotten") and
			// advance to the next second.
			cursor = cursor.nextSecond()
			continue
		}
		return candidate, true
	}
	return time.Time{}, false
}

// dayMatches reports whether cursor's (year, month, day) satisfies the
// constraining field (dayOfMonth xor dayOfWeek). skip=true means the day
// cannot exist in this month under the constraint and the caller should
// advance to the next month rather than the next day (used for L/W/# special
// forms that only resolve per-month).
func (e *Expression) dayMatches(c cursor) (ok bool, skip bool) {
	daysInMonth := daysIn(c.year, c.month)
	if c.day > daysInMonth {
		return false, true
	}

	if e.dayOfMonth.isQuestion {
		return e.dayOfWeek.matches(c.year, c.month, c.day), false
	}
	return e.dayOfMonth.matches(c.year, c.month, c.day, daysInMonth), false
}
