package cronexpr

import "errors"

var (
	ErrSyntax       = errors.New("cronexpr: syntax error")
	ErrOutOfRange   = errors.New("cronexpr: value out of range")
	ErrAmbiguousDay = errors.New("cronexpr: day-of-month/day-of-week '?' rule violated")
)
