// Package fireinstance generates and carries fire-instance identifiers —
// the unique ID stamped on one trigger firing, used for interrupt(jobKey |
// fireInstanceId) (spec.md §6) and for correlating listener/log output
// across a run. Grounded on the teacher's internal/requestid, generalized
// from an HTTP-request ID to a scheduler fire-instance ID.
package fireinstance

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New generates a random fire-instance ID.
func New() string {
	return uuid.NewString()
}

// WithFireInstanceID returns a copy of ctx carrying id.
func WithFireInstanceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the fire-instance ID from ctx, "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
