package telemetry

import "context"

type correlationKey struct{}
type spanKey struct{}

type correlationValue struct {
	id string
}

type spanValue struct {
	id       string
	parentID string
}

// WithCorrelation binds a freshly generated correlation id to ctx, replacing
// the teacher's implicit ambient-storage propagation (spec.md §9's
// "implicit asynchronous context" design note) with an explicit value
// carried on every call that may log or touch the Store. Call once at the
// hook entry point and once per worker claim.
func WithCorrelation(ctx context.Context, newID func() string) (context.Context, string) {
	id := newID()
	ctx = context.WithValue(ctx, correlationKey{}, correlationValue{id: id})
	return ctx, id
}

// WithSpan starts a nested span under the correlation id already bound to
// ctx, recording the enclosing span (or the correlation id itself, for a
// top-level span) as its parent.
func WithSpan(ctx context.Context, newID func() string) (context.Context, string) {
	parent := currentSpanID(ctx)
	if parent == "" {
		parent = CorrelationID(ctx)
	}
	id := newID()
	ctx = context.WithValue(ctx, spanKey{}, spanValue{id: id, parentID: parent})
	return ctx, id
}

// currentSpanID returns the innermost span id bound to ctx, or "" if no
// WithSpan call has run yet in this correlated unit of work.
func currentSpanID(ctx context.Context) string {
	v, ok := ctx.Value(spanKey{}).(spanValue)
	if !ok {
		return ""
	}
	return v.id
}

// CorrelationID returns the correlation id bound to ctx, or "" if none was
// ever set.
func CorrelationID(ctx context.Context) string {
	v, ok := ctx.Value(correlationKey{}).(correlationValue)
	if !ok {
		return ""
	}
	return v.id
}

// ParentSpanID returns the current span id bound to ctx by the most recent
// WithSpan call, or "" if logging is happening at the top level of the
// correlated unit of work.
func ParentSpanID(ctx context.Context) string {
	v, ok := ctx.Value(spanKey{}).(spanValue)
	if !ok {
		return ""
	}
	return v.parentID
}

// DetachedCopy returns a background context carrying the same correlation
// and span values as ctx, without ctx's cancellation or deadline. Used for
// the terminal logging and Store calls a caller still needs to make after
// ctx may already have been cancelled (e.g. during worker shutdown), so a
// job's completion, failure, or dead-letter transition is never lost.
func DetachedCopy(ctx context.Context) context.Context {
	out := context.Background()
	if v, ok := ctx.Value(correlationKey{}).(correlationValue); ok {
		out = context.WithValue(out, correlationKey{}, v)
	}
	if v, ok := ctx.Value(spanKey{}).(spanValue); ok {
		out = context.WithValue(out, spanKey{}, v)
	}
	return out
}
