package tools

import "context"

type callIDKey struct{}

// WithCallID attaches the bus-assigned call id to the context handed to a
// tool's Execute. Tools that append their own history records (undo) use it
// to tie those records to the originating call.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey{}, callID)
}

// CallIDFromContext returns the current call id, or "" outside a bus call.
func CallIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}
