package tools

import (
	"context"

	"patchwork/internal/policy"
)

// ConfirmRequest is a synchronous permission question surfaced to the
// session. The call that raised it stays suspended until it is answered or
// times out.
type ConfirmRequest struct {
	CallID  string
	Tool    string
	AgentID string
	Class   policy.Class
	Detail  string

	responseCh chan bool
}

// Approve answers the request. Safe to call exactly once.
func (r ConfirmRequest) Approve(ok bool) {
	r.responseCh <- ok
}

// Confirmer answers ask-mode permission questions. Implementations decide
// interactively; the bus applies the timeout and defaults to deny.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) (bool, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, req ConfirmRequest) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	return f(ctx, req)
}

// ChannelConfirmer surfaces confirmation requests on a channel for an
// external decision-maker (UI, operator console). Only the asking agent's
// call suspends; sibling agents and the scheduler keep running.
type ChannelConfirmer struct {
	requests chan ConfirmRequest
}

// NewChannelConfirmer creates a confirmer with the given request buffer.
// bufferSize should be at least the concurrency limit so concurrent asks
// don't block each other.
func NewChannelConfirmer(bufferSize int) *ChannelConfirmer {
	if bufferSize <= 0 {
		bufferSize = 8
	}
	return &ChannelConfirmer{requests: make(chan ConfirmRequest, bufferSize)}
}

// Requests returns the channel the external decision-maker consumes.
func (c *ChannelConfirmer) Requests() <-chan ConfirmRequest {
	return c.requests
}

// Confirm publishes the request and waits for the answer or context expiry.
// Context expiry (including the bus's ask timeout) reads as deny.
func (c *ChannelConfirmer) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	req.responseCh = make(chan bool, 1)

	select {
	case c.requests <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case ok := <-req.responseCh:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
