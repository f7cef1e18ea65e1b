package orchestrator

import (
	"context"
)

// Patch is the change exposed for review: the unified diff and the files it
// touches.
type Patch struct {
	SessionID string
	Diff      string
	Files     []string
}

// Verdict is the reviewer's decision.
type Verdict struct {
	Approved bool
	Reason   string
}

// Reviewer is the single synchronous decision point between generation and
// testing. Approve/reject/edit is an external concern; the core only waits
// for the verdict.
type Reviewer interface {
	Review(ctx context.Context, patch Patch) (Verdict, error)
}

// AutoApprove approves every patch. For unattended sessions.
type AutoApprove struct{}

func (AutoApprove) Review(context.Context, Patch) (Verdict, error) {
	return Verdict{Approved: true}, nil
}

// reviewRequest pairs a patch with its response channel.
type reviewRequest struct {
	patch      Patch
	responseCh chan Verdict
}

// ChannelReviewer surfaces patches on a channel for an external
// decision-maker and blocks the session until it answers. Context expiry
// reads as rejection.
type ChannelReviewer struct {
	requests chan reviewRequest
}

// NewChannelReviewer creates a reviewer with the given request buffer.
func NewChannelReviewer(bufferSize int) *ChannelReviewer {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &ChannelReviewer{requests: make(chan reviewRequest, bufferSize)}
}

// Next blocks until a patch needs review, then hands back the patch and a
// respond function. Respond must be called exactly once.
func (r *ChannelReviewer) Next(ctx context.Context) (Patch, func(Verdict), error) {
	select {
	case req := <-r.requests:
		return req.patch, func(v Verdict) { req.responseCh <- v }, nil
	case <-ctx.Done():
		return Patch{}, nil, ctx.Err()
	}
}

// Review implements Reviewer.
func (r *ChannelReviewer) Review(ctx context.Context, patch Patch) (Verdict, error) {
	req := reviewRequest{patch: patch, responseCh: make(chan Verdict, 1)}

	select {
	case r.requests <- req:
	case <-ctx.Done():
		return Verdict{}, ctx.Err()
	}

	select {
	case v := <-req.responseCh:
		return v, nil
	case <-ctx.Done():
		return Verdict{}, ctx.Err()
	}
}
