package orchestrator

import (
	"context"
	"testing"
	"time"
)

func TestChannelReviewerRoundTrip(t *testing.T) {
	r := NewChannelReviewer(1)
	ctx := context.Background()

	go func() {
		patch, respond, err := r.Next(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		if patch.SessionID != "s1" {
			t.Errorf("patch = %+v", patch)
		}
		respond(Verdict{Approved: true})
	}()

	v, err := r.Review(ctx, Patch{SessionID: "s1", Diff: "+x"})
	if err != nil {
		t.Fatal(err)
	}
	if !v.Approved {
		t.Error("verdict not approved")
	}
}

func TestChannelReviewerContextExpiry(t *testing.T) {
	r := NewChannelReviewer(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Nobody answers.
	if _, err := r.Review(ctx, Patch{SessionID: "s1"}); err == nil {
		t.Fatal("unanswered review did not fail")
	}
}

func TestAutoApprove(t *testing.T) {
	v, err := AutoApprove{}.Review(context.Background(), Patch{})
	if err != nil || !v.Approved {
		t.Fatalf("v = %+v, err = %v", v, err)
	}
}
