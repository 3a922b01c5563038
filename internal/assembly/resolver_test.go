package assembly

import (
	"context"
	"testing"
)

func TestResolveCrossPlatformReturnsAllTargetDialogs(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.byTarget[7] = []int64{1, 2, 3}

	r := NewResolver(repo)
	ids, err := r.Resolve(context.Background(), ResolveRequest{
		OperatorID: "op", TargetID: 7, CrossPlatform: true,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 dialogs, got %v", ids)
	}
}

func TestResolveNativeIDShortCircuitsUsername(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.byNative[12345] = []int64{10}
	repo.byUsername["12345"] = []int64{99} // must never be consulted

	r := NewResolver(repo)
	ids, err := r.Resolve(context.Background(), ResolveRequest{
		OperatorID: "op", TargetID: 7, SubTarget: "12345",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 10 {
		t.Fatalf("expected native id match [10], got %v", ids)
	}
	if repo.resolveCalls != 1 {
		t.Fatalf("native id hit must short-circuit, saw %d resolution queries", repo.resolveCalls)
	}
}

func TestResolveFallsBackToUsername(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.byUsername["anna_k"] = []int64{21}

	r := NewResolver(repo)
	for _, sub := range []string{"anna_k", "@anna_k", "Anna_K"} {
		ids, err := r.Resolve(context.Background(), ResolveRequest{
			OperatorID: "op", TargetID: 7, SubTarget: sub,
		})
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", sub, err)
		}
		if len(ids) != 1 || ids[0] != 21 {
			t.Fatalf("Resolve(%q): expected [21], got %v", sub, ids)
		}
	}
}

func TestResolveNoMatchMeansNewConversation(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	r := NewResolver(repo)

	ids, err := r.Resolve(context.Background(), ResolveRequest{
		OperatorID: "op", TargetID: 7, SubTarget: "nobody",
	})
	if err != nil {
		t.Fatalf("expected no error for unresolved identity, got %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty set, got %v", ids)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.byUsername["anna"] = []int64{4, 5}
	r := NewResolver(repo)
	req := ResolveRequest{OperatorID: "op", TargetID: 7, SubTarget: "@anna"}

	first, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	second, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("resolution not idempotent: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("resolution not idempotent: %v vs %v", first, second)
		}
	}
}
