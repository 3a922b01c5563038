package assembly

import (
	"context"
	"strings"
	"testing"

	"github.com/akulov/convopilot/internal/domain"
	"github.com/akulov/convopilot/internal/store"
	"github.com/akulov/convopilot/internal/vault"
)

func seededRepo() *fakeRepo {
	repo := newFakeRepo()
	repo.targets[7] = &domain.Target{ID: 7, OperatorID: "op", Name: "Anna", Goal: "let's date"}
	repo.identities[7] = []domain.TargetIdentity{
		{TargetID: 7, Platform: "telegram", Username: "anna_k", NativeID: 12345},
	}
	repo.byNative[12345] = []int64{10}
	repo.dialogs[10] = &domain.Dialog{ID: 10, OperatorID: "op", AccountID: 1, Kind: domain.DialogPrivate}
	repo.accounts[1] = &domain.PlatformAccount{ID: 1, Platform: "telegram", Label: "main"}
	repo.history = []domain.Message{
		{DialogID: 10, NativeID: 1, Outgoing: true, Body: "hi Anna"},
		{DialogID: 10, NativeID: 2, Body: "hello!"},
	}
	return repo
}

func TestBuildAssemblesFullContext(t *testing.T) {
	t.Parallel()

	repo := seededRepo()
	repo.candidates = []store.Candidate{candidate(20, 0.9)}
	repo.tails[20] = []domain.Message{{DialogID: 20, NativeID: 9, Body: "worked well"}}

	b := NewBuilder(repo, vault.Noop{}, nil, false)
	built, err := b.Build(context.Background(), ResolveRequest{
		OperatorID: "op", TargetID: 7, SubTarget: "12345",
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(built.DialogIDs) != 1 || built.DialogIDs[0] != 10 {
		t.Fatalf("expected resolved dialogs [10], got %v", built.DialogIDs)
	}
	for _, want := range []string{
		"name: Anna",
		"platform: telegram (account: main)",
		"[1] me: hi Anna",
		"dating, romance",
		"--- dialog 20",
	} {
		if !strings.Contains(built.Text, want) {
			t.Fatalf("context missing %q:\n%s", want, built.Text)
		}
	}
}

func TestBuildFailsWhenTargetMissing(t *testing.T) {
	t.Parallel()

	b := NewBuilder(newFakeRepo(), vault.Noop{}, nil, false)
	_, err := b.Build(context.Background(), ResolveRequest{OperatorID: "op", TargetID: 404})
	if err == nil {
		t.Fatal("expected error for unknown target")
	}
	if !strings.Contains(err.Error(), "target 404 not found") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildProceedsWhenHistoryLoadFails(t *testing.T) {
	t.Parallel()

	repo := seededRepo()
	repo.failHistory = true

	b := NewBuilder(repo, vault.Noop{}, nil, false)
	built, err := b.Build(context.Background(), ResolveRequest{
		OperatorID: "op", TargetID: 7, SubTarget: "12345",
	})
	if err != nil {
		t.Fatalf("history failure must not fail the build: %v", err)
	}
	if !strings.Contains(built.Text, "(no prior messages - this is a new conversation)") {
		t.Fatal("degraded history must render the empty placeholder")
	}
}

func TestBuildProceedsWhenSamplingDegrades(t *testing.T) {
	t.Parallel()

	repo := seededRepo()
	repo.failCandidates = true

	b := NewBuilder(repo, vault.Noop{}, nil, false)
	built, err := b.Build(context.Background(), ResolveRequest{
		OperatorID: "op", TargetID: 7, SubTarget: "12345",
	})
	if err != nil {
		t.Fatalf("sampling failure must not fail the build: %v", err)
	}
	if strings.Contains(built.Text, "=== SUCCESSFUL EXAMPLES ===") {
		t.Fatal("degraded sampling must omit the example sections")
	}
	// The rest of the context still renders.
	for _, want := range []string{"name: Anna", "[1] me: hi Anna", "=== INSTRUCTIONS ==="} {
		if !strings.Contains(built.Text, want) {
			t.Fatalf("context missing %q after sampling degraded", want)
		}
	}
}

func TestBuildUsesStoredCategoriesOverGoal(t *testing.T) {
	t.Parallel()

	repo := seededRepo()
	repo.categories = []string{"business"}

	b := NewBuilder(repo, vault.Noop{}, nil, false)
	built, err := b.Build(context.Background(), ResolveRequest{
		OperatorID: "op", TargetID: 7, SubTarget: "12345",
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(built.Text, "=== CATEGORIES ===\nbusiness\n") {
		t.Fatalf("stored category tags must win over goal inference:\n%s", built.Text)
	}
}

func TestBuildOpensSealedBodies(t *testing.T) {
	t.Parallel()

	box, err := vault.NewBox(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}
	sealed, err := box.Seal("secret plans")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	repo := seededRepo()
	repo.history = []domain.Message{
		{DialogID: 10, NativeID: 1, Body: sealed},
		{DialogID: 10, NativeID: 2, Body: "corrupted-ciphertext"},
	}

	b := NewBuilder(repo, box, nil, false)
	built, err := b.Build(context.Background(), ResolveRequest{
		OperatorID: "op", TargetID: 7, SubTarget: "12345",
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(built.Text, "[1] them: secret plans") {
		t.Fatal("sealed body must be opened in the rendered context")
	}
	// An undecryptable body degrades to the empty-text placeholder while the
	// rest of the history still renders.
	if !strings.Contains(built.Text, "[2] them: (no text)") {
		t.Fatalf("undecryptable body must render as empty, not abort:\n%s", built.Text)
	}
}

func TestBuildCrossPlatformAggregates(t *testing.T) {
	t.Parallel()

	repo := seededRepo()
	repo.byTarget[7] = []int64{10, 11}

	b := NewBuilder(repo, vault.Noop{}, nil, false)
	built, err := b.Build(context.Background(), ResolveRequest{
		OperatorID: "op", TargetID: 7, CrossPlatform: true,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(built.DialogIDs) != 2 {
		t.Fatalf("expected both platform dialogs, got %v", built.DialogIDs)
	}
	if !strings.Contains(built.Text, "cross-platform aggregate") {
		t.Fatal("aggregate builds must state the cross-platform scope")
	}
}
