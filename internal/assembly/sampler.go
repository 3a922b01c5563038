package assembly

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/akulov/convopilot/internal/domain"
	"github.com/akulov/convopilot/internal/store"
	"github.com/akulov/convopilot/internal/vault"
)

const (
	// candidateLimit caps the sampler candidate query.
	candidateLimit = 50

	// successCutoff and failureCutoff band candidates by aggregate success
	// score. Scores in [failureCutoff, successCutoff) land in neither
	// bucket.
	successCutoff = 0.7
	failureCutoff = 0.3

	// defaultSuccess is assumed for candidates with no success score.
	defaultSuccess = 0.5

	// Target shares of the total candidate count per bucket.
	successShare     = 0.70
	failureShare     = 0.15
	improvementShare = 0.15

	// defaultExampleTail bounds how much of a reference dialog is loaded.
	defaultExampleTail = 30
)

// Samples holds the three reference-example lists surfaced in the prompt.
type Samples struct {
	Successful  []domain.ReferenceExample
	Failed      []domain.ReferenceExample
	Improvement []domain.ReferenceExample
}

// Empty reports whether no examples were sampled at all.
func (s Samples) Empty() bool {
	return len(s.Successful) == 0 && len(s.Failed) == 0 && len(s.Improvement) == 0
}

// SampleRequest scopes one sampling run.
type SampleRequest struct {
	OperatorID string
	Categories []string

	// ExcludeIdentities are the current target's own identities; dialogs
	// whose counterpart matches any of them are never sampled.
	ExcludeIdentities []domain.TargetIdentity
}

// Sampler selects reference examples from past dialogs sharing a category
// with the current conversation.
type Sampler struct {
	repo      store.Repository
	cipher    vault.Cipher
	tailLimit int
}

// NewSampler creates a reference sampler. Message bodies of sampled
// examples are opened with cipher on load.
func NewSampler(repo store.Repository, cipher vault.Cipher) *Sampler {
	return &Sampler{repo: repo, cipher: cipher, tailLimit: defaultExampleTail}
}

type scoredCandidate struct {
	store.Candidate
	score float64
}

// Sample produces the successful/failed/improvement example lists.
//
// Candidates are scored by the max success over the queried categories
// (0.5 when untagged), stably sorted descending, then banded: >= 0.7
// successful, < 0.3 failed, the mid-band discarded. Bucket emit counts
// derive from the total candidate count N as round(0.70*N) / round(0.15*N)
// / round(0.15*N), each capped by its bucket size. Improvement examples
// reuse the top-ranked successful examples; the framing text, not distinct
// content, carries the "look again, more critically" signal.
//
// Reference examples are optional context: any storage failure degrades to
// three empty lists and the turn proceeds.
func (s *Sampler) Sample(ctx context.Context, req SampleRequest) Samples {
	var excludeIDs []int64
	var excludeNames []string
	for _, ident := range req.ExcludeIdentities {
		if ident.NativeID != 0 {
			excludeIDs = append(excludeIDs, ident.NativeID)
		}
		if ident.Username != "" {
			excludeNames = append(excludeNames, ident.Username)
		}
	}

	candidates, err := s.repo.CandidateDialogs(ctx, store.CandidateQuery{
		OperatorID:       req.OperatorID,
		Categories:       req.Categories,
		ExcludeNativeIDs: excludeIDs,
		ExcludeUsernames: excludeNames,
		Limit:            candidateLimit,
	})
	if err != nil {
		slog.Warn("reference sampling degraded to empty", "operator_id", req.OperatorID, "error", err)
		return Samples{}
	}
	if len(candidates) == 0 {
		return Samples{}
	}

	scored := make([]scoredCandidate, len(candidates))
	for i, c := range candidates {
		score := defaultSuccess
		if c.Success != nil {
			score = *c.Success
		}
		scored[i] = scoredCandidate{Candidate: c, score: score}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	var successBucket, failedBucket []scoredCandidate
	for _, sc := range scored {
		switch {
		case sc.score >= successCutoff:
			successBucket = append(successBucket, sc)
		case sc.score < failureCutoff:
			failedBucket = append(failedBucket, sc)
		}
	}

	n := float64(len(candidates))
	successTarget := int(math.Round(successShare * n))
	failedTarget := int(math.Round(failureShare * n))
	improvementTarget := int(math.Round(improvementShare * n))

	successEmit := successBucket[:min(successTarget, len(successBucket))]
	failedEmit := failedBucket[:min(failedTarget, len(failedBucket))]
	improvementEmit := successBucket[:min(improvementTarget, len(successBucket))]

	successful, err := s.load(ctx, successEmit)
	if err != nil {
		slog.Warn("reference sampling degraded to empty", "operator_id", req.OperatorID, "error", err)
		return Samples{}
	}
	failed, err := s.load(ctx, failedEmit)
	if err != nil {
		slog.Warn("reference sampling degraded to empty", "operator_id", req.OperatorID, "error", err)
		return Samples{}
	}
	improvement, err := s.load(ctx, improvementEmit)
	if err != nil {
		slog.Warn("reference sampling degraded to empty", "operator_id", req.OperatorID, "error", err)
		return Samples{}
	}

	return Samples{Successful: successful, Failed: failed, Improvement: improvement}
}

func (s *Sampler) load(ctx context.Context, picks []scoredCandidate) ([]domain.ReferenceExample, error) {
	examples := make([]domain.ReferenceExample, 0, len(picks))
	for _, sc := range picks {
		messages, err := s.repo.TailMessages(ctx, sc.DialogID, s.tailLimit)
		if err != nil {
			return nil, err
		}
		for i := range messages {
			messages[i].Body = s.cipher.Open(messages[i].Body)
		}
		examples = append(examples, domain.ReferenceExample{
			DialogID:    sc.DialogID,
			DisplayName: sc.DisplayName,
			Messages:    messages,
			Score:       sc.score,
		})
	}
	return examples, nil
}
