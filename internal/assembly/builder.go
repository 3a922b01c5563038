package assembly

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/akulov/convopilot/internal/domain"
	"github.com/akulov/convopilot/internal/store"
	"github.com/akulov/convopilot/internal/vault"
)

// Builder runs the full context pipeline: resolve dialogs, classify
// categories, sample references, format the prompt.
type Builder struct {
	repo       store.Repository
	cipher     vault.Cipher
	resolver   *Resolver
	classifier Classifier
	sampler    *Sampler
	adminMode  bool
}

// NewBuilder creates a context builder. A nil classifier selects the
// default keyword classifier.
func NewBuilder(repo store.Repository, cipher vault.Cipher, classifier Classifier, adminMode bool) *Builder {
	if classifier == nil {
		classifier = NewKeywordClassifier(repo)
	}
	return &Builder{
		repo:       repo,
		cipher:     cipher,
		resolver:   NewResolver(repo),
		classifier: classifier,
		sampler:    NewSampler(repo, cipher),
		adminMode:  adminMode,
	}
}

// BuiltContext is the outcome of one full context build.
type BuiltContext struct {
	Text      string
	DialogIDs []int64
}

// Build assembles the full context blob for the first turn of a
// conversation.
//
// Load-bearing reads (target, resolution, classification) fail the build;
// optional context (history, platform label, style, references) degrades
// with a warning and the build proceeds.
func (b *Builder) Build(ctx context.Context, req ResolveRequest) (*BuiltContext, error) {
	target, err := b.repo.GetTarget(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("target %d not found", req.TargetID)
	}

	identities, err := b.repo.ListTargetIdentities(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}

	dialogIDs, err := b.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	history := b.loadHistory(ctx, dialogIDs)
	platform := b.platformLabel(ctx, req, dialogIDs)
	style := b.styleProfile(ctx, req.TargetID)

	categories, err := b.classifier.Categorize(ctx, dialogIDs, target.Goal)
	if err != nil {
		return nil, err
	}

	samples := b.sampler.Sample(ctx, SampleRequest{
		OperatorID:        req.OperatorID,
		Categories:        categories,
		ExcludeIdentities: identities,
	})

	text := FormatContext(FormatInput{
		Target:        target,
		Identities:    identities,
		Platform:      platform,
		CrossPlatform: req.CrossPlatform,
		Style:         style,
		History:       history,
		Categories:    categories,
		Samples:       samples,
		AdminMode:     b.adminMode,
	})

	return &BuiltContext{Text: text, DialogIDs: dialogIDs}, nil
}

func (b *Builder) loadHistory(ctx context.Context, dialogIDs []int64) []domain.Message {
	if len(dialogIDs) == 0 {
		return nil
	}
	messages, err := b.repo.MessagesForDialogs(ctx, dialogIDs)
	if err != nil {
		slog.Warn("history load degraded to empty", "error", err)
		return nil
	}
	for i := range messages {
		messages[i].Body = b.cipher.Open(messages[i].Body)
	}
	return messages
}

func (b *Builder) platformLabel(ctx context.Context, req ResolveRequest, dialogIDs []int64) string {
	if req.CrossPlatform || len(dialogIDs) == 0 {
		return ""
	}
	dialog, err := b.repo.GetDialog(ctx, dialogIDs[0])
	if err != nil || dialog == nil {
		if err != nil {
			slog.Warn("platform lookup failed", "dialog_id", dialogIDs[0], "error", err)
		}
		return ""
	}
	account, err := b.repo.GetPlatformAccount(ctx, dialog.AccountID)
	if err != nil || account == nil {
		if err != nil {
			slog.Warn("platform account lookup failed", "account_id", dialog.AccountID, "error", err)
		}
		return ""
	}
	if account.Label != "" {
		return fmt.Sprintf("%s (account: %s)", account.Platform, account.Label)
	}
	return account.Platform
}

func (b *Builder) styleProfile(ctx context.Context, targetID int64) domain.StyleProfile {
	profile, err := b.repo.GetStyleProfile(ctx, targetID)
	if err != nil {
		slog.Warn("style profile load failed, using defaults", "target_id", targetID, "error", err)
		return domain.DefaultStyleProfile()
	}
	if profile == nil {
		return domain.DefaultStyleProfile()
	}
	return *profile
}
