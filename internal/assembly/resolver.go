// Package assembly builds the full LLM context for a conversation: dialog
// resolution, category classification, reference sampling, and prompt
// formatting.
package assembly

import (
	"context"
	"strconv"
	"strings"

	"github.com/akulov/convopilot/internal/store"
)

// ResolveRequest identifies the conversation whose dialogs should be read.
type ResolveRequest struct {
	OperatorID    string
	TargetID      int64
	SubTarget     string
	CrossPlatform bool
}

// Resolver maps a logical (target, sub-target, cross-platform) tuple to the
// concrete set of dialog ids to read from storage.
type Resolver struct {
	repo store.Repository
}

// NewResolver creates a dialog resolver.
func NewResolver(repo store.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the ordered dialog id set for the conversation.
//
// Cross-platform requests return every dialog matching any of the target's
// identities. Otherwise the sub-target is resolved in priority order:
// platform-native numeric id first, then case-insensitive username with and
// without a leading "@". Each strategy short-circuits on its first hit. An
// empty result means "new conversation", not an error. Resolution is
// all-or-nothing per strategy: storage errors propagate, never a partial
// set.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) ([]int64, error) {
	if req.CrossPlatform {
		return r.repo.DialogsForTarget(ctx, req.OperatorID, req.TargetID)
	}

	sub := strings.TrimSpace(req.SubTarget)
	if sub == "" {
		return nil, nil
	}

	if nativeID, err := strconv.ParseInt(sub, 10, 64); err == nil {
		ids, err := r.repo.DialogsByCounterpartID(ctx, req.OperatorID, nativeID)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}

	return r.repo.DialogsByCounterpartUsername(ctx, req.OperatorID, sub)
}
