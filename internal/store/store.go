// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/akulov/convopilot/internal/domain"
)

// ErrStorageUnavailable wraps every query failure so callers can classify
// storage outages without inspecting driver errors.
var ErrStorageUnavailable = errors.New("storage unavailable")

// CandidateQuery selects reference-example candidates for the sampler.
type CandidateQuery struct {
	// OperatorID scopes candidates to dialogs owned by this operator.
	OperatorID string

	// Categories to overlap with; a candidate needs at least one tag in
	// this set.
	Categories []string

	// ExcludeNativeIDs are counterpart native ids belonging to the current
	// target; matching dialogs are never candidates.
	ExcludeNativeIDs []int64

	// ExcludeUsernames are counterpart usernames belonging to the current
	// target, lowercased with any leading "@" removed.
	ExcludeUsernames []string

	// Limit caps the candidate set.
	Limit int
}

// Candidate is one sampler candidate. Success is nil when none of the
// queried categories carries a success score for the dialog.
type Candidate struct {
	DialogID    int64
	DisplayName string
	Success     *float64
}

// Repository defines the queries consumed by the context pipeline and the
// continuity manager.
type Repository interface {
	// GetTarget retrieves a target by id. Returns nil when absent.
	GetTarget(ctx context.Context, id int64) (*domain.Target, error)

	// ListTargetIdentities returns all platform identities of a target.
	ListTargetIdentities(ctx context.Context, targetID int64) ([]domain.TargetIdentity, error)

	// GetPlatformAccount retrieves one of the operator's platform accounts.
	// Returns nil when absent.
	GetPlatformAccount(ctx context.Context, id int64) (*domain.PlatformAccount, error)

	// GetStyleProfile returns the computed style signals for a target, or
	// nil when none have been computed yet.
	GetStyleProfile(ctx context.Context, targetID int64) (*domain.StyleProfile, error)

	// GetDialog retrieves a dialog by id. Returns nil when absent.
	GetDialog(ctx context.Context, id int64) (*domain.Dialog, error)

	// DialogsForTarget returns every dialog, across all platform accounts,
	// whose counterpart matches one of the target's identities.
	DialogsForTarget(ctx context.Context, operatorID string, targetID int64) ([]int64, error)

	// DialogsByCounterpartID returns dialogs whose counterpart has the
	// given platform-native id.
	DialogsByCounterpartID(ctx context.Context, operatorID string, nativeID int64) ([]int64, error)

	// DialogsByCounterpartUsername returns dialogs whose counterpart
	// username matches case-insensitively, ignoring a leading "@".
	DialogsByCounterpartUsername(ctx context.Context, operatorID, username string) ([]int64, error)

	// CategoriesForDialogs returns the distinct categories tagged on any of
	// the dialogs, ordered by descending max relevance, ties by name.
	CategoriesForDialogs(ctx context.Context, dialogIDs []int64) ([]string, error)

	// CandidateDialogs runs the sampler candidate query.
	CandidateDialogs(ctx context.Context, q CandidateQuery) ([]Candidate, error)

	// MessagesForDialogs returns all messages of the dialogs ordered by
	// timestamp, ties by native id. Bodies are returned still sealed.
	MessagesForDialogs(ctx context.Context, dialogIDs []int64) ([]domain.Message, error)

	// TailMessages returns the last limit messages of one dialog in
	// chronological order. Bodies are returned still sealed.
	TailMessages(ctx context.Context, dialogID int64, limit int) ([]domain.Message, error)

	// GetSessionState retrieves the persisted session state for a
	// conversation. Returns nil when absent.
	GetSessionState(ctx context.Context, key domain.ConversationKey) (*domain.SessionState, error)

	// ListSessionStates returns every persisted session state. Used once at
	// startup to warm the continuity cache.
	ListSessionStates(ctx context.Context) ([]domain.SessionState, error)

	// PutSessionState persists a session state, attempting an
	// update-by-identity first and inserting only when no row was affected.
	PutSessionState(ctx context.Context, state *domain.SessionState) error

	// DeleteSessionState removes the session state for a conversation.
	DeleteSessionState(ctx context.Context, key domain.ConversationKey) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
