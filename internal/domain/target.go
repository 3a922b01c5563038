// Package domain contains core domain types for the convopilot service.
package domain

import (
	"fmt"
	"time"
)

// Target represents the remote party the operator is conversing with.
// A target may be reachable through several platform identities.
type Target struct {
	ID         int64     `json:"id"`
	OperatorID string    `json:"operator_id"`
	Name       string    `json:"name"`
	Goal       string    `json:"goal"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TargetIdentity is one platform-specific identity of a target.
type TargetIdentity struct {
	ID       int64  `json:"id"`
	TargetID int64  `json:"target_id"`
	Platform string `json:"platform"`
	NativeID int64  `json:"native_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// ConversationKey identifies one logical conversation. An empty SubTarget
// means the cross-platform aggregate view of the target.
type ConversationKey struct {
	TargetID  int64
	SubTarget string
}

// IsAggregate reports whether the key addresses the cross-platform view.
func (k ConversationKey) IsAggregate() bool {
	return k.SubTarget == ""
}

// String renders the key for logging.
func (k ConversationKey) String() string {
	if k.IsAggregate() {
		return fmt.Sprintf("target:%d", k.TargetID)
	}
	return fmt.Sprintf("target:%d/%s", k.TargetID, k.SubTarget)
}

// PlatformAccount is one of the operator's own accounts on a chat platform.
// It is consulted only to resolve identities, never to send or receive.
type PlatformAccount struct {
	ID       int64  `json:"id"`
	Platform string `json:"platform"`
	Label    string `json:"label"`
}
