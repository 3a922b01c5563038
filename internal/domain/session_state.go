package domain

import "time"

// SessionState is the durable record of one live external LLM session.
// There is at most one per conversation key. It is owned exclusively by the
// continuity manager: created on the first turn, updated on every turn, and
// deleted only when the operator explicitly ends the conversation.
type SessionState struct {
	Key           ConversationKey `json:"key"`
	Handle        string          `json:"handle"`
	LastMessageID int64           `json:"last_message_id"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
