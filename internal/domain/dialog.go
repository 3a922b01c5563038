package domain

import "time"

// DialogKind classifies a message thread.
type DialogKind string

const (
	// DialogPrivate is a one-on-one thread with a counterpart.
	DialogPrivate DialogKind = "private"
	// DialogGroup is a multi-party thread.
	DialogGroup DialogKind = "group"
	// DialogChannel is a broadcast thread.
	DialogChannel DialogKind = "channel"
	// DialogBot is a thread with an automated counterpart.
	DialogBot DialogKind = "bot"
)

// Dialog is a message thread on one platform account. Many dialogs may
// resolve to the same logical target when the target is reachable on
// several platforms.
type Dialog struct {
	ID                  int64      `json:"id"`
	OperatorID          string     `json:"operator_id"`
	AccountID           int64      `json:"account_id"`
	Kind                DialogKind `json:"kind"`
	CounterpartName     string     `json:"counterpart_name,omitempty"`
	CounterpartUsername string     `json:"counterpart_username,omitempty"`
	CounterpartNativeID int64      `json:"counterpart_native_id,omitempty"`
}

// DisplayName returns the best available name for the counterpart.
func (d *Dialog) DisplayName() string {
	if d.CounterpartName != "" {
		return d.CounterpartName
	}
	if d.CounterpartUsername != "" {
		return d.CounterpartUsername
	}
	return "unknown"
}

// Message belongs to exactly one dialog. Body is stored sealed and is
// decrypted on read; a failed decryption yields an empty body, never an
// aborted history load. Ordering is by timestamp, ties broken by the
// platform-native sequence id.
type Message struct {
	ID              int64     `json:"id"`
	DialogID        int64     `json:"dialog_id"`
	NativeID        int64     `json:"native_id"`
	Outgoing        bool      `json:"outgoing"`
	ReplyToNativeID int64     `json:"reply_to_native_id,omitempty"`
	SentAt          time.Time `json:"sent_at"`
	HasMedia        bool      `json:"has_media,omitempty"`
	Body            string    `json:"body"`
}

// CategoryTag associates a dialog with a topical category. SuccessScore
// denotes how well the dialog achieved its goal for that category.
type CategoryTag struct {
	DialogID       int64   `json:"dialog_id"`
	Category       string  `json:"category"`
	RelevanceScore float64 `json:"relevance_score"`
	SuccessScore   float64 `json:"success_score"`
}

// ReferenceExample is a past, unrelated dialog surfaced as an in-context
// learning example because it shares a category with the current
// conversation. Derived per context build, never persisted.
type ReferenceExample struct {
	DialogID    int64
	DisplayName string
	Messages    []Message
	Score       float64
}
