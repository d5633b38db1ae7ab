package model

import (
	"time"
)

// OutcomeType classifies the terminal outcome of a command for the audit stream.
type OutcomeType string

const (
	OutcomeApplied       OutcomeType = "applied"
	OutcomeFreeText      OutcomeType = "free_text"
	OutcomeClarification OutcomeType = "clarification"
	OutcomeConfirmation  OutcomeType = "confirmation"
	OutcomeRejected      OutcomeType = "rejected"
	OutcomeError         OutcomeType = "error"
)

// CommandEvent is the audit record published for every terminal command outcome.
type CommandEvent struct {
	ID        string      `json:"id"`
	ShopID    string      `json:"shop_id"`
	SessionID string      `json:"session_id"`
	Outcome   OutcomeType `json:"outcome"`
	Command   string      `json:"command"`
	Action    string      `json:"action,omitempty"`
	ErrorCode string      `json:"error_code,omitempty"`
	FastPath  bool        `json:"fast_path,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
