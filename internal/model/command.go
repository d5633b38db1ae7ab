package model

import (
	"strings"
	"time"
	"unicode"
)

// Command is a single free-text operator command entering the pipeline.
type Command struct {
	Raw       string    `json:"raw"`
	Text      string    `json:"text"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCommand sanitizes raw text into a Command.
func NewCommand(raw, sessionID string) Command {
	return Command{
		Raw:       raw,
		Text:      SanitizeText(raw),
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// SanitizeText trims, collapses whitespace and strips control characters.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// CommandRequest is the payload exposed to the calling shell.
type CommandRequest struct {
	ShopID             string    `json:"shop_id"`
	ShopName           string    `json:"shop_name"`
	SessionID          string    `json:"session_id"`
	Text               string    `json:"text"`
	Products           []Product `json:"products,omitempty"`
	ClarifiedProductID string    `json:"clarified_product_id,omitempty"`
}

// CommandResult is the terminal outcome of one processed command.
type CommandResult struct {
	Success            bool           `json:"success"`
	Message            string         `json:"message"`
	Data               *ResultData    `json:"data,omitempty"`
	NeedsClarification *Clarification `json:"needs_clarification,omitempty"`
	NeedsConfirmation  *Confirmation  `json:"needs_confirmation,omitempty"`
	Retry              bool           `json:"retry,omitempty"`
	FallbackToMenu     bool           `json:"fallback_to_menu,omitempty"`
}
