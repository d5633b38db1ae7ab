package model

import (
	"time"
)

// Role represents the role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ConversationMessage is one role-tagged entry of the per-session history.
type ConversationMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationState is the per-session message window. The whole state is
// invalidated once LastActivity is older than the session timeout; entries
// are never pruned by age individually.
type ConversationState struct {
	Messages     []ConversationMessage `json:"messages"`
	LastActivity time.Time             `json:"last_activity"`
	MessageCount int                   `json:"message_count"`
}

// ProductRef is a lightweight product reference kept in the AI context.
type ProductRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AIContext is a derived cache used to disambiguate pronoun-like references
// ("сделай скидку на него"). It is updated after every successful mutation
// and always re-validated against the live snapshot before use.
type AIContext struct {
	LastProductID   string       `json:"last_product_id,omitempty"`
	LastProductName string       `json:"last_product_name,omitempty"`
	LastAction      string       `json:"last_action,omitempty"`
	RecentProducts  []ProductRef `json:"recent_products,omitempty"`
}

// Note records a product interaction, keeping at most maxRecent entries.
func (c *AIContext) Note(id, name, action string, maxRecent int) {
	c.LastProductID = id
	c.LastProductName = name
	c.LastAction = action

	for i, ref := range c.RecentProducts {
		if ref.ID == id {
			c.RecentProducts = append(c.RecentProducts[:i], c.RecentProducts[i+1:]...)
			break
		}
	}
	c.RecentProducts = append([]ProductRef{{ID: id, Name: name}}, c.RecentProducts...)
	if len(c.RecentProducts) > maxRecent {
		c.RecentProducts = c.RecentProducts[:maxRecent]
	}
}
