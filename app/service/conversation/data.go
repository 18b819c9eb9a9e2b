package conversation

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation as seen by the gateway.
type Turn struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// wireTurn accepts both the gateway shape (role/content) and the chat
// history shape (sender/text) used by browser clients.
type wireTurn struct {
	Role    string `json:"role"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	Text    string `json:"text"`
}

func (t *Turn) UnmarshalJSON(data []byte) error {
	var w wireTurn
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	t.Role = parseRole(w.Role, w.Sender)

	t.Content = w.Content
	if t.Content == "" {
		t.Content = w.Text
	}

	return nil
}

func parseRole(role, sender string) Role {
	if role != "" {
		return Role(strings.ToLower(strings.TrimSpace(role)))
	}

	switch strings.ToLower(strings.TrimSpace(sender)) {
	case "":
		return ""
	case "user":
		return RoleUser
	default:
		return RoleAssistant
	}
}
