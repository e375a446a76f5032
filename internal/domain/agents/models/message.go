package models

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content is one fragment of a message: TextContent or OtherContent.
type Content interface {
	contentType() string
}

type TextContent struct {
	Value string
}

// OtherContent stands in for fragments that carry no text (images, files).
type OtherContent struct {
	Type string
}

func (TextContent) contentType() string { return "text" }
func (c OtherContent) contentType() string { return c.Type }

type Message struct {
	ID        string
	Role      Role
	Content   []Content
	CreatedAt int64
}

// Text joins the non-empty text fragments in order, separated by a space.
func (m Message) Text() string {
	parts := make([]string, 0, len(m.Content))
	for _, c := range m.Content {
		switch v := c.(type) {
		case TextContent:
			if v.Value != "" {
				parts = append(parts, v.Value)
			}
		case OtherContent:
			continue
		}
	}
	return strings.Join(parts, " ")
}

// LatestByRole returns the most recent message with the given role from a
// chronologically ordered slice.
func LatestByRole(messages []Message, role Role) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return messages[i], true
		}
	}
	return Message{}, false
}
