package models

import (
	"fmt"
	"time"
)

// NotificationType tags the variant of a Notification.
type NotificationType string

const (
	NotificationMention NotificationType = "mention"
	NotificationReply   NotificationType = "reply"
	NotificationVote    NotificationType = "vote"
)

// Valid reports whether t is a known variant.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMention, NotificationReply, NotificationVote:
		return true
	}
	return false
}

// Notification is a derived event about the local user's content.
type Notification struct {
	Type      NotificationType `json:"type"`
	Origin    string           `json:"origin"`
	URL       string           `json:"url"`
	Subject   string           `json:"subject"`
	CreatedAt time.Time        `json:"createdAt"`

	Author *Profile `json:"author,omitempty"`
	Post   *Post    `json:"post,omitempty"`
}

// PostURL returns the URL of the post this notification is about. Mentions and
// replies are posts themselves; votes point at what was voted on.
func (n *Notification) PostURL() (string, error) {
	switch n.Type {
	case NotificationMention, NotificationReply:
		return n.URL, nil
	case NotificationVote:
		return n.Subject, nil
	}
	return "", fmt.Errorf("models: unknown notification type %q", n.Type)
}
