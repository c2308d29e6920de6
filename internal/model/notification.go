package model

import "time"

type NotificationType string

const (
	NotificationLevelUp   NotificationType = "levelup"
	NotificationRejection NotificationType = "rejection"
)

// Notification is a transient message for one child. It is stored flat so
// the document store can hold it; use Body to get the typed variant.
type Notification struct {
	ID        string           `json:"id" firestore:"id"`
	Type      NotificationType `json:"type" firestore:"type"`
	KidID     string           `json:"kidId" firestore:"kidId"`
	Message   string           `json:"message" firestore:"message"`
	Timestamp time.Time        `json:"timestamp" firestore:"timestamp"`

	Level    int    `json:"level,omitempty" firestore:"level,omitempty"`
	Rank     string `json:"rank,omitempty" firestore:"rank,omitempty"`
	TaskName string `json:"taskName,omitempty" firestore:"taskName,omitempty"`
}

// NotificationBody is implemented by LevelUp and Rejection only.
type NotificationBody interface {
	notificationBody()
}

type LevelUp struct {
	Level int
	Rank  string
}

type Rejection struct {
	TaskName string
}

func (LevelUp) notificationBody()   {}
func (Rejection) notificationBody() {}

// Body returns the typed variant, or nil for an unknown type.
func (n Notification) Body() NotificationBody {
	switch n.Type {
	case NotificationLevelUp:
		return LevelUp{Level: n.Level, Rank: n.Rank}
	case NotificationRejection:
		return Rejection{TaskName: n.TaskName}
	default:
		return nil
	}
}

// NewNotification builds the stored form of a variant.
func NewNotification(id, kidID, message string, ts time.Time, body NotificationBody) Notification {
	n := Notification{ID: id, KidID: kidID, Message: message, Timestamp: ts}
	switch b := body.(type) {
	case LevelUp:
		n.Type = NotificationLevelUp
		n.Level = b.Level
		n.Rank = b.Rank
	case Rejection:
		n.Type = NotificationRejection
		n.TaskName = b.TaskName
	}
	return n
}
