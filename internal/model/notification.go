package model

import "time"

// NotificationType is the severity shown to subscribers.
type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// TargetKind selects the delivery policy of a notification.
type TargetKind string

const (
	TargetBroadcast TargetKind = "broadcast"
	TargetUser      TargetKind = "user"
	TargetAdmins    TargetKind = "admins"
)

// Target addresses a notification. UserID is only used with TargetUser.
type Target struct {
	Kind   TargetKind `json:"kind" bson:"kind"`
	UserID int64      `json:"user_id,omitempty" bson:"user_id,omitempty"`
}

// Broadcast addresses every connected subscriber.
func Broadcast() Target { return Target{Kind: TargetBroadcast} }

// ToUser addresses the subscriptions of a single user.
func ToUser(id int64) Target { return Target{Kind: TargetUser, UserID: id} }

// ToAdmins addresses subscribers with the admin role.
func ToAdmins() Target { return Target{Kind: TargetAdmins} }

// Notification is a transient change event. It is delivered at most once to
// each subscriber connected when it is published.
type Notification struct {
	ID        string           `json:"id" bson:"_id"`
	Type      NotificationType `json:"type" bson:"type"`
	Event     string           `json:"event" bson:"event"`
	Message   string           `json:"message" bson:"message"`
	Details   string           `json:"details,omitempty" bson:"details,omitempty"`
	Quantity  *int64           `json:"quantity,omitempty" bson:"quantity,omitempty"`
	Timestamp time.Time        `json:"timestamp" bson:"timestamp"`
	Target    Target           `json:"target" bson:"target"`
	Origin    string           `json:"origin,omitempty" bson:"origin,omitempty"`
}
