package notification

import (
	"time"
)

type NotificationType string

const (
	TypeMilestone   NotificationType = "fast_milestone"
	TypeGoalReached NotificationType = "fast_goal_reached"
)

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

func (p Platform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid || p == PlatformWeb
}

type DeviceToken struct {
	Token    string    `json:"token" db:"token" firestore:"token"`
	Platform Platform  `json:"platform" db:"platform" firestore:"platform"`
	AddedAt  time.Time `json:"added_at" db:"added_at" firestore:"addedAt"`
	LastUsed time.Time `json:"last_used" db:"last_used" firestore:"lastUsed"`
}

// Push is a single message addressed to all devices of a user.
type Push struct {
	UserID string
	Type   NotificationType
	Title  string
	Body   string
	Data   map[string]any
}
