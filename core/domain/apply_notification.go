package domain

import "time"

// =============================================================================
// Notifications
// =============================================================================

// NotificationType names a trigger point.
type NotificationType string

const (
	NotifApplicationSubmitted NotificationType = "application_submitted"
	NotifStatusUpdate         NotificationType = "status_update"
	NotifInterviewReminder    NotificationType = "interview_reminder"
	NotifFollowUpReminder     NotificationType = "follow_up_reminder"
	NotifDeadlineReminder     NotificationType = "deadline_reminder"
	NotifWeeklySummary        NotificationType = "weekly_summary"
	NotifMonthlyReport        NotificationType = "monthly_report"
	NotifAuthExpired          NotificationType = "auth_expired"
	NotifOperatorAlert        NotificationType = "operator_alert"
)

// NotificationChannel is a delivery path.
type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "in_app"
	ChannelEmail NotificationChannel = "email"
)

// Notification is the persisted in-app document, also the fan-out record.
type Notification struct {
	ID       string                `bson:"_id,omitempty" json:"id"`
	UserID   string                `bson:"user_id" json:"user_id"`
	Type     NotificationType      `bson:"type" json:"type"`
	Title    string                `bson:"title" json:"title"`
	Message  string                `bson:"message" json:"message"`
	Data     map[string]any        `bson:"data,omitempty" json:"data,omitempty"`
	Channels []NotificationChannel `bson:"channels" json:"channels"`

	Read   bool       `bson:"read" json:"read"`
	ReadAt *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
	SentAt *time.Time `bson:"sent_at,omitempty" json:"sent_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
