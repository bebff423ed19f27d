package models

import "time"

// Notification types emitted by the core services.
const (
	NotificationTypeEnrollmentConfirmed      = "enrollment_confirmed"
	NotificationTypeNewEnrollment            = "new_enrollment"
	NotificationTypeModuleAssignment         = "module_assignment"
	NotificationTypeAttendanceBelowThreshold = "attendance_below_threshold"
)

// Notification is a write-once in-app message. The only mutation allowed
// after creation is the single read_at transition.
type Notification struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Type      string     `db:"type" json:"type"`
	Title     string     `db:"title" json:"title"`
	Body      string     `db:"body" json:"body"`
	Metadata  []byte     `db:"metadata" json:"metadata,omitempty"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// NotificationFilter scopes inbox listing.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
