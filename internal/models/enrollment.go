package models

import "time"

// EnrollmentStatus tracks whether a learner is still part of a batch.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// BatchEnrollment records a learner's membership in a batch. The
// (batch_id, user_id) pair is unique; creation is idempotent from the
// caller's point of view.
type BatchEnrollment struct {
	ID             string           `db:"id" json:"id"`
	BatchID        string           `db:"batch_id" json:"batch_id"`
	UserID         string           `db:"user_id" json:"user_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	Phone          *string          `db:"phone" json:"phone,omitempty"`
	GuardianName   *string          `db:"guardian_name" json:"guardian_name,omitempty"`
	JoinedWhatsApp bool             `db:"joined_whatsapp" json:"joined_whatsapp"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}
