package models

import "time"

// Audit action constants for every state-changing operation.
const (
	AuditActionSignup              = "signup"
	AuditActionRequestRole         = "request_role"
	AuditActionApproveRoleRequest  = "approve_role_request"
	AuditActionRejectRoleRequest   = "reject_role_request"
	AuditActionUpdateUserRoles     = "update_user_roles"
	AuditActionAssignTeacher       = "assign_teacher"
	AuditActionUnassignTeacher     = "unassign_teacher"
	AuditActionEnroll              = "enroll"
	AuditActionMarkAttendance      = "mark_attendance"
	AuditActionFailedAuthorization = "failed_authorization"
)

// AuditLogEntry is an append-only record of a state-changing operation
// (or a denied attempt on a sensitive one).
type AuditLogEntry struct {
	ID          string    `db:"id" json:"id"`
	ActorID     string    `db:"actor_id" json:"actor_id"`
	ActorRole   string    `db:"actor_role" json:"actor_role"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Description string    `db:"description" json:"description"`
	Metadata    []byte    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
