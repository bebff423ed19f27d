package models

import "time"

// AttendanceStatus represents the recorded state for one session.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// DefaultLowAttendanceThreshold is the attendance percentage below which a
// student is alerted. Config may override it; call sites never hardcode 50.
const DefaultLowAttendanceThreshold = 50

// AttendanceRecord is the raw ledger entry for one (session, user) pair.
// The pair is unique; the last write wins and no mark history is kept.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	SessionID string           `db:"session_id" json:"session_id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	MarkedBy  string           `db:"marked_by" json:"marked_by"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// ParticipationSummary is fully derived from the session list and the
// attendance ledger. It is recomputed after every mark and never hand-edited.
type ParticipationSummary struct {
	BatchID              string     `db:"batch_id" json:"batch_id"`
	UserID               string     `db:"user_id" json:"user_id"`
	TotalSessions        int        `db:"total_sessions" json:"total_sessions"`
	SessionsAttended     int        `db:"sessions_attended" json:"sessions_attended"`
	AttendancePercentage int        `db:"attendance_percentage" json:"attendance_percentage"`
	LastAttendedAt       *time.Time `db:"last_attended_at" json:"last_attended_at,omitempty"`
	EngagementScore      int        `db:"engagement_score" json:"engagement_score"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// AttendanceTally carries the ledger counts a summary is derived from.
type AttendanceTally struct {
	Present        int        `db:"present"`
	Late           int        `db:"late"`
	LastAttendedAt *time.Time `db:"last_attended_at"`
}
