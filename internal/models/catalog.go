package models

import "time"

// Module represents a course module whose sessions and attendance are owned
// by its assigned teachers.
type Module struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Archived  bool      `db:"archived" json:"archived"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ModuleTeacherAssignment authorizes one teacher over one module. The
// (module_id, user_id) pair is unique.
type ModuleTeacherAssignment struct {
	ID        string    `db:"id" json:"id"`
	ModuleID  string    `db:"module_id" json:"module_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Batch is a cohort of learners working through a module.
type Batch struct {
	ID        string    `db:"id" json:"id"`
	ModuleID  string    `db:"module_id" json:"module_id"`
	Name      string    `db:"name" json:"name"`
	Archived  bool      `db:"archived" json:"archived"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Session is one scheduled meeting of a batch.
type Session struct {
	ID          string    `db:"id" json:"id"`
	BatchID     string    `db:"batch_id" json:"batch_id"`
	Title       string    `db:"title" json:"title"`
	SessionDate time.Time `db:"session_date" json:"session_date"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
