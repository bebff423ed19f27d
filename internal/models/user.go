package models

import (
	"time"

	"github.com/lib/pq"
)

// Role represents one authorization level in the RBAC hierarchy.
type Role string

const (
	RoleStudent  Role = "STUDENT"
	RoleTeacher  Role = "TEACHER"
	RoleAdmin    Role = "ADMIN"
	RoleDirector Role = "DIRECTOR"
)

// roleRanks defines the total order of the hierarchy. Authorization ladders
// compare ranks instead of scanning membership lists.
var roleRanks = map[Role]int{
	RoleStudent:  1,
	RoleTeacher:  2,
	RoleAdmin:    3,
	RoleDirector: 4,
}

// Rank returns the numeric position of the role; unknown roles rank 0.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Known reports whether the role is a supported value.
func (r Role) Known() bool {
	_, ok := roleRanks[r]
	return ok
}

// Outranks reports whether a sits strictly above b in the hierarchy.
func Outranks(a, b Role) bool {
	return a.Rank() > b.Rank()
}

// HighestRole returns the top-ranked role in the set, or RoleStudent when the
// set is empty.
func HighestRole(roles []Role) Role {
	highest := RoleStudent
	for _, r := range roles {
		if r.Rank() > highest.Rank() {
			highest = r
		}
	}
	return highest
}

// HasRole reports set membership.
func HasRole(roles []Role, want Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// HasMinRank reports whether any role in the set reaches the given rank.
func HasMinRank(roles []Role, min Role) bool {
	for _, r := range roles {
		if r.Rank() >= min.Rank() {
			return true
		}
	}
	return false
}

// NormalizeRoles filters unknown values and removes duplicates, preserving
// first-seen order.
func NormalizeRoles(roles []Role) []Role {
	seen := make(map[Role]struct{}, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if !r.Known() {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// UserAccount represents an application user. Accounts are never deleted;
// deactivation soft-retains them. The roles set is never empty.
type UserAccount struct {
	ID                 string         `db:"id" json:"id"`
	Email              string         `db:"email" json:"email"`
	PasswordHash       string         `db:"password_hash" json:"-"`
	FullName           string         `db:"full_name" json:"full_name"`
	Roles              pq.StringArray `db:"roles" json:"roles"`
	PendingRoleRequest *string        `db:"pending_role_request" json:"pending_role_request,omitempty"`
	Active             bool           `db:"active" json:"active"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// RoleSet converts the stored string array into typed roles.
func (u *UserAccount) RoleSet() []Role {
	roles := make([]Role, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, Role(r))
	}
	return roles
}

// RoleStrings converts a typed role set back into the stored representation.
func RoleStrings(roles []Role) pq.StringArray {
	out := make(pq.StringArray, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
