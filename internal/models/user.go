package models

import "time"

// UserRole represents the available reviewer roles.
type UserRole string

const (
	RoleOfficer UserRole = "OFFICER"
	RoleAdmin   UserRole = "ADMIN"
)

// User represents a reviewer account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Banned       bool       `db:"banned" json:"banned"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing reviewer accounts.
type UserFilter struct {
	Role     *UserRole
	Banned   *bool
	Search   string
	Page     int
	PageSize int
}

// UserProfile combines account data with the applications the user reviewed.
type UserProfile struct {
	User
	ReviewedApplications []ApplicationDetail `json:"reviewed_applications"`
}
