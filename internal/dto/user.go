package dto

import "github.com/unidesk/english-proficiency-api/internal/models"

// CreateUserRequest is the admin payload for provisioning reviewer accounts.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=8"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=OFFICER ADMIN"`
}

// BanUserRequest optionally records why an account was banned.
type BanUserRequest struct {
	Reason string `json:"reason"`
}
