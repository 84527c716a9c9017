package models

import "time"

// Account roles carried in JWT claims.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type User struct {
	ID        int64  `json:"id" example:"1"`                   // User ID
	Email     string `json:"email" example:"user@example.com"` // User email
	FirstName string `json:"FirstName" example:"John"`         // User first name
	LastName  string `json:"LastName" example:"Doe"`           // User last name
	Role      string `json:"role" example:"member"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
