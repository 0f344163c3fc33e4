package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// RolePending is the default role of users nobody has assigned a role to yet.
const RolePending = "pending"

type User struct {
	ID                 int64  `db:"id"`
	Username           string `db:"username"`
	PasswordHash       string `db:"password_hash"`
	DisplayName        string `db:"display_name"`
	Role               string `db:"role"`
	MustChangePassword bool   `db:"must_change_password"`
	Active             bool   `db:"active"`
}

// PublicUser is the part of a user that may leave the server.
type PublicUser struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}
}

// Claims defines the structure of the JWT claims.
type Claims struct {
	UserID             int64  `json:"user_id"`
	Username           string `json:"username"`
	DisplayName        string `json:"display_name"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
	jwt.RegisteredClaims
}
