package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates the principal roles the core distinguishes.
type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleTeacher UserRole = "TEACHER"
	RoleAdmin   UserRole = "ADMIN"
)

// JWTClaims is the authenticated principal the core receives. Token issuance
// lives in the identity service; the API only validates and reads.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
