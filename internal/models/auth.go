package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the access token payload issued by the identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	// StudentIDs lists the students a STUDENT or PARENT token may read.
	StudentIDs []string `json:"student_ids,omitempty"`
	jwt.RegisteredClaims
}

// CanRead reports whether the caller may view data belonging to studentID.
func (c *JWTClaims) CanRead(studentID string) bool {
	if c == nil {
		return false
	}
	switch c.Role {
	case RoleAdmin, RoleTeacher:
		return true
	}
	for _, id := range c.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}
