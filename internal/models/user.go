package models

// UserRole is the coarse authorization role carried by the auth token. The
// service trusts the gateway's verification and only branches on the role.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)
