package domain

type Role string

const (
	RoleStudent Role = "student"
	RoleWriter  Role = "writer"
	RoleAdmin   Role = "admin"
)

type User struct {
	ID       int64
	Name     string
	Email    string
	Role     Role
	Currency string
}
