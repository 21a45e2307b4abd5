package domain

import "time"

// UserRole distinguishes requesters from drivers.
type UserRole string

const (
	UserRoleUser   UserRole = "user"
	UserRoleDriver UserRole = "driver"
)

// User represents a registered account. Online state is tracked by the
// presence store, not here.
type User struct {
	ID                 string
	Name               string
	Phone              string
	Email              string
	Role               UserRole
	EmailNotifications bool
	AccountActive      bool
	CreatedAt          time.Time
}

// AcceptsEmail reports whether mail may be sent to the user.
func (u *User) AcceptsEmail() bool {
	return u.AccountActive && u.EmailNotifications && u.Email != ""
}
