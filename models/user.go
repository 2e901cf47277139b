// models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Platform roles. Role/permission computation happens upstream; the approval
// engine only consumes the resolved role carried here.
const (
	RoleSuperAdmin     = "super_admin"
	RoleAdmin          = "admin"
	RoleAccountManager = "account_manager"
	RoleClientAdmin    = "client_admin"
	RoleCollegeAdmin   = "college_admin"
	RoleCounselor      = "counselor"
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FirstName    string             `bson:"firstName" json:"firstName"`
	LastName     string             `bson:"lastName" json:"lastName"`
	Email        string             `bson:"email" json:"email"`
	Mobile       string             `bson:"mobile,omitempty" json:"mobile,omitempty"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	Role         string             `bson:"role" json:"role"`

	// Direct organization association. Platform staff (admins, account
	// managers) carry neither and act on behalf of organizations instead.
	ClientID   *primitive.ObjectID  `bson:"clientId,omitempty" json:"clientId,omitempty"`
	CollegeIDs []primitive.ObjectID `bson:"collegeIds,omitempty" json:"collegeIds,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// FullName returns the display name used for submitter snapshots.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsPlatformAdmin reports whether the user holds a platform-admin role.
func (u *User) IsPlatformAdmin() bool {
	return u.Role == RoleSuperAdmin || u.Role == RoleAdmin
}
