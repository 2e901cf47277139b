// models/college.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// College is an institution owned by a client. Approval workflows for a
// college are derived transitively from its owning client.
type College struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClientID primitive.ObjectID `bson:"clientId" json:"clientId"`
	Name     string             `bson:"name" json:"name"`
	Email    string             `bson:"email,omitempty" json:"email,omitempty"`
	Phone    string             `bson:"phone,omitempty" json:"phone,omitempty"`
	City     string             `bson:"city,omitempty" json:"city,omitempty"`
	State    string             `bson:"state,omitempty" json:"state,omitempty"`

	// SeasonDB names the college's backing season database. College-scoped
	// mutations cannot be dispatched while it is unreachable.
	SeasonDB string `bson:"seasonDb,omitempty" json:"seasonDb,omitempty"`

	IsConfigured bool `bson:"isConfigured" json:"isConfigured"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
