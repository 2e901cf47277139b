// models/client.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Client is a paying organization (an education group or consultancy) that
// owns one or more colleges. Account managers assigned here form level one of
// every approval workflow scoped to the client or its colleges.
type Client struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name"`
	Email           string             `bson:"email" json:"email"`
	Phone           string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Country         string             `bson:"country,omitempty" json:"country,omitempty"`
	WebsiteURL      string             `bson:"websiteUrl,omitempty" json:"websiteUrl,omitempty"`
	AccountManagers []string           `bson:"accountManagers" json:"accountManagers"` // user ids (hex)

	// IsConfigured gates dispatch: deferred mutations are not applied until
	// the client's base configuration is complete.
	IsConfigured bool `bson:"isConfigured" json:"isConfigured"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
