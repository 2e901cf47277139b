// models/approval_payload.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ApprovalPayload holds the deferred domain mutation for one ApprovalRequest.
// It is owned exclusively by its request (1:1) and deleted together with it.
type ApprovalPayload struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RequestID    primitive.ObjectID  `bson:"requestId" json:"requestId"`
	ApprovalType string              `bson:"approvalType" json:"approvalType"`
	ClientID     *primitive.ObjectID `bson:"clientId,omitempty" json:"clientId,omitempty"`
	CollegeID    *primitive.ObjectID `bson:"collegeId,omitempty" json:"collegeId,omitempty"`

	// Category-specific addressing, carried alongside the opaque payload.
	ScreenType    string `bson:"screenType,omitempty" json:"screenType,omitempty"`
	DashboardType string `bson:"dashboardType,omitempty" json:"dashboardType,omitempty"`

	// IdempotencyKey lets dispatch handlers tolerate at-least-once delivery:
	// a mutation already applied under this key is a no-op on re-dispatch.
	IdempotencyKey string `bson:"idempotencyKey" json:"idempotencyKey"`

	Payload   bson.M    `bson:"payload" json:"payload"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
