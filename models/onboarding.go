// models/onboarding.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Per-step onboarding statuses.
const (
	StepInProgress = "In Progress"
	StepApproved   = "Approved"
	StepRejected   = "Rejected"
	StepDone       = "Done"
)

// Organization rollup statuses.
const (
	OnboardingInProgress        = "In Progress"
	OnboardingPartiallyApproved = "Partially Approved"
	OnboardingApproved          = "Approved"
)

// Synthetic steps seeded when the organization itself is created.
const (
	StepCreateClient  = "create_client"
	StepCreateCollege = "create_college"
)

// OnboardingStep records the state of one setup step for an organization.
// RequestID is stored when the step goes In Progress so a later rejection can
// be correlated back to its step.
type OnboardingStep struct {
	Status      string              `bson:"status" json:"status"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updatedAt"`
	RequestedBy string              `bson:"requestedBy,omitempty" json:"requestedBy,omitempty"`
	RequestID   *primitive.ObjectID `bson:"requestId,omitempty" json:"requestId,omitempty"`
	RequestOf   string              `bson:"requestOf,omitempty" json:"requestOf,omitempty"`
	Remarks     string              `bson:"remarks,omitempty" json:"remarks,omitempty"`
}

// OnboardingProgress is a per-organization projection of setup status, derived
// from approval lifecycle events. It is keyed by exactly one of
// ClientID/CollegeID and is rebuilt step by step — it never owns, and is never
// owned by, an ApprovalRequest.
type OnboardingProgress struct {
	ID        primitive.ObjectID        `bson:"_id,omitempty" json:"id"`
	ClientID  *primitive.ObjectID       `bson:"clientId,omitempty" json:"clientId,omitempty"`
	CollegeID *primitive.ObjectID       `bson:"collegeId,omitempty" json:"collegeId,omitempty"`
	Status    string                    `bson:"status" json:"status"`
	Steps     map[string]OnboardingStep `bson:"steps" json:"steps"`
	CreatedAt time.Time                 `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time                 `bson:"updatedAt" json:"updatedAt"`
}
