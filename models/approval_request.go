// models/approval_request.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Approval request lifecycle statuses.
const (
	StatusPending           = "pending"
	StatusPartiallyApproved = "partially_approved"
	StatusApproved          = "approved"
	StatusRejected          = "rejected"
)

// ApprovalEntry is one approver action. The approvals array on a request is
// append-only: entries are never edited or removed.
type ApprovalEntry struct {
	ApproverID string    `bson:"approverId" json:"approverId"`
	Level      int       `bson:"level" json:"level"`
	Status     string    `bson:"status" json:"status"` // approved, rejected
	Comments   string    `bson:"comments,omitempty" json:"comments,omitempty"`
	ApprovedAt time.Time `bson:"approvedAt" json:"approvedAt"`
}

// TimelineSnapshot preserves the terminal state of a request that was
// deleted-and-recreated under the same id (edit and resend).
type TimelineSnapshot struct {
	Status    string          `bson:"status" json:"status"`
	Remarks   string          `bson:"remarks,omitempty" json:"remarks,omitempty"`
	Approvals []ApprovalEntry `bson:"approvals" json:"approvals"`
	UpdatedAt time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// ApprovalRequest is the routing/state envelope. The domain data awaiting
// approval lives in a separate ApprovalPayload document so arbitrarily shaped
// payloads never pollute the query model.
//
// Exactly one of ClientID/CollegeID is set.
type ApprovalRequest struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ApprovalType string              `bson:"approvalType" json:"approvalType"`
	ClientID     *primitive.ObjectID `bson:"clientId,omitempty" json:"clientId,omitempty"`
	CollegeID    *primitive.ObjectID `bson:"collegeId,omitempty" json:"collegeId,omitempty"`
	PayloadID    primitive.ObjectID  `bson:"payloadId" json:"payloadId"`

	// Submitter snapshot, immutable after creation.
	SubmittedBy        string `bson:"submittedBy" json:"submittedBy"`
	SubmittedByName    string `bson:"submittedByName" json:"submittedByName"`
	SubmittedByEmail   string `bson:"submittedByEmail" json:"submittedByEmail"`
	SubmittedByMobile  string `bson:"submittedByMobile,omitempty" json:"submittedByMobile,omitempty"`
	SubmittedByOrgName string `bson:"submittedByOrgName,omitempty" json:"submittedByOrgName,omitempty"`

	CurrentApprovers []string        `bson:"currentApprovers" json:"currentApprovers"`
	CurrentLevel     int             `bson:"currentLevel" json:"currentLevel"`
	Status           string          `bson:"status" json:"status"`
	Approvals        []ApprovalEntry `bson:"approvals" json:"approvals"`

	PreviousTimeline []TimelineSnapshot `bson:"previousTimeline,omitempty" json:"previousTimeline,omitempty"`
	Remarks          string             `bson:"remarks,omitempty" json:"remarks,omitempty"`

	// DedupeKey/Open back the store-level duplication guard: a unique partial
	// index on dedupeKey where open is true. Open mirrors
	// status ∈ {pending, partially_approved} and must be flipped in the same
	// update as any terminal status write.
	DedupeKey string `bson:"dedupeKey" json:"-"`
	Open      bool   `bson:"open" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Terminal reports whether no further actions are allowed on the request.
func (a *ApprovalRequest) Terminal() bool {
	return a.Status == StatusApproved || a.Status == StatusRejected
}

// Snapshot captures the request's resolution for the previous_timeline of a
// re-submitted request.
func (a *ApprovalRequest) Snapshot() TimelineSnapshot {
	return TimelineSnapshot{
		Status:    a.Status,
		Remarks:   a.Remarks,
		Approvals: a.Approvals,
		UpdatedAt: a.UpdatedAt,
	}
}
