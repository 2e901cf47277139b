// approval/store.go
package approval

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"admissions/models"
)

// ListFilters narrows the read paths over approval requests.
type ListFilters struct {
	Status       string
	ApprovalType string
}

// Transition is one conditional update against a request envelope. The store
// must apply it only when the document still carries FromStatus/FromLevel —
// a bare read-then-write is not acceptable here (concurrent approvers race on
// status/current_level/approvals).
type Transition struct {
	FromStatus string
	FromLevel  int

	SetStatus    string
	SetLevel     int
	SetApprovers []string // nil leaves current_approvers unchanged
	SetOpen      *bool
	SetRemarks   *string
	PushApproval *models.ApprovalEntry
	UpdatedAt    time.Time
}

// RequestStore persists approval envelopes. Insert enforces the duplication
// guard through a uniqueness constraint on the dedupe key of open requests and
// reports a violation as ErrConflict.
type RequestStore interface {
	Insert(ctx context.Context, req *models.ApprovalRequest) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.ApprovalRequest, error)
	// Apply performs the compare-and-swap transition. It returns ErrConflict
	// when the document exists but no longer matches FromStatus/FromLevel,
	// and ErrNotFound when it is gone.
	Apply(ctx context.Context, id primitive.ObjectID, t Transition) error
	// Delete removes the envelope only while it still has requiredStatus.
	Delete(ctx context.Context, id primitive.ObjectID, requiredStatus string) error
	// HasOpenByDedupeKey is the advisory pre-check that produces a friendly
	// Conflict before Insert hits the index.
	HasOpenByDedupeKey(ctx context.Context, key string, exclude primitive.ObjectID) (bool, error)
	ListBySubmitter(ctx context.Context, userID string, f ListFilters) ([]models.ApprovalRequest, error)
	// ListByApprover returns open requests whose current approver set
	// contains the user.
	ListByApprover(ctx context.Context, userID string, f ListFilters) ([]models.ApprovalRequest, error)
}

// PayloadStore persists the opaque domain data owned 1:1 by a request.
type PayloadStore interface {
	Insert(ctx context.Context, p *models.ApprovalPayload) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.ApprovalPayload, error)
	UpdateData(ctx context.Context, id primitive.ObjectID, payload bson.M, updatedAt time.Time) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// ProgressStore persists the per-organization onboarding projection.
type ProgressStore interface {
	GetByOrg(ctx context.Context, org OrgRef) (*models.OnboardingProgress, error)
	Upsert(ctx context.Context, p *models.OnboardingProgress) error
}
