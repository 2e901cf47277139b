// approval/onboarding.go
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"admissions/models"
)

// ProgressTracker maintains the per-organization onboarding projection from
// approval lifecycle events.
type ProgressTracker struct {
	store ProgressStore
}

func NewProgressTracker(store ProgressStore) *ProgressTracker {
	return &ProgressTracker{store: store}
}

// StepUpdate carries one step change into UpsertStep.
type StepUpdate struct {
	Step        string
	Status      string
	RequestedBy string
	RequestOf   string
	RequestID   *primitive.ObjectID
	Remarks     string
	// IsLastStep signals that the organization considers this its final
	// onboarding item. Step order is not fixed, so the rollup must tolerate
	// the last-submitted step being approved before earlier ones; the flag
	// triggers the same recomputation an Approved step does.
	IsLastStep bool
}

// UpsertStep records a step transition and recomputes the organization
// rollup. A missing progress record is seeded with the synthetic
// create_client/create_college step marked Done — organizations created
// before this projection existed still get a coherent record.
func (t *ProgressTracker) UpsertStep(ctx context.Context, org OrgRef, u StepUpdate) error {
	now := time.Now().UTC()

	p, err := t.store.GetByOrg(ctx, org)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		p = t.seed(org, now)
	default:
		return err
	}

	step := p.Steps[u.Step]
	step.Status = u.Status
	step.UpdatedAt = now
	if u.Status == models.StepInProgress {
		step.RequestedBy = u.RequestedBy
		step.RequestOf = u.RequestOf
		step.RequestID = u.RequestID
	}
	if u.Status == models.StepRejected {
		step.Remarks = u.Remarks
	}
	p.Steps[u.Step] = step

	switch {
	case u.Status == models.StepRejected:
		// Rejection does not terminate onboarding; the org may resubmit.
		p.Status = models.OnboardingInProgress
	case u.Status == models.StepApproved || u.IsLastStep:
		p.Status = t.rollup(p)
	}
	p.UpdatedAt = now

	return t.store.Upsert(ctx, p)
}

// Seed creates the initial progress record when an organization is created.
func (t *ProgressTracker) Seed(ctx context.Context, org OrgRef) error {
	p := t.seed(org, time.Now().UTC())
	return t.store.Upsert(ctx, p)
}

// Progress returns the projection for an organization.
func (t *ProgressTracker) Progress(ctx context.Context, org OrgRef) (*models.OnboardingProgress, error) {
	p, err := t.store.GetByOrg(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("onboarding progress for %s: %w", org.Key(), err)
	}
	return p, nil
}

func (t *ProgressTracker) seed(org OrgRef, now time.Time) *models.OnboardingProgress {
	createStep := models.StepCreateClient
	if org.Kind == OrgKindCollege {
		createStep = models.StepCreateCollege
	}
	return &models.OnboardingProgress{
		ClientID:  org.ClientID,
		CollegeID: org.CollegeID,
		Status:    models.OnboardingInProgress,
		Steps: map[string]models.OnboardingStep{
			createStep: {Status: models.StepDone, UpdatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// rollup computes the organization status: Approved only when every step is
// Approved or Done, otherwise Partially Approved.
func (t *ProgressTracker) rollup(p *models.OnboardingProgress) string {
	for _, s := range p.Steps {
		if s.Status != models.StepApproved && s.Status != models.StepDone {
			return models.OnboardingPartiallyApproved
		}
	}
	return models.OnboardingApproved
}
