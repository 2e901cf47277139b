// approval/dispatcher.go
package approval

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"admissions/models"
)

// Applier is the boundary to the domain collaborators that own the deferred
// mutations. Every method must be idempotent with respect to its key: a
// mutation already applied under the same key is a silent no-op, so dispatch
// tolerates at-least-once delivery.
type Applier interface {
	ApplyCourseDetails(ctx context.Context, key string, org OrgRef, data bson.M) error
	ApplyRegistrationForm(ctx context.Context, key string, org OrgRef, data bson.M) error
	ApplyApplicationForm(ctx context.Context, key string, org OrgRef, formID string, data bson.M) error
	ApplySubscription(ctx context.Context, key string, org OrgRef, data bson.M) error
	ApplyAdditionalDetails(ctx context.Context, key string, org OrgRef, data bson.M) error
	ApplyColorTheme(ctx context.Context, key string, org OrgRef, screenType, dashboardType string, data bson.M) error
}

// SeasonChecker verifies that a college's backing season database is
// reachable before a college-scoped mutation is applied.
type SeasonChecker interface {
	Reachable(ctx context.Context, seasonDB string) error
}

// Handler applies the deferred mutation for one approval type.
type Handler func(ctx context.Context, org OrgRef, p *models.ApprovalPayload) error

// Dispatcher is the closed, type-keyed table of approved-request handlers.
// It is invoked exactly once per request, on the transition into approved;
// the single level-advancing CAS in the engine gates that.
type Dispatcher struct {
	dir      Directory
	seasons  SeasonChecker
	handlers map[string]Handler
}

// NewDispatcher binds every registered approval type to its handler.
// Construction fails if any registered type is left without a handler, which
// keeps the table exhaustive as types are added.
func NewDispatcher(dir Directory, seasons SeasonChecker, applier Applier) (*Dispatcher, error) {
	d := &Dispatcher{
		dir:     dir,
		seasons: seasons,
		handlers: map[string]Handler{
			TypeCourseDetails: func(ctx context.Context, org OrgRef, p *models.ApprovalPayload) error {
				return applier.ApplyCourseDetails(ctx, p.IdempotencyKey, org, p.Payload)
			},
			TypeCollegeCourseDetails: func(ctx context.Context, org OrgRef, p *models.ApprovalPayload) error {
				return applier.ApplyCourseDetails(ctx, p.IdempotencyKey, org, p.Payload)
			},
			TypeRegistrationForm: func(ctx context.Context, org OrgRef, p *models.ApprovalPayload) error {
				return applier.ApplyRegistrationForm(ctx, p.IdempotencyKey, org, p.Payload)
			},
			TypeApplicationForm: func(ctx context.Context, org OrgRef, p *models.ApprovalPayload) error {
				formID, _ := p.Payload["form_id"].(string)
				return applier.ApplyApplicationForm(ctx, p.IdempotencyKey, org, formID, p.Payload)
			},
			TypeSubscription: func(ctx context.Context, org OrgRef, p *models.ApprovalPayload) error {
				return applier.ApplySubscription(ctx, p.IdempotencyKey, org, p.Payload)
			},
			TypeCollegeSubscription: func(ctx context.Context, org OrgRef, p *models.ApprovalPayload) error {
				return applier.ApplySubscription(ctx, p.IdempotencyKey, org, p.Payload)
			},
			TypeAdditionalDetails: func(ctx context.Context, org OrgRef, p *models.ApprovalPayload) error {
				return applier.ApplyAdditionalDetails(ctx, p.IdempotencyKey, org, p.Payload)
			},
			TypeColorTheme: func(ctx context.Context, org OrgRef, p *models.ApprovalPayload) error {
				return applier.ApplyColorTheme(ctx, p.IdempotencyKey, org, p.ScreenType, p.DashboardType, p.Payload)
			},
		},
	}
	for _, name := range RegisteredTypes() {
		if _, ok := d.handlers[name]; !ok {
			return nil, fmt.Errorf("approval: no dispatch handler for type %s", name)
		}
	}
	return d, nil
}

// Dispatch re-validates organization preconditions and applies the deferred
// mutation. Precondition failures surface as ErrUnavailable and must leave
// the request in its pre-dispatch state, so the caller only flips the status
// after Dispatch returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, org OrgRef, p *models.ApprovalPayload) error {
	h, ok := d.handlers[p.ApprovalType]
	if !ok {
		return fmt.Errorf("%w: approval type %q has no dispatch handler", ErrInvalid, p.ApprovalType)
	}
	if !org.Configured {
		return fmt.Errorf("%w: organization %s is not configured yet", ErrUnavailable, org.Name)
	}
	if org.Kind == OrgKindCollege && org.CollegeID != nil {
		college, err := d.dir.CollegeByID(ctx, *org.CollegeID)
		if err != nil {
			return err
		}
		if err := d.seasons.Reachable(ctx, college.SeasonDB); err != nil {
			return fmt.Errorf("%w: season database %q: %v", ErrUnavailable, college.SeasonDB, err)
		}
	}
	return h(ctx, org, p)
}
