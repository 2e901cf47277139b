// approval/workflow.go
package approval

import (
	"context"
	"fmt"
	"log"

	"admissions/models"
)

// WorkflowStore loads the stored, approval-type-keyed generic workflows used
// when no org-scoped workflow is resolvable.
type WorkflowStore interface {
	GenericByType(ctx context.Context, approvalType string) (*models.ApprovalWorkflow, error)
}

// WorkflowResolver derives the approval chain for an organization on demand.
// Approver sets are looked up fresh every time, never cached on a request, so
// account-manager or admin membership changes take effect immediately for any
// in-flight request reaching that level.
type WorkflowResolver struct {
	dir       Directory
	workflows WorkflowStore
}

func NewWorkflowResolver(dir Directory, workflows WorkflowStore) *WorkflowResolver {
	return &WorkflowResolver{dir: dir, workflows: workflows}
}

// Resolve produces the ordered levels for an organization and approval type:
// level 0 is the owning client's assigned account managers, level 1 is all
// platform admins. Colleges inherit the shape from their owning client.
func (r *WorkflowResolver) Resolve(ctx context.Context, org OrgRef, approvalType string) (*models.ApprovalWorkflow, error) {
	clientID := org.ClientID
	if org.Kind == OrgKindCollege {
		if org.CollegeID == nil {
			return nil, fmt.Errorf("%w: college reference missing", ErrInvalid)
		}
		college, err := r.dir.CollegeByID(ctx, *org.CollegeID)
		if err != nil {
			return nil, err
		}
		clientID = &college.ClientID
	}
	if clientID == nil {
		return r.generic(ctx, approvalType)
	}

	client, err := r.dir.ClientByID(ctx, *clientID)
	if err != nil {
		return nil, err
	}
	admins, err := r.dir.PlatformAdminIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(client.AccountManagers) == 0 || len(admins) == 0 {
		return r.generic(ctx, approvalType)
	}

	return &models.ApprovalWorkflow{
		ApprovalType: approvalType,
		Levels: []models.WorkflowLevel{
			{Level: 0, Approvers: client.AccountManagers, RequiredApprovals: 1},
			{Level: 1, Approvers: admins, RequiredApprovals: 1},
		},
	}, nil
}

func (r *WorkflowResolver) generic(ctx context.Context, approvalType string) (*models.ApprovalWorkflow, error) {
	wf, err := r.workflows.GenericByType(ctx, approvalType)
	if err != nil {
		// Workflows are system-generated; missing both the org-scoped and
		// the generic one is an integrity violation, not a user error.
		log.Printf("INTEGRITY: no approval workflow resolvable for type %s: %v", approvalType, err)
		return nil, fmt.Errorf("%w: approval workflow", ErrNotFound)
	}
	return wf, nil
}
