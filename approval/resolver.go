// approval/resolver.go
package approval

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"admissions/models"
)

// OrgRef identifies the single organization a request is scoped to.
// Exactly one of ClientID/CollegeID is set.
type OrgRef struct {
	Kind       string
	ClientID   *primitive.ObjectID
	CollegeID  *primitive.ObjectID
	Name       string
	Configured bool
}

// Key returns the stable string form used for dedupe keys and grouping.
func (o OrgRef) Key() string {
	if o.Kind == OrgKindCollege && o.CollegeID != nil {
		return "college:" + o.CollegeID.Hex()
	}
	if o.ClientID != nil {
		return "client:" + o.ClientID.Hex()
	}
	return ""
}

// Directory is the boundary to the organization CRUD collaborator: lookups of
// clients, colleges, platform-admin membership and per-user visibility. The
// engine never mutates organizations through it.
type Directory interface {
	ClientByID(ctx context.Context, id primitive.ObjectID) (*models.Client, error)
	CollegeByID(ctx context.Context, id primitive.ObjectID) (*models.College, error)
	// PlatformAdminIDs returns the ids of all users holding a platform-admin
	// role, looked up fresh on every call.
	PlatformAdminIDs(ctx context.Context) ([]string, error)
	// VisibleTo reports whether the user's visible-organization set contains
	// the given organization.
	VisibleTo(ctx context.Context, user *models.User, org OrgRef) (bool, error)
}

// OrganizationResolver determines which organization a request is scoped to:
// the acting user's direct association first, payload-embedded ids as the
// fallback for platform staff acting on behalf of an organization.
type OrganizationResolver struct {
	dir Directory
}

func NewOrganizationResolver(dir Directory) *OrganizationResolver {
	return &OrganizationResolver{dir: dir}
}

// Resolve maps the acting user plus optional explicit ids to an OrgRef.
// Malformed or unknown ids fail with ErrNotFound.
func (r *OrganizationResolver) Resolve(ctx context.Context, user *models.User, clientHex, collegeHex string) (OrgRef, error) {
	if user != nil && len(user.CollegeIDs) > 0 {
		id := user.CollegeIDs[0]
		// Users attached to several colleges pick one explicitly; an id
		// outside their associations is refused, never silently remapped.
		if collegeHex != "" {
			parsed, err := parseOrgID(collegeHex)
			if err != nil {
				return OrgRef{}, err
			}
			member := false
			for _, cid := range user.CollegeIDs {
				if cid == parsed {
					member = true
					break
				}
			}
			if !member {
				return OrgRef{}, fmt.Errorf("%w: college %s is outside the user's associations", ErrForbidden, collegeHex)
			}
			id = parsed
		}
		return r.college(ctx, id)
	}
	if user != nil && user.ClientID != nil {
		return r.client(ctx, *user.ClientID)
	}
	if collegeHex != "" {
		id, err := parseOrgID(collegeHex)
		if err != nil {
			return OrgRef{}, err
		}
		return r.college(ctx, id)
	}
	if clientHex != "" {
		id, err := parseOrgID(clientHex)
		if err != nil {
			return OrgRef{}, err
		}
		return r.client(ctx, id)
	}
	return OrgRef{}, fmt.Errorf("%w: organization reference required", ErrInvalid)
}

// ResolveRequest rebuilds the OrgRef for a persisted request envelope.
func (r *OrganizationResolver) ResolveRequest(ctx context.Context, req *models.ApprovalRequest) (OrgRef, error) {
	if req.CollegeID != nil {
		return r.college(ctx, *req.CollegeID)
	}
	if req.ClientID != nil {
		return r.client(ctx, *req.ClientID)
	}
	return OrgRef{}, fmt.Errorf("%w: request %s has no organization reference", ErrInvalid, req.ID.Hex())
}

func (r *OrganizationResolver) client(ctx context.Context, id primitive.ObjectID) (OrgRef, error) {
	c, err := r.dir.ClientByID(ctx, id)
	if err != nil {
		return OrgRef{}, err
	}
	return OrgRef{Kind: OrgKindClient, ClientID: &c.ID, Name: c.Name, Configured: c.IsConfigured}, nil
}

func (r *OrganizationResolver) college(ctx context.Context, id primitive.ObjectID) (OrgRef, error) {
	c, err := r.dir.CollegeByID(ctx, id)
	if err != nil {
		return OrgRef{}, err
	}
	return OrgRef{Kind: OrgKindCollege, CollegeID: &c.ID, Name: c.Name, Configured: c.IsConfigured}, nil
}

func parseOrgID(hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: organization id %q", ErrNotFound, hex)
	}
	return id, nil
}
