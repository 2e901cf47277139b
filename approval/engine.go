// approval/engine.go
package approval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"admissions/models"
)

// Decide actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// CanBypassApproval is the single capability predicate for the direct-apply
// path: callers holding it never enter the engine and apply mutations
// immediately. That branch lives at the call site, not in the state machine.
func CanBypassApproval(u *models.User) bool {
	return u != nil && u.IsPlatformAdmin()
}

// Engine owns the approval request lifecycle: create, approve, reject,
// delete, update, and the read paths over them. All transitions are
// synchronous, caller-driven operations against the document store.
type Engine struct {
	requests   RequestStore
	payloads   PayloadStore
	dir        Directory
	orgs       *OrganizationResolver
	workflows  *WorkflowResolver
	dispatcher *Dispatcher
	tracker    *ProgressTracker
}

// EngineDeps wires the engine's collaborators.
type EngineDeps struct {
	Requests  RequestStore
	Payloads  PayloadStore
	Workflows WorkflowStore
	Progress  ProgressStore
	Directory Directory
	Applier   Applier
	Seasons   SeasonChecker
}

func NewEngine(d EngineDeps) (*Engine, error) {
	dispatcher, err := NewDispatcher(d.Directory, d.Seasons, d.Applier)
	if err != nil {
		return nil, err
	}
	return &Engine{
		requests:   d.Requests,
		payloads:   d.Payloads,
		dir:        d.Directory,
		orgs:       NewOrganizationResolver(d.Directory),
		workflows:  NewWorkflowResolver(d.Directory, d.Workflows),
		dispatcher: dispatcher,
		tracker:    NewProgressTracker(d.Progress),
	}, nil
}

// Tracker exposes the onboarding projection for boundary handlers (seeding on
// organization creation, progress reads).
func (e *Engine) Tracker() *ProgressTracker { return e.tracker }

// CreateInput is one submission of a configuration change for approval.
type CreateInput struct {
	ApprovalType  string `json:"approvalType"`
	ApprovalID    string `json:"approvalId,omitempty"` // set on re-submission
	ClientID      string `json:"clientId,omitempty"`
	CollegeID     string `json:"collegeId,omitempty"`
	ScreenType    string `json:"screenType,omitempty"`
	DashboardType string `json:"dashboardType,omitempty"`
	IsLastStep    bool   `json:"isLastStep,omitempty"`
	Payload       bson.M `json:"payload"`
}

type CreateResult struct {
	ApprovalID primitive.ObjectID `json:"approvalId"`
	Message    string             `json:"message"`
}

// Create validates, routes and persists a new approval request. When
// ApprovalID names an existing request the prior one is deleted and its
// terminal snapshot carried into the new request's previous_timeline — edit
// and resend without losing audit history.
func (e *Engine) Create(ctx context.Context, user *models.User, in CreateInput) (*CreateResult, error) {
	spec, ok := LookupType(in.ApprovalType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown approval type %q", ErrInvalid, in.ApprovalType)
	}

	org, err := e.orgs.Resolve(ctx, user, in.ClientID, in.CollegeID)
	if err != nil {
		return nil, err
	}
	if org.Kind != spec.OrgKind {
		return nil, fmt.Errorf("%w: approval type %s is %s-scoped", ErrInvalid, spec.Name, spec.OrgKind)
	}

	var prior *models.ApprovalRequest
	reqID := primitive.NewObjectID()
	if in.ApprovalID != "" {
		id, err := primitive.ObjectIDFromHex(in.ApprovalID)
		if err != nil {
			return nil, fmt.Errorf("%w: approval id %q", ErrInvalid, in.ApprovalID)
		}
		prior, err = e.requests.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if prior.SubmittedBy != user.ID.Hex() {
			return nil, fmt.Errorf("%w: only the submitter can resubmit request %s", ErrForbidden, id.Hex())
		}
		if prior.Status == models.StatusApproved {
			return nil, fmt.Errorf("%w: request %s is already approved and applied", ErrConflict, id.Hex())
		}
		if !sameOrg(prior, org) {
			return nil, fmt.Errorf("%w: request %s belongs to a different organization", ErrInvalid, id.Hex())
		}
		reqID = id
	}

	dedupe := spec.dedupeKey(org, in.Payload, reqID.Hex())
	if prior == nil {
		// Advisory pre-check for a friendly error; the unique partial index
		// behind Insert is what makes the guard correct under races.
		dup, err := e.requests.HasOpenByDedupeKey(ctx, dedupe, primitive.NilObjectID)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, fmt.Errorf("%w: a pending %s request already exists for %s", ErrConflict, spec.Name, org.Name)
		}
	}

	wf, err := e.workflows.Resolve(ctx, org, spec.Name)
	if err != nil {
		return nil, err
	}
	if len(wf.Levels) == 0 {
		return nil, fmt.Errorf("%w: approval workflow for %s has no levels", ErrInvalid, spec.Name)
	}

	now := time.Now().UTC()
	req := &models.ApprovalRequest{
		ID:           reqID,
		ApprovalType: spec.Name,
		ClientID:     org.ClientID,
		CollegeID:    org.CollegeID,

		SubmittedBy:        user.ID.Hex(),
		SubmittedByName:    user.FullName(),
		SubmittedByEmail:   user.Email,
		SubmittedByMobile:  user.Mobile,
		SubmittedByOrgName: org.Name,

		CurrentApprovers: wf.Levels[0].Approvers,
		CurrentLevel:     0,
		Status:           models.StatusPending,
		Approvals:        []models.ApprovalEntry{},

		DedupeKey: dedupe,
		Open:      true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if prior != nil {
		req.PreviousTimeline = append([]models.TimelineSnapshot{prior.Snapshot()}, prior.PreviousTimeline...)
		if err := e.payloads.Delete(ctx, prior.PayloadID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err := e.requests.Delete(ctx, prior.ID, prior.Status); err != nil {
			return nil, err
		}
	}

	// Payload first, then the envelope with the reference attached. The
	// envelope carries typed org refs only; the opaque payload and its
	// addressing fields never leak into the routing document.
	payload := &models.ApprovalPayload{
		ID:             primitive.NewObjectID(),
		RequestID:      reqID,
		ApprovalType:   spec.Name,
		ClientID:       org.ClientID,
		CollegeID:      org.CollegeID,
		ScreenType:     in.ScreenType,
		DashboardType:  in.DashboardType,
		IdempotencyKey: uuid.NewString(),
		Payload:        in.Payload,
		CreatedAt:      now,
	}
	if err := e.payloads.Insert(ctx, payload); err != nil {
		return nil, err
	}
	req.PayloadID = payload.ID
	if err := e.requests.Insert(ctx, req); err != nil {
		if derr := e.payloads.Delete(ctx, payload.ID); derr != nil {
			log.Printf("Create - orphan payload %s cleanup failed: %v", payload.ID.Hex(), derr)
		}
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: a pending %s request already exists for %s", ErrConflict, spec.Name, org.Name)
		}
		return nil, err
	}

	e.trackStep(ctx, org, StepUpdate{
		Step:        spec.Step,
		Status:      models.StepInProgress,
		RequestedBy: user.FullName(),
		RequestOf:   spec.Name,
		RequestID:   &reqID,
		IsLastStep:  in.IsLastStep,
	})

	return &CreateResult{ApprovalID: reqID, Message: "approval request sent"}, nil
}

// ApplyDirect applies a configuration change immediately for callers holding
// the bypass capability. It rides the same dispatch path as a final-level
// approve, so the configured and season-database gates still apply.
func (e *Engine) ApplyDirect(ctx context.Context, user *models.User, in CreateInput) error {
	spec, ok := LookupType(in.ApprovalType)
	if !ok {
		return fmt.Errorf("%w: unknown approval type %q", ErrInvalid, in.ApprovalType)
	}
	org, err := e.orgs.Resolve(ctx, user, in.ClientID, in.CollegeID)
	if err != nil {
		return err
	}
	if org.Kind != spec.OrgKind {
		return fmt.Errorf("%w: approval type %s is %s-scoped", ErrInvalid, spec.Name, spec.OrgKind)
	}
	payload := &models.ApprovalPayload{
		ID:             primitive.NewObjectID(),
		ApprovalType:   spec.Name,
		ClientID:       org.ClientID,
		CollegeID:      org.CollegeID,
		ScreenType:     in.ScreenType,
		DashboardType:  in.DashboardType,
		IdempotencyKey: uuid.NewString(),
		Payload:        in.Payload,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.dispatcher.Dispatch(ctx, org, payload); err != nil {
		return err
	}
	e.trackStep(ctx, org, StepUpdate{Step: spec.Step, Status: models.StepDone, IsLastStep: in.IsLastStep})
	return nil
}

// Decide routes an approver action to Approve or Reject.
func (e *Engine) Decide(ctx context.Context, user *models.User, id primitive.ObjectID, action, remarks string) (string, error) {
	switch action {
	case ActionApprove:
		return e.Approve(ctx, user, id, remarks)
	case ActionReject:
		return e.Reject(ctx, user, id, remarks)
	default:
		return "", fmt.Errorf("%w: action must be approve or reject", ErrInvalid)
	}
}

// Approve records one approval at the request's current level. When the level
// is satisfied it advances to the next one; on the final level the deferred
// mutation is dispatched before the status flips, so a dispatch failure
// leaves the request actionable and a retried approve resumes correctly.
func (e *Engine) Approve(ctx context.Context, user *models.User, id primitive.ObjectID, remarks string) (string, error) {
	req, err := e.requests.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if req.Terminal() {
		return "", fmt.Errorf("%w: request already %s", ErrConflict, req.Status)
	}
	if !containsID(req.CurrentApprovers, user.ID.Hex()) {
		return "", fmt.Errorf("%w: not an approver for the current level", ErrForbidden)
	}

	org, err := e.orgs.ResolveRequest(ctx, req)
	if err != nil {
		return "", err
	}
	// The workflow is resolved fresh, never cached on the request, so the
	// authoritative level count and next-level approver set reflect current
	// membership.
	wf, err := e.workflows.Resolve(ctx, org, req.ApprovalType)
	if err != nil {
		return "", err
	}
	if req.CurrentLevel >= len(wf.Levels) {
		return "", fmt.Errorf("%w: request level %d exceeds workflow", ErrInvalid, req.CurrentLevel)
	}

	now := time.Now().UTC()
	entry := models.ApprovalEntry{
		ApproverID: user.ID.Hex(),
		Level:      req.CurrentLevel,
		Status:     models.StatusApproved,
		Comments:   remarks,
		ApprovedAt: now,
	}

	// One vote per approver per level. Entries are distinct by construction,
	// so counting them counts distinct approvers.
	approvedHere := 1
	for _, a := range req.Approvals {
		if a.Level != req.CurrentLevel || a.Status != models.StatusApproved {
			continue
		}
		if a.ApproverID == entry.ApproverID {
			return "", fmt.Errorf("%w: approval already recorded at level %d", ErrConflict, req.CurrentLevel)
		}
		approvedHere++
	}
	if approvedHere < wf.Levels[req.CurrentLevel].RequiredApprovals {
		t := Transition{
			FromStatus: req.Status, FromLevel: req.CurrentLevel,
			SetStatus: req.Status, SetLevel: req.CurrentLevel,
			PushApproval: &entry, UpdatedAt: now,
		}
		if err := e.requests.Apply(ctx, id, t); err != nil {
			return "", err
		}
		return "approval recorded", nil
	}

	if req.CurrentLevel < len(wf.Levels)-1 {
		next := wf.Levels[req.CurrentLevel+1]
		t := Transition{
			FromStatus: req.Status, FromLevel: req.CurrentLevel,
			SetStatus: models.StatusPartiallyApproved, SetLevel: req.CurrentLevel + 1,
			SetApprovers: next.Approvers,
			PushApproval: &entry, UpdatedAt: now,
		}
		if err := e.requests.Apply(ctx, id, t); err != nil {
			return "", err
		}
		return "approved, moved to next level", nil
	}

	// Final level: dispatch before the status flip. If dispatch fails the
	// request stays at its current level and the approve can be retried.
	payload, err := e.payloads.Get(ctx, req.PayloadID)
	if err != nil {
		return "", err
	}
	if err := e.dispatcher.Dispatch(ctx, org, payload); err != nil {
		return "", err
	}
	open := false
	t := Transition{
		FromStatus: req.Status, FromLevel: req.CurrentLevel,
		SetStatus: models.StatusApproved, SetLevel: req.CurrentLevel,
		SetOpen: &open, SetRemarks: &remarks,
		PushApproval: &entry, UpdatedAt: now,
	}
	if err := e.requests.Apply(ctx, id, t); err != nil {
		// Dispatch already ran; handlers are idempotent by key, so a caller
		// retry after this conflict is safe.
		return "", err
	}

	if spec, ok := LookupType(req.ApprovalType); ok {
		e.trackStep(ctx, org, StepUpdate{Step: spec.Step, Status: models.StepApproved})
	}
	return "approval request approved", nil
}

// Reject terminates the request immediately. Any approver at the current
// level may reject regardless of how far the request has advanced; the
// dispatcher is never invoked.
func (e *Engine) Reject(ctx context.Context, user *models.User, id primitive.ObjectID, remarks string) (string, error) {
	req, err := e.requests.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if req.Terminal() {
		return "", fmt.Errorf("%w: request already %s", ErrConflict, req.Status)
	}
	if !containsID(req.CurrentApprovers, user.ID.Hex()) {
		return "", fmt.Errorf("%w: not an approver for the current level", ErrForbidden)
	}

	org, err := e.orgs.ResolveRequest(ctx, req)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	entry := models.ApprovalEntry{
		ApproverID: user.ID.Hex(),
		Level:      req.CurrentLevel,
		Status:     models.StatusRejected,
		Comments:   remarks,
		ApprovedAt: now,
	}
	open := false
	t := Transition{
		FromStatus: req.Status, FromLevel: req.CurrentLevel,
		SetStatus: models.StatusRejected, SetLevel: req.CurrentLevel,
		SetOpen: &open, SetRemarks: &remarks,
		PushApproval: &entry, UpdatedAt: now,
	}
	if err := e.requests.Apply(ctx, id, t); err != nil {
		return "", err
	}

	if spec, ok := LookupType(req.ApprovalType); ok {
		e.trackStep(ctx, org, StepUpdate{Step: spec.Step, Status: models.StepRejected, Remarks: remarks})
	}
	return "approval request rejected", nil
}

// DeleteSent removes a submitter's own request while it is still pending,
// cascading to its payload.
func (e *Engine) DeleteSent(ctx context.Context, user *models.User, id primitive.ObjectID) error {
	req, err := e.requests.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.SubmittedBy != user.ID.Hex() {
		return fmt.Errorf("%w: only the submitter can delete a request", ErrForbidden)
	}
	if req.Status != models.StatusPending {
		return fmt.Errorf("%w: only pending requests can be deleted", ErrConflict)
	}
	if err := e.requests.Delete(ctx, id, models.StatusPending); err != nil {
		return err
	}
	if err := e.payloads.Delete(ctx, req.PayloadID); err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("DeleteSent - payload %s cleanup failed: %v", req.PayloadID.Hex(), err)
	}
	return nil
}

// UpdateSent replaces the pending payload of a submitter's own request.
func (e *Engine) UpdateSent(ctx context.Context, user *models.User, id primitive.ObjectID, payload bson.M) error {
	req, err := e.requests.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.SubmittedBy != user.ID.Hex() {
		return fmt.Errorf("%w: only the submitter can update a request", ErrForbidden)
	}
	if req.Status != models.StatusPending {
		return fmt.Errorf("%w: only pending requests can be updated", ErrConflict)
	}
	now := time.Now().UTC()
	if err := e.payloads.UpdateData(ctx, req.PayloadID, payload, now); err != nil {
		return err
	}
	t := Transition{
		FromStatus: req.Status, FromLevel: req.CurrentLevel,
		SetStatus: req.Status, SetLevel: req.CurrentLevel,
		UpdatedAt: now,
	}
	return e.requests.Apply(ctx, id, t)
}

// RequestedData returns the payload awaiting approval. Access is limited to
// the submitter, a current approver, or a user whose visible-organization set
// contains the request's organization.
func (e *Engine) RequestedData(ctx context.Context, user *models.User, id primitive.ObjectID) (*models.ApprovalPayload, error) {
	req, err := e.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := req.SubmittedBy == user.ID.Hex() || containsID(req.CurrentApprovers, user.ID.Hex())
	if !allowed {
		org, err := e.orgs.ResolveRequest(ctx, req)
		if err != nil {
			return nil, err
		}
		visible, err := e.dir.VisibleTo(ctx, user, org)
		if err != nil {
			return nil, err
		}
		allowed = visible
	}
	if !allowed {
		return nil, fmt.Errorf("%w: no access to this approval request", ErrForbidden)
	}
	return e.payloads.Get(ctx, req.PayloadID)
}

// RequestView is a list item tagged with whether the reader may act on it.
type RequestView struct {
	models.ApprovalRequest
	CanApproveOrReject bool `json:"canApproveOrReject"`
}

// OrgGroup is the per-organization document array, sorted by the fixed
// approval-type precedence.
type OrgGroup struct {
	OrgKey   string        `json:"orgKey"`
	OrgName  string        `json:"orgName,omitempty"`
	Requests []RequestView `json:"requests"`
}

type ListResult struct {
	Requests      []RequestView `json:"requests"`
	Organizations []OrgGroup    `json:"organizations"`
	Total         int           `json:"total"`
	Page          int           `json:"page"`
	Limit         int           `json:"limit"`
}

// List combines "requests I submitted" with "requests awaiting my approval",
// newest first, and assembles the per-organization grouping.
func (e *Engine) List(ctx context.Context, user *models.User, f ListFilters, page, limit int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	mine, err := e.requests.ListBySubmitter(ctx, user.ID.Hex(), f)
	if err != nil {
		return nil, err
	}
	awaiting, err := e.requests.ListByApprover(ctx, user.ID.Hex(), f)
	if err != nil {
		return nil, err
	}

	seen := make(map[primitive.ObjectID]int, len(mine)+len(awaiting))
	views := make([]RequestView, 0, len(mine)+len(awaiting))
	for _, r := range mine {
		seen[r.ID] = len(views)
		views = append(views, RequestView{ApprovalRequest: r})
	}
	for _, r := range awaiting {
		if i, ok := seen[r.ID]; ok {
			views[i].CanApproveOrReject = !views[i].Terminal()
			continue
		}
		views = append(views, RequestView{ApprovalRequest: r, CanApproveOrReject: !r.Terminal()})
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})

	total := len(views)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	pageViews := views[start:end]

	return &ListResult{
		Requests:      pageViews,
		Organizations: groupByOrganization(pageViews),
		Total:         total,
		Page:          page,
		Limit:         limit,
	}, nil
}

func groupByOrganization(views []RequestView) []OrgGroup {
	order := []string{}
	byOrg := map[string][]RequestView{}
	names := map[string]string{}
	for _, v := range views {
		key := orgKeyOf(&v.ApprovalRequest)
		if _, ok := byOrg[key]; !ok {
			order = append(order, key)
			names[key] = v.SubmittedByOrgName
		}
		byOrg[key] = append(byOrg[key], v)
	}
	groups := make([]OrgGroup, 0, len(order))
	for _, key := range order {
		reqs := byOrg[key]
		sort.SliceStable(reqs, func(i, j int) bool {
			ri, rj := typeRank(reqs[i].ApprovalType), typeRank(reqs[j].ApprovalType)
			if ri != rj {
				return ri < rj
			}
			return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
		})
		groups = append(groups, OrgGroup{OrgKey: key, OrgName: names[key], Requests: reqs})
	}
	return groups
}

func orgKeyOf(req *models.ApprovalRequest) string {
	if req.CollegeID != nil {
		return "college:" + req.CollegeID.Hex()
	}
	if req.ClientID != nil {
		return "client:" + req.ClientID.Hex()
	}
	return ""
}

// trackStep updates the onboarding projection. The projection is derived
// state; a failed update is logged, not surfaced, so it never blocks the
// approval transition that triggered it.
func (e *Engine) trackStep(ctx context.Context, org OrgRef, u StepUpdate) {
	if err := e.tracker.UpsertStep(ctx, org, u); err != nil {
		log.Printf("onboarding step %s → %s for %s failed: %v", u.Step, u.Status, org.Key(), err)
	}
}

func sameOrg(req *models.ApprovalRequest, org OrgRef) bool {
	if org.Kind == OrgKindCollege {
		return req.CollegeID != nil && org.CollegeID != nil && *req.CollegeID == *org.CollegeID
	}
	return req.ClientID != nil && org.ClientID != nil && *req.ClientID == *org.ClientID
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
