package approval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"admissions/models"
)

type testEnv struct {
	engine   *Engine
	requests *memRequestStore
	payloads *memPayloadStore
	progress *memProgressStore
	applier  *recordingApplier
	seasons  *stubSeasons
	dir      *memDirectory

	client  *models.Client
	college *models.College

	submitter   *models.User // client_admin of client
	collegeUser *models.User // college_admin of college
	managerA    *models.User
	managerB    *models.User
	admin       *models.User
	outsider    *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	managerA := &models.User{ID: primitive.NewObjectID(), FirstName: "Mana", Role: models.RoleAccountManager}
	managerB := &models.User{ID: primitive.NewObjectID(), FirstName: "Manb", Role: models.RoleAccountManager}
	admin := &models.User{ID: primitive.NewObjectID(), FirstName: "Root", Role: models.RoleAdmin}

	client := &models.Client{
		ID:              primitive.NewObjectID(),
		Name:            "Northfield Group",
		AccountManagers: []string{managerA.ID.Hex(), managerB.ID.Hex()},
		IsConfigured:    true,
	}
	college := &models.College{
		ID:           primitive.NewObjectID(),
		ClientID:     client.ID,
		Name:         "Northfield College",
		SeasonDB:     "season_northfield",
		IsConfigured: true,
	}

	submitter := &models.User{
		ID: primitive.NewObjectID(), FirstName: "Sam", LastName: "Iyer",
		Email: "sam@northfield.test", Role: models.RoleClientAdmin, ClientID: &client.ID,
	}
	collegeUser := &models.User{
		ID: primitive.NewObjectID(), FirstName: "Cleo",
		Role: models.RoleCollegeAdmin, CollegeIDs: []primitive.ObjectID{college.ID},
	}
	outsider := &models.User{ID: primitive.NewObjectID(), FirstName: "Out", Role: models.RoleCounselor}

	env := &testEnv{
		requests: newMemRequestStore(),
		payloads: newMemPayloadStore(),
		progress: newMemProgressStore(),
		applier:  newRecordingApplier(),
		seasons:  &stubSeasons{},
		dir: &memDirectory{
			clients:  map[primitive.ObjectID]*models.Client{client.ID: client},
			colleges: map[primitive.ObjectID]*models.College{college.ID: college},
			admins:   []string{admin.ID.Hex()},
		},
		client:      client,
		college:     college,
		submitter:   submitter,
		collegeUser: collegeUser,
		managerA:    managerA,
		managerB:    managerB,
		admin:       admin,
		outsider:    outsider,
	}

	eng, err := NewEngine(EngineDeps{
		Requests:  env.requests,
		Payloads:  env.payloads,
		Workflows: &memWorkflowStore{generic: map[string]*models.ApprovalWorkflow{}},
		Progress:  env.progress,
		Directory: env.dir,
		Applier:   env.applier,
		Seasons:   env.seasons,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	env.engine = eng
	return env
}

func (env *testEnv) mustCreate(t *testing.T, user *models.User, in CreateInput) primitive.ObjectID {
	t.Helper()
	res, err := env.engine.Create(context.Background(), user, in)
	if err != nil {
		t.Fatalf("Create(%s): %v", in.ApprovalType, err)
	}
	return res.ApprovalID
}

func (env *testEnv) request(t *testing.T, id primitive.ObjectID) *models.ApprovalRequest {
	t.Helper()
	req, err := env.requests.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id.Hex(), err)
	}
	return req
}

func TestCreateRoutesToAccountManagers(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeSubscription,
		Payload:      bson.M{"plan": "standard", "seats": 40},
	})

	req := env.request(t, id)
	if req.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", req.Status)
	}
	if req.CurrentLevel != 0 {
		t.Errorf("currentLevel = %d, want 0", req.CurrentLevel)
	}
	if len(req.Approvals) != 0 {
		t.Errorf("approvals = %d entries, want 0", len(req.Approvals))
	}
	want := env.client.AccountManagers
	if len(req.CurrentApprovers) != len(want) || req.CurrentApprovers[0] != want[0] {
		t.Errorf("currentApprovers = %v, want %v", req.CurrentApprovers, want)
	}
	if req.SubmittedBy != env.submitter.ID.Hex() {
		t.Errorf("submittedBy = %q, want submitter", req.SubmittedBy)
	}
	if req.SubmittedByOrgName != env.client.Name {
		t.Errorf("submittedByOrgName = %q, want %q", req.SubmittedByOrgName, env.client.Name)
	}

	// Payload lives in its own document, referenced from the envelope.
	p, err := env.payloads.Get(context.Background(), req.PayloadID)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Payload["plan"] != "standard" {
		t.Errorf("payload plan = %v, want standard", p.Payload["plan"])
	}
	if p.IdempotencyKey == "" {
		t.Error("payload has no idempotency key")
	}
}

func TestTwoLevelApprovalDispatchesOnce(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeSubscription,
		Payload:      bson.M{"plan": "premium"},
	})

	msg, err := env.engine.Approve(context.Background(), env.managerA, id, "fine")
	if err != nil {
		t.Fatalf("level-0 approve: %v", err)
	}
	if msg != "approved, moved to next level" {
		t.Errorf("message = %q", msg)
	}

	req := env.request(t, id)
	if req.Status != models.StatusPartiallyApproved {
		t.Errorf("status = %q, want partially_approved", req.Status)
	}
	if req.CurrentLevel != 1 {
		t.Errorf("currentLevel = %d, want 1", req.CurrentLevel)
	}
	if len(req.Approvals) != req.CurrentLevel {
		t.Errorf("len(approvals) = %d, want currentLevel %d", len(req.Approvals), req.CurrentLevel)
	}
	if req.CurrentApprovers[0] != env.admin.ID.Hex() {
		t.Errorf("level-1 approvers = %v, want platform admins", req.CurrentApprovers)
	}
	if env.applier.timesApplied() != 0 {
		t.Fatal("dispatched before final approval")
	}

	if _, err := env.engine.Approve(context.Background(), env.admin, id, "ship it"); err != nil {
		t.Fatalf("final approve: %v", err)
	}

	req = env.request(t, id)
	if req.Status != models.StatusApproved {
		t.Errorf("status = %q, want approved", req.Status)
	}
	if req.Open {
		t.Error("request still open after approval")
	}
	if env.applier.timesApplied() != 1 {
		t.Errorf("applier invoked %d times, want 1", env.applier.timesApplied())
	}
	if env.applier.last[TypeSubscription]["plan"] != "premium" {
		t.Errorf("dispatched payload = %v, want the original submission", env.applier.last[TypeSubscription])
	}

	// Onboarding projection picked up the approval.
	org := OrgRef{Kind: OrgKindClient, ClientID: &env.client.ID}
	prog, err := env.engine.Tracker().Progress(context.Background(), org)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if prog.Steps["subscription"].Status != models.StepApproved {
		t.Errorf("subscription step = %q, want Approved", prog.Steps["subscription"].Status)
	}
}

func TestRejectTerminatesWithoutDispatch(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeCourseDetails,
		Payload:      bson.M{"courses": []string{"BSc"}},
	})

	if _, err := env.engine.Reject(context.Background(), env.managerB, id, "incomplete course list"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	req := env.request(t, id)
	if req.Status != models.StatusRejected {
		t.Errorf("status = %q, want rejected", req.Status)
	}
	if req.Open {
		t.Error("rejected request still open")
	}
	if req.Remarks != "incomplete course list" {
		t.Errorf("remarks = %q", req.Remarks)
	}
	if env.applier.timesApplied() != 0 {
		t.Error("dispatcher ran on rejection")
	}

	org := OrgRef{Kind: OrgKindClient, ClientID: &env.client.ID}
	prog, err := env.engine.Tracker().Progress(context.Background(), org)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	step := prog.Steps["course_details"]
	if step.Status != models.StepRejected {
		t.Errorf("step status = %q, want Rejected", step.Status)
	}
	if step.Remarks != "incomplete course list" {
		t.Errorf("step remarks = %q", step.Remarks)
	}
	if prog.Status != models.OnboardingInProgress {
		t.Errorf("rollup = %q, want In Progress after rejection", prog.Status)
	}
}

func TestTerminalRequestsAreImmutable(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeColorTheme,
		Payload:      bson.M{"primary": "#112233"},
	})
	if _, err := env.engine.Reject(context.Background(), env.managerA, id, "no"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if _, err := env.engine.Approve(context.Background(), env.managerA, id, ""); !errors.Is(err, ErrConflict) {
		t.Errorf("approve after reject: err = %v, want ErrConflict", err)
	}
	if _, err := env.engine.Reject(context.Background(), env.managerA, id, ""); !errors.Is(err, ErrConflict) {
		t.Errorf("reject after reject: err = %v, want ErrConflict", err)
	}
}

func TestApproveRequiresCurrentLevelMembership(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeSubscription,
		Payload:      bson.M{"plan": "basic"},
	})

	// The admin sits at level 1, not level 0.
	if _, err := env.engine.Approve(context.Background(), env.admin, id, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("level-1 approver acting at level 0: err = %v, want ErrForbidden", err)
	}
	if _, err := env.engine.Reject(context.Background(), env.outsider, id, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider reject: err = %v, want ErrForbidden", err)
	}
}

func TestDuplicateOpenRequestConflicts(t *testing.T) {
	env := newTestEnv(t)

	env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeSubscription,
		Payload:      bson.M{"plan": "basic"},
	})

	_, err := env.engine.Create(context.Background(), env.submitter, CreateInput{
		ApprovalType: TypeSubscription,
		Payload:      bson.M{"plan": "premium"},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate create: err = %v, want ErrConflict", err)
	}
}

func TestSecondaryKeyGuardScopesByForm(t *testing.T) {
	env := newTestEnv(t)

	env.mustCreate(t, env.collegeUser, CreateInput{
		ApprovalType: TypeApplicationForm,
		Payload:      bson.M{"form_id": "ug-2026", "fields": 12},
	})

	// A different form may be open concurrently.
	env.mustCreate(t, env.collegeUser, CreateInput{
		ApprovalType: TypeApplicationForm,
		Payload:      bson.M{"form_id": "pg-2026", "fields": 9},
	})

	// The same form may not.
	_, err := env.engine.Create(context.Background(), env.collegeUser, CreateInput{
		ApprovalType: TypeApplicationForm,
		Payload:      bson.M{"form_id": "ug-2026", "fields": 13},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("same form_id: err = %v, want ErrConflict", err)
	}
}

func TestOrgKindMismatchRejected(t *testing.T) {
	env := newTestEnv(t)

	// course_details is client-scoped; a college user resolves to a college.
	_, err := env.engine.Create(context.Background(), env.collegeUser, CreateInput{
		ApprovalType: TypeCourseDetails,
		Payload:      bson.M{"courses": []string{"BA"}},
	})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("kind mismatch: err = %v, want ErrInvalid", err)
	}
}

func TestDispatchFailureLeavesRequestActionable(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeSubscription,
		Payload:      bson.M{"plan": "premium"},
	})
	if _, err := env.engine.Approve(context.Background(), env.managerA, id, ""); err != nil {
		t.Fatalf("level-0 approve: %v", err)
	}

	env.applier.failure = fmt.Errorf("%w: billing backend down", ErrUnavailable)
	_, err := env.engine.Approve(context.Background(), env.admin, id, "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("approve with failing dispatch: err = %v, want ErrUnavailable", err)
	}

	req := env.request(t, id)
	if req.Status != models.StatusPartiallyApproved || req.CurrentLevel != 1 {
		t.Fatalf("request moved to %s/level %d, want partially_approved/1", req.Status, req.CurrentLevel)
	}

	// Retry after the outage succeeds.
	env.applier.failure = nil
	if _, err := env.engine.Approve(context.Background(), env.admin, id, ""); err != nil {
		t.Fatalf("retry approve: %v", err)
	}
	if env.request(t, id).Status != models.StatusApproved {
		t.Error("retry did not approve the request")
	}
}

func TestUnconfiguredOrganizationBlocksDispatch(t *testing.T) {
	env := newTestEnv(t)
	env.client.IsConfigured = false

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeSubscription,
		Payload:      bson.M{"plan": "basic"},
	})
	if _, err := env.engine.Approve(context.Background(), env.managerA, id, ""); err != nil {
		t.Fatalf("level-0 approve: %v", err)
	}

	_, err := env.engine.Approve(context.Background(), env.admin, id, "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("dispatch to unconfigured org: err = %v, want ErrUnavailable", err)
	}
}

func TestUnreachableSeasonDatabaseBlocksCollegeDispatch(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.collegeUser, CreateInput{
		ApprovalType: TypeCollegeSubscription,
		Payload:      bson.M{"plan": "college"},
	})
	if _, err := env.engine.Approve(context.Background(), env.managerA, id, ""); err != nil {
		t.Fatalf("level-0 approve: %v", err)
	}

	env.seasons.err = errors.New("connection refused")
	_, err := env.engine.Approve(context.Background(), env.admin, id, "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("dispatch with season db down: err = %v, want ErrUnavailable", err)
	}
	if env.applier.timesApplied() != 0 {
		t.Error("mutation applied despite unreachable season database")
	}
}

func TestResubmissionCarriesTimeline(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeRegistrationForm,
		Payload:      bson.M{"fields": 5},
	})
	if _, err := env.engine.Reject(context.Background(), env.managerA, id, "too few fields"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	oldPayloadID := env.request(t, id).PayloadID

	newID := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeRegistrationForm,
		ApprovalID:   id.Hex(),
		Payload:      bson.M{"fields": 11},
	})
	if newID != id {
		t.Fatalf("re-submission id = %s, want reuse of %s", newID.Hex(), id.Hex())
	}

	req := env.request(t, id)
	if req.Status != models.StatusPending || req.CurrentLevel != 0 {
		t.Errorf("re-submitted request is %s/level %d, want pending/0", req.Status, req.CurrentLevel)
	}
	if len(req.Approvals) != 0 {
		t.Errorf("approvals carried over: %v", req.Approvals)
	}
	if len(req.PreviousTimeline) != 1 {
		t.Fatalf("previousTimeline has %d entries, want 1", len(req.PreviousTimeline))
	}
	snap := req.PreviousTimeline[0]
	if snap.Status != models.StatusRejected || snap.Remarks != "too few fields" {
		t.Errorf("snapshot = %+v, want the rejected terminal state", snap)
	}
	if _, err := env.payloads.Get(context.Background(), oldPayloadID); !errors.Is(err, ErrNotFound) {
		t.Error("prior payload not cascaded on re-submission")
	}
}

func TestResubmissionRequiresSubmitter(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeRegistrationForm,
		Payload:      bson.M{"fields": 5},
	})
	victimPayloadID := env.request(t, id).PayloadID

	// Another admin of the same client tries to take over the request id.
	imposter := &models.User{
		ID: primitive.NewObjectID(), FirstName: "Ida",
		Role: models.RoleClientAdmin, ClientID: &env.client.ID,
	}
	_, err := env.engine.Create(context.Background(), imposter, CreateInput{
		ApprovalType: TypeRegistrationForm,
		ApprovalID:   id.Hex(),
		Payload:      bson.M{"fields": 1},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	// The original envelope and payload survive untouched.
	req := env.request(t, id)
	if req.SubmittedBy != env.submitter.ID.Hex() {
		t.Errorf("request re-owned by %s", req.SubmittedBy)
	}
	if _, err := env.payloads.Get(context.Background(), victimPayloadID); err != nil {
		t.Errorf("original payload gone: %v", err)
	}
}

func TestResubmissionOverApprovedConflicts(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeRegistrationForm,
		Payload:      bson.M{"fields": 5},
	})
	if _, err := env.engine.Approve(context.Background(), env.managerA, id, ""); err != nil {
		t.Fatalf("level 0 approve: %v", err)
	}
	if _, err := env.engine.Approve(context.Background(), env.admin, id, ""); err != nil {
		t.Fatalf("level 1 approve: %v", err)
	}

	// An approved request is an applied mutation's record; it cannot be
	// replaced, even by its own submitter.
	_, err := env.engine.Create(context.Background(), env.submitter, CreateInput{
		ApprovalType: TypeRegistrationForm,
		ApprovalID:   id.Hex(),
		Payload:      bson.M{"fields": 11},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if env.applier.timesApplied() != 1 {
		t.Errorf("applied %d times, want 1", env.applier.timesApplied())
	}
}

func TestRequiredApprovalsHoldsLevel(t *testing.T) {
	env := newTestEnv(t)

	// Strip the client's managers so resolution falls back to the stored
	// generic workflow, which demands two approvals at level 0.
	env.client.AccountManagers = nil
	g1 := primitive.NewObjectID().Hex()
	g2 := primitive.NewObjectID().Hex()
	eng, err := NewEngine(EngineDeps{
		Requests: env.requests,
		Payloads: env.payloads,
		Workflows: &memWorkflowStore{generic: map[string]*models.ApprovalWorkflow{
			TypeSubscription: {
				ApprovalType: TypeSubscription,
				Levels: []models.WorkflowLevel{
					{Level: 0, Approvers: []string{g1, g2}, RequiredApprovals: 2},
					{Level: 1, Approvers: []string{env.admin.ID.Hex()}, RequiredApprovals: 1},
				},
			},
		}},
		Progress:  env.progress,
		Directory: env.dir,
		Applier:   env.applier,
		Seasons:   env.seasons,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	res, err := eng.Create(context.Background(), env.submitter, CreateInput{
		ApprovalType: TypeSubscription,
		Payload:      bson.M{"plan": "basic"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := res.ApprovalID

	approver1 := &models.User{ID: mustObjectID(t, g1), Role: models.RoleAccountManager}
	approver2 := &models.User{ID: mustObjectID(t, g2), Role: models.RoleAccountManager}

	msg, err := eng.Approve(context.Background(), approver1, id, "")
	if err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if msg != "approval recorded" {
		t.Errorf("message = %q, want approval recorded", msg)
	}
	req := env.request(t, id)
	if req.Status != models.StatusPending || req.CurrentLevel != 0 {
		t.Fatalf("request advanced to %s/level %d before quorum", req.Status, req.CurrentLevel)
	}

	if _, err := eng.Approve(context.Background(), approver2, id, ""); err != nil {
		t.Fatalf("second approve: %v", err)
	}
	req = env.request(t, id)
	if req.Status != models.StatusPartiallyApproved || req.CurrentLevel != 1 {
		t.Fatalf("request at %s/level %d after quorum, want partially_approved/1", req.Status, req.CurrentLevel)
	}
}

func TestSameApproverCannotFillQuorum(t *testing.T) {
	env := newTestEnv(t)

	env.client.AccountManagers = nil
	g1 := primitive.NewObjectID().Hex()
	g2 := primitive.NewObjectID().Hex()
	eng, err := NewEngine(EngineDeps{
		Requests: env.requests,
		Payloads: env.payloads,
		Workflows: &memWorkflowStore{generic: map[string]*models.ApprovalWorkflow{
			TypeSubscription: {
				ApprovalType: TypeSubscription,
				Levels: []models.WorkflowLevel{
					{Level: 0, Approvers: []string{g1, g2}, RequiredApprovals: 2},
					{Level: 1, Approvers: []string{env.admin.ID.Hex()}, RequiredApprovals: 1},
				},
			},
		}},
		Progress:  env.progress,
		Directory: env.dir,
		Applier:   env.applier,
		Seasons:   env.seasons,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	res, err := eng.Create(context.Background(), env.submitter, CreateInput{
		ApprovalType: TypeSubscription,
		Payload:      bson.M{"plan": "basic"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := res.ApprovalID

	approver := &models.User{ID: mustObjectID(t, g1), Role: models.RoleAccountManager}
	if _, err := eng.Approve(context.Background(), approver, id, ""); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	// Same approver again: a second vote must not count toward the quorum.
	if _, err := eng.Approve(context.Background(), approver, id, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("repeat approve err = %v, want ErrConflict", err)
	}

	req := env.request(t, id)
	if req.Status != models.StatusPending || req.CurrentLevel != 0 {
		t.Fatalf("request at %s/level %d, want pending/0 until a second approver votes", req.Status, req.CurrentLevel)
	}
	if len(req.Approvals) != 1 {
		t.Errorf("approvals = %d entries, want 1", len(req.Approvals))
	}
}

func TestDeleteSentGuards(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeAdditionalDetails,
		Payload:      bson.M{"about": "x"},
	})

	if err := env.engine.DeleteSent(context.Background(), env.managerA, id); !errors.Is(err, ErrForbidden) {
		t.Errorf("delete by non-submitter: err = %v, want ErrForbidden", err)
	}

	if err := env.engine.DeleteSent(context.Background(), env.submitter, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.requests.Get(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Error("request survived deletion")
	}

	// Once past pending, deletion is refused.
	id2 := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeAdditionalDetails,
		Payload:      bson.M{"about": "y"},
	})
	if _, err := env.engine.Approve(context.Background(), env.managerA, id2, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := env.engine.DeleteSent(context.Background(), env.submitter, id2); !errors.Is(err, ErrConflict) {
		t.Errorf("delete of partially approved: err = %v, want ErrConflict", err)
	}
}

func TestUpdateSentReplacesPayload(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeColorTheme,
		Payload:      bson.M{"primary": "#000000"},
	})

	if err := env.engine.UpdateSent(context.Background(), env.submitter, id, bson.M{"primary": "#ffffff"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	p, err := env.payloads.Get(context.Background(), env.request(t, id).PayloadID)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Payload["primary"] != "#ffffff" {
		t.Errorf("payload = %v, want replaced data", p.Payload)
	}

	if err := env.engine.UpdateSent(context.Background(), env.managerA, id, bson.M{"primary": "#ff0000"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("update by non-submitter: err = %v, want ErrForbidden", err)
	}
}

func TestRequestedDataAccess(t *testing.T) {
	env := newTestEnv(t)

	id := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeSubscription,
		Payload:      bson.M{"plan": "basic"},
	})

	if _, err := env.engine.RequestedData(context.Background(), env.submitter, id); err != nil {
		t.Errorf("submitter read: %v", err)
	}
	if _, err := env.engine.RequestedData(context.Background(), env.managerA, id); err != nil {
		t.Errorf("current approver read: %v", err)
	}
	if _, err := env.engine.RequestedData(context.Background(), env.admin, id); err != nil {
		t.Errorf("platform admin read: %v", err)
	}
	if _, err := env.engine.RequestedData(context.Background(), env.outsider, id); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider read: err = %v, want ErrForbidden", err)
	}
}

func TestListMergesAndGroups(t *testing.T) {
	env := newTestEnv(t)

	// Precedence says additional_details sorts before subscription, so
	// create them in the opposite order.
	subID := env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeSubscription,
		Payload:      bson.M{"plan": "basic"},
	})
	env.mustCreate(t, env.submitter, CreateInput{
		ApprovalType: TypeAdditionalDetails,
		Payload:      bson.M{"about": "x"},
	})

	// Submitter view: both visible, neither actionable.
	res, err := env.engine.List(context.Background(), env.submitter, ListFilters{}, 1, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("total = %d, want 2", res.Total)
	}
	for _, v := range res.Requests {
		if v.CanApproveOrReject {
			t.Errorf("submitter can act on %s", v.ApprovalType)
		}
	}

	// Approver view: both actionable.
	res, err = env.engine.List(context.Background(), env.managerA, ListFilters{}, 1, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("approver total = %d, want 2", res.Total)
	}
	for _, v := range res.Requests {
		if !v.CanApproveOrReject {
			t.Errorf("approver cannot act on %s", v.ApprovalType)
		}
	}

	// Grouping: one org, fixed type precedence inside the group.
	if len(res.Organizations) != 1 {
		t.Fatalf("organizations = %d groups, want 1", len(res.Organizations))
	}
	group := res.Organizations[0]
	if group.OrgKey != "client:"+env.client.ID.Hex() {
		t.Errorf("orgKey = %q", group.OrgKey)
	}
	if group.Requests[0].ApprovalType != TypeAdditionalDetails {
		t.Errorf("first grouped type = %s, want additional_details", group.Requests[0].ApprovalType)
	}

	// Status filter narrows.
	if _, err := env.engine.Approve(context.Background(), env.managerA, subID, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	res, err = env.engine.List(context.Background(), env.submitter, ListFilters{Status: models.StatusPending}, 1, 20)
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if res.Total != 1 || res.Requests[0].ApprovalType != TypeAdditionalDetails {
		t.Errorf("filtered list = %+v, want only the pending request", res.Requests)
	}
}

func TestUnknownTypeRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Create(context.Background(), env.submitter, CreateInput{
		ApprovalType: "exam_schedule",
		Payload:      bson.M{"x": 1},
	})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("unknown type: err = %v, want ErrInvalid", err)
	}
}

func TestApplyDirectSkipsWorkflow(t *testing.T) {
	env := newTestEnv(t)

	err := env.engine.ApplyDirect(context.Background(), env.admin, CreateInput{
		ApprovalType: TypeSubscription,
		ClientID:     env.client.ID.Hex(),
		Payload:      bson.M{"plan": "enterprise"},
	})
	if err != nil {
		t.Fatalf("ApplyDirect: %v", err)
	}
	if env.applier.timesApplied() != 1 {
		t.Errorf("applier invoked %d times, want 1", env.applier.timesApplied())
	}

	// No envelope was created.
	list, err := env.requests.ListBySubmitter(context.Background(), env.admin.ID.Hex(), ListFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("direct apply created %d envelopes", len(list))
	}
}

func TestCanBypassApproval(t *testing.T) {
	cases := []struct {
		role string
		want bool
	}{
		{models.RoleSuperAdmin, true},
		{models.RoleAdmin, true},
		{models.RoleAccountManager, false},
		{models.RoleClientAdmin, false},
		{models.RoleCollegeAdmin, false},
		{models.RoleCounselor, false},
	}
	for _, tc := range cases {
		u := &models.User{Role: tc.role}
		if got := CanBypassApproval(u); got != tc.want {
			t.Errorf("CanBypassApproval(%s) = %v, want %v", tc.role, got, tc.want)
		}
	}
	if CanBypassApproval(nil) {
		t.Error("CanBypassApproval(nil) = true")
	}
}

func mustObjectID(t *testing.T, hex string) primitive.ObjectID {
	t.Helper()
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		t.Fatalf("ObjectIDFromHex(%s): %v", hex, err)
	}
	return id
}
