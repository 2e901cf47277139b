package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"admissions/models"
)

// In-memory stores mirroring the Mongo implementations' semantics, including
// the unique-open-dedupe-key constraint and the conditional updates.

type memRequestStore struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]models.ApprovalRequest
}

func newMemRequestStore() *memRequestStore {
	return &memRequestStore{byID: map[primitive.ObjectID]models.ApprovalRequest{}}
}

func (s *memRequestStore) Insert(ctx context.Context, req *models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[req.ID]; ok {
		return fmt.Errorf("%w: duplicate id", ErrConflict)
	}
	if req.Open {
		for _, other := range s.byID {
			if other.Open && other.DedupeKey == req.DedupeKey {
				return fmt.Errorf("%w: duplicate open request", ErrConflict)
			}
		}
	}
	s.byID[req.ID] = *req
	return nil
}

func (s *memRequestStore) Get(ctx context.Context, id primitive.ObjectID) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: approval request %s", ErrNotFound, id.Hex())
	}
	return &req, nil
}

func (s *memRequestStore) Apply(ctx context.Context, id primitive.ObjectID, t Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: approval request %s", ErrNotFound, id.Hex())
	}
	if req.Status != t.FromStatus || req.CurrentLevel != t.FromLevel {
		return fmt.Errorf("%w: request state changed", ErrConflict)
	}
	req.Status = t.SetStatus
	req.CurrentLevel = t.SetLevel
	if t.SetApprovers != nil {
		req.CurrentApprovers = t.SetApprovers
	}
	if t.SetOpen != nil {
		req.Open = *t.SetOpen
	}
	if t.SetRemarks != nil {
		req.Remarks = *t.SetRemarks
	}
	if t.PushApproval != nil {
		req.Approvals = append(req.Approvals, *t.PushApproval)
	}
	req.UpdatedAt = t.UpdatedAt
	s.byID[id] = req
	return nil
}

func (s *memRequestStore) Delete(ctx context.Context, id primitive.ObjectID, requiredStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: approval request %s", ErrNotFound, id.Hex())
	}
	if req.Status != requiredStatus {
		return fmt.Errorf("%w: request is %s", ErrConflict, req.Status)
	}
	delete(s.byID, id)
	return nil
}

func (s *memRequestStore) HasOpenByDedupeKey(ctx context.Context, key string, exclude primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, req := range s.byID {
		if id == exclude {
			continue
		}
		if req.Open && req.DedupeKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *memRequestStore) ListBySubmitter(ctx context.Context, userID string, f ListFilters) ([]models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ApprovalRequest
	for _, req := range s.byID {
		if req.SubmittedBy == userID && matchFilters(req, f) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *memRequestStore) ListByApprover(ctx context.Context, userID string, f ListFilters) ([]models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ApprovalRequest
	for _, req := range s.byID {
		if !req.Open || !matchFilters(req, f) {
			continue
		}
		for _, a := range req.CurrentApprovers {
			if a == userID {
				out = append(out, req)
				break
			}
		}
	}
	return out, nil
}

func matchFilters(req models.ApprovalRequest, f ListFilters) bool {
	if f.Status != "" && f.Status != "all" && req.Status != f.Status {
		return false
	}
	if f.ApprovalType != "" && f.ApprovalType != "all" && req.ApprovalType != f.ApprovalType {
		return false
	}
	return true
}

type memPayloadStore struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]models.ApprovalPayload
}

func newMemPayloadStore() *memPayloadStore {
	return &memPayloadStore{byID: map[primitive.ObjectID]models.ApprovalPayload{}}
}

func (s *memPayloadStore) Insert(ctx context.Context, p *models.ApprovalPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = *p
	return nil
}

func (s *memPayloadStore) Get(ctx context.Context, id primitive.ObjectID) (*models.ApprovalPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: approval payload %s", ErrNotFound, id.Hex())
	}
	return &p, nil
}

func (s *memPayloadStore) UpdateData(ctx context.Context, id primitive.ObjectID, payload bson.M, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: approval payload %s", ErrNotFound, id.Hex())
	}
	p.Payload = payload
	s.byID[id] = p
	return nil
}

func (s *memPayloadStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("%w: approval payload %s", ErrNotFound, id.Hex())
	}
	delete(s.byID, id)
	return nil
}

type memProgressStore struct {
	mu    sync.Mutex
	byOrg map[string]models.OnboardingProgress
}

func newMemProgressStore() *memProgressStore {
	return &memProgressStore{byOrg: map[string]models.OnboardingProgress{}}
}

func progressKey(p *models.OnboardingProgress) string {
	if p.CollegeID != nil {
		return "college:" + p.CollegeID.Hex()
	}
	if p.ClientID != nil {
		return "client:" + p.ClientID.Hex()
	}
	return ""
}

func (s *memProgressStore) GetByOrg(ctx context.Context, org OrgRef) (*models.OnboardingProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byOrg[org.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: onboarding progress", ErrNotFound)
	}
	steps := make(map[string]models.OnboardingStep, len(p.Steps))
	for k, v := range p.Steps {
		steps[k] = v
	}
	p.Steps = steps
	return &p, nil
}

func (s *memProgressStore) Upsert(ctx context.Context, p *models.OnboardingProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOrg[progressKey(p)] = *p
	return nil
}

type memWorkflowStore struct {
	generic map[string]*models.ApprovalWorkflow
}

func (s *memWorkflowStore) GenericByType(ctx context.Context, approvalType string) (*models.ApprovalWorkflow, error) {
	if wf, ok := s.generic[approvalType]; ok {
		return wf, nil
	}
	return nil, fmt.Errorf("%w: generic workflow for %s", ErrNotFound, approvalType)
}

type memDirectory struct {
	clients  map[primitive.ObjectID]*models.Client
	colleges map[primitive.ObjectID]*models.College
	admins   []string
}

func (d *memDirectory) ClientByID(ctx context.Context, id primitive.ObjectID) (*models.Client, error) {
	if c, ok := d.clients[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: client %s", ErrNotFound, id.Hex())
}

func (d *memDirectory) CollegeByID(ctx context.Context, id primitive.ObjectID) (*models.College, error) {
	if c, ok := d.colleges[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: college %s", ErrNotFound, id.Hex())
}

func (d *memDirectory) PlatformAdminIDs(ctx context.Context) ([]string, error) {
	return append([]string(nil), d.admins...), nil
}

func (d *memDirectory) VisibleTo(ctx context.Context, user *models.User, org OrgRef) (bool, error) {
	if user.IsPlatformAdmin() {
		return true, nil
	}
	if user.ClientID != nil && org.ClientID != nil && *user.ClientID == *org.ClientID {
		return true, nil
	}
	for _, cid := range user.CollegeIDs {
		if org.CollegeID != nil && cid == *org.CollegeID {
			return true, nil
		}
	}
	return false, nil
}

// recordingApplier counts applications per idempotency key and can be primed
// to fail.
type recordingApplier struct {
	mu      sync.Mutex
	applied map[string]int    // key -> times applied
	last    map[string]bson.M // approval type -> last payload
	failure error
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{applied: map[string]int{}, last: map[string]bson.M{}}
}

func (a *recordingApplier) apply(kind, key string, data bson.M) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failure != nil {
		return a.failure
	}
	if a.applied[key] == 0 {
		a.last[kind] = data
	}
	a.applied[key]++
	return nil
}

func (a *recordingApplier) timesApplied() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.applied {
		n += c
	}
	return n
}

func (a *recordingApplier) ApplyCourseDetails(ctx context.Context, key string, org OrgRef, data bson.M) error {
	return a.apply(TypeCourseDetails, key, data)
}
func (a *recordingApplier) ApplyRegistrationForm(ctx context.Context, key string, org OrgRef, data bson.M) error {
	return a.apply(TypeRegistrationForm, key, data)
}
func (a *recordingApplier) ApplyApplicationForm(ctx context.Context, key string, org OrgRef, formID string, data bson.M) error {
	return a.apply(TypeApplicationForm, key, data)
}
func (a *recordingApplier) ApplySubscription(ctx context.Context, key string, org OrgRef, data bson.M) error {
	return a.apply(TypeSubscription, key, data)
}
func (a *recordingApplier) ApplyAdditionalDetails(ctx context.Context, key string, org OrgRef, data bson.M) error {
	return a.apply(TypeAdditionalDetails, key, data)
}
func (a *recordingApplier) ApplyColorTheme(ctx context.Context, key string, org OrgRef, screenType, dashboardType string, data bson.M) error {
	return a.apply(TypeColorTheme, key, data)
}

type stubSeasons struct {
	err error
}

func (s *stubSeasons) Reachable(ctx context.Context, seasonDB string) error {
	return s.err
}
