// approval/mongo.go
package approval

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"admissions/models"
)

// Collection names owned by the engine.
const (
	CollRequests  = "approval_requests"
	CollPayloads  = "approval_payloads"
	CollWorkflows = "approval_workflows"
	CollProgress  = "onboarding_progress"
)

type mongoRequestStore struct {
	c *mongo.Collection
}

// NewMongoRequestStore returns the RequestStore over approval_requests.
// Correctness of the duplication guard depends on the unique partial index
// on {dedupeKey} where open is true (see database.EnsureIndexes).
func NewMongoRequestStore(db *mongo.Database) RequestStore {
	return &mongoRequestStore{c: db.Collection(CollRequests)}
}

func (s *mongoRequestStore) Insert(ctx context.Context, req *models.ApprovalRequest) error {
	_, err := s.c.InsertOne(ctx, req)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: duplicate open request", ErrConflict)
	}
	return err
}

func (s *mongoRequestStore) Get(ctx context.Context, id primitive.ObjectID) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: approval request %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *mongoRequestStore) Apply(ctx context.Context, id primitive.ObjectID, t Transition) error {
	set := bson.M{
		"status":       t.SetStatus,
		"currentLevel": t.SetLevel,
		"updatedAt":    t.UpdatedAt,
	}
	if t.SetApprovers != nil {
		set["currentApprovers"] = t.SetApprovers
	}
	if t.SetOpen != nil {
		set["open"] = *t.SetOpen
	}
	if t.SetRemarks != nil {
		set["remarks"] = *t.SetRemarks
	}
	update := bson.M{"$set": set}
	if t.PushApproval != nil {
		update["$push"] = bson.M{"approvals": *t.PushApproval}
	}

	// Conditional on the status/level the caller read: a concurrent approver
	// who got there first makes this a no-match, never a double transition.
	res, err := s.c.UpdateOne(ctx, bson.M{
		"_id":          id,
		"status":       t.FromStatus,
		"currentLevel": t.FromLevel,
	}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := s.c.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: approval request %s", ErrNotFound, id.Hex())
		}
		return fmt.Errorf("%w: request changed concurrently, reload and retry", ErrConflict)
	}
	return nil
}

func (s *mongoRequestStore) Delete(ctx context.Context, id primitive.ObjectID, requiredStatus string) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "status": requiredStatus})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		n, err := s.c.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: approval request %s", ErrNotFound, id.Hex())
		}
		return fmt.Errorf("%w: request is no longer %s", ErrConflict, requiredStatus)
	}
	return nil
}

func (s *mongoRequestStore) HasOpenByDedupeKey(ctx context.Context, key string, exclude primitive.ObjectID) (bool, error) {
	filter := bson.M{"dedupeKey": key, "open": true}
	if exclude != primitive.NilObjectID {
		filter["_id"] = bson.M{"$ne": exclude}
	}
	n, err := s.c.CountDocuments(ctx, filter)
	return n > 0, err
}

func (s *mongoRequestStore) ListBySubmitter(ctx context.Context, userID string, f ListFilters) ([]models.ApprovalRequest, error) {
	filter := bson.M{"submittedBy": userID}
	applyListFilters(filter, f)
	return s.find(ctx, filter)
}

func (s *mongoRequestStore) ListByApprover(ctx context.Context, userID string, f ListFilters) ([]models.ApprovalRequest, error) {
	filter := bson.M{"currentApprovers": userID, "open": true}
	applyListFilters(filter, f)
	return s.find(ctx, filter)
}

func (s *mongoRequestStore) find(ctx context.Context, filter bson.M) ([]models.ApprovalRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reqs []models.ApprovalRequest
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func applyListFilters(filter bson.M, f ListFilters) {
	if f.Status != "" && f.Status != "all" {
		filter["status"] = f.Status
	}
	if f.ApprovalType != "" && f.ApprovalType != "all" {
		filter["approvalType"] = f.ApprovalType
	}
}

type mongoPayloadStore struct {
	c *mongo.Collection
}

func NewMongoPayloadStore(db *mongo.Database) PayloadStore {
	return &mongoPayloadStore{c: db.Collection(CollPayloads)}
}

func (s *mongoPayloadStore) Insert(ctx context.Context, p *models.ApprovalPayload) error {
	_, err := s.c.InsertOne(ctx, p)
	return err
}

func (s *mongoPayloadStore) Get(ctx context.Context, id primitive.ObjectID) (*models.ApprovalPayload, error) {
	var p models.ApprovalPayload
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: approval payload %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *mongoPayloadStore) UpdateData(ctx context.Context, id primitive.ObjectID, payload bson.M, updatedAt time.Time) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"payload":   payload,
		"updatedAt": updatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: approval payload %s", ErrNotFound, id.Hex())
	}
	return nil
}

func (s *mongoPayloadStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: approval payload %s", ErrNotFound, id.Hex())
	}
	return nil
}

type mongoWorkflowStore struct {
	c *mongo.Collection
}

func NewMongoWorkflowStore(db *mongo.Database) WorkflowStore {
	return &mongoWorkflowStore{c: db.Collection(CollWorkflows)}
}

func (s *mongoWorkflowStore) GenericByType(ctx context.Context, approvalType string) (*models.ApprovalWorkflow, error) {
	var wf models.ApprovalWorkflow
	err := s.c.FindOne(ctx, bson.M{"approvalType": approvalType}).Decode(&wf)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: generic workflow for %s", ErrNotFound, approvalType)
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

type mongoProgressStore struct {
	c *mongo.Collection
}

func NewMongoProgressStore(db *mongo.Database) ProgressStore {
	return &mongoProgressStore{c: db.Collection(CollProgress)}
}

func (s *mongoProgressStore) GetByOrg(ctx context.Context, org OrgRef) (*models.OnboardingProgress, error) {
	var p models.OnboardingProgress
	err := s.c.FindOne(ctx, orgFilter(org)).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: onboarding progress for %s", ErrNotFound, org.Key())
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *mongoProgressStore) Upsert(ctx context.Context, p *models.OnboardingProgress) error {
	org := OrgRef{Kind: OrgKindClient, ClientID: p.ClientID, CollegeID: p.CollegeID}
	if p.CollegeID != nil {
		org.Kind = OrgKindCollege
	}
	opts := options.Replace().SetUpsert(true)
	_, err := s.c.ReplaceOne(ctx, orgFilter(org), p, opts)
	return err
}

func orgFilter(org OrgRef) bson.M {
	if org.Kind == OrgKindCollege && org.CollegeID != nil {
		return bson.M{"collegeId": *org.CollegeID}
	}
	if org.ClientID != nil {
		return bson.M{"clientId": *org.ClientID}
	}
	return bson.M{"_id": primitive.NilObjectID}
}
