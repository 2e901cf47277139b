// domain/applier.go
package domain

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"admissions/approval"
)

// Applier carries the deferred domain mutations the approval engine defers
// until final approval. Every method is idempotent per key: dispatch may
// retry after a partial failure and an already-applied mutation is a no-op.
type Applier struct {
	db      *mongo.Database
	applied *mongo.Collection
}

func NewApplier(db *mongo.Database) *Applier {
	return &Applier{db: db, applied: db.Collection("applied_mutations")}
}

// claim records the idempotency key. A duplicate key means the mutation
// already ran; the caller skips the write and reports success.
func (a *Applier) claim(ctx context.Context, key, kind string) (bool, error) {
	_, err := a.applied.InsertOne(ctx, bson.M{
		"_id":       key,
		"kind":      kind,
		"appliedAt": time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// unclaim releases the key after a failed apply so a retry can run it again.
func (a *Applier) unclaim(ctx context.Context, key string) {
	_, _ = a.applied.DeleteOne(ctx, bson.M{"_id": key})
}

func (a *Applier) upsert(ctx context.Context, key, kind, collection string, org approval.OrgRef, data bson.M) error {
	fresh, err := a.claim(ctx, key, kind)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	doc := bson.M{
		"orgKey":    org.Key(),
		"data":      data,
		"updatedAt": time.Now().UTC(),
	}
	if org.ClientID != nil {
		doc["clientId"] = *org.ClientID
	}
	if org.CollegeID != nil {
		doc["collegeId"] = *org.CollegeID
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := a.db.Collection(collection).ReplaceOne(ctx, bson.M{"orgKey": org.Key()}, doc, opts); err != nil {
		a.unclaim(ctx, key)
		return err
	}
	return nil
}

func (a *Applier) ApplyCourseDetails(ctx context.Context, key string, org approval.OrgRef, data bson.M) error {
	return a.upsert(ctx, key, "course_details", "course_catalogs", org, data)
}

func (a *Applier) ApplyRegistrationForm(ctx context.Context, key string, org approval.OrgRef, data bson.M) error {
	return a.upsert(ctx, key, "registration_form", "registration_forms", org, data)
}

// ApplyApplicationForm is keyed by form id as well as organization: a college
// runs several application forms concurrently.
func (a *Applier) ApplyApplicationForm(ctx context.Context, key string, org approval.OrgRef, formID string, data bson.M) error {
	fresh, err := a.claim(ctx, key, "application_form")
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	doc := bson.M{
		"orgKey":    org.Key(),
		"formId":    formID,
		"data":      data,
		"updatedAt": time.Now().UTC(),
	}
	if org.CollegeID != nil {
		doc["collegeId"] = *org.CollegeID
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := a.db.Collection("application_forms").ReplaceOne(ctx, bson.M{"orgKey": org.Key(), "formId": formID}, doc, opts); err != nil {
		a.unclaim(ctx, key)
		return err
	}
	return nil
}

func (a *Applier) ApplySubscription(ctx context.Context, key string, org approval.OrgRef, data bson.M) error {
	return a.upsert(ctx, key, "subscription", "subscriptions", org, data)
}

func (a *Applier) ApplyAdditionalDetails(ctx context.Context, key string, org approval.OrgRef, data bson.M) error {
	return a.upsert(ctx, key, "additional_details", "organization_details", org, data)
}

func (a *Applier) ApplyColorTheme(ctx context.Context, key string, org approval.OrgRef, screenType, dashboardType string, data bson.M) error {
	fresh, err := a.claim(ctx, key, "color_theme")
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	filter := bson.M{"orgKey": org.Key(), "screenType": screenType, "dashboardType": dashboardType}
	doc := bson.M{
		"orgKey":        org.Key(),
		"screenType":    screenType,
		"dashboardType": dashboardType,
		"data":          data,
		"updatedAt":     time.Now().UTC(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := a.db.Collection("color_themes").ReplaceOne(ctx, filter, doc, opts); err != nil {
		a.unclaim(ctx, key)
		return err
	}
	return nil
}
