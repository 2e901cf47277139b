// approval/mongo_directory.go
package approval

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"admissions/models"
)

type mongoDirectory struct {
	clients  *mongo.Collection
	colleges *mongo.Collection
	users    *mongo.Collection
}

// NewMongoDirectory returns the Directory backed by the organization CRUD
// collections. It is read-only from the engine's point of view.
func NewMongoDirectory(db *mongo.Database) Directory {
	return &mongoDirectory{
		clients:  db.Collection("clients"),
		colleges: db.Collection("colleges"),
		users:    db.Collection("users"),
	}
}

func (d *mongoDirectory) ClientByID(ctx context.Context, id primitive.ObjectID) (*models.Client, error) {
	var c models.Client
	err := d.clients.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: client %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (d *mongoDirectory) CollegeByID(ctx context.Context, id primitive.ObjectID) (*models.College, error) {
	var c models.College
	err := d.colleges.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: college %s", ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (d *mongoDirectory) PlatformAdminIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := d.users.Find(ctx, bson.M{
		"role": bson.M{"$in": []string{models.RoleSuperAdmin, models.RoleAdmin}},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID.Hex())
	}
	return ids, nil
}

func (d *mongoDirectory) VisibleTo(ctx context.Context, user *models.User, org OrgRef) (bool, error) {
	if user == nil {
		return false, nil
	}
	if user.IsPlatformAdmin() {
		return true, nil
	}

	// Normalize to the owning client where needed.
	clientID := org.ClientID
	if org.Kind == OrgKindCollege && org.CollegeID != nil {
		for _, cid := range user.CollegeIDs {
			if cid == *org.CollegeID {
				return true, nil
			}
		}
		college, err := d.CollegeByID(ctx, *org.CollegeID)
		if err != nil {
			return false, err
		}
		clientID = &college.ClientID
	}
	if clientID == nil {
		return false, nil
	}

	if user.ClientID != nil && *user.ClientID == *clientID {
		return true, nil
	}
	if user.Role == models.RoleAccountManager {
		client, err := d.ClientByID(ctx, *clientID)
		if err != nil {
			return false, err
		}
		return containsID(client.AccountManagers, user.ID.Hex()), nil
	}
	return false, nil
}
