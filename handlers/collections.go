// handlers/collections.go
package handlers

import (
	"go.mongodb.org/mongo-driver/mongo"

	"admissions/approval"
	"admissions/config"
	"admissions/database"
	"admissions/domain"
)

var (
	clientCollection  *mongo.Collection
	collegeCollection *mongo.Collection
	userCollection    *mongo.Collection
	requestCollection *mongo.Collection
	auditCollection   *mongo.Collection

	engine  *approval.Engine
	applier *domain.Applier
)

// Init wires the shared collections and the approval engine. Call after
// database.Connect.
func Init() error {
	db := database.Client.Database(config.DatabaseName)

	clientCollection = db.Collection("clients")
	collegeCollection = db.Collection("colleges")
	userCollection = db.Collection("users")
	requestCollection = db.Collection(approval.CollRequests)
	auditCollection = db.Collection("audit_logs")

	applier = domain.NewApplier(db)

	var err error
	engine, err = approval.NewEngine(approval.EngineDeps{
		Requests:  approval.NewMongoRequestStore(db),
		Payloads:  approval.NewMongoPayloadStore(db),
		Workflows: approval.NewMongoWorkflowStore(db),
		Progress:  approval.NewMongoProgressStore(db),
		Directory: approval.NewMongoDirectory(db),
		Applier:   applier,
		Seasons:   domain.NewSeasonPinger(database.Client),
	})
	return err
}
