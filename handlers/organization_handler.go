package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"admissions/approval"
	"admissions/middleware"
	"admissions/models"
	"admissions/utils"
)

// ==== CLIENT MANAGEMENT ====

// CreateClient registers a new client organization and seeds its onboarding
// progress record. Platform staff only.
func CreateClient(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if !user.IsPlatformAdmin() && user.Role != models.RoleAccountManager {
		utils.RespondWithError(w, http.StatusForbidden, "Only platform staff can create clients")
		return
	}

	var client models.Client
	if err := utils.ParseJSON(r, &client); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if client.Name == "" || client.Email == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	now := time.Now().UTC()
	client.ID = primitive.NewObjectID()
	client.CreatedAt = now
	client.UpdatedAt = now
	if client.AccountManagers == nil {
		client.AccountManagers = []string{}
	}

	if _, err := clientCollection.InsertOne(ctx, client); err != nil {
		log.Printf("CreateClient - insert failed: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create client")
		return
	}

	org := approval.OrgRef{Kind: approval.OrgKindClient, ClientID: &client.ID, Name: client.Name}
	if err := engine.Tracker().Seed(ctx, org); err != nil {
		log.Printf("CreateClient - onboarding seed failed for %s: %v", client.ID.Hex(), err)
	}

	writeAudit(r, user, "client_create", client.ID, bson.M{"name": client.Name})
	log.Printf("CreateClient → %s (%s) by %s", client.Name, client.ID.Hex(), user.Email)
	utils.RespondWithJSON(w, http.StatusCreated, client)
}

// ListClients returns all clients, newest first.
func ListClients(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	cursor, err := clientCollection.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		log.Printf("ListClients - Find failed: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch clients")
		return
	}
	defer cursor.Close(ctx)

	var clients []models.Client
	if err := cursor.All(ctx, &clients); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to decode clients")
		return
	}
	if clients == nil {
		clients = []models.Client{}
	}
	utils.RespondWithJSON(w, http.StatusOK, clients)
}

// GetClient returns a single client by id.
func GetClient(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid client ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	var client models.Client
	if err := clientCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&client); err != nil {
		if err == mongo.ErrNoDocuments {
			utils.RespondWithError(w, http.StatusNotFound, "Client not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch client")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, client)
}

// ==== COLLEGE MANAGEMENT ====

// CreateCollege registers a college under an existing client and seeds its
// onboarding progress record.
func CreateCollege(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if !user.IsPlatformAdmin() && user.Role != models.RoleAccountManager {
		utils.RespondWithError(w, http.StatusForbidden, "Only platform staff can create colleges")
		return
	}

	var college models.College
	if err := utils.ParseJSON(r, &college); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if college.Name == "" || college.ClientID.IsZero() {
		utils.RespondWithError(w, http.StatusBadRequest, "name and clientId are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	// The owning client must exist; workflows for this college resolve
	// through it.
	var owner models.Client
	if err := clientCollection.FindOne(ctx, bson.M{"_id": college.ClientID}).Decode(&owner); err != nil {
		if err == mongo.ErrNoDocuments {
			utils.RespondWithError(w, http.StatusNotFound, "Owning client not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to verify client")
		return
	}

	now := time.Now().UTC()
	college.ID = primitive.NewObjectID()
	college.CreatedAt = now
	college.UpdatedAt = now

	if _, err := collegeCollection.InsertOne(ctx, college); err != nil {
		log.Printf("CreateCollege - insert failed: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create college")
		return
	}

	org := approval.OrgRef{Kind: approval.OrgKindCollege, CollegeID: &college.ID, Name: college.Name}
	if err := engine.Tracker().Seed(ctx, org); err != nil {
		log.Printf("CreateCollege - onboarding seed failed for %s: %v", college.ID.Hex(), err)
	}

	writeAudit(r, user, "college_create", college.ID, bson.M{"name": college.Name, "clientId": college.ClientID.Hex()})
	log.Printf("CreateCollege → %s (%s) under client %s", college.Name, college.ID.Hex(), college.ClientID.Hex())
	utils.RespondWithJSON(w, http.StatusCreated, college)
}

// ListColleges returns colleges, optionally filtered by owning client.
func ListColleges(w http.ResponseWriter, r *http.Request) {
	filter := bson.M{}
	if clientHex := r.URL.Query().Get("client_id"); clientHex != "" {
		id, err := primitive.ObjectIDFromHex(clientHex)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid client ID")
			return
		}
		filter["clientId"] = id
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	cursor, err := collegeCollection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		log.Printf("ListColleges - Find failed: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch colleges")
		return
	}
	defer cursor.Close(ctx)

	var colleges []models.College
	if err := cursor.All(ctx, &colleges); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to decode colleges")
		return
	}
	if colleges == nil {
		colleges = []models.College{}
	}
	utils.RespondWithJSON(w, http.StatusOK, colleges)
}

// GetCollege returns a single college by id.
func GetCollege(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid college ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	var college models.College
	if err := collegeCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&college); err != nil {
		if err == mongo.ErrNoDocuments {
			utils.RespondWithError(w, http.StatusNotFound, "College not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch college")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, college)
}

// ==== ONBOARDING PROGRESS ====

// GetOnboardingProgress returns the step-by-step onboarding projection for a
// client or college. Exactly one of client_id/college_id must be given.
func GetOnboardingProgress(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	clientHex := query.Get("client_id")
	collegeHex := query.Get("college_id")

	var org approval.OrgRef
	switch {
	case collegeHex != "":
		id, err := primitive.ObjectIDFromHex(collegeHex)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid college ID")
			return
		}
		org = approval.OrgRef{Kind: approval.OrgKindCollege, CollegeID: &id}
	case clientHex != "":
		id, err := primitive.ObjectIDFromHex(clientHex)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid client ID")
			return
		}
		org = approval.OrgRef{Kind: approval.OrgKindClient, ClientID: &id}
	default:
		utils.RespondWithError(w, http.StatusBadRequest, "client_id or college_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	progress, err := engine.Tracker().Progress(ctx, org)
	if err != nil {
		respondEngineError(w, "GetOnboardingProgress", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, progress)
}
