package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"admissions/middleware"
	"admissions/models"
	"admissions/utils"
)

var validRoles = map[string]bool{
	models.RoleSuperAdmin:     true,
	models.RoleAdmin:          true,
	models.RoleAccountManager: true,
	models.RoleClientAdmin:    true,
	models.RoleCollegeAdmin:   true,
	models.RoleCounselor:      true,
}

// CreateUser registers a platform or organization user. Platform admins only.
func CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if !actor.IsPlatformAdmin() {
		utils.RespondWithError(w, http.StatusForbidden, "Only platform admins can create users")
		return
	}

	var body struct {
		FirstName  string   `json:"firstName"`
		LastName   string   `json:"lastName"`
		Email      string   `json:"email"`
		Mobile     string   `json:"mobile"`
		Password   string   `json:"password"`
		Role       string   `json:"role"`
		ClientID   string   `json:"clientId"`
		CollegeIDs []string `json:"collegeIds"`
	}
	if err := utils.ParseJSON(r, &body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	if body.FirstName == "" || body.Email == "" || !strings.Contains(body.Email, "@") {
		utils.RespondWithError(w, http.StatusBadRequest, "firstName and a valid email are required")
		return
	}
	if !validRoles[body.Role] {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid role")
		return
	}
	if body.Password == "" {
		body.Password = utils.GenerateRandomPassword(12)
	}
	if len(body.Password) < 6 {
		utils.RespondWithError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}

	hash, err := utils.HashPassword(body.Password)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	user := models.User{
		ID:           primitive.NewObjectID(),
		FirstName:    body.FirstName,
		LastName:     body.LastName,
		Email:        body.Email,
		Mobile:       body.Mobile,
		PasswordHash: hash,
		Role:         body.Role,
		CreatedAt:    time.Now().UTC(),
	}
	if body.ClientID != "" {
		id, err := primitive.ObjectIDFromHex(body.ClientID)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid client ID")
			return
		}
		user.ClientID = &id
	}
	for _, hex := range body.CollegeIDs {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid college ID")
			return
		}
		user.CollegeIDs = append(user.CollegeIDs, id)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	if _, err := userCollection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			utils.RespondWithError(w, http.StatusConflict, "A user with this email already exists")
			return
		}
		log.Printf("CreateUser - insert failed: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	writeAudit(r, actor, "user_create", user.ID, bson.M{"email": user.Email, "role": user.Role})
	user.PasswordHash = ""
	utils.RespondWithJSON(w, http.StatusCreated, user)
}

// GetCurrentUser returns the authenticated user's profile.
func GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, user)
}

// ListUsers returns users, optionally filtered by role or client.
func ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if !actor.IsPlatformAdmin() && actor.Role != models.RoleAccountManager {
		utils.RespondWithError(w, http.StatusForbidden, "Only platform staff can list users")
		return
	}

	filter := bson.M{}
	query := r.URL.Query()
	if role := query.Get("role"); role != "" && role != "all" {
		filter["role"] = role
	}
	if clientHex := query.Get("client_id"); clientHex != "" {
		id, err := primitive.ObjectIDFromHex(clientHex)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid client ID")
			return
		}
		filter["clientId"] = id
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	cursor, err := userCollection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetProjection(bson.M{"passwordHash": 0}))
	if err != nil {
		log.Printf("ListUsers - Find failed: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to decode users")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	utils.RespondWithJSON(w, http.StatusOK, users)
}
