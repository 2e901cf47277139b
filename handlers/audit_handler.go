package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"admissions/middleware"
	"admissions/models"
	"admissions/utils"
)

// ListAuditLogs returns the approval audit trail, newest first. Platform
// staff see everything; organization users only their own client's entries.
func ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	filter := bson.M{}
	if !user.IsPlatformAdmin() {
		if user.ClientID == nil {
			utils.RespondWithError(w, http.StatusForbidden, "No audit scope for this user")
			return
		}
		filter["clientId"] = *user.ClientID
	}

	query := r.URL.Query()
	if action := query.Get("action"); action != "" && action != "all" {
		filter["action"] = action
	}
	if entityHex := query.Get("entity_id"); entityHex != "" {
		id, err := primitive.ObjectIDFromHex(entityHex)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid entity ID")
			return
		}
		filter["entityId"] = id
	}

	limit := 50
	if l, err := strconv.Atoi(query.Get("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}
	skip := 0
	if s, err := strconv.Atoi(query.Get("skip")); err == nil && s >= 0 {
		skip = s
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(skip))

	cursor, err := auditCollection.Find(ctx, filter, opts)
	if err != nil {
		log.Printf("ListAuditLogs - Find failed: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch audit logs")
		return
	}
	defer cursor.Close(ctx)

	var logs []models.AuditLog
	if err := cursor.All(ctx, &logs); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to decode audit logs")
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}

	total, _ := auditCollection.CountDocuments(ctx, filter)
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"total": total,
		"limit": limit,
		"skip":  skip,
	})
}
