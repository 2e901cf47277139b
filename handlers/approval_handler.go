package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"admissions/approval"
	"admissions/middleware"
	"admissions/models"
	"admissions/utils"
	"admissions/websocket"
)

// respondEngineError maps the engine's error kinds onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, approval.ErrInvalid):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, approval.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, approval.ErrConflict):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, approval.ErrForbidden):
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, approval.ErrUnavailable):
		utils.RespondWithError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("%s failed: %v", op, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeAudit records an approval lifecycle event. Audit writes never fail the
// request that produced them.
func writeAudit(r *http.Request, user *models.User, action string, entityID primitive.ObjectID, details bson.M) {
	entry := models.AuditLog{
		UserID:     user.ID,
		UserEmail:  user.Email,
		UserRole:   user.Role,
		Action:     action,
		EntityType: "approval_request",
		EntityID:   entityID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	entry.ClientID = user.ClientID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := auditCollection.InsertOne(ctx, entry); err != nil {
		log.Printf("audit write failed (%s): %v", action, err)
	}
}

func loadRequestEnvelope(ctx context.Context, id primitive.ObjectID) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	err := requestCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func orgKeyOfRequest(req *models.ApprovalRequest) string {
	if req.CollegeID != nil {
		return "college:" + req.CollegeID.Hex()
	}
	if req.ClientID != nil {
		return "client:" + req.ClientID.Hex()
	}
	return ""
}

// CreateApproval submits a configuration change for approval. When the caller
// can bypass approval the mutation is applied directly instead of entering the
// workflow.
func CreateApproval(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var in approval.CreateInput
	if err := utils.ParseJSON(r, &in); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if in.ApprovalType == "" || len(in.Payload) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "approvalType and payload are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	// Callers with the bypass capability never enter the workflow: the
	// mutation is dispatched immediately and no envelope is created.
	if approval.CanBypassApproval(user) {
		if err := engine.ApplyDirect(ctx, user, in); err != nil {
			respondEngineError(w, "CreateApproval (direct)", err)
			return
		}
		log.Printf("CreateApproval → %s applied directly by %s", in.ApprovalType, user.Email)
		utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"message": "configuration applied",
			"applied": true,
		})
		return
	}

	result, err := engine.Create(ctx, user, in)
	if err != nil {
		respondEngineError(w, "CreateApproval", err)
		return
	}

	writeAudit(r, user, "approval_create", result.ApprovalID, bson.M{"approvalType": in.ApprovalType})
	if req, err := loadRequestEnvelope(ctx, result.ApprovalID); err == nil {
		websocket.SendApprovalCreated(orgKeyOfRequest(req), req.ID.Hex(), req.ApprovalType, user.ID.Hex(), user.FullName())
	}

	log.Printf("CreateApproval → %s request %s by %s", in.ApprovalType, result.ApprovalID.Hex(), user.Email)
	utils.RespondWithJSON(w, http.StatusCreated, result)
}

// DecideApproval records an approve or reject by a current-level approver.
func DecideApproval(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid approval ID")
		return
	}

	var body struct {
		Action  string `json:"action"`
		Remarks string `json:"remarks,omitempty"`
	}
	if err := utils.ParseJSON(r, &body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	message, err := engine.Decide(ctx, user, id, body.Action, body.Remarks)
	if err != nil {
		respondEngineError(w, "DecideApproval", err)
		return
	}

	writeAudit(r, user, "approval_"+body.Action, id, bson.M{"remarks": body.Remarks})
	if req, err := loadRequestEnvelope(ctx, id); err == nil {
		websocket.SendApprovalDecision(orgKeyOfRequest(req), req.ID.Hex(), req.ApprovalType, req.Status, user.ID.Hex(), user.FullName())
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
		"success": true,
	})
}

// ListApprovals returns the caller's submitted requests merged with requests
// awaiting their approval, grouped per organization.
func ListApprovals(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	query := r.URL.Query()
	filters := approval.ListFilters{
		Status:       query.Get("status"),
		ApprovalType: query.Get("type"),
	}
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	result, err := engine.List(ctx, user, filters, page, limit)
	if err != nil {
		respondEngineError(w, "ListApprovals", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, result)
}

// GetApprovalData returns the payload awaiting approval on a request.
func GetApprovalData(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid approval ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	payload, err := engine.RequestedData(ctx, user, id)
	if err != nil {
		respondEngineError(w, "GetApprovalData", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, payload)
}

// DeleteSentApproval removes the caller's own pending request.
func DeleteSentApproval(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid approval ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	// Snapshot the org key before the envelope disappears.
	orgKey := ""
	if req, err := loadRequestEnvelope(ctx, id); err == nil {
		orgKey = orgKeyOfRequest(req)
	}

	if err := engine.DeleteSent(ctx, user, id); err != nil {
		respondEngineError(w, "DeleteSentApproval", err)
		return
	}

	writeAudit(r, user, "approval_delete", id, nil)
	if orgKey != "" {
		websocket.SendApprovalDeleted(orgKey, id.Hex(), user.ID.Hex(), user.FullName())
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "approval request deleted",
		"success": true,
	})
}

// UpdateSentApproval replaces the payload on the caller's own pending request.
func UpdateSentApproval(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid approval ID")
		return
	}

	var body struct {
		Payload bson.M `json:"payload"`
	}
	if err := utils.ParseJSON(r, &body); err != nil || len(body.Payload) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "payload is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	if err := engine.UpdateSent(ctx, user, id, body.Payload); err != nil {
		respondEngineError(w, "UpdateSentApproval", err)
		return
	}

	writeAudit(r, user, "approval_update", id, nil)
	if req, err := loadRequestEnvelope(ctx, id); err == nil {
		websocket.SendApprovalUpdated(orgKeyOfRequest(req), id.Hex(), user.ID.Hex(), user.FullName())
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "approval request updated",
		"success": true,
	})
}
