package websocket

import (
	"encoding/json"
	"log"
	"time"
)

// ApprovalUpdate is the real-time event pushed to dashboards when an
// approval request changes state.
type ApprovalUpdate struct {
	Type         string      `json:"type"` // APPROVAL_CREATED, APPROVAL_APPROVED, APPROVAL_REJECTED, APPROVAL_DELETED, APPROVAL_UPDATED
	RequestID    string      `json:"requestId"`
	ApprovalType string      `json:"approvalType,omitempty"`
	Status       string      `json:"status,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	UserID       string      `json:"userId,omitempty"`
	UserName     string      `json:"userName,omitempty"`
}

// BroadcastApprovalUpdate sends the update to every connection registered
// under the organization key.
func BroadcastApprovalUpdate(orgKey string, update ApprovalUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("Failed to marshal approval update: %v", err)
		return
	}
	hub.broadcast <- BroadcastMessage{OrgKey: orgKey, Message: data}
}

func SendApprovalCreated(orgKey, requestID, approvalType, userID, userName string) {
	BroadcastApprovalUpdate(orgKey, ApprovalUpdate{
		Type:         "APPROVAL_CREATED",
		RequestID:    requestID,
		ApprovalType: approvalType,
		Status:       "pending",
		Timestamp:    time.Now(),
		UserID:       userID,
		UserName:     userName,
	})
}

func SendApprovalDecision(orgKey, requestID, approvalType, status, userID, userName string) {
	eventType := "APPROVAL_APPROVED"
	if status == "rejected" {
		eventType = "APPROVAL_REJECTED"
	}
	BroadcastApprovalUpdate(orgKey, ApprovalUpdate{
		Type:         eventType,
		RequestID:    requestID,
		ApprovalType: approvalType,
		Status:       status,
		Timestamp:    time.Now(),
		UserID:       userID,
		UserName:     userName,
	})
}

func SendApprovalDeleted(orgKey, requestID, userID, userName string) {
	BroadcastApprovalUpdate(orgKey, ApprovalUpdate{
		Type:      "APPROVAL_DELETED",
		RequestID: requestID,
		Timestamp: time.Now(),
		UserID:    userID,
		UserName:  userName,
	})
}

func SendApprovalUpdated(orgKey, requestID, userID, userName string) {
	BroadcastApprovalUpdate(orgKey, ApprovalUpdate{
		Type:      "APPROVAL_UPDATED",
		RequestID: requestID,
		Timestamp: time.Now(),
		UserID:    userID,
		UserName:  userName,
	})
}
