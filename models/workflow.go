// models/workflow.go
package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkflowLevel is one stage of an approval workflow: who may act and how
// many of them must approve before the request advances.
type WorkflowLevel struct {
	Level             int      `bson:"level" json:"level"`
	Approvers         []string `bson:"approvers" json:"approvers"`
	RequiredApprovals int      `bson:"requiredApprovals" json:"requiredApprovals"`
}

// ApprovalWorkflow is the ordered chain of levels a request routes through.
// Org-scoped workflows are computed on demand and never persisted per request;
// this document shape is only stored for the generic, approval-type-keyed
// fallback workflows.
type ApprovalWorkflow struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ApprovalType string             `bson:"approvalType,omitempty" json:"approvalType,omitempty"`
	Levels       []WorkflowLevel    `bson:"levels" json:"levels"`
}
