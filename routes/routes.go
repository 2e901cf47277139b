package routes

import (
	"github.com/gorilla/mux"

	"admissions/handlers"
	"admissions/middleware"
	"admissions/websocket"
)

// HTTP method constants for better maintainability
var (
	MethodsGetOnly    = []string{"GET", "OPTIONS"}
	MethodsPostOnly   = []string{"POST", "OPTIONS"}
	MethodsPutOnly    = []string{"PUT", "OPTIONS"}
	MethodsDeleteOnly = []string{"DELETE", "OPTIONS"}
)

const (
	PathAPI    = "/api"
	PathHealth = "/health"
)

func RegisterRoutes(r *mux.Router) {
	// ====================
	// HEALTH CHECK (Public)
	// ====================
	r.HandleFunc(PathHealth, handlers.HealthCheck).Methods(MethodsGetOnly...)

	// ====================
	// AUTHENTICATION (Public)
	// ====================
	r.HandleFunc("/api/auth/login", handlers.Login).Methods(MethodsPostOnly...)
	r.HandleFunc("/api/auth/logout", handlers.Logout).Methods(MethodsPostOnly...)
	r.HandleFunc("/api/auth/validate", handlers.ValidateToken).Methods(MethodsGetOnly...)

	// ====================
	// WEBSOCKET (token in query string)
	// ====================
	r.HandleFunc("/ws", websocket.HandleWS)

	// ====================
	// PROTECTED API ROUTES
	// ====================
	apiRouter := r.PathPrefix(PathAPI).Subrouter()
	apiRouter.Use(middleware.AuthMiddleware)

	// USERS
	apiRouter.HandleFunc("/users", handlers.CreateUser).Methods(MethodsPostOnly...)
	apiRouter.HandleFunc("/users", handlers.ListUsers).Methods(MethodsGetOnly...)
	apiRouter.HandleFunc("/user/me", handlers.GetCurrentUser).Methods(MethodsGetOnly...)

	// CLIENTS
	apiRouter.HandleFunc("/clients", handlers.CreateClient).Methods(MethodsPostOnly...)
	apiRouter.HandleFunc("/clients", handlers.ListClients).Methods(MethodsGetOnly...)
	apiRouter.HandleFunc("/clients/{id}", handlers.GetClient).Methods(MethodsGetOnly...)

	// COLLEGES
	apiRouter.HandleFunc("/colleges", handlers.CreateCollege).Methods(MethodsPostOnly...)
	apiRouter.HandleFunc("/colleges", handlers.ListColleges).Methods(MethodsGetOnly...)
	apiRouter.HandleFunc("/colleges/{id}", handlers.GetCollege).Methods(MethodsGetOnly...)

	// APPROVALS
	apiRouter.HandleFunc("/approvals", handlers.CreateApproval).Methods(MethodsPostOnly...)
	apiRouter.HandleFunc("/approvals", handlers.ListApprovals).Methods(MethodsGetOnly...)
	apiRouter.HandleFunc("/approvals/{id}/decide", handlers.DecideApproval).Methods(MethodsPutOnly...)
	apiRouter.HandleFunc("/approvals/{id}/data", handlers.GetApprovalData).Methods(MethodsGetOnly...)
	apiRouter.HandleFunc("/approvals/{id}", handlers.UpdateSentApproval).Methods(MethodsPutOnly...)
	apiRouter.HandleFunc("/approvals/{id}", handlers.DeleteSentApproval).Methods(MethodsDeleteOnly...)

	// ONBOARDING
	apiRouter.HandleFunc("/onboarding/progress", handlers.GetOnboardingProgress).Methods(MethodsGetOnly...)

	// AUDIT LOGS
	apiRouter.HandleFunc("/audit", handlers.ListAuditLogs).Methods(MethodsGetOnly...)
}
