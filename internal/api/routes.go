package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// States
	mux.Handle("GET /api/v1/states", chain(http.HandlerFunc(h.ListStates)))
	mux.Handle("GET /api/v1/states/{path...}", chain(http.HandlerFunc(h.GetState)))

	// Instance properties
	mux.Handle("POST /api/v1/instance-properties", chain(http.HandlerFunc(h.SetInstanceProperty)))

	// Tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))

	// Deployment plan
	mux.Handle("GET /api/v1/deployment-plan", chain(http.HandlerFunc(h.GetDeploymentPlan)))
	mux.Handle("POST /api/v1/deployment-plan", chain(http.HandlerFunc(h.SubmitDeploymentPlan)))
}
