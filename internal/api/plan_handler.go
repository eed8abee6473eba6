package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/grid"
	"github.com/shaiso/ServiceGrid/internal/planner"
	"github.com/shaiso/ServiceGrid/internal/store"
)

const maxPlanSize = 1 << 20

// GetDeploymentPlan возвращает план, который сейчас исполняет оркестратор.
// GET /api/v1/deployment-plan
func (h *Handler) GetDeploymentPlan(w http.ResponseWriter, r *http.Request) {
	id := h.scheme.Orchestrator()

	state, etag, err := store.Read[domain.OrchestratorState](r.Context(), h.store, id)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}
	if state == nil || state.Plan == nil {
		NotFound(w, "deployment plan not submitted")
		return
	}

	Success(w, DeploymentPlanResponse{
		OrchestratorID: id,
		Etag:           etag.String(),
		Plan:           state.Plan,
	})
}

// SubmitDeploymentPlan ставит новый план в очередь оркестратора.
// POST /api/v1/deployment-plan
//
// Тело — domain.DeploymentPlan в JSON или файл сервисов в YAML
// (Content-Type: application/yaml), который раскладывается на ids схемы.
func (h *Handler) SubmitDeploymentPlan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPlanSize))
	if err != nil {
		BadRequest(w, "failed to read request body")
		return
	}

	var plan domain.DeploymentPlan
	if isYAML(r.Header.Get("Content-Type")) {
		f, err := planner.Parse(body)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		plan, err = planner.Build(h.scheme, f)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
	} else if err := json.Unmarshal(body, &plan); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	err = grid.SubmitPlan(r.Context(), h.broker, h.scheme, plan, h.clock.Now())
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("deployment plan submitted",
		"services", len(plan.Services),
		"agents", len(plan.AgentIDs()),
	)

	Accepted(w, SubmitPlanResponse{
		OrchestratorID: h.scheme.Orchestrator(),
		ServiceIDs:     plan.ServiceIDs(),
		AgentIDs:       plan.AgentIDs(),
	})
}

func isYAML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		return true
	default:
		return false
	}
}
