package http

import (
	"net/http"

	"github.com/veranemoloko/impex-tasks/internal/domain"
)

const (
	externalObject       = "centreon_task_service"
	externalActionParent = "getTaskStatusByParent"
)

// ExternalStatus answers the peer status query so other hosts can resolve tasks here.
// The body is {"parent_id": n}; the reply is {"status": ...} with null when no task exists.
func (h *TaskHandler) ExternalStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("object") != externalObject || q.Get("action") != externalActionParent {
		writeError(w, http.StatusBadRequest, "unknown object or action")
		return
	}

	var req domain.ParentStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	status, found, err := h.taskService.GetStatusByParent(r.Context(), req.ParentID)
	if err != nil {
		h.fail(w, "failed to get status by parent", err)
		return
	}

	resp := domain.StatusResponse{}
	if found {
		resp.Status = &status
	}
	writeJSON(w, http.StatusOK, resp)
}
