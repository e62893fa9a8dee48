package run

import (
	"encoding/json"
	"net/http"
)

// statusCallback is the JSON body an external job runner posts back to
// correlate a job-status transition with its run, per §4.5.5.
type statusCallback struct {
	ProjectID string `json:"project_id"`
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
}

// CorrelateHandler returns an http.Handler that applies inbound job-status
// callbacks to the matching run via ApplyJobStatus, the daemon-side half of
// the webhook correlation described in §4.5.5.
func (e *Engine) CorrelateHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var cb statusCallback
		if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if cb.RunID == "" || cb.Status == "" {
			http.Error(w, "run_id and status are required", http.StatusBadRequest)
			return
		}

		if err := e.ApplyJobStatus(r.Context(), cb.ProjectID, cb.RunID, cb.Status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
