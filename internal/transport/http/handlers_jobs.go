package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"atelier/internal/job"
	jobservice "atelier/internal/job/service"
	"atelier/internal/platform/middleware"
)

// CallbackTokenHeader carries the processor's shared secret on job webhooks.
const CallbackTokenHeader = "x-callback-token"

type JobsHandler struct {
	jobs *jobservice.Service
}

func NewJobsHandler(jobs *jobservice.Service) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// Register mounts the authenticated job API; RegisterWebhooks mounts the
// unauthenticated processor callback.
func (h *JobsHandler) Register(r chi.Router) {
	r.Post("/api/jobs", h.handleCreate)
	r.Get("/api/jobs/{jobID}", h.handleGet)
}

func (h *JobsHandler) RegisterWebhooks(r chi.Router) {
	r.Post("/webhooks/jobs", h.handleCallback)
}

type createJobBody struct {
	Kind  string          `json:"kind"`
	Input json.RawMessage `json:"input"`
}

type jobView struct {
	JobID       string            `json:"jobId"`
	Kind        string            `json:"kind"`
	Status      string            `json:"status"`
	CreditsUsed int64             `json:"creditsUsed"`
	ResultURL   string            `json:"resultUrl,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func viewOf(j job.Job) jobView {
	v := jobView{
		JobID:       j.ID,
		Kind:        string(j.Kind),
		Status:      string(j.Status),
		CreditsUsed: j.CreditsUsed,
		Error:       j.Error,
	}
	if j.Result != nil {
		v.ResultURL = j.Result.URL
		v.Meta = j.Result.Meta
	}
	return v
}

func (h *JobsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createJobBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.jobs.Create(r.Context(), middleware.GetAccountID(r.Context()), job.Kind(body.Kind), body.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"jobId":  created.ID,
		"status": string(created.Status),
	})
}

func (h *JobsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.Context(), middleware.GetAccountID(r.Context()), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(j))
}

func (h *JobsHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	// Reject bad tokens before touching the body so an unauthenticated
	// caller always sees 401, malformed payload or not.
	token := r.Header.Get(CallbackTokenHeader)
	if err := h.jobs.AuthorizeCallback(token); err != nil {
		writeError(w, err)
		return
	}

	var payload jobservice.CallbackPayload
	if err := decode(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.jobs.HandleCallback(r.Context(), token, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
