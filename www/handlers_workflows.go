package www

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"robotcore/store"
	"robotcore/workflow"
)

// detach keeps request values but drops cancellation, so a client that
// hangs up does not abort a robot halfway through a motion sequence.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *Handlers) apiListTemplates(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.Workflows().Templates())
}

func (h *Handlers) apiPutTemplate(w http.ResponseWriter, r *http.Request) {
	var t workflow.Template
	if err := decode(r, &t); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	t.ID = chi.URLParam(r, "id")
	if err := h.engine.Workflows().Register(t); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.db != nil {
		if err := h.db.SaveTemplate(t); err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	h.jsonOK(w, t)
}

// apiSubmitWorkflow runs a template to completion and returns the run.
// A run that aborts is still a 200; its status carries the outcome.
func (h *Handlers) apiSubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Inputs map[string]any `json:"inputs"`
	}
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	run, err := h.engine.SubmitWorkflow(detach(r), chi.URLParam(r, "id"), req.Inputs)
	var be *workflow.BuildError
	switch {
	case errors.Is(err, workflow.ErrUnknownTemplate):
		h.jsonError(w, err.Error(), http.StatusNotFound)
		return
	case errors.As(err, &be):
		h.jsonStatus(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "problems": be.Problems})
		return
	case err != nil:
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, run)
}

func (h *Handlers) apiListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.db.ListRuns(r.Context(), h.engine.DeviceID(), limit)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*workflow.Run{}
	}
	h.jsonOK(w, runs)
}

func (h *Handlers) apiGetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}
	run, err := h.db.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		h.jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, run)
}
