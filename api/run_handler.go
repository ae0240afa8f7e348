package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	jobs "github.com/eric2umeh/techignite-jobs"
	"github.com/eric2umeh/techignite-jobs/id"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// ListWorkflowsResponse carries the registered workflow kinds.
type ListWorkflowsResponse struct {
	Workflows []string `json:"workflows"`
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ListWorkflowsResponse{
		Workflows: s.eng.Registry().Names(),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := workflow.ListOpts{
		State: workflow.RunState(r.URL.Query().Get("state")),
		Kind:  r.URL.Query().Get("kind"),
		Limit: 100,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		opts.Offset = n
	}

	runs, err := s.eng.Store().ListRuns(r.Context(), opts)
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*workflow.Run{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := id.ParseRunID(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.eng.Store().GetRun(r.Context(), runID)
	if errors.Is(err, jobs.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", "run_id", runID.String(), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	runID, err := id.ParseRunID(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	steps, err := s.eng.Store().ListSteps(r.Context(), runID)
	if err != nil {
		s.logger.Error("list steps failed", "run_id", runID.String(), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list steps")
		return
	}
	if steps == nil {
		steps = []*workflow.StepRecord{}
	}
	respondJSON(w, http.StatusOK, steps)
}
