package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pkolbe/ontograph-go/internal/batch"
	"github.com/pkolbe/ontograph-go/internal/models"
	"github.com/pkolbe/ontograph-go/internal/ontology"
)

type issueTicketRequest struct {
	OntologyID string `json:"ontology_id"`
	APIKey     string `json:"api_key,omitempty"`
}

type issueTicketResponse struct {
	Ticket     string `json:"ticket"`
	ExpiresAt  int64  `json:"expires_at"` // epoch milliseconds
	TTLSeconds int    `json:"ttl_seconds"`
}

func (s *Server) handleIssueTicket(w http.ResponseWriter, req *http.Request) {
	var body issueTicketRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.OntologyID == "" {
		respondError(w, http.StatusBadRequest, "ontology_id is required")
		return
	}
	if _, err := s.registry.Get(body.OntologyID); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	ticket, err := s.authority.Issue(req.Context(), body.OntologyID, body.APIKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue ticket")
		return
	}

	respondJSON(w, http.StatusCreated, issueTicketResponse{
		Ticket:     ticket.Token,
		ExpiresAt:  ticket.ExpiresAt.UnixMilli(),
		TTLSeconds: s.authority.TTLSeconds(),
	})
}

type submitBatchRequest struct {
	OntologyID  string   `json:"ontology_id"`
	Items       []string `json:"items"`
	Model       string   `json:"model,omitempty"`
	Concurrency int      `json:"concurrency,omitempty"`
}

type submitBatchResponse struct {
	BatchID string `json:"batch_id"`
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, req *http.Request) {
	var body submitBatchRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.OntologyID == "" {
		respondError(w, http.StatusBadRequest, "ontology_id is required")
		return
	}
	if len(body.Items) == 0 {
		respondError(w, http.StatusBadRequest, "items must not be empty")
		return
	}

	cfg := models.RunConfig{
		OntologyID:  body.OntologyID,
		Model:       body.Model,
		Concurrency: body.Concurrency,
	}
	id, err := s.engine.Submit(req.Context(), body.Items, cfg)
	if err != nil {
		if errors.Is(err, ontology.ErrUnknownOntology) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, submitBatchResponse{BatchID: id})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, req *http.Request) {
	status, err := s.engine.Status(req.Context(), req.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	code := http.StatusOK
	if status.Tag == batch.TagNotFound {
		code = http.StatusNotFound
	}
	respondJSON(w, code, status)
}

type suspendBatchRequest struct {
	Cause string `json:"cause,omitempty"`
}

func (s *Server) handleSuspendBatch(w http.ResponseWriter, req *http.Request) {
	var body suspendBatchRequest
	if req.Body != nil && req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := s.engine.Suspend(req.Context(), req.PathValue("id"), body.Cause); err != nil {
		if errors.Is(err, batch.ErrBatchNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResumeBatch(w http.ResponseWriter, req *http.Request) {
	err := s.engine.Resume(req.Context(), req.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, batch.ErrBatchNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, batch.ErrResumeRejected), errors.Is(err, batch.ErrBatchNotSuspended):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}
