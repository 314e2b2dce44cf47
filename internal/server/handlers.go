package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/stowgate/stowgate/internal/errors"
	"github.com/stowgate/stowgate/pkg/listing"
	"github.com/stowgate/stowgate/pkg/registry"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	configs, err := s.gateway.Registry().Store().All(r.Context())
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	// Secret fields carry json:"-" tags, so the marshalled view is
	// safe to return.
	writeJSON(w, http.StatusOK, map[string]any{"connections": configs})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.gateway.Registry().Store().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var inline *registry.ConnectionConfig
	if r.ContentLength > 0 {
		var body registry.ConnectionConfig
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apperrors.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), r.Header.Get("X-Request-ID"))
			return
		}
		body.ID = id
		inline = &body
	}

	result, err := s.gateway.TestConnection(r.Context(), id, inline)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := listing.Filter{
		Pattern:   q.Get("pattern"),
		PageToken: q.Get("page_token"),
	}
	if raw := q.Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apperrors.WriteError(w, http.StatusBadRequest, "INVALID_BODY",
				"max_results must be a non-negative integer", r.Header.Get("X-Request-ID"))
			return
		}
		filter.MaxResults = n
	}

	result, err := s.gateway.ListFiles(r.Context(), chi.URLParam(r, "id"), filter)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleIssueGrant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Key == "" {
		apperrors.WriteError(w, http.StatusBadRequest, "INVALID_BODY",
			"body must carry a non-empty key", r.Header.Get("X-Request-ID"))
		return
	}

	grant, err := s.gateway.GetAccessGrant(r.Context(), chi.URLParam(r, "id"), body.Key)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	report, err := s.gateway.Diagnose(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), r.Header.Get("X-Request-ID"))
		return
	}
	if err := s.gateway.Registry().SetEnabled(r.Context(), chi.URLParam(r, "id"), body.Enabled); err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": body.Enabled})
}

func (s *Server) handleAssignFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FolderID string `json:"folder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FolderID == "" {
		apperrors.WriteError(w, http.StatusBadRequest, "INVALID_BODY",
			"body must carry a non-empty folder_id", r.Header.Get("X-Request-ID"))
		return
	}
	if err := s.gateway.Registry().AssignFolder(r.Context(), chi.URLParam(r, "id"), body.FolderID); err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"folder_id": body.FolderID})
}

func (s *Server) handleBeginOAuth(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), r.Header.Get("X-Request-ID"))
		return
	}

	result, err := s.gateway.BeginOAuth(r.Context(), chi.URLParam(r, "id"), body.ClientID, body.ClientSecret)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCompleteOAuth(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		apperrors.WriteError(w, http.StatusBadRequest, "INVALID_BODY",
			"body must carry a non-empty code", r.Header.Get("X-Request-ID"))
		return
	}

	result, err := s.gateway.CompleteOAuth(r.Context(), chi.URLParam(r, "id"), body.Code)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
