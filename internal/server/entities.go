package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blackwhitehere/acme-data-dash/internal/connection"
	"github.com/blackwhitehere/acme-data-dash/internal/storage"
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// --- Connection profiles ---

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.Profiles(r.Context())
	if err != nil {
		s.logger.Error("Profiles", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) handlePutConnection(w http.ResponseWriter, r *http.Request) {
	var p connection.Profile
	if !decodeBody(w, r, &p) {
		return
	}
	p.Name = chi.URLParam(r, "name")
	if p.Driver == "" || p.Template == "" {
		writeError(w, http.StatusBadRequest, "driver and connection_string_template are required")
		return
	}

	if err := s.store.SaveProfile(r.Context(), p); err != nil {
		s.logger.Error("SaveProfile", "name", p.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.DeleteProfile(r.Context(), name); err != nil {
		s.logger.Error("DeleteProfile", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Secrets ---

// handleListSecrets returns keys only. Values never leave the store over HTTP.
func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.SecretKeys(r.Context())
	if err != nil {
		s.logger.Error("SecretKeys", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

type secretRequest struct {
	Value string `json:"value"`
}

func (s *Server) handlePutSecret(w http.ResponseWriter, r *http.Request) {
	var req secretRequest
	if !decodeBody(w, r, &req) {
		return
	}
	key := chi.URLParam(r, "key")

	if err := s.store.SaveSecret(r.Context(), key, req.Value); err != nil {
		s.logger.Error("SaveSecret", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.store.DeleteSecret(r.Context(), key); err != nil {
		s.logger.Error("DeleteSecret", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Data sources ---

func (s *Server) handleListDataSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.DataSources(r.Context())
	if err != nil {
		s.logger.Error("DataSources", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

type dataSourceRequest struct {
	ConnectionName string `json:"connection_name"`
	SecretKey      string `json:"secret_key"`
}

func (s *Server) handlePutDataSource(w http.ResponseWriter, r *http.Request) {
	var req dataSourceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	name := chi.URLParam(r, "name")

	ds, err := s.store.SaveDataSource(r.Context(), name, req.ConnectionName, req.SecretKey)
	if err != nil {
		s.logger.Error("SaveDataSource", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleDeleteDataSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.DeleteDataSource(r.Context(), name); err != nil {
		s.logger.Error("DeleteDataSource", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Unix groups ---

func (s *Server) handleListUnixGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.UnixGroups(r.Context())
	if err != nil {
		s.logger.Error("UnixGroups", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handlePutUnixGroup(w http.ResponseWriter, r *http.Request) {
	var g storage.UnixGroup
	if !decodeBody(w, r, &g) {
		return
	}
	g.GroupName = chi.URLParam(r, "name")

	if err := s.store.SaveUnixGroup(r.Context(), g); err != nil {
		s.logger.Error("SaveUnixGroup", "group", g.GroupName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteUnixGroup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.DeleteUnixGroup(r.Context(), name); err != nil {
		s.logger.Error("DeleteUnixGroup", "group", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
