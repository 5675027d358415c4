package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vaultbridge/importengine/internal/model"
	"github.com/vaultbridge/importengine/internal/persist/pgmirror"
	"go.uber.org/zap"
)

// handleMirrorAssets answers the SQL-queryable view over imported
// assets the pgmirror.Store.List method exists to provide: filter by
// type/status/name substring, paginated.
func (s *Server) handleMirrorAssets(w http.ResponseWriter, r *http.Request) {
	if s.pgMirror == nil {
		writeError(w, http.StatusNotFound, "postgres mirror not configured")
		return
	}

	q := r.URL.Query()
	filter := pgmirror.Filter{
		AssetType: q.Get("type"),
		Status:    q.Get("status"),
		Search:    q.Get("search"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	entries, total, err := s.pgMirror.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing mirrored assets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list mirrored assets")
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Data: map[string]any{
		"total":   total,
		"entries": entries,
	}})
}

// handleMirrorDependents answers the impact-query the Neo4j mirror
// exists to provide: everything that depends on {orgID}/{projectID}/
// {assetID}, up to a bounded depth.
func (s *Server) handleMirrorDependents(w http.ResponseWriter, r *http.Request) {
	if s.graphMirror == nil {
		writeError(w, http.StatusNotFound, "neo4j mirror not configured")
		return
	}

	id := model.TrackedID{
		OrgID:     chi.URLParam(r, "orgID"),
		ProjectID: chi.URLParam(r, "projectID"),
		AssetID:   chi.URLParam(r, "assetID"),
	}
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			depth = n
		}
	}

	dependents, err := s.graphMirror.Dependents(r.Context(), id, depth)
	if err != nil {
		s.logger.Error("querying graph mirror dependents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query dependents")
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Data: dependents})
}
