package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vaultbridge/importengine/internal/engineerr"
	"github.com/vaultbridge/importengine/internal/importpipeline"
	"github.com/vaultbridge/importengine/internal/model"
	"go.uber.org/zap"
)

// --- Response helpers ---

type apiResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiResponse{Error: msg})
}

// statusForErr maps an engineerr.Kind onto the HTTP status a UI
// should react to, following the taxonomy spec §7 defines.
func statusForErr(err error) int {
	kind, ok := engineerr.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case engineerr.KindNotFound:
		return http.StatusNotFound
	case engineerr.KindForbidden:
		return http.StatusForbidden
	case engineerr.KindConflict:
		return http.StatusConflict
	case engineerr.KindPrecondition:
		return http.StatusBadRequest
	case engineerr.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

// --- Health ---

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Resolve ---

type resolveRequest struct {
	Requested  []model.BaseAssetData `json:"requested"`
	ImportType model.ImportType      `json:"import_type"`
	Overrides  model.ImportOverrides `json:"overrides"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings := importpipeline.ComputeEffectiveSettings(s.defaults, req.Overrides)
	report, err := s.resolver.Resolve(r.Context(), req.Requested, req.ImportType, settings)
	if err != nil {
		s.logger.Error("resolving assets", zap.Error(err))
		writeError(w, statusForErr(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Data: report})
}

// --- Import ---

type importRequest struct {
	Trigger    string                 `json:"trigger"`
	Requested  []model.BaseAssetData  `json:"requested"`
	ImportType model.ImportType       `json:"import_type"`
	Overrides  model.ImportOverrides  `json:"overrides"`
}

// handleImport runs the full resolve-through-materialize cycle and
// blocks until it finishes, mirroring StartImport's own blocking
// contract; a UI can watch GET /events for the resulting index changes
// instead of waiting on this call (that stream carries no download
// progress).
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Trigger == "" {
		req.Trigger = "api"
	}

	bulk, err := s.pipeline.StartImport(r.Context(), req.Trigger, req.Requested, req.ImportType, req.Overrides, s.defaults)
	if err != nil {
		if errors.Is(err, engineerr.Conflict) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("starting import", zap.Error(err))
		writeError(w, statusForErr(err), err.Error())
		return
	}

	if s.notifier != nil {
		s.notifier.NotifyImportCompleted(r.Context(), bulk.Trigger, bulk.Status())
	}

	writeJSON(w, http.StatusOK, apiResponse{Data: map[string]any{
		"trigger": bulk.Trigger,
		"status":  bulk.Status(),
	}})
}

// handleImportCancel cancels one in-flight download request. {id} is
// a download.Request.ID, the finest grain the download manager
// exposes cancellation at; the pipeline does not track a separate
// per-asset cancel token.
func (s *Server) handleImportCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.downloads.Cancel(id)
	writeJSON(w, http.StatusAccepted, apiResponse{Data: map[string]string{"id": id, "status": "cancel_requested"}})
}

// --- Cache ---

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		s.logger.Error("getting cache stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get cache stats")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Data: stats})
}

// --- SSE events ---

// handleSSEEvents streams index-change notifications to a connected
// UI, mirroring the teacher's handleSSEEvents shape (headers, flusher
// check, block on disconnect) generalized to forward the index's
// observer callbacks after the initial connected event. Download
// progress events are not forwarded on this stream.
func (s *Server) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Write([]byte("event: connected\ndata: {\"status\":\"connected\"}\n\n"))
	flusher.Flush()

	unsubscribe := s.idx.Subscribe(func(ev model.IndexChangeEvent) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		w.Write([]byte("event: imported\ndata: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	})
	defer unsubscribe()

	<-r.Context().Done()
}
