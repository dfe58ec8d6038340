package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/boundary"
	"github.com/sells-group/siteplan/internal/mapview"
	"github.com/sells-group/siteplan/internal/workflow"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps the error taxonomy onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidationFailed):
		writeError(w, http.StatusUnprocessableEntity, apperr.Reason(err))
	case errors.Is(err, apperr.ErrMissingBusinessKey):
		writeError(w, http.StatusUnprocessableEntity, "parcel has no assessor parcel number")
	case errors.Is(err, apperr.ErrLocationNotFound), errors.Is(err, boundary.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrStepLocked), errors.Is(err, apperr.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrParcelFetchFailed), errors.Is(err, apperr.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, apperr.ErrPersistenceFailed):
		writeError(w, http.StatusServiceUnavailable, apperr.Reason(err))
	default:
		zap.L().Error("api: unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.Len()})
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	res, ok := s.cfg.Geocoder.Resolve(r.Context(), q)
	if !ok {
		writeError(w, http.StatusNotFound, "location not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	states := map[string]string{}
	for name, st := range s.cfg.Geocoder.ProviderStates() {
		states[name] = st.String()
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleGetBoundary(w http.ResponseWriter, r *http.Request) {
	saved, err := s.cfg.Store.GetProjectBoundary(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeAppError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "geojson":
		w.Header().Set("Content-Type", "application/geo+json")
		if err := boundary.WriteGeoJSON(w, saved); err != nil {
			s.log.Error("write geojson", zap.Error(err))
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+saved.ProjectID+`-boundary.xlsx"`)
		if err := boundary.WriteXLSX(w, saved); err != nil {
			s.log.Error("write xlsx", zap.Error(err))
		}
	default:
		writeJSON(w, http.StatusOK, saved)
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"project_id"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		writeError(w, http.StatusUnprocessableEntity, "project_id is required")
		return
	}
	id, sess := s.Open(req.ProjectID, req.Width, req.Height)
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": id, "state": sess.Snapshot()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.closeSession(chi.URLParam(r, "sessionID")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request, e *entry) {
	writeJSON(w, http.StatusOK, e.session.Snapshot())
}

func (s *Server) handleRender(w http.ResponseWriter, _ *http.Request, e *entry) {
	writeJSON(w, http.StatusOK, e.renderer.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request, e *entry) {
	writeJSON(w, http.StatusOK, e.events.Events())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, e *entry) {
	var req struct {
		Query string   `json:"query"`
		Lat   *float64 `json:"lat"`
		Lng   *float64 `json:"lng"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Lat != nil && req.Lng != nil {
		res, err := e.session.Locate(*req.Lat, *req.Lng)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}
	res, err := e.session.Search(r.Context(), req.Query)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request, e *entry) {
	var vp mapview.Viewport
	if !decode(w, r, &vp) {
		return
	}
	e.session.ViewportChanged(vp)
	writeJSON(w, http.StatusAccepted, map[string]any{"viewport": vp})
}

func (s *Server) handleParcels(w http.ResponseWriter, _ *http.Request, e *entry) {
	fc := e.renderer.Source(mapview.ParcelSource)
	if fc == nil {
		writeJSON(w, http.StatusOK, map[string]any{"type": "FeatureCollection", "features": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (s *Server) handleLoadParcels(w http.ResponseWriter, r *http.Request, e *entry) {
	features, err := e.session.LoadParcels(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loaded": len(features)})
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request, e *entry) {
	var req struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if !decode(w, r, &req) {
		return
	}
	at := mapview.LatLng{Lat: req.Lat, Lng: req.Lng}
	res, err := e.session.Click(e.renderer.ScreenPointOf(at), at)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request, e *entry) {
	res, err := e.session.Toggle(chi.URLParam(r, "apn"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClearSelection(w http.ResponseWriter, _ *http.Request, e *entry) {
	if err := e.session.ClearSelection(); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.session.Snapshot())
}

func (s *Server) handleStructure(w http.ResponseWriter, r *http.Request, e *entry) {
	var req struct {
		Type string `json:"type"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := e.session.ChooseStructure(req.Type); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.session.Workflow().Snapshot())
}

func (s *Server) handleEnterStep(w http.ResponseWriter, r *http.Request, e *entry) {
	step, err := workflow.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := e.session.EnterStep(step); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.session.Workflow().Snapshot())
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, e *entry) {
	saved, err := e.session.Confirm(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleCompleteIngest(w http.ResponseWriter, _ *http.Request, e *entry) {
	if err := e.session.CompleteIngest(); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.session.Workflow().Snapshot())
}
