package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-composer/internal/catalog"
	"github.com/heimdex/heimdex-composer/internal/playback"
)

// playbackHandler streams the output file of a finished export.
func playbackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exportID := r.URL.Query().Get("export_id")
		if exportID == "" {
			WriteError(w, http.StatusBadRequest, "export_id is required", "BAD_REQUEST")
			return
		}

		rec, err := cfg.Exports.Get(r.Context(), exportID)
		if err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}
		if rec.Status != catalog.ExportStatusSucceeded {
			WriteError(w, http.StatusConflict, "export has not finished", "EXPORT_NOT_READY")
			return
		}

		if err := cfg.PlaybackServer.ServeFile(w, r, rec.OutputPath); err != nil {
			cfg.Logger.Error("playback error", "error", err, "export_id", exportID)
		}
	}
}

func openPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PreviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.ExportID == "" {
			WriteError(w, http.StatusBadRequest, "export_id is required", "BAD_REQUEST")
			return
		}

		ctx := r.Context()
		rec, err := cfg.Exports.Get(ctx, req.ExportID)
		if err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}
		if rec.Status != catalog.ExportStatusSucceeded {
			WriteError(w, http.StatusConflict, "export has not finished", "EXPORT_NOT_READY")
			return
		}

		comp, err := cfg.CatalogService.GetComposition(ctx, rec.CompositionID)
		if err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}
		if comp == nil {
			WriteError(w, http.StatusNotFound, "composition not found", "NOT_FOUND")
			return
		}

		opts := playback.DefaultOptions()
		if req.Loop != nil {
			opts.Loop = *req.Loop
		}
		if req.Muted != nil {
			opts.Muted = *req.Muted
		}

		session, err := cfg.Previews.Open(rec.ID, rec.OutputPath, comp.Duration.Duration(), opts)
		if err != nil {
			WriteError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_PREVIEW")
			return
		}

		WriteJSON(w, http.StatusCreated, previewToResponse(session))
	}
}

func getPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := cfg.Previews.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}
		WriteJSON(w, http.StatusOK, previewToResponse(session))
	}
}

func restartPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := cfg.Previews.Restart(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}
		WriteJSON(w, http.StatusOK, previewToResponse(session))
	}
}

func closePreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Previews.Close(chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func previewToResponse(s *playback.Session) PreviewResponse {
	st := s.Status()
	return PreviewResponse{
		ID:        st.ID,
		ExportID:  st.ExportID,
		Playing:   st.Playing,
		PositionS: st.PositionS,
		DurationS: st.DurationS,
		Plays:     st.Plays,
		Loop:      st.Loop,
		Muted:     st.Muted,
		StreamURL: "/playback/export?export_id=" + url.QueryEscape(st.ExportID),
	}
}
