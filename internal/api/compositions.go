package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-composer/internal/catalog"
	"github.com/heimdex/heimdex-composer/internal/logging"
)

func composeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ComposeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if len(req.SourceIDs) == 0 {
			WriteError(w, http.StatusBadRequest, "source_ids is required", "BAD_REQUEST")
			return
		}

		comp, err := cfg.CatalogService.Compose(r.Context(), req.Name, req.SourceIDs, catalog.ComposeOptions{
			SkipMissingVideo: req.SkipMissingVideo,
		})
		if err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}

		WriteJSON(w, http.StatusCreated, CompositionToResponse(comp))
	}
}

func listCompositionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		comps, err := cfg.CatalogService.ListCompositions(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list compositions", "INTERNAL_ERROR")
			return
		}

		resp := CompositionsResponse{Compositions: make([]CompositionResponse, len(comps))}
		for i, c := range comps {
			resp.Compositions[i] = CompositionToResponse(c)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getCompositionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		comp, err := cfg.CatalogService.GetComposition(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}
		if comp == nil {
			WriteError(w, http.StatusNotFound, "composition not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, CompositionToResponse(comp))
	}
}

func startExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.OutputPath == "" {
			WriteError(w, http.StatusBadRequest, "output_path is required", "BAD_REQUEST")
			return
		}

		rec, err := cfg.Exports.Start(r.Context(), chi.URLParam(r, "id"), req.OutputPath)
		if err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}

		WriteJSON(w, http.StatusAccepted, ExportToResponse(rec))
	}
}

func edlHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EDLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.FrameRate < 0 || req.FrameRate > 240 {
			WriteError(w, http.StatusBadRequest, "frame_rate must be between 0 and 240", "BAD_REQUEST")
			return
		}

		compID := chi.URLParam(r, "id")
		path, err := cfg.CatalogService.WriteEDL(r.Context(), compID, req.OutputDir, req.FrameRate)
		if err != nil {
			logging.WithCompositionID(cfg.Logger, compID).Warn("edl export failed", "error", err)
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}

		WriteJSON(w, http.StatusOK, EDLResponse{Path: path})
	}
}

func listExportsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exports, err := cfg.Exports.List(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list exports", "INTERNAL_ERROR")
			return
		}

		resp := ExportsResponse{Exports: make([]ExportResponse, len(exports))}
		for i, e := range exports {
			resp.Exports[i] = ExportToResponse(e)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := cfg.Exports.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}

		WriteJSON(w, http.StatusOK, ExportToResponse(rec))
	}
}

// cancelExportHandler requests cancellation; the record reports cancelled
// once the encoder has stopped.
func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Exports.Cancel(r.Context(), id); err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}

		rec, err := cfg.Exports.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}
		WriteJSON(w, http.StatusAccepted, ExportToResponse(rec))
	}
}
