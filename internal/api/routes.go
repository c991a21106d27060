package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-composer/internal/catalog"
	"github.com/heimdex/heimdex-composer/internal/export"
	"github.com/heimdex/heimdex-composer/internal/pipeline"
	"github.com/heimdex/heimdex-composer/internal/playback"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	// Media elements cannot send bearer tokens, so the stream of a finished
	// export is served without auth but only to this machine.
	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())
		r.Get("/playback/export", playbackHandler(cfg))
		r.Head("/playback/export", playbackHandler(cfg))
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Config, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/sources", listSourcesHandler(cfg))
		r.Post("/sources", addSourceHandler(cfg))
		r.Get("/sources/{id}", getSourceHandler(cfg))
		r.Delete("/sources/{id}", deleteSourceHandler(cfg))

		r.Post("/compositions", composeHandler(cfg))
		r.Get("/compositions", listCompositionsHandler(cfg))
		r.Get("/compositions/{id}", getCompositionHandler(cfg))
		r.Post("/compositions/{id}/export", startExportHandler(cfg))
		r.Post("/compositions/{id}/edl", edlHandler(cfg))
		r.Get("/compositions/{id}/exports", listExportsHandler(cfg))

		r.Get("/exports/{id}", getExportHandler(cfg))
		r.Delete("/exports/{id}", cancelExportHandler(cfg))

		r.Post("/previews", openPreviewHandler(cfg))
		r.Get("/previews/{id}", getPreviewHandler(cfg))
		r.Post("/previews/{id}/restart", restartPreviewHandler(cfg))
		r.Delete("/previews/{id}", closePreviewHandler(cfg))
	})

	return r
}

// writeServiceError maps domain errors onto HTTP statuses. Errors it does not
// recognise are reported with fallback.
func writeServiceError(w http.ResponseWriter, err error, fallback int) {
	switch {
	case catalog.IsNotFound(err), errors.Is(err, playback.ErrSessionNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, timeline.ErrMissingVideoTrack):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "MISSING_VIDEO_TRACK")
	case errors.Is(err, pipeline.ErrNoDuration):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "UNSUPPORTED_MEDIA")
	case errors.Is(err, timeline.ErrNoSources),
		errors.Is(err, catalog.ErrInvalidOutput),
		errors.Is(err, catalog.ErrNotAFile):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, export.ErrExportInProgress):
		WriteError(w, http.StatusConflict, err.Error(), "EXPORT_IN_PROGRESS")
	case errors.Is(err, catalog.ErrExportsPaused):
		WriteError(w, http.StatusConflict, err.Error(), "EXPORTS_PAUSED")
	case errors.Is(err, catalog.ErrSourceInUse):
		WriteError(w, http.StatusConflict, err.Error(), "SOURCE_IN_USE")
	case errors.Is(err, catalog.ErrExportFinished):
		WriteError(w, http.StatusConflict, err.Error(), "EXPORT_FINISHED")
	case fallback == http.StatusBadRequest:
		WriteError(w, fallback, err.Error(), "BAD_REQUEST")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  version,
			UptimeS:  int64(time.Since(cfg.StartTime).Seconds()),
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sources, _ := cfg.CatalogService.GetSources(ctx)
		compositions, _ := cfg.CatalogService.ListCompositions(ctx)

		resp := StatusResponse{
			State:             "idle",
			SourcesCount:      len(sources),
			CompositionsCount: len(compositions),
		}

		if cfg.Exports != nil {
			resp.ExportsRunning = cfg.Exports.ActiveCount()
			switch {
			case cfg.Exports.IsPaused():
				resp.State = "paused"
			case resp.ExportsRunning > 0:
				resp.State = "exporting"
			}
		}
		if cfg.Previews != nil {
			resp.PreviewsOpen = cfg.Previews.Len()
		}

		if cfg.Doctor != nil {
			caps, err := cfg.Doctor.Get(ctx)
			if err != nil {
				resp.LastError = err.Error()
				if resp.State == "idle" {
					resp.State = "error"
				}
			}
			if caps != nil {
				tools := &ToolsStatusResponse{
					HasFFmpeg:     caps.HasFFmpeg,
					HasFFprobe:    caps.HasFFprobe,
					HasLibx264:    caps.HasLibx264,
					CanCompose:    caps.CanCompose(),
					FFmpegVersion: caps.FFmpegVersion,
				}
				if !caps.ProbedAt.IsZero() {
					tools.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
				}
				resp.Tools = tools
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := cfg.CatalogService.GetSources(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list sources", "INTERNAL_ERROR")
			return
		}

		resp := SourcesResponse{Sources: make([]SourceResponse, len(sources))}
		for i, s := range sources {
			resp.Sources[i] = SourceToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func addSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddSourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		source, err := cfg.CatalogService.AddSource(r.Context(), req.Path, req.DisplayName)
		if err != nil {
			writeServiceError(w, err, http.StatusBadRequest)
			return
		}

		WriteJSON(w, http.StatusCreated, SourceToResponse(source))
	}
}

func getSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, err := cfg.CatalogService.GetSource(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}
		if source == nil {
			WriteError(w, http.StatusNotFound, "source not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, SourceToResponse(source))
	}
}

func deleteSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "source id required", "BAD_REQUEST")
			return
		}

		if err := cfg.CatalogService.RemoveSource(r.Context(), id); err != nil {
			writeServiceError(w, err, http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
