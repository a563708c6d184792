package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelkit/reelkit-agent/internal/cloud"
	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/project"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/organizations", organizationsHandler(cfg))
		r.Post("/auth/token", setTokenHandler(cfg))
		r.Delete("/auth", signOutHandler(cfg))

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", registerProjectHandler(cfg))
		r.Post("/projects/scan", scanProjectsHandler(cfg))
		r.Get("/projects/{id}", getProjectHandler(cfg))
		r.Delete("/projects/{id}", removeProjectHandler(cfg))
		r.Get("/projects/{id}/settings", getSettingsHandler(cfg))
		r.Put("/projects/{id}/settings", putSettingsHandler(cfg))
		r.Put("/projects/{id}/config", putConfigHandler(cfg))
		r.Post("/projects/{id}/preview/notify", previewNotifyHandler(cfg))
		r.Post("/projects/{id}/playback", playbackHandler(cfg))
		r.Get("/projects/{id}/estimates", estimatesHandler(cfg))
		r.Get("/projects/{id}/eligibility", eligibilityHandler(cfg))
		r.Post("/projects/{id}/export", startExportHandler(cfg))
		r.Get("/projects/{id}/artifact", artifactHandler(cfg))

		r.Get("/export", exportStateHandler(cfg))
		r.Post("/export/cancel", cancelExportHandler(cfg))
		r.Post("/export/dismiss", dismissExportHandler(cfg))

		r.Get("/shares", sharesHandler(cfg))
		r.Get("/ws/frames", framesHandler(cfg))
	})

	return r
}

// fetchProject resolves the {id} route param, writing the error response
// itself. Callers bail out on nil.
func fetchProject(cfg ServerConfig, w http.ResponseWriter, r *http.Request) *project.Project {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "project id required", "BAD_REQUEST")
		return nil
	}
	p, err := cfg.Projects.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil
	}
	if p == nil {
		WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
		return nil
	}
	return p
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projects, _ := cfg.Projects.ListProjects(ctx)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		engineOK := cfg.Engine.Ping(pingCtx) == nil
		cancel()

		exportState := cfg.Exports.State()
		state := "idle"
		switch {
		case exportState.Active() && exportState.Phase != export.PhaseDone:
			state = "exporting"
		case exportState.Error != "":
			state = "error"
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:         state,
			Export:        exportState,
			EngineOK:      engineOK,
			Authenticated: cfg.Credentials.IsAuthenticated(ctx),
			ProjectsCount: len(projects),
			FrameClients:  cfg.Frames.SubscriberCount(),
		})
	}
}

func organizationsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgs, err := cfg.Cloud.ListOrganizations(r.Context())
		if err != nil {
			if errors.Is(err, cloud.ErrNoCredential) {
				WriteError(w, http.StatusUnauthorized, "not signed in to the cloud", "NOT_AUTHENTICATED")
				return
			}
			WriteError(w, http.StatusBadGateway, err.Error(), "CLOUD_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, OrganizationsResponse{Organizations: orgs})
	}
}

func setTokenHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AuthTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := cfg.Credentials.SetToken(r.Context(), req.AccessToken); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		// A new account may be on a different plan.
		cfg.Plan.Invalidate()
		w.WriteHeader(http.StatusNoContent)
	}
}

func signOutHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Credentials.Clear(r.Context()); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		cfg.Plan.Invalidate()
		w.WriteHeader(http.StatusNoContent)
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Projects.ListProjects(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list projects", "INTERNAL_ERROR")
			return
		}
		resp := ProjectsResponse{Projects: make([]ProjectResponse, len(projects))}
		for i, p := range projects {
			resp.Projects[i] = ProjectToResponse(p)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func registerProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		p, err := cfg.Projects.Register(r.Context(), req.Path)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusCreated, ProjectToResponse(p))
	}
}

func scanProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		added, missing, err := cfg.Projects.Scan(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, ScanResponse{Added: added, Missing: missing})
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fetchProject(cfg, w, r)
		if p == nil {
			return
		}
		WriteJSON(w, http.StatusOK, ProjectToResponse(p))
	}
}

func removeProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fetchProject(cfg, w, r)
		if p == nil {
			return
		}
		cfg.Editors.Close(p.ID)
		if err := cfg.Projects.RemoveProject(r.Context(), p.ID); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func putConfigHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fetchProject(cfg, w, r)
		if p == nil {
			return
		}

		var reqCfg project.Configuration
		if err := json.NewDecoder(r.Body).Decode(&reqCfg); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid configuration body", "BAD_REQUEST")
			return
		}

		inst, err := cfg.Editors.Open(r.Context(), p.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if err := inst.ApplyConfiguration(r.Context(), &reqCfg); err != nil {
			WriteError(w, http.StatusBadGateway, err.Error(), "ENGINE_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func previewNotifyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fetchProject(cfg, w, r)
		if p == nil {
			return
		}

		var req PreviewNotifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Time < 0 {
			WriteError(w, http.StatusBadRequest, "time must not be negative", "BAD_REQUEST")
			return
		}

		inst, err := cfg.Editors.Open(r.Context(), p.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		inst.NotifyPreview(req.Time)
		w.WriteHeader(http.StatusAccepted)
	}
}

func playbackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fetchProject(cfg, w, r)
		if p == nil {
			return
		}

		var req PlaybackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		inst, err := cfg.Editors.Open(r.Context(), p.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		inst.SetPlayback(req.Playing, req.Time)
		w.WriteHeader(http.StatusAccepted)
	}
}

func sharesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		links, err := cfg.Repository.ListShareLinks(r.Context(), r.URL.Query().Get("project_id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list shares", "INTERNAL_ERROR")
			return
		}
		resp := SharesResponse{Shares: make([]ShareResponse, len(links))}
		for i, l := range links {
			resp.Shares[i] = ShareToResponse(l)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func artifactHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fetchProject(cfg, w, r)
		if p == nil {
			return
		}
		if err := cfg.Streamer.ServeArtifact(w, r, p.ID); err != nil {
			cfg.Logger.Error("artifact streaming error", "error", err, "project_id", p.ID)
		}
	}
}
