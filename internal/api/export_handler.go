package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/project"
)

// loadSettings returns a project's stored export settings, falling back to
// defaults sized for the recording when nothing is stored yet.
func loadSettings(cfg ServerConfig, r *http.Request, p *project.Project) (*export.Settings, error) {
	stored, err := cfg.Repository.GetExportSettings(r.Context(), p.ID)
	if err != nil {
		return nil, err
	}
	if stored == "" {
		return export.DefaultSettings(p.Width, p.Height), nil
	}
	var s export.Settings
	if err := json.Unmarshal([]byte(stored), &s); err != nil {
		cfg.Logger.Warn("stored export settings unreadable, using defaults", "project_id", p.ID, "error", err)
		return export.DefaultSettings(p.Width, p.Height), nil
	}
	return &s, nil
}

func getSettingsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fetchProject(cfg, w, r)
		if p == nil {
			return
		}
		settings, err := loadSettings(cfg, r, p)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, settings)
	}
}

func putSettingsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fetchProject(cfg, w, r)
		if p == nil {
			return
		}

		var settings export.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid settings body", "BAD_REQUEST")
			return
		}

		transparent := p.Config != nil && p.Config.Background.Source.IsTransparent()
		settings.Normalize(transparent)
		if err := settings.Validate(); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_SETTINGS")
			return
		}

		encoded, err := json.Marshal(&settings)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if err := cfg.Repository.SetExportSettings(r.Context(), p.ID, string(encoded)); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		// Return the normalized form so the UI reflects any coercion.
		WriteJSON(w, http.StatusOK, &settings)
	}
}

func estimatesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fetchProject(cfg, w, r)
		if p == nil {
			return
		}

		settings, err := loadSettings(cfg, r, p)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		// Query parameters override the stored settings, so the UI can
		// probe a candidate configuration without saving it.
		q := r.URL.Query()
		if v := q.Get("format"); v != "" {
			settings.Format = v
		}
		if v := q.Get("fps"); v != "" {
			fps, err := strconv.Atoi(v)
			if err != nil || fps <= 0 {
				WriteError(w, http.StatusBadRequest, "invalid fps", "BAD_REQUEST")
				return
			}
			settings.FPS = fps
		}
		if v := q.Get("width"); v != "" {
			width, err := strconv.Atoi(v)
			if err != nil || width <= 0 {
				WriteError(w, http.StatusBadRequest, "invalid width", "BAD_REQUEST")
				return
			}
			settings.Resolution.Width = width
		}
		if v := q.Get("height"); v != "" {
			height, err := strconv.Atoi(v)
			if err != nil || height <= 0 {
				WriteError(w, http.StatusBadRequest, "invalid height", "BAD_REQUEST")
				return
			}
			settings.Resolution.Height = height
		}
		if v := q.Get("bpp"); v != "" {
			bpp, err := strconv.ParseFloat(v, 64)
			if err != nil || bpp <= 0 || bpp > 1 {
				WriteError(w, http.StatusBadRequest, "invalid bpp", "BAD_REQUEST")
				return
			}
			settings.CustomBPP = &bpp
		}

		estimate := export.ComputeEstimate(settings, p.EffectiveDuration())
		WriteJSON(w, http.StatusOK, estimate)
	}
}

func eligibilityHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fetchProject(cfg, w, r)
		if p == nil {
			return
		}
		verdict, err := cfg.Exports.CheckEligibility(r.Context(), p)
		if err != nil {
			WriteError(w, http.StatusBadGateway, err.Error(), "CLOUD_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, verdict)
	}
}

func startExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := fetchProject(cfg, w, r)
		if p == nil {
			return
		}

		var req ExportStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		settings := req.Settings
		if settings == nil {
			var err error
			settings, err = loadSettings(cfg, r, p)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
				return
			}
		}

		exportID, err := cfg.Exports.Start(r.Context(), p, settings, req.SavePath)
		if err != nil {
			var validation *export.ValidationError
			var eligibility *export.EligibilityError
			switch {
			case errors.Is(err, export.ErrExportInProgress):
				WriteError(w, http.StatusConflict, err.Error(), "EXPORT_IN_PROGRESS")
			case errors.As(err, &validation):
				WriteError(w, http.StatusBadRequest, validation.Reason, "INVALID_SETTINGS")
			case errors.As(err, &eligibility):
				WriteError(w, http.StatusForbidden, eligibility.Error(), strings.ToUpper(eligibility.Reason))
			default:
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			}
			return
		}

		WriteJSON(w, http.StatusAccepted, ExportStartResponse{ExportID: exportID})
	}
}

func exportStateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Exports.State())
	}
}

func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Exports.Cancel()
		w.WriteHeader(http.StatusAccepted)
	}
}

func dismissExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Exports.Dismiss()
		w.WriteHeader(http.StatusNoContent)
	}
}
