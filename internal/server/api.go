package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kingrea/smart-mirror/internal/component"
	"github.com/kingrea/smart-mirror/internal/stream"
	"github.com/kingrea/smart-mirror/internal/userconfig"
)

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Components    int    `json:"components"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type manifestEntry struct {
	ID       string             `json:"id"`
	Manifest component.Manifest `json:"manifest"`
	Source   component.Source   `json:"source"`
}

type manifestsResponse struct {
	Components []manifestEntry `json:"components"`
}

type saveResponse struct {
	Success bool                  `json:"success"`
	Config  userconfig.UserConfig `json:"config"`
}

type validateResponse struct {
	Valid    bool                `json:"valid"`
	Message  string              `json:"message,omitempty"`
	Problems []component.Problem `json:"problems,omitempty"`
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        string(s.Status()),
		Version:       s.deps.Version,
		UptimeSeconds: s.uptimeSeconds(),
	}
	if s.deps.Registry != nil {
		resp.Components = s.deps.Registry.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleManifests(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.Load(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("components not loaded"))
		return
	}
	comps := s.deps.Registry.Components()
	resp := manifestsResponse{Components: make([]manifestEntry, 0, len(comps))}
	for _, c := range comps {
		resp.Components = append(resp.Components, manifestEntry{ID: c.ID, Manifest: c.Manifest, Source: c.Source})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleComponent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	}
	out := s.deps.Proxy.Call(r.Context(), id, r)
	if !out.OK() {
		writeJSON(w, out.Status, errorBody(out.Error))
		return
	}
	writeJSON(w, out.Status, out.Data)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Store.LoadReconciled(r.Context())
	if err != nil {
		s.logger.Errorf("server: load config: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("Failed to load config"))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	body, status, err := s.readBody(w, r)
	if err != nil {
		writeJSON(w, status, errorBody(err.Error()))
		return
	}
	var patch userconfig.Patch
	if err := json.Unmarshal(body, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if patch.Dashboard != nil {
		for _, entry := range patch.Dashboard.Components {
			if !entry.Area.Valid() {
				writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown area %q for %s", entry.Area, entry.ID)))
				return
			}
		}
	}
	ctx := r.Context()
	merged := userconfig.Merge(s.deps.Store.Load(ctx), patch)
	reconciled, err := s.deps.Store.Reconcile(ctx, merged)
	if err != nil {
		s.logger.Errorf("server: reconcile config: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("Failed to save config"))
		return
	}
	if err := s.deps.Store.Save(ctx, reconciled); err != nil {
		s.logger.Errorf("server: save config: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("Failed to save config"))
		return
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Publish(stream.TypeConfigChanged)
	}
	writeJSON(w, http.StatusOK, saveResponse{Success: true, Config: reconciled})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("component"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, validateResponse{Message: "component parameter is required"})
		return
	}
	if err := s.deps.Registry.Load(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, validateResponse{Message: "components not loaded"})
		return
	}
	comp, ok := s.deps.Registry.Component(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, validateResponse{Message: fmt.Sprintf("unknown component %q", id)})
		return
	}
	settings := s.deps.Store.ComponentSettings(r.Context(), id)
	problems := component.ValidateSettings(comp.Manifest.Config, settings)
	if len(problems) > 0 {
		writeJSON(w, http.StatusOK, validateResponse{
			Message:  fmt.Sprintf("%d setting(s) need attention", len(problems)),
			Problems: problems,
		})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: true})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	if r.Body == nil {
		return nil, http.StatusBadRequest, errors.New("empty body")
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, http.StatusRequestEntityTooLarge, errors.New("payload exceeds limit")
		}
		return nil, http.StatusBadRequest, errors.New("unable to read body")
	}
	return body, http.StatusOK, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
