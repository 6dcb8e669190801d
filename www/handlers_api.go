package www

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"robotcore/actions"
	"robotcore/health"
	"robotcore/points"
	"robotcore/store"
	"robotcore/telemetry"
)

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, map[string]any{
		"status":     "ok",
		"device":     h.engine.DeviceID(),
		"connection": h.engine.ConnectionState(),
		"services":   h.engine.Health().All(),
	})
}

func (h *Handlers) apiConnection(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"device": h.engine.DeviceID(),
		"state":  h.engine.ConnectionState(),
	}
	if since, ok := h.engine.Link().ConnectedSince(); ok {
		resp["connected_since"] = since
		resp["uptime_seconds"] = int64(time.Since(since).Seconds())
	}
	h.jsonOK(w, resp)
}

func (h *Handlers) apiReconnect(w http.ResponseWriter, r *http.Request) {
	h.engine.Reconnect()
	h.jsonOK(w, map[string]string{"status": "reconnecting"})
}

func (h *Handlers) apiRobotConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.AppConfig()
	cfg.Lock()
	rc := cfg.Robot
	cfg.Unlock()
	h.jsonOK(w, map[string]any{
		"id":       rc.ID,
		"base_url": rc.BaseURL,
		"ws_url":   rc.WSURL,
		"timeout":  rc.Timeout.String(),
	})
}

// apiUpdateRobotConfig changes the robot endpoints and reconnects. Fields
// left empty keep their current value.
func (h *Handlers) apiUpdateRobotConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseURL string `json:"base_url"`
		WSURL   string `json:"ws_url"`
		Timeout string `json:"timeout"`
	}
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	var timeout time.Duration
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			h.jsonError(w, "invalid timeout: "+req.Timeout, http.StatusBadRequest)
			return
		}
		timeout = d
	}

	cfg := h.engine.AppConfig()
	cfg.Lock()
	if req.BaseURL != "" {
		cfg.Robot.BaseURL = req.BaseURL
	}
	if req.WSURL != "" {
		cfg.Robot.WSURL = req.WSURL
	}
	if timeout > 0 {
		cfg.Robot.Timeout = timeout
	}
	cfg.Unlock()

	if h.configPath != "" {
		if err := cfg.Save(h.configPath); err != nil {
			h.log.Warn().Err(err).Str("path", h.configPath).Msg("save config")
		}
	}
	h.engine.ReconfigureRobot()
	h.apiRobotConfig(w, r)
}

func (h *Handlers) apiCachedView(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "category")
	cat, ok := telemetry.ParseCategory(name)
	if !ok {
		h.jsonError(w, "unknown category: "+name, http.StatusNotFound)
		return
	}
	h.jsonOK(w, h.engine.CachedView(cat))
}

func (h *Handlers) apiPositionHistory(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.Tracker().History())
}

// Points

type pointInfo struct {
	points.Point
	Floor   *int   `json:"floor,omitempty"`
	Docking string `json:"docking,omitempty"`
	Base    string `json:"base,omitempty"`
}

func describePoint(p points.Point) pointInfo {
	info := pointInfo{Point: p}
	if f, ok := points.Floor(p.ID); ok {
		info.Floor = &f
	}
	if p.Category.IsLoad() {
		info.Docking = points.ToDocking(p.ID)
	}
	if p.Category.IsDocking() {
		info.Base = points.ToBase(p.ID)
	}
	return info
}

func (h *Handlers) apiListPoints(w http.ResponseWriter, r *http.Request) {
	ids := h.engine.Points().IDs()
	if r.URL.Query().Get("group") == "floor" {
		floors, other := points.GroupByFloor(ids)
		h.jsonOK(w, map[string]any{"floors": floors, "other": other})
		return
	}
	out := make([]pointInfo, 0, len(ids))
	for _, id := range ids {
		if p, ok := h.engine.PointInfo(id); ok {
			out = append(out, describePoint(p))
		}
	}
	h.jsonOK(w, out)
}

func (h *Handlers) apiPointInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.engine.PointInfo(id)
	if !ok {
		msg := "point not found: " + id
		if problems := points.Validate(id); len(problems) > 0 {
			msg += " (" + strings.Join(problems, "; ") + ")"
		}
		h.jsonError(w, msg, http.StatusNotFound)
		return
	}
	h.jsonOK(w, describePoint(p))
}

// apiPutPoint adds or moves a point. It is persisted when a database is
// configured and applied to the live directory either way.
func (h *Handlers) apiPutPoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if problems := points.Validate(id); len(problems) > 0 {
		h.jsonError(w, strings.Join(problems, "; "), http.StatusBadRequest)
		return
	}
	var req struct {
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
		Theta float64 `json:"theta"`
	}
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p := points.Point{ID: id, X: req.X, Y: req.Y, Theta: req.Theta}
	if h.db != nil {
		if err := h.db.UpsertPoint(p); err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	h.engine.Points().Put(p)
	p, _ = h.engine.PointInfo(id)
	h.jsonOK(w, describePoint(p))
}

func (h *Handlers) apiDeletePoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.db != nil {
		if err := h.db.DeletePoint(id); err != nil && !errors.Is(err, store.ErrNotFound) {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if !h.engine.Points().Delete(id) {
		h.jsonError(w, "point not found: "+id, http.StatusNotFound)
		return
	}
	h.jsonOK(w, map[string]string{"status": "deleted"})
}

// Service health and power cycle

func (h *Handlers) apiListServices(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.Health().All())
}

func (h *Handlers) apiServiceHealth(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sh, ok := h.engine.ServiceHealth(name)
	if !ok {
		h.jsonError(w, "no health record for service: "+name, http.StatusNotFound)
		return
	}
	h.jsonOK(w, sh)
}

func (h *Handlers) apiPowerCycleStatus(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.PowerCycleStatus())
}

func (h *Handlers) apiPowerCycle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string `json:"method"`
	}
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Method == "" {
		req.Method = health.MethodRestart
	}
	if req.Method != health.MethodRestart && req.Method != health.MethodShutdown {
		h.jsonError(w, "method must be restart or shutdown", http.StatusBadRequest)
		return
	}
	res := h.engine.TriggerPowerCycle(r.Context(), req.Method)
	if !res.Success {
		h.jsonStatus(w, http.StatusConflict, res)
		return
	}
	h.jsonOK(w, res)
}

// Actions

type actionInfo struct {
	ID                 string   `json:"id"`
	Description        string   `json:"description"`
	RequiredPointRoles []string `json:"required_point_roles,omitempty"`
}

func (h *Handlers) apiListActions(w http.ResponseWriter, r *http.Request) {
	list := h.engine.Actions().List()
	out := make([]actionInfo, 0, len(list))
	for _, a := range list {
		out = append(out, actionInfo{
			ID:                 a.ID(),
			Description:        a.Description(),
			RequiredPointRoles: a.RequiredPointRoles(),
		})
	}
	h.jsonOK(w, out)
}

func (h *Handlers) apiExecuteAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.engine.Actions().Get(id); !ok {
		h.jsonError(w, "unknown action: "+id, http.StatusNotFound)
		return
	}
	params := actions.Params{}
	if err := decode(r, &params); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res := h.engine.ExecuteAction(detach(r), id, params)
	if !res.Success {
		h.jsonStatus(w, http.StatusUnprocessableEntity, res)
		return
	}
	h.jsonOK(w, res)
}

func (h *Handlers) apiStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "api"
	}
	if err := h.engine.Stop(r.Context(), req.Reason); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.jsonOK(w, map[string]string{"status": "stopped"})
}
