package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/session"
)

type sessionHandler struct {
	tracker *session.Tracker
}

func (h *sessionHandler) Routes(r chi.Router) {
	r.Get("/session", h.get)
	r.Put("/session/enabled", h.setEnabled)
	r.Put("/session/tabs/{tabID}", h.updateTab)
	r.Post("/session/tabs/{tabID}/activate", h.activate)
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.State())
}

func (h *sessionHandler) setEnabled(w http.ResponseWriter, r *http.Request) {
	var b struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.tracker.SetEnabled(r.Context(), b.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.State())
}

func (h *sessionHandler) updateTab(w http.ResponseWriter, r *http.Request) {
	id, ok := tabID(w, r)
	if !ok {
		return
	}
	var info domain.TabInfo
	if err := decodeJSON(r, &info); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.tracker.UpdateTab(r.Context(), id, info); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandler) activate(w http.ResponseWriter, r *http.Request) {
	id, ok := tabID(w, r)
	if !ok {
		return
	}
	windowID, _ := strconv.Atoi(r.URL.Query().Get("windowId"))
	if err := h.tracker.Activate(r.Context(), id, windowID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.State())
}

func tabID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "tabID"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "非法 tabID")
		return 0, false
	}
	return id, true
}
