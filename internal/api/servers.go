package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/health"
	"github.com/John-Robertt/ammds-bridge/internal/servers"
)

type serversHandler struct {
	reg    *servers.Registry
	prober *health.Prober
}

func (h *serversHandler) Routes(r chi.Router) {
	r.Get("/servers", h.list)
	r.Post("/servers", h.add)
	r.Delete("/servers", h.remove)
	r.Put("/servers/default", h.setDefault)
	if h.prober != nil {
		r.Post("/servers/check", h.check)
	}
}

// urlBody 用于只需要 url 的请求。
type urlBody struct {
	URL string `json:"url"`
}

func (h *serversHandler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.reg.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *serversHandler) add(w http.ResponseWriter, r *http.Request) {
	var s domain.ServerRegistration
	if err := decodeJSON(r, &s); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.reg.Add(r.Context(), s); err != nil {
		var ie *servers.InvalidURLError
		if errors.As(err, &ie) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	got, _, err := h.reg.Get(r.Context(), s.URL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, got)
}

func (h *serversHandler) remove(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, "缺少 url 参数")
		return
	}
	if err := h.reg.Delete(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *serversHandler) setDefault(w http.ResponseWriter, r *http.Request) {
	var b urlBody
	if err := decodeJSON(r, &b); err != nil || b.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	_, ok, err := h.reg.Get(r.Context(), b.URL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "服务器未登记")
		return
	}
	if err := h.reg.SetDefault(r.Context(), b.URL); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *serversHandler) check(w http.ResponseWriter, r *http.Request) {
	out, err := h.prober.CheckAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}
