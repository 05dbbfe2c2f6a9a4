package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/handler"
)

type handlersHandler struct {
	reg *handler.Registry
}

func (h *handlersHandler) Routes(r chi.Router) {
	r.Get("/handlers", h.list)
	r.Post("/extract", h.extract)
}

type handlerInfo struct {
	Name   string        `json:"name"`
	Author domain.Author `json:"author"`
	View   handler.View  `json:"view"`
}

func (h *handlersHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.reg.Len() == 0 {
		h.reg.Discover(r.Context())
	}
	hs := h.reg.Handlers()
	out := make([]handlerInfo, 0, len(hs))
	for _, x := range hs {
		out = append(out, handlerInfo{Name: x.Name(), Author: x.Author(), View: x.View()})
	}
	writeJSON(w, http.StatusOK, out)
}

// extract 解析调用方提供的页面快照（不做网络请求）。
func (h *handlersHandler) extract(w http.ResponseWriter, r *http.Request) {
	var b struct {
		URL  string `json:"url"`
		HTML string `json:"html"`
	}
	if err := decodeJSON(r, &b); err != nil || b.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	meta, hd, err := handler.Extract(r.Context(), h.reg, handler.Page{URL: b.URL, HTML: []byte(b.HTML)})
	switch {
	case errors.Is(err, handler.ErrNoHandler):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case handler.IsUnmatchedPage(err), handler.IsExtraction(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handler": hd.Name(), "metadata": meta})
}
