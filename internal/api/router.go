// Package api 是特权侧的 HTTP 入口：relay websocket、服务器登记、会话与 handler 清单。
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/John-Robertt/ammds-bridge/internal/handler"
	"github.com/John-Robertt/ammds-bridge/internal/health"
	"github.com/John-Robertt/ammds-bridge/internal/relay"
	"github.com/John-Robertt/ammds-bridge/internal/servers"
	"github.com/John-Robertt/ammds-bridge/internal/session"
)

const defaultRequestTimeout = 30 * time.Second

// Server 聚合各个路由依赖；为 nil 的依赖对应路由不挂载。
type Server struct {
	Logger   zerolog.Logger
	Hub      *relay.Hub
	Servers  *servers.Registry
	Session  *session.Tracker
	Handlers *handler.Registry
	Prober   *health.Prober
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.Logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		// websocket 长连接不受请求超时约束。
		if s.Hub != nil {
			r.Get("/relay", s.Hub.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))
			r.Get("/health", s.handleHealth)
			if s.Servers != nil {
				(&serversHandler{reg: s.Servers, prober: s.Prober}).Routes(r)
			}
			if s.Session != nil {
				(&sessionHandler{tracker: s.Session}).Routes(r)
			}
			if s.Handlers != nil {
				(&handlersHandler{reg: s.Handlers}).Routes(r)
			}
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	if s.Hub != nil {
		out["relays"] = s.Hub.Count()
	}
	writeJSON(w, http.StatusOK, out)
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}
