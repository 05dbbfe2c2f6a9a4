package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/John-Robertt/ammds-bridge/internal/ammds"
	"github.com/John-Robertt/ammds-bridge/internal/api"
	"github.com/John-Robertt/ammds-bridge/internal/health"
	"github.com/John-Robertt/ammds-bridge/internal/infra/httpx"
	"github.com/John-Robertt/ammds-bridge/internal/relay"
	"github.com/John-Robertt/ammds-bridge/internal/session"
)

const shutdownTimeout = 10 * time.Second

// Run 阻塞到 ctx 结束（SIGINT/SIGTERM），然后优雅关闭 HTTP 服务与调度器。
func (c *ServeCmd) Run(deps *Dependencies) error {
	ctx := deps.Ctx
	cfg := deps.Config
	log := deps.Logger

	addr := c.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	fetcher := &relay.Server{
		HTTP:   httpx.NewRelayClient(cfg.Relay.Timeout),
		Logger: log.With().Str("component", "relay-server").Logger(),
	}
	tracker, err := session.New(ctx, deps.KV, nil, log)
	if err != nil {
		return fmt.Errorf("加载会话状态失败：%w", err)
	}
	hub := relay.NewHub(log, func(p *relay.Peer) {
		fetcher.Register(p)
		tracker.Register(p)
	})
	tracker.SetNotifier(hub)

	// 健康检查同样经由 relay：进程内管道的特权端注册同一个 fetch-api。
	restricted, privileged := relay.Pipe(log)
	defer restricted.Close()
	fetcher.Register(privileged)

	prober := &health.Prober{
		Servers: deps.Servers,
		Checker: &ammds.API{
			Client: &relay.Client{Channel: restricted, Servers: deps.Servers, Logger: log},
			Logger: log,
		},
		Interval: cfg.Health.Interval,
		Timeout:  cfg.Relay.Timeout,
		Logger:   log.With().Str("component", "health").Logger(),
	}
	if err := prober.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := prober.Stop(); err != nil {
			log.Warn().Err(err).Msg("停止健康检查失败")
		}
	}()

	router := (&api.Server{
		Logger:   log,
		Hub:      hub,
		Servers:  deps.Servers,
		Session:  tracker,
		Handlers: deps.Handlers,
		Prober:   prober,
	}).Router()

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("relay", "ws://"+addr+"/api/v1/relay").Msg("服务已启动")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("监听 %s 失败：%w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("正在关闭服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭服务失败：%w", err)
	}
	return nil
}
