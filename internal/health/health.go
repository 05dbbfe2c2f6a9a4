// Package health 周期性探测已登记的 AMMDS 服务端，并把结果写回登记表。
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
)

const DefaultInterval = 5 * time.Minute

// Registrations 是被探测的登记表（*servers.Registry）。
type Registrations interface {
	List(ctx context.Context) ([]domain.ServerRegistration, error)
	SetStatus(ctx context.Context, baseURL string, ok bool) error
}

// Checker 执行一次健康检查（*ammds.API）。
type Checker interface {
	HealthCheck(ctx context.Context, baseURL string) (bool, error)
}

// Status 是单个服务端的探测结果。
type Status struct {
	URL     string    `json:"url"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	Checked time.Time `json:"checked"`
}

// Prober 探测所有启用的登记。
//
// 约束：
// - 单次探测互不影响：某个服务端失败只记为 status=false
// - 同一时刻最多一轮探测在跑（gocron 单例模式）
type Prober struct {
	Servers  Registrations
	Checker  Checker
	Interval time.Duration
	Timeout  time.Duration
	Logger   zerolog.Logger

	mu    sync.Mutex
	sched gocron.Scheduler
	last  []Status
}

// CheckAll 立即探测一轮并返回结果。
func (p *Prober) CheckAll(ctx context.Context) ([]Status, error) {
	list, err := p.Servers.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(list))
	for _, reg := range list {
		st := p.checkOne(ctx, reg.URL)
		if err := p.Servers.SetStatus(ctx, reg.URL, st.OK); err != nil {
			p.Logger.Warn().Err(err).Str("url", reg.URL).Msg("保存健康状态失败")
		}
		out = append(out, st)
	}

	p.mu.Lock()
	p.last = out
	p.mu.Unlock()
	return out, nil
}

func (p *Prober) checkOne(ctx context.Context, baseURL string) Status {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	st := Status{URL: baseURL, Checked: time.Now().UTC()}
	ok, err := p.Checker.HealthCheck(ctx, baseURL)
	st.OK = ok && err == nil
	if err != nil {
		st.Error = err.Error()
		p.Logger.Warn().Err(err).Str("url", baseURL).Msg("服务端不可用")
	} else {
		p.Logger.Debug().Str("url", baseURL).Bool("ok", ok).Msg("健康检查完成")
	}
	return st
}

// Last 返回最近一轮探测结果。
func (p *Prober) Last() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Status(nil), p.last...)
}

// Start 启动周期探测；首轮立即执行。ctx 结束后任务不再发起新请求。
func (p *Prober) Start(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("创建调度器失败：%w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			if _, err := p.CheckAll(ctx); err != nil {
				p.Logger.Error().Err(err).Msg("健康检查失败")
			}
		}),
		gocron.WithName("server-health"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("注册健康检查任务失败：%w", err)
	}

	p.mu.Lock()
	p.sched = s
	p.mu.Unlock()

	s.Start()
	p.Logger.Info().Dur("interval", interval).Msg("健康检查已启动")
	return nil
}

func (p *Prober) Stop() error {
	p.mu.Lock()
	s := p.sched
	p.sched = nil
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Shutdown()
}
