package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/ammds-bridge/internal/code"
	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/handler"
	"github.com/John-Robertt/ammds-bridge/internal/infra/cache"
	"github.com/John-Robertt/ammds-bridge/internal/infra/page"
	"github.com/John-Robertt/ammds-bridge/internal/relay"
)

// PageSource 抓取页面快照（*page.Fetcher）。
type PageSource interface {
	Fetch(ctx context.Context, rawURL string) (handler.Page, error)
}

// Observer 把批量进度从执行流程中解耦出来。
//
// 约束：实现必须并发安全，OnItemDone 可能来自多个 goroutine。
type Observer interface {
	OnStart(total, workers int)
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

// Exporter 在条目成功后落地额外产物（例如 NFO）；失败只告警，不改变条目状态。
type Exporter interface {
	Export(meta domain.Metadata) error
}

// Batch 并发处理一组 URL：抓取 -> 解析 ->（非 dry-run）导入。
//
// 约束：
// - 单条失败降级为 item 级失败，不影响其他 URL
// - 报告条目与输入 URL 一一对应，顺序相同（与完成顺序无关）
// - DryRun 只解析，不检查服务器登记、不发导入请求
// - Cache 非空时写入页面快照与元数据 JSON；URL 能推断出 CODE 时优先复用缓存页面（Refresh=true 跳过）
type Batch struct {
	Importer    *Importer
	Pages       PageSource
	Cache       *cache.Store
	Refresh     bool
	Concurrency int
	DryRun      bool
	// Action 为空时按 ActionImport 处理。
	Action   Action
	Observer Observer
	Exporter Exporter
}

func (b *Batch) Run(ctx context.Context, urls []string) domain.BatchReport {
	rep := domain.BatchReport{
		DryRun:    b.DryRun,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, len(urls)),
	}

	workers := b.Concurrency
	if workers < 1 {
		workers = 1
	}
	if b.Observer != nil {
		b.Observer.OnStart(len(urls), workers)
	}

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, u := range urls {
		g.Go(func() error {
			started := time.Now()
			res := b.one(gctx, u)
			// 每个 goroutine 只写自己的槽位：报告顺序即输入顺序。
			rep.Items[i] = res

			mu.Lock()
			done++
			idx := done
			mu.Unlock()

			if b.Observer != nil {
				b.Observer.OnItemDone(idx, len(urls), res, time.Since(started))
			}
			return nil
		})
	}
	_ = g.Wait()

	rep.FinishedAt = time.Now().UTC()
	rep.Finalize()
	return rep
}

func (b *Batch) one(ctx context.Context, rawURL string) domain.ItemResult {
	item := domain.ItemResult{URL: rawURL}
	reg := b.Importer.Registry

	if !b.DryRun {
		if err := b.Importer.checkConfigured(ctx); err != nil {
			fail(&item, err)
			return item
		}
	}
	// 没有 handler 认领时不必抓取。
	resolved, ok := reg.Resolve(ctx, rawURL)
	if !ok {
		fail(&item, handler.ErrNoHandler)
		return item
	}

	p, err := b.page(ctx, resolved.Name(), rawURL)
	if err != nil {
		fail(&item, err)
		return item
	}

	var (
		meta domain.Metadata
		name string
	)
	if b.DryRun {
		var h handler.Handler
		meta, h, err = handler.Extract(ctx, reg, p)
		if h != nil {
			name = h.Name()
		}
	} else {
		var r Result
		r, err = b.Importer.run(ctx, b.action(), p)
		meta, name = r.Meta, r.Handler
	}
	item.Handler = name
	if err != nil {
		fail(&item, err)
		return item
	}

	item.UniqueID = meta.UniqueID
	item.Magnets = len(meta.Magnets)
	item.Status = domain.StatusImported
	if b.DryRun {
		item.Status = domain.StatusExtracted
	}
	b.writeCache(name, p, meta)
	if b.Exporter != nil {
		if err := b.Exporter.Export(meta); err != nil {
			b.Importer.Logger.Warn().Err(err).Str("uniqueid", meta.UniqueID).Msg("导出失败")
		}
	}
	return item
}

// page 优先读取页面缓存（URL 能推断出 CODE 且 Refresh=false 时），否则抓取。
func (b *Batch) page(ctx context.Context, handlerName, rawURL string) (handler.Page, error) {
	if b.Cache != nil && !b.Refresh {
		if c, err := code.FromURL(rawURL); err == nil {
			html, ok, err := b.Cache.ReadPage(handlerName, c)
			if err != nil {
				b.Importer.Logger.Warn().Err(err).Str("url", rawURL).Msg("读取页面缓存失败")
			} else if ok {
				b.Importer.Logger.Debug().Str("url", rawURL).Str("code", string(c)).Msg("命中页面缓存")
				return handler.Page{URL: rawURL, HTML: html}, nil
			}
		}
	}
	return b.Pages.Fetch(ctx, rawURL)
}

func (b *Batch) action() Action {
	switch b.Action {
	case ActionFavorite, ActionSubscribe:
		return b.Action
	default:
		return ActionImport
	}
}

func (b *Batch) writeCache(handlerName string, p handler.Page, meta domain.Metadata) {
	if b.Cache == nil || b.Cache.ReadOnly {
		return
	}
	code, ok := domain.ParseCode(meta.UniqueID)
	if !ok {
		return
	}
	log := b.Importer.Logger
	if err := b.Cache.WritePage(handlerName, code, p.HTML); err != nil {
		log.Warn().Err(err).Str("uniqueid", meta.UniqueID).Msg("写入页面缓存失败")
	}
	js, err := meta.MarshalIndent()
	if err == nil {
		err = b.Cache.WriteMetadata(handlerName, code, js)
	}
	if err != nil {
		log.Warn().Err(err).Str("uniqueid", meta.UniqueID).Msg("写入元数据缓存失败")
	}
}

// fail 把错误映射为稳定的 status + error_code。
func fail(item *domain.ItemResult, err error) {
	item.Status = domain.StatusFailed
	item.ErrorMsg = err.Error()

	var (
		blocked *page.BlockedError
		status  *page.HTTPStatusError
		appErr  *relay.ApplicationError
	)
	switch {
	case errors.Is(err, handler.ErrNoHandler):
		item.Status = domain.StatusUnmatched
		item.ErrorCode = domain.ErrCodeNoHandler
	case handler.IsUnmatchedPage(err):
		item.Status = domain.StatusUnmatched
		item.ErrorCode = domain.ErrCodeUnmatchedPage
	case handler.IsExtraction(err):
		item.ErrorCode = domain.ErrCodeParseFailed
	case errors.Is(err, ErrRejected):
		item.ErrorCode = domain.ErrCodeApplication
	case relay.IsConfiguration(err):
		item.ErrorCode = domain.ErrCodeConfigMissing
	case errors.As(err, &blocked):
		item.ErrorCode = domain.ErrCodeBlocked
		item.ErrorMsg = "请求被引导到验证页（driver-verify），请配置 fetch.proxy_url 后重试"
	case errors.As(err, &status):
		item.ErrorCode = domain.ErrCodeFetchFailed
	case errors.As(err, &appErr):
		item.ErrorCode = domain.ErrCodeApplication
	case relay.KindOf(err) == relay.KindTimeout:
		item.ErrorCode = domain.ErrCodeTimeout
	case relay.KindOf(err) == relay.KindNetwork:
		item.ErrorCode = domain.ErrCodeNetwork
	default:
		item.ErrorCode = domain.ErrCodeFetchFailed
	}
}
