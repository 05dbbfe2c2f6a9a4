package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/ammds-bridge/internal/ammds"
	"github.com/John-Robertt/ammds-bridge/internal/app"
	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/handler"
	"github.com/John-Robertt/ammds-bridge/internal/infra/cache"
	"github.com/John-Robertt/ammds-bridge/internal/infra/httpx"
	"github.com/John-Robertt/ammds-bridge/internal/infra/page"
	"github.com/John-Robertt/ammds-bridge/internal/relay"
	"github.com/John-Robertt/ammds-bridge/internal/session"
)

func (c *ExtractCmd) Run(deps *Dependencies) error {
	if c.HTML != "" {
		return c.runFile(deps)
	}
	b, release, err := newBatch(deps, c.Concurrency, true)
	if err != nil {
		return err
	}
	defer release()
	b.Refresh = c.Refresh
	if c.NFO != "" {
		b.Exporter = &nfoExporter{Dir: c.NFO, Keep: c.NFOKeep}
	}
	return emitReport(deps, b.Run(deps.Ctx, c.URLs))
}

// runFile 解析本地 HTML 快照：stdout 输出元数据 JSON，磁力链接摘要写 stderr。
func (c *ExtractCmd) runFile(deps *Dependencies) error {
	if len(c.URLs) != 1 {
		fmt.Fprintln(deps.Stderr, "参数错误：--html 只能配合一个 URL 使用")
		return &exitError{code: 2}
	}
	html, err := os.ReadFile(c.HTML)
	if err != nil {
		return fmt.Errorf("读取 %s 失败：%w", c.HTML, err)
	}

	meta, h, err := handler.Extract(deps.Ctx, deps.Handlers, handler.Page{URL: c.URLs[0], HTML: html})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "解析失败：%v\n", err)
		return &exitError{code: 1}
	}

	b, err := meta.MarshalIndent()
	if err != nil {
		return err
	}
	fmt.Fprintln(deps.Stdout, string(b))

	fmt.Fprintf(deps.Stderr, "handler=%s uniqueid=%s magnets=%d\n", h.Name(), meta.UniqueID, len(meta.Magnets))
	for _, m := range meta.Magnets {
		size := "?"
		if m.Size > 0 {
			size = humanize.IBytes(uint64(m.Size))
		}
		fmt.Fprintf(deps.Stderr, "  %-10s %s %s\n", size, truncate(m.Name, 60), m.Hash)
	}

	if c.NFO != "" {
		if err := (&nfoExporter{Dir: c.NFO, Keep: c.NFOKeep}).Export(meta); err != nil {
			return fmt.Errorf("导出 NFO 失败：%w", err)
		}
	}
	return nil
}

func (c *ImportCmd) Run(deps *Dependencies) error {
	b, release, err := newBatch(deps, c.Concurrency, false)
	if err != nil {
		return err
	}
	defer release()
	b.Refresh = c.Refresh
	b.Importer.Attachments = c.Attachments || deps.Config.Fetch.Attachments
	switch {
	case c.Favorite:
		b.Action = app.ActionFavorite
	case c.Subscribe:
		b.Action = app.ActionSubscribe
	}
	if c.NFO != "" {
		b.Exporter = &nfoExporter{Dir: c.NFO, Keep: c.NFOKeep}
	}
	return emitReport(deps, b.Run(deps.Ctx, c.URLs))
}

// newBatch 装配一次批量执行。非 dry-run 时导入请求经由进程内 relay 管道发出；
// 调用方在结束后调用 release 关闭管道。
func newBatch(deps *Dependencies, concurrency int, dryRun bool) (b *app.Batch, release func(), err error) {
	cfg := deps.Config
	log := deps.Logger
	release = func() {}

	pageClient, err := httpx.NewPageClient(cfg.Fetch.ProxyURL)
	if err != nil {
		return nil, release, err
	}
	im := &app.Importer{
		Servers:  deps.Servers,
		Registry: deps.Handlers,
		Logger:   log.With().Str("component", "importer").Logger(),
	}

	if !dryRun {
		tracker, err := session.New(deps.Ctx, deps.KV, nil, log)
		if err != nil {
			return nil, release, fmt.Errorf("加载会话状态失败：%w", err)
		}
		im.Session = tracker

		imgClient, err := httpx.NewImageClient(cfg.Fetch.ProxyURL, cfg.Fetch.ImageProxy)
		if err != nil {
			return nil, release, err
		}
		var pipe *relay.Peer
		im.API, pipe = newRelayAPI(deps)
		release = func() { _ = pipe.Close() }
		im.Assets = &page.Fetcher{Client: imgClient, Cookies: cfg.Fetch.Cookies}
	}

	if concurrency <= 0 {
		concurrency = cfg.Fetch.Concurrency
	}
	b = &app.Batch{
		Importer:    im,
		Pages:       &page.Fetcher{Client: pageClient, Cookies: cfg.Fetch.Cookies},
		Concurrency: concurrency,
		DryRun:      dryRun,
	}
	if dir := strings.TrimSpace(cfg.Fetch.CacheDir); dir != "" {
		st := cache.New(dir, false)
		b.Cache = &st
	}
	if w, ok := pickProgressWriter(deps.Stdout, deps.Stderr); ok {
		mode := "import"
		if dryRun {
			mode = "extract (dry-run)"
		}
		b.Observer = newProgressUI(w, mode, cfg.Fetch.ProxyURL)
	}
	return b, release, nil
}

// newRelayAPI 在进程内同时扮演两侧：受限侧 relay.Client + 特权侧 relay.Server。
// 返回的 Peer 是管道的受限端，Close 即关闭整条管道。
func newRelayAPI(deps *Dependencies) (*ammds.API, *relay.Peer) {
	cfg := deps.Config
	log := deps.Logger

	restricted, privileged := relay.Pipe(log)
	(&relay.Server{
		HTTP:   httpx.NewRelayClient(cfg.Relay.Timeout),
		Logger: log.With().Str("component", "relay-server").Logger(),
	}).Register(privileged)

	return &ammds.API{
		Client:     &relay.Client{Channel: restricted, Servers: deps.Servers, Logger: log},
		RetryTimes: cfg.Relay.RetryTimes,
		RetryDelay: cfg.Relay.RetryDelay,
		Logger:     log.With().Str("component", "ammds").Logger(),
	}, restricted
}

// emitReport：stdout 只输出一个 BatchReport JSON，摘要与失败明细走 stderr。
// 有失败或未匹配条目时退出码为 1。
func emitReport(deps *Dependencies, rep domain.BatchReport) error {
	enc := json.NewEncoder(deps.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}

	s := rep.Summary
	fmt.Fprintf(deps.Stderr, "完成：imported=%d extracted=%d failed=%d unmatched=%d\n",
		s.Imported, s.Extracted, s.Failed, s.Unmatched,
	)
	hint := false
	for _, it := range rep.Items {
		if it.Status != domain.StatusFailed && it.Status != domain.StatusUnmatched {
			continue
		}
		fmt.Fprintf(deps.Stderr, "%s %s: %s\n", it.URL, it.ErrorCode, it.ErrorMsg)
		hint = hint || it.ErrorCode == domain.ErrCodeConfigMissing
	}
	if hint {
		fmt.Fprintln(deps.Stderr, "提示：先执行 ammds servers add <url> --default")
	}
	if s.Failed > 0 || s.Unmatched > 0 {
		return &exitError{code: 1}
	}
	return nil
}
