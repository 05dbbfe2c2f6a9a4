package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/John-Robertt/ammds-bridge/internal/app"
	"github.com/John-Robertt/ammds-bridge/internal/domain"
)

var _ app.Observer = (*progressUI)(nil)

const (
	heartbeatEvery = 2 * time.Second
	heartbeatIdle  = 6 * time.Second
)

type tally struct {
	done, ok, skip, fail int
}

// progressUI 在交互终端上逐条打印批量进度。
//
// 约束：
// - 不写 stdout 的 JSON 报告通道（pickProgressWriter 优先 stderr）
// - 超过 heartbeatIdle 没有新行时输出一行心跳；最后一条完成后心跳停止
type progressUI struct {
	w      io.Writer
	header []string

	mu      sync.Mutex
	start   time.Time
	printed time.Time
	total   int
	workers int
	n       tally
	stop    chan struct{}
}

func newProgressUI(w io.Writer, mode, proxyURL string) *progressUI {
	return &progressUI{
		w: w,
		header: []string{
			"ammds " + mode,
			"  proxy: " + formatProxy(proxyURL),
		},
	}
}

func (p *progressUI) OnStart(total, workers int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.start, p.printed = now, now
	p.total, p.workers = total, workers

	fmt.Fprintf(p.w, "[%s] %s\n", now.Format(time.TimeOnly), p.header[0])
	fmt.Fprintf(p.w, "  urls: %d  concurrency: %d\n", total, workers)
	fmt.Fprintf(p.w, "%s\n\n", p.header[1])

	if total > 0 && p.stop == nil {
		p.stop = make(chan struct{})
		go p.heartbeat(p.stop)
	}
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.n.done, p.total = idx, total
	prefix := fmt.Sprintf("[%d/%d] %s", idx, total, itemKey(res))
	took := formatShortDuration(dur)

	switch res.Status {
	case domain.StatusImported, domain.StatusExtracted:
		p.n.ok++
		fmt.Fprintf(p.w, "%s OK handler=%s magnets=%d (%s)\n", prefix, res.Handler, res.Magnets, took)
	case domain.StatusUnmatched:
		p.n.skip++
		fmt.Fprintf(p.w, "%s SKIP %s (%s)\n", prefix, res.ErrorCode, took)
	default:
		p.n.fail++
		fmt.Fprintf(p.w, "%s FAIL %s: %s (%s)\n", prefix, res.ErrorCode, truncate(res.ErrorMsg, 160), took)
	}
	p.printed = time.Now()

	if p.stop != nil && p.n.done >= p.total {
		close(p.stop)
		p.stop = nil
	}
}

func (p *progressUI) heartbeat(stop <-chan struct{}) {
	t := time.NewTicker(heartbeatEvery)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			p.mu.Lock()
			if now.Sub(p.printed) > heartbeatIdle {
				fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d active=%d elapsed=%s\n",
					p.n.done, p.total, p.n.ok, p.n.fail, p.n.skip,
					min(p.workers, p.total-p.n.done), formatElapsed(now.Sub(p.start)),
				)
				p.printed = now
			}
			p.mu.Unlock()
		}
	}
}

func itemKey(res domain.ItemResult) string {
	if res.UniqueID != "" {
		return res.UniqueID
	}
	return truncate(res.URL, 80)
}

// pickProgressWriter：只有交互终端才输出进度，优先 stderr。
func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	for _, w := range []io.Writer{stderr, stdout} {
		if isTTY(w) {
			return w, true
		}
	}
	return nil, false
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// formatProxy 只展示 scheme 与 host，凭据一律隐去。
func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "on"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", max(d, 0).Seconds())
}

func formatElapsed(d time.Duration) string {
	d = max(d, 0).Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
