package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/handler"
	"github.com/John-Robertt/ammds-bridge/internal/infra/imgx"
	"github.com/John-Robertt/ammds-bridge/internal/relay"
)

// ErrRejected 表示 AMMDS 正常响应但未接收该条目（ImportMovie 返回 false）。
var ErrRejected = errors.New("服务端未接收")

// MovieImporter 是 AMMDS 导入接口（*ammds.API）。
type MovieImporter interface {
	ImportMovie(ctx context.Context, meta domain.Metadata) (bool, error)
}

// SessionToggler 是收藏/订阅开关的持有者（*session.Tracker）。
type SessionToggler interface {
	ToggleFavorited(ctx context.Context) (bool, error)
	ToggleSubscribed(ctx context.Context) (bool, error)
}

// AssetSource 下载图片（*page.Fetcher）。
type AssetSource interface {
	Download(ctx context.Context, rawURL, referer string) ([]byte, string, error)
}

// Action 是一次导入的意图。
type Action string

const (
	ActionImport    Action = "import"
	ActionFavorite  Action = "favorite"
	ActionSubscribe Action = "subscribe"
)

// Result 是一次成功导入的摘要。
type Result struct {
	Action  Action
	Handler string
	Meta    domain.Metadata
}

// Importer 把“解析页面 + 导入 AMMDS”串成一个流程。
//
// 约束：
// - 先检查启用且默认的服务器登记（*relay.ConfigurationError），再解析 handler
// - 没有 handler 认领 URL 时返回 handler.ErrNoHandler
// - Assets 非空且 Attachments=true 时把图片 URL 合成为二进制附件；下载失败只告警
type Importer struct {
	Servers  relay.ServerSource
	Registry *handler.Registry
	API      MovieImporter
	Session  SessionToggler
	Assets   AssetSource
	Logger   zerolog.Logger

	Attachments bool
}

func (im *Importer) Import(ctx context.Context, p handler.Page) (Result, error) {
	return im.run(ctx, ActionImport, p)
}

// Favorite 导入并收藏，同时翻转会话的收藏标记。
func (im *Importer) Favorite(ctx context.Context, p handler.Page) (Result, error) {
	return im.run(ctx, ActionFavorite, p)
}

// Subscribe 导入并订阅，同时翻转会话的订阅标记。
func (im *Importer) Subscribe(ctx context.Context, p handler.Page) (Result, error) {
	return im.run(ctx, ActionSubscribe, p)
}

// Automate 交给 handler 的自动化流程；每次回调得到的元数据都会被导入。
func (im *Importer) Automate(ctx context.Context, p handler.Page) error {
	if err := im.checkConfigured(ctx); err != nil {
		return err
	}
	h, ok := im.Registry.Resolve(ctx, p.URL)
	if !ok {
		im.Logger.Warn().Str("url", p.URL).Msg("数据解析失败")
		return handler.ErrNoHandler
	}
	return h.Automate(ctx, p, func(ctx context.Context, meta domain.Metadata) error {
		if err := meta.Validate(); err != nil {
			return &handler.ExtractionError{Handler: h.Name(), Field: "uniqueid/originalTitle", Err: err}
		}
		_, err := im.submit(ctx, ActionImport, h.Name(), p.URL, meta)
		return err
	})
}

func (im *Importer) run(ctx context.Context, action Action, p handler.Page) (Result, error) {
	if err := im.checkConfigured(ctx); err != nil {
		return Result{}, err
	}

	meta, h, attempts, err := handler.ExtractTrace(ctx, im.Registry, p)
	if err != nil {
		ev := im.Logger.Warn().Err(err).Str("url", p.URL).Str("action", string(action))
		if errors.Is(err, handler.ErrNoHandler) {
			ev.Msg("数据解析失败")
		} else {
			ev.Int("attempts", len(attempts)).Msg("页面解析失败")
		}
		return Result{}, err
	}

	switch action {
	case ActionFavorite:
		meta.Favorite = true
		if im.Session != nil {
			if _, err := im.Session.ToggleFavorited(ctx); err != nil {
				im.Logger.Warn().Err(err).Msg("更新收藏状态失败")
			}
		}
	case ActionSubscribe:
		meta.Subscribe = true
		if im.Session != nil {
			if _, err := im.Session.ToggleSubscribed(ctx); err != nil {
				im.Logger.Warn().Err(err).Msg("更新订阅状态失败")
			}
		}
	}
	return im.submit(ctx, action, h.Name(), p.URL, meta)
}

func (im *Importer) submit(ctx context.Context, action Action, handlerName, pageURL string, meta domain.Metadata) (Result, error) {
	if im.Attachments && im.Assets != nil {
		im.synthesize(ctx, pageURL, &meta)
	}
	ok, err := im.API.ImportMovie(ctx, meta)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("%s：%w", failMessage(action), ErrRejected)
	}
	im.Logger.Info().
		Str("action", string(action)).
		Str("handler", handlerName).
		Str("uniqueid", meta.UniqueID).
		Msg(successMessage(action))
	return Result{Action: action, Handler: handlerName, Meta: meta}, nil
}

func (im *Importer) checkConfigured(ctx context.Context) error {
	if im.Servers == nil {
		return &relay.ConfigurationError{}
	}
	_, ok, err := im.Servers.Preferred(ctx)
	if err != nil {
		return err
	}
	if !ok {
		im.Logger.Warn().Msg("请添加客户端")
		return &relay.ConfigurationError{}
	}
	return nil
}

// synthesize 下载 fanart/poster；只有横版封面时从右半边裁切海报。
func (im *Importer) synthesize(ctx context.Context, pageURL string, meta *domain.Metadata) {
	fanartURL := first(meta.FanartURL)
	posterURL := first(meta.PosterURL)

	var fanart []byte
	if len(meta.Fanart) == 0 && fanartURL != "" {
		b, mime, err := im.Assets.Download(ctx, fanartURL, pageURL)
		if err != nil {
			im.Logger.Warn().Err(err).Str("url", fanartURL).Msg("下载 fanart 失败")
		} else {
			fanart = b
			meta.Fanart = []domain.Attachment{{Name: "fanart" + extOf(mime), MimeType: mime, Data: b}}
		}
	}

	if len(meta.Poster) > 0 {
		return
	}
	src := fanart
	if posterURL != "" && posterURL != fanartURL {
		b, mime, err := im.Assets.Download(ctx, posterURL, pageURL)
		if err != nil {
			im.Logger.Warn().Err(err).Str("url", posterURL).Msg("下载 poster 失败")
		} else if !imgx.IsWide(b) {
			meta.Poster = []domain.Attachment{{Name: "poster" + extOf(mime), MimeType: mime, Data: b}}
			return
		} else {
			src = b
		}
	}
	if len(src) == 0 || !imgx.IsWide(src) {
		return
	}
	b, err := imgx.PosterFromCover(src)
	if err != nil {
		im.Logger.Warn().Err(err).Msg("裁切 poster 失败")
		return
	}
	meta.Poster = []domain.Attachment{{Name: "poster.jpg", MimeType: "image/jpeg", Data: b}}
}

func first(v []string) string {
	for _, s := range v {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func extOf(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func successMessage(a Action) string {
	switch a {
	case ActionFavorite:
		return "导入并收藏成功"
	case ActionSubscribe:
		return "导入并订阅成功"
	default:
		return "导入成功"
	}
}

func failMessage(a Action) string {
	switch a {
	case ActionFavorite:
		return "收藏失败"
	case ActionSubscribe:
		return "订阅失败"
	default:
		return "导入失败"
	}
}
