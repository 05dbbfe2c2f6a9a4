// Package javdb 解析 JavDB 影片详情页（/v/<id>）。
package javdb

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/extract"
	"github.com/John-Robertt/ammds-bridge/internal/handler"
)

const (
	name     = "javdb"
	siteName = "JavDB"
	origin   = "https://javdb.com"
)

// Handler 实现 JavDB 详情页解析。
//
// 约束：
// - 页面标记：h2.title + nav.movie-panel-info；否则 *handler.UnmatchedPageError
// - 标题优先使用原标题（origin-title），不存在时回退 current-title
// - 番号来自“番號/ID”面板行
type Handler struct {
	matcher handler.Matcher
}

func New() (handler.Handler, error) {
	return &Handler{
		matcher: handler.Matcher{
			Domains: []string{"javdb.com"},
			// 镜像域名（javdb565.com 等）只认详情页。
			Patterns: []*regexp.Regexp{regexp.MustCompile(`^https?://(?:www\.)?javdb\d*\.com/v/\w+/?$`)},
		},
	}, nil
}

func (h *Handler) Name() string { return name }

func (h *Handler) Matches(rawURL string) bool { return h.matcher.Match(rawURL) }

func (h *Handler) Author() domain.Author { return domain.OfficialAuthor }

func (h *Handler) View() handler.View { return handler.View{Component: name} }

func (h *Handler) Automate(ctx context.Context, p handler.Page, cb handler.AutomateFunc) error {
	return handler.AutomateWith(ctx, h, p, cb)
}

func (h *Handler) Extract(ctx context.Context, p handler.Page) (domain.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return domain.Metadata{}, err
	}
	if len(p.HTML) == 0 {
		return domain.Metadata{}, &handler.UnmatchedPageError{Handler: name, URL: p.URL, Reason: "html 为空"}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.HTML))
	if err != nil {
		return domain.Metadata{}, &handler.ExtractionError{Handler: name, Field: "html", Err: err}
	}
	if doc.Find("h2.title").Length() == 0 || doc.Find("nav.movie-panel-info").Length() == 0 {
		return domain.Metadata{}, &handler.UnmatchedPageError{Handler: name, URL: p.URL, Reason: "缺少 h2.title / nav.movie-panel-info"}
	}

	base := strings.TrimSpace(p.URL)
	if base == "" {
		base = origin
	}

	// goquery 不执行 CSS，因此 display:none 的 origin-title 仍可读取。
	title, _ := extract.Text(doc.Find("h2.title span.origin-title"))
	if title == "" {
		title, _ = extract.Text(doc.Find("h2.title strong.current-title"))
	}
	current, _ := extract.Text(doc.Find("h2.title strong.current-title"))

	var m domain.Metadata
	doc.Find("nav.movie-panel-info .panel-block").Each(func(_ int, s *goquery.Selection) {
		value := s.Find("span.value").First()
		switch extract.NormHeader(s.Find("strong").First().Text()) {
		case "番號", "番号", "ID":
			m.UniqueID = strings.ToUpper(extract.NormSpace(value.Text()))
		case "日期", "Date", "Released Date":
			m.Premiered, _ = extract.Date(value.Text())
		case "時長", "时长", "Length", "Duration":
			m.Runtime, _ = extract.Minutes(value.Text())
		case "導演", "导演", "Director":
			m.Director = linkTexts(value)
		case "片商", "Maker", "Studio", "Manufacturer":
			m.Studio = linkTexts(value)
		case "發行", "发行", "Publisher", "Label":
			m.IssueStudio = linkTexts(value)
		case "系列", "Series":
			for _, n := range linkTexts(value) {
				m.Series = append(m.Series, domain.Series{Name: n})
			}
		case "評分", "评分", "Rating":
			// “4.5分, 由 123 人評價”：5 分制换算为 10 分制。
			if f, ok := extract.Number(value.Text()); ok && f > 0 && f <= 5 {
				m.Rating = f * 2
			}
		case "類別", "类别", "Tag", "Tags", "Genre", "Genres", "Category", "Categories":
			m.Genres = linkTexts(value)
		case "演員", "演员", "Actor", "Actors", "Actress", "Cast":
			m.Actors = parseActors(value)
		}
	})

	if m.UniqueID == "" || title == "" {
		return domain.Metadata{}, &handler.ExtractionError{Handler: name, Field: "uniqueid/originalTitle"}
	}
	m.OriginalTitle = strings.TrimSpace(strings.TrimPrefix(title, m.UniqueID))
	if current != "" && current != title {
		m.TitleCN = current
	}
	m.Tags = m.Genres

	cover := ""
	if href, ok := doc.Find(".column-video-cover a[data-fancybox='gallery']").First().Attr("href"); ok {
		cover = href
	}
	if strings.TrimSpace(cover) == "" {
		cover = doc.Find(".column-video-cover img.video-cover").First().AttrOr("src", "")
	}
	if u, ok := extract.FullURL(base, cover); ok {
		m.PosterURL = []string{u}
		m.FanartURL = []string{u}
	}

	var samples []string
	doc.Find(".preview-images a.tile-item").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if strings.HasPrefix(href, "#") {
			return
		}
		if u, ok := extract.FullURL(base, href); ok {
			samples = append(samples, u)
		}
	})
	m.ExtraFanartURL = extract.NormList(samples)

	m.Magnets = parseMagnets(doc)
	if m.Plot == "" {
		if d, ok := extract.Description(doc); ok {
			m.Plot = d
		}
	}
	m.Links = []domain.Link{{Name: siteName, URL: p.URL}}
	return m, nil
}

func linkTexts(s *goquery.Selection) []string {
	var out []string
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		out = append(out, a.Text())
	})
	if len(out) == 0 {
		out = append(out, s.Text())
	}
	return extract.NormList(out)
}

// parseActors 按性别符号区分角色；JavDB 的演员列表同时包含男优。
func parseActors(s *goquery.Selection) []domain.Actor {
	var out []domain.Actor
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		n := extract.NormSpace(a.Text())
		if n == "" {
			return
		}
		role := "女优"
		if a.NextFiltered("strong.symbol").HasClass("male") {
			role = "男优"
		}
		out = append(out, domain.Actor{Name: n, Role: role})
	})
	return out
}

func parseMagnets(doc *goquery.Document) []domain.Magnet {
	var out []domain.Magnet
	doc.Find("#magnets-content .item").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(`a[href^="magnet:"]`).First()
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			return
		}
		n, ok := extract.Text(s.Find(".name"))
		if !ok {
			n = "未命名"
		}
		mg := domain.Magnet{Name: n, URL: href, Size: extract.Size(s.Find(".meta").Text())}
		if h, ok := extract.MagnetHash(href); ok {
			mg.Hash = h
		}
		out = append(out, mg)
	})
	return out
}
