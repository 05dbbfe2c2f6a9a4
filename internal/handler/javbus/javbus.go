// Package javbus 解析 JavBus 影片详情页。
package javbus

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
	name     = "javbus"
	siteName = "JavBus"
	origin   = "https://www.javbus.com"
)

var (
	// 标准格式：ZMAR-132 まるっと！新井リマ - JavBus
	standardTitleRE = regexp.MustCompile(`([A-Z0-9]+-[A-Z0-9]+)\s+(.+?)\s+-\s+JavBus`)
	// 数字格式：032225_001 PtoMセックス 藤野りん - JavBus
	numberTitleRE = regexp.MustCompile(`(\d+_\d+)\s+(.+?)\s+-\s+JavBus`)

	imageExtRE = regexp.MustCompile(`(?i)\.(jpe?g|png|webp)$`)
)

// Handler 实现 JavBus 详情页解析。
//
// 约束：
// - Extract 是纯函数（只依赖 Page），不做网络请求
// - 页面标记（div.movie + 識別碼 + 标题格式）不满足：*handler.UnmatchedPageError
// - 番号/标题都无法解析：*handler.ExtractionError；其余字段缺失一律降级
type Handler struct {
	matcher handler.Matcher
}

func New() (handler.Handler, error) {
	return &Handler{
		matcher: handler.Matcher{
			Domains:  []string{"javbus.com"},
			Patterns: []*regexp.Regexp{regexp.MustCompile(`^https?://(?:www\.)?javbus\.com/\w+/?$`)},
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

// Extract 把 JavBus 详情页解析为 Metadata。
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

	if reason := detailPageMissing(doc); reason != "" {
		return domain.Metadata{}, &handler.UnmatchedPageError{Handler: name, URL: p.URL, Reason: reason}
	}

	base := strings.TrimSpace(p.URL)
	if base == "" {
		base = origin
	}

	info := parseInfo(doc, base)
	id, title, ok := parseTitle(doc)
	if !ok {
		return domain.Metadata{}, &handler.ExtractionError{Handler: name, Field: "uniqueid/originalTitle"}
	}
	if id == "" {
		id = info.UniqueID
	}
	meta := info
	meta.UniqueID = id
	meta.OriginalTitle = title

	if len(meta.Tags) == 0 {
		meta.Tags = keywordTags(doc, meta)
	}
	if meta.Plot == "" {
		if d, ok := extract.Description(doc); ok {
			meta.Plot = d
		}
	}

	meta.Magnets = parseMagnets(doc)
	meta.Related = parseRelated(doc, base)
	meta.ExtraFanartURL = parseSamples(doc, base)
	if strings.Contains(strings.ToLower(base), "/uncensored") {
		f := false
		meta.Mosaic = &f
	}

	meta.Links = append(meta.Links, domain.Link{Name: siteName, URL: p.URL})
	return meta, nil
}

// detailPageMissing 返回页面不是详情页的原因；空串表示通过。
func detailPageMissing(doc *goquery.Document) string {
	if doc.Find("div.movie").Length() == 0 {
		return "缺少 div.movie"
	}
	hasID := false
	doc.Find("span.header").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "識別碼") {
			hasID = true
			return false
		}
		return true
	})
	if !hasID {
		return "缺少 識別碼（疑似验证页/列表页）"
	}
	t := doc.Find("title").First().Text()
	if strings.TrimSpace(t) == "" {
		return "缺少 <title>"
	}
	if !standardTitleRE.MatchString(t) && !numberTitleRE.MatchString(t) {
		return "标题格式不受支持"
	}
	return ""
}

// parseTitle 依次尝试标准格式与数字格式；都失败时回退为“識別碼 + h3 标题”。
func parseTitle(doc *goquery.Document) (id, title string, ok bool) {
	t := doc.Find("title").First().Text()
	for _, re := range []*regexp.Regexp{standardTitleRE, numberTitleRE} {
		if m := re.FindStringSubmatch(t); m != nil {
			return m[1], strings.TrimSpace(m[2]), true
		}
	}

	id = idFromInfo(doc)
	if id == "" {
		return "", "", false
	}
	h3, ok := extract.Text(doc.Find("h3"))
	if !ok {
		return "", "", false
	}
	title = strings.TrimSpace(strings.ReplaceAll(h3, id, ""))
	if title == "" {
		return "", "", false
	}
	return id, title, true
}

func idFromInfo(doc *goquery.Document) string {
	var out string
	doc.Find("span.header").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Text(), "識別碼") {
			return true
		}
		out = extract.NormSpace(s.Next().Text())
		return false
	})
	return out
}

var (
	headerID       = []string{"識別碼", "识别码", "ID"}
	headerRelease  = []string{"發行日期", "发行日期", "Release Date", "発売日"}
	headerRuntime  = []string{"長度", "长度", "Length", "時長", "时长", "Duration"}
	headerStudio   = []string{"製作商", "制作商", "Studio", "Maker", "Manufacturer"}
	headerIssuer   = []string{"發行商", "发行商", "Label", "Publisher"}
	headerSeries   = []string{"系列", "Series"}
	headerDirector = []string{"導演", "导演", "Director"}
)

// parseInfo 解析 div.info 里的“标签 -> 值”行以及演员、类别、封面。
func parseInfo(doc *goquery.Document, base string) domain.Metadata {
	var m domain.Metadata

	rows := infoRows(doc)
	if v := rows.value(headerID); v != "" {
		m.UniqueID = v
	}
	if d, ok := extract.Date(rows.text(headerRelease)); ok {
		m.Premiered = d
	}
	runtimeS := rows.text(headerRuntime)
	if n, ok := extract.Runtime(runtimeS); ok {
		m.Runtime = n
	} else if n, ok := extract.Minutes(runtimeS); ok {
		m.Runtime = n
	}
	if v := rows.value(headerStudio); v != "" {
		m.Studio = []string{v}
	}
	if v := rows.value(headerIssuer); v != "" {
		m.IssueStudio = []string{v}
	}
	if v := rows.value(headerSeries); v != "" {
		m.Series = []domain.Series{{Name: v}}
	}
	if v := rows.value(headerDirector); v != "" {
		m.Director = []string{v}
	}

	m.Genres = parseGenres(doc)
	m.Actors = parseActors(doc, base)

	if href, ok := doc.Find("a.bigImage").First().Attr("href"); ok {
		if u, ok := extract.FullURL(base, href); ok {
			// fanart 为横版大图；poster 由上层从 fanart 右半边裁切，这里同时给出 URL。
			m.PosterURL = []string{u}
			m.FanartURL = []string{u}
		}
	}
	if len(m.FanartURL) == 0 {
		if src, ok := doc.Find("div.screencap img").First().Attr("src"); ok {
			if u, ok := extract.FullURL(base, src); ok {
				m.PosterURL = []string{u}
				m.FanartURL = []string{u}
			}
		}
	}
	return m
}

type infoRow struct {
	header string
	sel    *goquery.Selection
}

type infoTable []infoRow

func infoRows(doc *goquery.Document) infoTable {
	var out infoTable
	doc.Find("div.movie div.info p").Each(func(_ int, s *goquery.Selection) {
		h := extract.NormHeader(s.Find("span.header").First().Text())
		if h == "" {
			return
		}
		out = append(out, infoRow{header: h, sel: s})
	})
	return out
}

func (t infoTable) find(headers []string) (infoRow, bool) {
	for _, r := range t {
		for _, h := range headers {
			if r.header == h {
				return r, true
			}
		}
	}
	return infoRow{}, false
}

// value 优先取行内链接文本（厂牌/系列），否则取紧邻 header 的兄弟元素或行内剩余文本。
func (t infoTable) value(headers []string) string {
	r, ok := t.find(headers)
	if !ok {
		return ""
	}
	if a := extract.NormSpace(r.sel.Find("a").First().Text()); a != "" {
		return a
	}
	if next := extract.NormSpace(r.sel.Find("span.header").First().Next().Text()); next != "" {
		return next
	}
	return t.text(headers)
}

// text 返回整行去掉 header 后的文本（日期/长度这类纯文本值）。
func (t infoTable) text(headers []string) string {
	r, ok := t.find(headers)
	if !ok {
		return ""
	}
	raw := extract.NormSpace(r.sel.Find("span.header").First().Text())
	return strings.TrimSpace(strings.TrimPrefix(extract.NormSpace(r.sel.Text()), raw))
}

func parseGenres(doc *goquery.Document) []string {
	out := make([]string, 0, 16)
	doc.Find("span.genre a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.Contains(href, "/star/") {
			return
		}
		out = append(out, s.Text())
	})
	if len(out) == 0 {
		// 兜底：页面结构变化时回退扫描 /genre/ 链接。
		doc.Find("a").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			if strings.Contains(href, "/genre/") {
				out = append(out, s.Text())
			}
		})
	}
	return extract.NormList(out)
}

func parseActors(doc *goquery.Document, base string) []domain.Actor {
	avatars := make(map[string]string)
	doc.Find("a.avatar-box img").Each(func(_ int, s *goquery.Selection) {
		title := extract.NormSpace(s.AttrOr("title", ""))
		if title == "" {
			return
		}
		if u, ok := extract.FullURL(base, s.AttrOr("src", "")); ok {
			avatars[title] = u
		}
	})

	seen := make(map[string]struct{})
	var out []domain.Actor
	doc.Find("div.star-name a").Each(func(_ int, s *goquery.Selection) {
		n := extract.NormSpace(s.Text())
		if n == "" {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		a := domain.Actor{Name: n, Role: "女优"}
		if u, ok := avatars[n]; ok {
			a.ThumbURL = []string{u}
		}
		out = append(out, a)
	})
	return out
}

// keywordTags 把 meta keywords 视为标签集合，剔除番号/厂牌/系列这些已结构化的值。
func keywordTags(doc *goquery.Document, m domain.Metadata) []string {
	skip := make(map[string]struct{})
	for _, s := range append(append([]string{}, m.Studio...), m.IssueStudio...) {
		skip[s] = struct{}{}
	}
	for _, s := range m.Series {
		skip[s.Name] = struct{}{}
	}
	var out []string
	for _, k := range extract.Keywords(doc) {
		if strings.EqualFold(k, m.UniqueID) {
			continue
		}
		if _, ok := skip[k]; ok {
			continue
		}
		out = append(out, k)
	}
	return out
}

// parseMagnets 优先解析 #magnet-table；表格为空时全局扫描 magnet 链接。
func parseMagnets(doc *goquery.Document) []domain.Magnet {
	rows := doc.Find("#magnet-table tr")
	var out []domain.Magnet
	if rows.Length() > 1 {
		rows.Each(func(_ int, row *goquery.Selection) {
			links := row.Find(`a[href^="magnet:"]`)
			if links.Length() == 0 {
				return
			}
			href := strings.TrimSpace(links.First().AttrOr("href", ""))
			if href == "" {
				return
			}
			n := extract.NormSpace(row.Find("a.name").First().Text())
			if n == "" {
				n = extract.NormSpace(links.First().Text())
			}
			if n == "" {
				n = "未命名"
			}
			var size int64
			// 标准行是“名称 / 大小 / 日期”三个 magnet 链接，大小在中间。
			if links.Length() == 3 {
				size = extract.Size(links.Eq(1).Text())
			}
			out = append(out, newMagnet(n, href, size))
		})
	}
	if len(out) > 0 {
		return out
	}

	doc.Find(`a[href^="magnet:"]`).Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		n := extract.NormSpace(s.Text())
		if n == "" {
			n = "未命名"
		}
		var size int64
		if tr := s.Closest("tr"); tr.Length() > 0 {
			size = extract.Size(tr.Text())
		}
		out = append(out, newMagnet(n, href, size))
	})
	return out
}

func newMagnet(n, href string, size int64) domain.Magnet {
	m := domain.Magnet{Name: n, URL: href, Size: size}
	if h, ok := extract.MagnetHash(href); ok {
		m.Hash = h
	}
	return m
}

func parseRelated(doc *goquery.Document, base string) []domain.Related {
	var out []domain.Related
	doc.Find("#related-waterfall a.movie-box").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.AttrOr("title", ""))
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if title == "" || href == "" {
			return
		}
		r := domain.Related{Title: title, URL: href}
		if u, ok := extract.FullURL(base, href); ok {
			r.URL = u
		}
		if u, ok := extract.FullURL(base, s.Find("img").First().AttrOr("src", "")); ok {
			r.ImageURL = u
		}
		out = append(out, r)
	})
	return out
}

func parseSamples(doc *goquery.Document, base string) []string {
	var out []string
	doc.Find("#sample-waterfall .sample-box").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if !imageExtRE.MatchString(href) {
			return
		}
		if u, ok := extract.FullURL(base, href); ok {
			out = append(out, u)
		}
	})
	return extract.NormList(out)
}
