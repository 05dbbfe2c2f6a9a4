// Package avdanyuwiki 解析 AV男優 Wiki 的作品页。
package avdanyuwiki

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
	name     = "avdanyuwiki"
	siteName = "AvdanyuWiki"
)

var headingCodeRE = regexp.MustCompile(`([A-Za-z0-9]+-[A-Za-z0-9]+|\d+_\d+)\s*(.*)`)

// Handler 只依赖 h1 标题：番号取标题里的第一个番号，标题取其余部分。
type Handler struct {
	matcher handler.Matcher
}

func New() (handler.Handler, error) {
	return &Handler{
		matcher: handler.Matcher{
			Domains:  []string{"avdanyuwiki.com"},
			Patterns: []*regexp.Regexp{regexp.MustCompile(`^https?://(?:www\.)?avdanyuwiki\.com/\w+/?$`)},
		},
	}, nil
}

func (h *Handler) Name() string { return name }

func (h *Handler) Matches(rawURL string) bool { return h.matcher.Match(rawURL) }

func (h *Handler) Author() domain.Author {
	a := domain.OfficialAuthor
	return domain.Author{Name: a.Name, Email: a.Email, GitHub: a.GitHub}
}

func (h *Handler) View() handler.View { return handler.View{Component: name} }

func (h *Handler) Automate(ctx context.Context, p handler.Page, cb handler.AutomateFunc) error {
	return handler.AutomateWith(ctx, h, p, cb)
}

func (h *Handler) Extract(ctx context.Context, p handler.Page) (domain.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return domain.Metadata{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.HTML))
	if err != nil {
		return domain.Metadata{}, &handler.ExtractionError{Handler: name, Field: "html", Err: err}
	}
	heading, ok := extract.Text(doc.Find("h1"))
	if !ok {
		return domain.Metadata{}, &handler.UnmatchedPageError{Handler: name, URL: p.URL, Reason: "缺少 h1"}
	}
	mm := headingCodeRE.FindStringSubmatch(heading)
	if mm == nil {
		return domain.Metadata{}, &handler.UnmatchedPageError{Handler: name, URL: p.URL, Reason: "h1 不含番号"}
	}
	code, ok := domain.ParseCode(mm[1])
	title := strings.TrimSpace(mm[2])
	if !ok || title == "" {
		return domain.Metadata{}, &handler.ExtractionError{Handler: name, Field: "uniqueid/originalTitle"}
	}

	m := domain.Metadata{UniqueID: code.String(), OriginalTitle: title}
	if img, ok := extract.MetaProperty(doc, "og:image"); ok {
		if u, ok := extract.FullURL(p.URL, img); ok {
			m.ThumbURL = []string{u}
		}
	}
	if d, ok := extract.Date(doc.Find("article, .entry-content").First().Text()); ok {
		m.Premiered = d
	}
	if d, ok := extract.Description(doc); ok {
		m.Plot = d
	}
	m.Tags = extract.Keywords(doc)
	m.Links = []domain.Link{{Name: siteName, URL: p.URL}}
	return m, nil
}
