package javbus

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/handler"
)

var gb = float64(1 << 30)

func loadPage(t *testing.T, file, pageURL string) handler.Page {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", file))
	require.NoError(t, err, "读取 fixture 失败")
	return handler.Page{URL: pageURL, HTML: b}
}

func newHandler(t *testing.T) handler.Handler {
	t.Helper()
	h, err := New()
	require.NoError(t, err)
	return h
}

func TestMatches(t *testing.T) {
	h := newHandler(t)
	assert.True(t, h.Matches("https://www.javbus.com/ZMAR-132"))
	assert.True(t, h.Matches("https://javbus.com/uncensored/032225_001"))
	assert.False(t, h.Matches("https://javdb.com/v/abc"))
	assert.False(t, h.Matches("::not a url"))
}

func TestExtract_Detail(t *testing.T) {
	h := newHandler(t)
	p := loadPage(t, "detail.html", "https://www.javbus.com/ZMAR-132")

	m, err := h.Extract(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "ZMAR-132", m.UniqueID)
	assert.Equal(t, "まるっと！新井リマ", m.OriginalTitle)
	assert.Equal(t, "2024-03-15", m.Premiered)
	assert.Equal(t, 155, m.Runtime)
	assert.Equal(t, []string{"ZETTON"}, m.Studio)
	assert.Equal(t, []string{"ZETTON Label"}, m.IssueStudio)
	assert.Equal(t, []domain.Series{{Name: "まるっと！"}}, m.Series)
	assert.Equal(t, []string{"某導演"}, m.Director)
	assert.Equal(t, []string{"単体作品", "巨乳"}, m.Genres)
	assert.Equal(t, []string{"単体作品", "巨乳", "ハイビジョン"}, m.Tags)
	assert.Equal(t, "【發行日期】2024-03-15，【長度】155分鐘", m.Plot)
	assert.Nil(t, m.Mosaic)

	require.Len(t, m.Actors, 1)
	assert.Equal(t, "新井リマ", m.Actors[0].Name)
	assert.Equal(t, "女优", m.Actors[0].Role)
	assert.Equal(t, []string{"https://www.javbus.com/pics/actress/x_a.jpg"}, m.Actors[0].ThumbURL)

	assert.Equal(t, []string{"https://www.javbus.com/pics/cover/abcd_b.jpg"}, m.FanartURL)
	assert.Equal(t, m.FanartURL, m.PosterURL)
	assert.Equal(t, []string{
		"https://pics.dmm.co.jp/digital/video/zmar132/zmar132jp-1.jpg",
		"https://pics.dmm.co.jp/digital/video/zmar132/zmar132jp-2.jpg",
	}, m.ExtraFanartURL)

	require.Len(t, m.Magnets, 2)
	assert.Equal(t, "ZMAR-132-C", m.Magnets[0].Name)
	assert.Equal(t, int64(4.82*gb), m.Magnets[0].Size)
	assert.Equal(t, "5d9b5c3b0b1e2e0a6c1f4e5d6c7b8a9f0e1d2c3b", m.Magnets[0].Hash)
	assert.Equal(t, int64(700*1024*1024), m.Magnets[1].Size)

	require.Len(t, m.Related, 1)
	assert.Equal(t, domain.Related{
		Title:    "ZMAR-100 別の作品",
		URL:      "https://www.javbus.com/ZMAR-100",
		ImageURL: "https://www.javbus.com/pics/thumb/zmar100.jpg",
	}, m.Related[0])

	require.NotEmpty(t, m.Links)
	assert.Equal(t, domain.Link{Name: "JavBus", URL: p.URL}, m.Links[len(m.Links)-1])
	assert.NoError(t, m.Validate())
}

func TestExtract_NumberTitleAndGlobalMagnets(t *testing.T) {
	h := newHandler(t)
	p := loadPage(t, "uncensored_fallback.html", "https://www.javbus.com/uncensored/032225_001")

	m, err := h.Extract(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "032225_001", m.UniqueID)
	assert.Equal(t, "PtoMセックス 藤野りん", m.OriginalTitle)
	assert.Equal(t, 60, m.Runtime)
	assert.Equal(t, []string{"中出し"}, m.Tags)
	assert.Equal(t, "一本道 032225_001", m.Plot)
	require.NotNil(t, m.Mosaic)
	assert.False(t, *m.Mosaic)
	assert.Empty(t, m.Actors)
	assert.Empty(t, m.Related)

	require.Len(t, m.Magnets, 2)
	assert.Equal(t, "032225_001-FHD", m.Magnets[0].Name)
	assert.Equal(t, int64(2.3*gb), m.Magnets[0].Size)
	assert.Equal(t, "89abcdef0123456789abcdef0123456789abcdef", m.Magnets[0].Hash)
	assert.Equal(t, "未命名", m.Magnets[1].Name)
	assert.Zero(t, m.Magnets[1].Size)
	assert.Empty(t, m.Magnets[1].Hash)
}

func TestExtract_VerifyPageIsUnmatched(t *testing.T) {
	h := newHandler(t)
	_, err := h.Extract(context.Background(), loadPage(t, "verify.html", "https://www.javbus.com/ZMAR-132"))
	require.Error(t, err)
	assert.True(t, handler.IsUnmatchedPage(err), "期望 UnmatchedPageError，实际 %v", err)

	_, err = h.Extract(context.Background(), handler.Page{URL: "https://www.javbus.com/"})
	assert.True(t, handler.IsUnmatchedPage(err))
}

func TestExtract_UnsupportedTitle(t *testing.T) {
	html := `<html><head><title>Some list page - JavBus</title></head><body>
<div class="movie"><div class="info"><p><span class="header">識別碼:</span> <span>ABC-123</span></p></div></div>
</body></html>`
	h := newHandler(t)
	_, err := h.Extract(context.Background(), handler.Page{URL: "https://www.javbus.com/ABC-123", HTML: []byte(html)})
	assert.True(t, handler.IsUnmatchedPage(err))
}

func TestParseTitle_InfoFallback(t *testing.T) {
	html := `<html><head><title>untitled</title></head><body>
<h3>ABC-123 代替タイトル</h3>
<div class="movie"><div class="info"><p><span class="header">識別碼:</span> <span>ABC-123</span></p></div></div>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	require.NoError(t, err)

	id, title, ok := parseTitle(doc)
	require.True(t, ok)
	assert.Equal(t, "ABC-123", id)
	assert.Equal(t, "代替タイトル", title)

	doc, err = goquery.NewDocumentFromReader(bytes.NewReader([]byte(`<html><title>x</title></html>`)))
	require.NoError(t, err)
	_, _, ok = parseTitle(doc)
	assert.False(t, ok)
}

func TestAutomate_PassesLatestRecord(t *testing.T) {
	h := newHandler(t)
	p := loadPage(t, "detail.html", "https://www.javbus.com/ZMAR-132")

	var got domain.Metadata
	err := h.Automate(context.Background(), p, func(_ context.Context, m domain.Metadata) error {
		got = m
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ZMAR-132", got.UniqueID)
	assert.Equal(t, "javbus", h.View().Component)
	assert.Equal(t, "AMMDS", h.Author().Name)
}
