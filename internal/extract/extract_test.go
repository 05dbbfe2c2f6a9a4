package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"評分 4.5 分", 4.5, true},
		{"120", 120, true},
		{"abc 7 def 9", 7, true},
		{"", 0, false},
		{"none", 0, false},
	}
	for _, tt := range tests {
		got, ok := Number(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestDate(t *testing.T) {
	got, ok := Date("發行日期: 2025-03-02")
	assert.True(t, ok)
	assert.Equal(t, "2025-03-02", got)

	_, ok = Date("2025/03/02")
	assert.False(t, ok)
	_, ok = Date("25-03-02")
	assert.False(t, ok)
}

func TestRuntime(t *testing.T) {
	got, ok := Runtime("長度: 120分鐘")
	assert.True(t, ok)
	assert.Equal(t, 120, got)

	_, ok = Runtime("120 min")
	assert.False(t, ok, "只识别固定单位")

	m, ok := Minutes("160 min")
	assert.True(t, ok)
	assert.Equal(t, 160, m)
	_, ok = Minutes("n/a")
	assert.False(t, ok)
}

func TestIDFromURL(t *testing.T) {
	tests := map[string]string{
		"https://www.javbus.com/ZMAR-132":  "ZMAR-132",
		"https://www.javbus.com/ZMAR-132/": "ZMAR-132",
		"/v/ve39eW":                        "ve39eW",
		"https://javdb.com/v/abc?x=1":      "abc",
	}
	for in, want := range tests {
		got, ok := IDFromURL(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := IDFromURL("")
	assert.False(t, ok)
	_, ok = IDFromURL("https://www.javbus.com/")
	assert.False(t, ok)
}

func TestCleanText(t *testing.T) {
	got, ok := CleanText("  a \n\t b  ")
	assert.True(t, ok)
	assert.Equal(t, "a b", got)

	_, ok = CleanText(" \n ")
	assert.False(t, ok)
}

func TestFullURL(t *testing.T) {
	tests := []struct {
		origin, href, want string
	}{
		{"https://www.javbus.com", "/pics/cover/a.jpg", "https://www.javbus.com/pics/cover/a.jpg"},
		{"https://www.javbus.com/ZMAR-132", "pics/a.jpg", "https://www.javbus.com/pics/a.jpg"},
		{"https://www.javbus.com", "//img.example/a.jpg", "https://img.example/a.jpg"},
		{"https://www.javbus.com", "https://cdn.example/a.jpg", "https://cdn.example/a.jpg"},
	}
	for _, tt := range tests {
		got, ok := FullURL(tt.origin, tt.href)
		require.True(t, ok, tt.href)
		assert.Equal(t, tt.want, got)
	}

	_, ok := FullURL("https://www.javbus.com", "  ")
	assert.False(t, ok)
	_, ok = FullURL("not a url", "/a.jpg")
	assert.False(t, ok)
}

func TestSize(t *testing.T) {
	gb := float64(1 << 30)
	tests := []struct {
		in   string
		want int64
	}{
		{"1.5GB", int64(1.5 * 1024 * 1024 * 1024)},
		{"700MB", 700 * 1024 * 1024},
		{"500KB", 500 * 1024},
		{"2.3 gb", int64(2.3 * gb)},
		{"文件 4.82GB 2024-01-01", int64(4.82 * gb)},
		{"700", 0},
		{"", 0},
		{"大小未知", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Size(tt.in), tt.in)
	}
}

func TestNormList(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, NormList([]string{" b", "a", "", "b ", "a"}))
	assert.Empty(t, NormList(nil))
}

func TestDocHelpers(t *testing.T) {
	html := `<html><head>
<meta name="keywords" content="ZMAR-132, 巨乳 ,単体作品,巨乳">
<meta name="description" content="  一段
简介 ">
<meta property="og:image" content="https://img.example/og.jpg">
</head><body><h3>  Title  here </h3></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, []string{"ZMAR-132", "巨乳", "単体作品"}, Keywords(doc))

	d, ok := Description(doc)
	assert.True(t, ok)
	assert.Equal(t, "一段 简介", d)

	og, ok := MetaProperty(doc, "og:image")
	assert.True(t, ok)
	assert.Equal(t, "https://img.example/og.jpg", og)

	h, ok := Text(doc.Find("h3"))
	assert.True(t, ok)
	assert.Equal(t, "Title here", h)

	_, ok = Text(doc.Find("h1"))
	assert.False(t, ok)
	assert.Nil(t, Keywords(nil))
}

func TestMagnetHash(t *testing.T) {
	h, ok := MagnetHash("magnet:?xt=urn:btih:5D9B5C3B0B1E2E0A6C1F4E5D6C7B8A9F0E1D2C3B&dn=ABC-123")
	assert.True(t, ok)
	assert.Equal(t, "5d9b5c3b0b1e2e0a6c1f4e5d6c7b8a9f0e1d2c3b", h)

	_, ok = MagnetHash("https://example.com/x")
	assert.False(t, ok)
	_, ok = MagnetHash("magnet:?dn=nohash")
	assert.False(t, ok)
}
