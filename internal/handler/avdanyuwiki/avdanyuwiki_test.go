package avdanyuwiki

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ammds-bridge/internal/handler"
)

const page = `<html><head>
<meta property="og:image" content="/wp-content/uploads/abc-123.jpg">
<meta name="description" content="男優出演情報">
</head><body>
<h1>abc-123 とある作品タイトル</h1>
<article class="entry-content"><p>配信開始日：2023-11-02</p></article>
</body></html>`

func TestExtract(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	require.True(t, h.Matches("https://avdanyuwiki.com/archives/123"))

	p := handler.Page{URL: "https://avdanyuwiki.com/archives/123", HTML: []byte(page)}
	m, err := h.Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "ABC-123", m.UniqueID)
	assert.Equal(t, "とある作品タイトル", m.OriginalTitle)
	assert.Equal(t, []string{"https://avdanyuwiki.com/wp-content/uploads/abc-123.jpg"}, m.ThumbURL)
	assert.Equal(t, "2023-11-02", m.Premiered)
	assert.Equal(t, "男優出演情報", m.Plot)
	assert.Equal(t, "AvdanyuWiki", m.Links[0].Name)
}

func TestExtract_NoCodeHeading(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	_, err = h.Extract(context.Background(), handler.Page{
		URL:  "https://avdanyuwiki.com/",
		HTML: []byte(`<html><body><h1>男優一覧</h1></body></html>`),
	})
	assert.True(t, handler.IsUnmatchedPage(err))

	_, err = h.Extract(context.Background(), handler.Page{
		URL:  "https://avdanyuwiki.com/x",
		HTML: []byte(`<html><body><h1>ABC-123</h1></body></html>`),
	})
	assert.True(t, handler.IsExtraction(err))
}
