package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Keywords 读取 <meta name="keywords">，按逗号拆分（已去空白、去重）。
func Keywords(doc *goquery.Document) []string {
	if doc == nil {
		return nil
	}
	content, ok := doc.Find("meta[name='keywords']").First().Attr("content")
	if !ok || strings.TrimSpace(content) == "" {
		return nil
	}
	return NormList(strings.Split(content, ","))
}

// Description 读取 <meta name="description">。
func Description(doc *goquery.Document) (string, bool) {
	if doc == nil {
		return "", false
	}
	content, ok := doc.Find("meta[name='description']").First().Attr("content")
	if !ok {
		return "", false
	}
	return CleanText(content)
}

// MetaProperty 读取 <meta property="...">（如 og:image）。
func MetaProperty(doc *goquery.Document, property string) (string, bool) {
	if doc == nil {
		return "", false
	}
	content, ok := doc.Find("meta[property='" + property + "']").First().Attr("content")
	if !ok {
		return "", false
	}
	return CleanText(content)
}

// Text 返回选择集第一个元素的规范化文本。
func Text(s *goquery.Selection) (string, bool) {
	if s == nil || s.Length() == 0 {
		return "", false
	}
	return CleanText(s.First().Text())
}
