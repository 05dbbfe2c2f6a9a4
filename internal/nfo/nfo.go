package nfo

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
)

const (
	DefaultCountry = "JP"
	DefaultMPAA    = "R18+"
)

type movie struct {
	XMLName xml.Name `xml:"movie"`

	Title         string   `xml:"title"`
	OriginalTitle string   `xml:"originaltitle"`
	SortTitle     string   `xml:"sorttitle"`
	Num           string   `xml:"num"`
	UniqueID      uniqueID `xml:"uniqueid"`

	Plot    string `xml:"plot,omitempty"`
	Outline string `xml:"outline,omitempty"`
	Tagline string `xml:"tagline,omitempty"`

	Studio   []string `xml:"studio,omitempty"`
	Director []string `xml:"director,omitempty"`
	Set      string   `xml:"set,omitempty"`

	Premiered string `xml:"premiered,omitempty"`
	Year      int    `xml:"year,omitempty"`
	Runtime   int    `xml:"runtime,omitempty"`

	MPAA    string `xml:"mpaa,omitempty"`
	Country string `xml:"country,omitempty"`

	Poster string `xml:"poster,omitempty"`
	Thumb  string `xml:"thumb,omitempty"`
	Fanart string `xml:"fanart,omitempty"`

	Rating string `xml:"rating,omitempty"`

	Actors []actor  `xml:"actor,omitempty"`
	Tags   []string `xml:"tag,omitempty"`
	Genres []string `xml:"genre,omitempty"`

	Website string `xml:"website,omitempty"`
}

type uniqueID struct {
	Type    string `xml:"type,attr"`
	Default bool   `xml:"default,attr"`
	Value   string `xml:",chardata"`
}

type actor struct {
	Name string `xml:"name"`
	Role string `xml:"role,omitempty"`
}

// Encode 把 Metadata 转成 Kodi/Jellyfin/Emby 可读取的 NFO（XML）。
//
// 规则：
// - 字段缺失允许为空；列表去空白、去重、保持输入顺序
// - title 优先中文标题，以 uniqueid 开头；都为空时回退到 uniqueid
// - 图片只写本地约定文件名（poster.jpg / fanart.jpg），远程 URL 不进 NFO
func Encode(meta domain.Metadata) ([]byte, error) {
	id := strings.TrimSpace(meta.UniqueID)
	title := strings.TrimSpace(meta.TitleCN)
	if title == "" {
		title = strings.TrimSpace(meta.OriginalTitle)
	}
	switch {
	case title == "":
		title = id
	case id != "" && !strings.HasPrefix(title, id):
		title = id + " " + title
	}

	plot := strings.TrimSpace(meta.PlotCN)
	if plot == "" {
		plot = strings.TrimSpace(meta.Plot)
	}

	m := movie{
		Title:         title,
		OriginalTitle: strings.TrimSpace(meta.OriginalTitle),
		SortTitle:     id,
		Num:           id,
		UniqueID:      uniqueID{Type: "num", Default: true, Value: id},

		Plot:    plot,
		Outline: strings.TrimSpace(meta.Outline),
		Tagline: strings.TrimSpace(meta.Tagline),

		Studio:   normList(meta.Studio),
		Director: normList(meta.Director),

		Premiered: strings.TrimSpace(meta.Premiered),
		Year:      yearOf(meta.Premiered),
		Runtime:   meta.Runtime,

		MPAA:    DefaultMPAA,
		Country: DefaultCountry,

		Poster: "poster.jpg",
		Thumb:  "poster.jpg",
		Fanart: "fanart.jpg",

		Tags:   normList(meta.Tags),
		Genres: normList(meta.Genres),
	}
	if c := strings.TrimSpace(meta.Country); c != "" {
		m.Country = c
	}
	if len(meta.Series) > 0 {
		m.Set = strings.TrimSpace(meta.Series[0].Name)
	}
	if meta.Rating > 0 {
		m.Rating = strconv.FormatFloat(meta.Rating, 'f', 1, 64)
	}
	if len(meta.Links) > 0 {
		m.Website = strings.TrimSpace(meta.Links[0].URL)
	}

	seen := make(map[string]struct{}, len(meta.Actors))
	for _, a := range meta.Actors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		role := strings.TrimSpace(a.Role)
		if role == "" {
			role = name
		}
		m.Actors = append(m.Actors, actor{Name: name, Role: role})
	}

	b, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	const header = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n"
	return append([]byte(header), b...), nil
}

// yearOf 取 YYYY-MM-DD 的年份；格式不符返回 0（不输出）。
func yearOf(date string) int {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}

func normList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := m[s]; ok {
			continue
		}
		m[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
