package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

// Metadata 是站点解析得到的规范化影视元数据，也是导入 AMMDS 的载荷。
//
// 约束：
// - 解析成功后 UniqueID 与 OriginalTitle 必须非空；其余字段彼此独立、均可缺失
// - json tag 即 AMMDS 导入接口的字段名（form 提交时同名）
// - 图片既可以是二进制附件（推荐），也可以是 URL 列表
type Metadata struct {
	UniqueID      string   `json:"uniqueid"`
	Numbers       []string `json:"numbers,omitempty"`
	OriginalTitle string   `json:"originalTitle"`
	TitleCN       string   `json:"titleCn,omitempty"`
	Plot          string   `json:"plot,omitempty"`
	PlotCN        string   `json:"plotCn,omitempty"`
	Tagline       string   `json:"tagline,omitempty"`
	Outline       string   `json:"outline,omitempty"`
	Rating        float64  `json:"rating,omitempty"` // 10 分制
	Premiered     string   `json:"premiered,omitempty"`

	Poster         []Attachment `json:"poster,omitempty"`
	PosterURL      []string     `json:"posterUrl,omitempty"`
	Fanart         []Attachment `json:"fanart,omitempty"`
	FanartURL      []string     `json:"fanartUrl,omitempty"`
	Thumb          []Attachment `json:"thumb,omitempty"`
	ThumbURL       []string     `json:"thumbUrl,omitempty"`
	ExtraFanart    []Attachment `json:"extrafanart,omitempty"`
	ExtraFanartURL []string     `json:"extrafanartUrl,omitempty"`

	Genres      []string `json:"genres,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Studio      []string `json:"studio,omitempty"`
	IssueStudio []string `json:"issueStudio,omitempty"`
	Runtime     int      `json:"runtime,omitempty"` // 分钟
	Languages   string   `json:"languages,omitempty"`
	Country     string   `json:"country,omitempty"`
	Director    []string `json:"director,omitempty"`
	// Mosaic：有码 true / 无码 false；nil 表示未知。
	Mosaic *bool `json:"mosaic,omitempty"`

	Series  []Series  `json:"series,omitempty"`
	Actors  []Actor   `json:"actors,omitempty"`
	Links   []Link    `json:"links,omitempty"`
	Magnets []Magnet  `json:"magnets,omitempty"`
	Related []Related `json:"related,omitempty"`

	Favorite  bool `json:"favorite,omitempty"`
	Subscribe bool `json:"subscribe,omitempty"`
}

type Series struct {
	Name     string `json:"name"`
	Overview string `json:"overview,omitempty"`
}

type Actor struct {
	Name     string       `json:"name"`
	Role     string       `json:"role,omitempty"`
	Thumb    []Attachment `json:"thumb,omitempty"`
	ThumbURL []string     `json:"thumbUrl,omitempty"`
}

// Link 是数据来源（站点名 + 详情页 URL）。
type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Magnet 的 Size 单位为字节；无法解析时为 0。Hash 便于服务端去重。
type Magnet struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Hash string `json:"hash,omitempty"`
}

// Related 是详情页上的“相关影片”。
type Related struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Attachment 是一个二进制文件（海报/背景图/头像）。
// 跨 relay 传输时会被编码为 base64 替身，服务端再还原为 multipart 文件。
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// ErrIncomplete 表示元数据缺少必填字段（uniqueid / originalTitle）。
var ErrIncomplete = errors.New("元数据不完整：uniqueid 与 originalTitle 必填")

// Validate 只校验必填字段；可选字段缺失永远合法。
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.UniqueID) == "" || strings.TrimSpace(m.OriginalTitle) == "" {
		return ErrIncomplete
	}
	return nil
}

// FormFields 把元数据展开为 form 字段（字段名同 json tag）。
//
// 附件字段保持 []Attachment 原样，交给 relay 编码成文件替身；
// 空字段不输出，避免服务端把空串当作有效值。
func (m Metadata) FormFields() map[string]any {
	out := make(map[string]any, 32)
	putStr := func(k, v string) {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	putList := func(k string, v []string) {
		if len(v) > 0 {
			out[k] = v
		}
	}
	putFiles := func(k string, v []Attachment) {
		if len(v) > 0 {
			out[k] = v
		}
	}

	putStr("uniqueid", m.UniqueID)
	putList("numbers", m.Numbers)
	putStr("originalTitle", m.OriginalTitle)
	putStr("titleCn", m.TitleCN)
	putStr("plot", m.Plot)
	putStr("plotCn", m.PlotCN)
	putStr("tagline", m.Tagline)
	putStr("outline", m.Outline)
	if m.Rating > 0 {
		out["rating"] = m.Rating
	}
	putStr("premiered", m.Premiered)

	putFiles("poster", m.Poster)
	putList("posterUrl", m.PosterURL)
	putFiles("fanart", m.Fanart)
	putList("fanartUrl", m.FanartURL)
	putFiles("thumb", m.Thumb)
	putList("thumbUrl", m.ThumbURL)
	putFiles("extrafanart", m.ExtraFanart)
	putList("extrafanartUrl", m.ExtraFanartURL)

	putList("genres", m.Genres)
	putList("tags", m.Tags)
	putList("studio", m.Studio)
	putList("issueStudio", m.IssueStudio)
	if m.Runtime > 0 {
		out["runtime"] = m.Runtime
	}
	putStr("languages", m.Languages)
	putStr("country", m.Country)
	putList("director", m.Director)
	if m.Mosaic != nil {
		out["mosaic"] = *m.Mosaic
	}

	if len(m.Series) > 0 {
		out["series"] = m.Series
	}
	if len(m.Actors) > 0 {
		out["actors"] = m.Actors
	}
	if len(m.Links) > 0 {
		out["links"] = m.Links
	}
	if len(m.Magnets) > 0 {
		out["magnets"] = m.Magnets
	}
	if len(m.Related) > 0 {
		out["related"] = m.Related
	}
	if m.Favorite {
		out["favorite"] = true
	}
	if m.Subscribe {
		out["subscribe"] = true
	}
	return out
}

// MarshalIndent 仅用于 CLI 输出与导出（附件数据不展开，避免刷屏）。
func (m Metadata) MarshalIndent() ([]byte, error) {
	type alias Metadata
	c := alias(m)
	c.Poster = stripData(c.Poster)
	c.Fanart = stripData(c.Fanart)
	c.Thumb = stripData(c.Thumb)
	c.ExtraFanart = stripData(c.ExtraFanart)
	return json.MarshalIndent(c, "", "  ")
}

func stripData(in []Attachment) []Attachment {
	if len(in) == 0 {
		return in
	}
	out := make([]Attachment, len(in))
	for i, a := range in {
		out[i] = Attachment{Name: a.Name, MimeType: a.MimeType}
	}
	return out
}
