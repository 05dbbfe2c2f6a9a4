package nfo

import (
	"encoding/xml"
	"testing"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
)

type movieOut struct {
	Title         string `xml:"title"`
	OriginalTitle string `xml:"originaltitle"`
	SortTitle     string `xml:"sorttitle"`
	Num           string `xml:"num"`
	UniqueID      struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"uniqueid"`
	Plot      string   `xml:"plot"`
	Studio    []string `xml:"studio"`
	Director  []string `xml:"director"`
	Set       string   `xml:"set"`
	Premiered string   `xml:"premiered"`
	Year      int      `xml:"year"`
	Runtime   int      `xml:"runtime"`
	MPAA      string   `xml:"mpaa"`
	Country   string   `xml:"country"`
	Poster    string   `xml:"poster"`
	Fanart    string   `xml:"fanart"`
	Rating    string   `xml:"rating"`
	Website   string   `xml:"website"`
	Tags      []string `xml:"tag"`
	Genres    []string `xml:"genre"`
	Actors    []struct {
		Name string `xml:"name"`
		Role string `xml:"role"`
	} `xml:"actor"`
}

func decode(t *testing.T, meta domain.Metadata) movieOut {
	t.Helper()
	b, err := Encode(meta)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var out movieOut
	if err := xml.Unmarshal(b, &out); err != nil {
		t.Fatalf("xml.Unmarshal 失败：%v", err)
	}
	return out
}

func TestEncode_MapsMetadataAndDedupesLists(t *testing.T) {
	meta := domain.Metadata{
		UniqueID:      "CAWD-895",
		OriginalTitle: "オリジナル",
		TitleCN:       "中文标题",
		Plot:          "plot",
		PlotCN:        "简介",
		Premiered:     "2025-01-02",
		Runtime:       120,
		Rating:        8.25,
		Studio:        []string{"S1", "S1", " "},
		Director:      []string{"D"},
		Genres:        []string{"z", "x", "x"},
		Tags:          []string{"t2", "t1"},
		Series:        []domain.Series{{Name: "Series"}},
		Actors:        []domain.Actor{{Name: "b"}, {Name: "a", Role: "主演"}, {Name: "b"}, {Name: " "}},
		Links:         []domain.Link{{Name: "JavBus", URL: "https://www.javbus.com/CAWD-895"}},
	}
	out := decode(t, meta)

	if out.Title != "CAWD-895 中文标题" {
		t.Fatalf("title 不一致：%q", out.Title)
	}
	if out.OriginalTitle != "オリジナル" || out.Plot != "简介" {
		t.Fatalf("originaltitle/plot 不一致：%q %q", out.OriginalTitle, out.Plot)
	}
	if out.SortTitle != "CAWD-895" || out.Num != "CAWD-895" || out.UniqueID.Value != "CAWD-895" || out.UniqueID.Type != "num" {
		t.Fatalf("sorttitle/num/uniqueid 不一致：%+v", out)
	}
	if out.Year != 2025 || out.Premiered != "2025-01-02" || out.Runtime != 120 {
		t.Fatalf("year/premiered/runtime 不一致：%d %q %d", out.Year, out.Premiered, out.Runtime)
	}
	if out.Rating != "8.2" && out.Rating != "8.3" {
		t.Fatalf("rating 不一致：%q", out.Rating)
	}
	if out.Country != DefaultCountry || out.MPAA != DefaultMPAA {
		t.Fatalf("country/mpaa 不一致：%q %q", out.Country, out.MPAA)
	}
	if out.Poster != "poster.jpg" || out.Fanart != "fanart.jpg" {
		t.Fatalf("poster/fanart 不一致：%q %q", out.Poster, out.Fanart)
	}
	if len(out.Studio) != 1 || out.Studio[0] != "S1" || len(out.Director) != 1 {
		t.Fatalf("studio/director 未去重：%v %v", out.Studio, out.Director)
	}
	if out.Set != "Series" || out.Website != "https://www.javbus.com/CAWD-895" {
		t.Fatalf("set/website 不一致：%q %q", out.Set, out.Website)
	}
	if len(out.Actors) != 2 || out.Actors[0].Name != "b" || out.Actors[0].Role != "b" || out.Actors[1].Role != "主演" {
		t.Fatalf("actors 未去重或 role 回退错误：%v", out.Actors)
	}
	if len(out.Genres) != 2 || out.Genres[0] != "z" || out.Genres[1] != "x" {
		t.Fatalf("genres 未按输入顺序去重：%v", out.Genres)
	}
	if len(out.Tags) != 2 || out.Tags[0] != "t2" {
		t.Fatalf("tags 顺序不一致：%v", out.Tags)
	}
}

func TestEncode_TitleFallback(t *testing.T) {
	out := decode(t, domain.Metadata{UniqueID: "CAWD-895"})
	if out.Title != "CAWD-895" {
		t.Fatalf("期望 title 回退到 uniqueid，实际=%q", out.Title)
	}
	if out.Year != 0 || out.Rating != "" {
		t.Fatalf("缺失字段不应输出：%d %q", out.Year, out.Rating)
	}

	out = decode(t, domain.Metadata{UniqueID: "ABP-001", OriginalTitle: "ABP-001 既に番号付き"})
	if out.Title != "ABP-001 既に番号付き" {
		t.Fatalf("已以 uniqueid 开头的标题不应重复前缀：%q", out.Title)
	}
}

func TestEncode_CountryOverride(t *testing.T) {
	out := decode(t, domain.Metadata{UniqueID: "X-1", OriginalTitle: "t", Country: "US"})
	if out.Country != "US" {
		t.Fatalf("country 应使用元数据值：%q", out.Country)
	}
}
