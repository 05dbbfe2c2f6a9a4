package imgx

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// halfCover 构造“左黑右白”的横版封面。
func halfCover(t *testing.T, w, h int) []byte {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				src.Set(x, y, color.RGBA{0, 0, 0, 255})
			} else {
				src.Set(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("encode cover jpeg 失败：%v", err)
	}
	return buf.Bytes()
}

func TestPosterFromCover(t *testing.T) {
	const (
		w = 200
		h = 100
	)
	out, err := PosterFromCover(halfCover(t, w, h))
	if err != nil {
		t.Fatalf("PosterFromCover 失败：%v", err)
	}

	got, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode poster jpeg 失败：%v", err)
	}
	gb := got.Bounds()
	if gb.Dx() != w/2 || gb.Dy() != h {
		t.Fatalf("尺寸不符合预期：got=%dx%d want=%dx%d", gb.Dx(), gb.Dy(), w/2, h)
	}

	// JPEG 有损，中心像素接近白色即可。
	c := color.RGBAModel.Convert(got.At(gb.Min.X+gb.Dx()/2, gb.Min.Y+gb.Dy()/2)).(color.RGBA)
	if c.R < 200 || c.G < 200 || c.B < 200 {
		t.Fatalf("裁切区域不符合预期：中心像素=%v（期望接近白色）", c)
	}
}

func TestPosterFromCover_Empty(t *testing.T) {
	if _, err := PosterFromCover(nil); err == nil {
		t.Fatalf("期望空输入返回错误")
	}
}

func TestIsWide(t *testing.T) {
	if !IsWide(halfCover(t, 200, 100)) {
		t.Fatalf("200x100 应视为横版")
	}
	if IsWide(halfCover(t, 100, 150)) {
		t.Fatalf("100x150 不应视为横版")
	}
	if IsWide([]byte("not an image")) {
		t.Fatalf("无法解码时应返回 false")
	}
}
