// Package imgx 处理附件合成时的图片：尺寸探测与从宽幅封面裁切海报。
package imgx

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png" // 封面不一定是 jpeg
)

// wideRatio 以上视为“横版封面”（左背右正的合成图），需要裁切出海报。
const wideRatio = 1.2

// Size 只解码图片头，返回宽高。
func Size(b []byte) (w, h int, err error) {
	if len(b) == 0 {
		return 0, 0, errors.New("图片为空")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// IsWide 判断图片是否为横版封面；无法解码时返回 false。
func IsWide(b []byte) bool {
	w, h, err := Size(b)
	if err != nil || h <= 0 {
		return false
	}
	return float64(w)/float64(h) >= wideRatio
}

// PosterFromCover 把横版封面裁切为右半边（正面海报），输出 JPEG。
//
// 约束：
// - 输入允许 JPEG/PNG
// - 保留原高度，宽度取 [w/2, w)
func PosterFromCover(cover []byte) ([]byte, error) {
	if len(cover) == 0 {
		return nil, errors.New("封面为空")
	}
	img, _, err := image.Decode(bytes.NewReader(cover))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}
	x0 := b.Min.X + b.Dx()/2
	srcRect := image.Rect(x0, b.Min.Y, b.Max.X, b.Max.Y)

	dst := image.NewRGBA(image.Rect(0, 0, srcRect.Dx(), srcRect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, srcRect.Min, draw.Src)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
