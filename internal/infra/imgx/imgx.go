package imgx

import (
	"bytes"
	"errors"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // 豆瓣新封面多为 webp
)

// Quality 是缩略图的 JPEG 质量。
const Quality = 85

// Thumbnail 把海报缩放到指定宽度（保持宽高比），并编码为 JPEG。
//
// 约束：
// - 输入允许是 JPEG/PNG/GIF/WebP
// - 输出固定为 JPEG
// - 原图不比 width 宽时不放大，只转码
func Thumbnail(data []byte, width int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("图片为空")
	}
	if width <= 0 {
		return nil, errors.New("宽度必须为正数")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}

	if b.Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(Quality)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
