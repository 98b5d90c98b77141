package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/John-Robertt/photosort/internal/domain"
)

// ErrNoPreview 表示 DNG 内没有可用的内嵌 JPEG 预览。
var ErrNoPreview = errors.New("imgx: no embedded preview")

// Thumbnail 生成一张适合列表展示的 JPEG 预览图（长边不超过 size）。
//
// - JPEG：解码（按 EXIF Orientation 自动旋转）后等比缩放
// - DNG：只取 TIFF/EXIF IFD 中内嵌的 JPEG 预览，不解码 RAW 数据
//
// 输出固定为 JPEG。这里只读预览像素，不提取任何元数据字段。
func Thumbnail(r io.Reader, kind domain.Kind, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("预览尺寸无效：%d", size)
	}

	var src io.Reader
	switch kind {
	case domain.KindJPEG:
		src = r
	case domain.KindDNG:
		b, err := embeddedPreview(r)
		if err != nil {
			return nil, err
		}
		src = bytes.NewReader(b)
	default:
		return nil, fmt.Errorf("不支持的类型：%q", kind)
	}

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	return fit(img, size)
}

func embeddedPreview(r io.Reader) ([]byte, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPreview, err)
	}
	b, err := x.JpegThumbnail()
	if err != nil || len(b) == 0 {
		return nil, ErrNoPreview
	}
	return b, nil
}

func fit(img image.Image, size int) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}
	// 小图不放大。
	if b.Dx() > size || b.Dy() > size {
		img = imaging.Fit(img, size, size, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
