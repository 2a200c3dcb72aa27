// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package imageload

import (
	"bytes"
	"image"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

var exifHeader = []byte("Exif\x00\x00")

// exifOrientation returns the EXIF orientation tag (1-8) found in data,
// which may be a full JPEG file or a bare EXIF block. It returns 1 when the
// tag is absent or unreadable.
func exifOrientation(data []byte) int {
	data = bytes.TrimPrefix(data, exifHeader)
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// orient returns img transformed so that it displays upright for the given
// EXIF orientation.
func orient(img image.Image, orientation int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// dest maps a source offset to its destination coordinate.
	var dest func(x, y int) (int, int)
	out := image.Rect(0, 0, w, h)
	switch orientation {
	case 2: // mirror horizontal
		dest = func(x, y int) (int, int) { return w - 1 - x, y }
	case 3: // rotate 180
		dest = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case 4: // mirror vertical
		dest = func(x, y int) (int, int) { return x, h - 1 - y }
	case 5: // transpose
		out = image.Rect(0, 0, h, w)
		dest = func(x, y int) (int, int) { return y, x }
	case 6: // rotate 90 clockwise
		out = image.Rect(0, 0, h, w)
		dest = func(x, y int) (int, int) { return h - 1 - y, x }
	case 7: // transverse
		out = image.Rect(0, 0, h, w)
		dest = func(x, y int) (int, int) { return h - 1 - y, w - 1 - x }
	case 8: // rotate 90 counter-clockwise
		out = image.Rect(0, 0, h, w)
		dest = func(x, y int) (int, int) { return y, w - 1 - x }
	default:
		return img
	}

	dst := image.NewRGBA(out)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := dest(x, y)
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// downscale shrinks img so its longest side is at most maxDim, preserving
// the aspect ratio. It reports false when no scaling was needed.
func downscale(img image.Image, maxDim int) (image.Image, bool) {
	if maxDim <= 0 {
		return img, false
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img, false
	}

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = h * maxDim / w
	} else {
		nh = maxDim
		nw = w * maxDim / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, true
}
