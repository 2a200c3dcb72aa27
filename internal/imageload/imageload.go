// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package imageload opens poster images, normalizes them into a bitmap the
// completion API accepts, and encodes the result as a base64 payload.
package imageload

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/jdeng/goheif"

	"github.com/pdiddy/poster-to-markdown/pkg/types"
)

// Format identifies a supported poster image encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatHEIC Format = "heic"
)

const defaultJPEGQuality = 90

// extFormats maps lowercase file extensions to formats.
var extFormats = map[string]Format{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".heic": FormatHEIC,
	".heif": FormatHEIC,
}

// payloadMIME is the media type of the bytes sent for each source format.
// HEIC is transcoded to JPEG because the completion API does not accept it.
var payloadMIME = map[Format]string{
	FormatPNG:  "image/png",
	FormatJPEG: "image/jpeg",
	FormatHEIC: "image/jpeg",
}

// Payload is an encoded image ready for API submission.
type Payload struct {
	// Data is the base64 (standard encoding) payload.
	Data string

	// MIME is the media type of the decoded payload bytes.
	MIME string

	// Format is the source format the file was read as.
	Format Format

	// Width and Height are the payload dimensions after normalization.
	Width  int
	Height int

	// SourceBytes and PayloadBytes are the raw sizes before and after normalization.
	SourceBytes  int
	PayloadBytes int
}

// FormatOf returns the format for path's extension.
func FormatOf(path string) (Format, bool) {
	f, ok := extFormats[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// Supported reports whether path has a supported image extension.
func Supported(path string) bool {
	_, ok := FormatOf(path)
	return ok
}

// MIMEFor returns the payload media type produced for a file extension
// (with or without the leading dot).
func MIMEFor(ext string) (string, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	f, ok := extFormats[ext]
	if !ok {
		return "", false
	}
	return payloadMIME[f], true
}

// HEICDecoder decodes HEIC bytes into an image and returns any embedded EXIF block.
type HEICDecoder func(data []byte) (image.Image, []byte, error)

// Loader loads poster images. The zero value is ready to use.
type Loader struct {
	Config types.ImageConfig

	// DecodeHEIC overrides the HEIC codec. Nil uses goheif.
	DecodeHEIC HEICDecoder
}

// New returns a Loader with the given configuration.
func New(cfg types.ImageConfig) *Loader {
	return &Loader{Config: cfg}
}

// Load reads the image at path and returns its encoded payload. It fails
// with *UnsupportedFormatError for unrecognized extensions and *DecodeError
// when the file cannot be read or decoded.
func (l *Loader) Load(path string) (Payload, error) {
	format, ok := FormatOf(path)
	if !ok {
		return Payload{}, &UnsupportedFormatError{Path: path, Ext: filepath.Ext(path)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, &DecodeError{Path: path, Err: err}
	}
	if len(data) == 0 {
		return Payload{}, &DecodeError{Path: path, Err: fmt.Errorf("file is empty")}
	}

	raw, bounds, err := l.normalize(data, format)
	if err != nil {
		return Payload{}, &DecodeError{Path: path, Err: err}
	}

	p := Payload{
		Data:         base64.StdEncoding.EncodeToString(raw),
		MIME:         payloadMIME[format],
		Format:       format,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		SourceBytes:  len(data),
		PayloadBytes: len(raw),
	}

	log.WithFields(log.Fields{
		"file":    filepath.Base(path),
		"format":  format,
		"size":    humanize.Bytes(uint64(p.SourceBytes)),
		"payload": humanize.Bytes(uint64(p.PayloadBytes)),
		"dims":    fmt.Sprintf("%dx%d", p.Width, p.Height),
	}).Debug("image loaded")

	return p, nil
}

// normalize decodes data, applies EXIF orientation and downscaling, and
// returns the bytes to send. PNG and JPEG files that need no changes are
// passed through untouched.
func (l *Loader) normalize(data []byte, format Format) ([]byte, image.Rectangle, error) {
	var (
		img         image.Image
		orientation = 1
		passthrough bool
	)

	switch format {
	case FormatHEIC:
		decode := l.DecodeHEIC
		if decode == nil {
			decode = decodeHEIC
		}
		decoded, exifData, err := decode(data)
		if err != nil {
			return nil, image.Rectangle{}, fmt.Errorf("heic: %w", err)
		}
		img = decoded
		if len(exifData) > 0 {
			orientation = exifOrientation(exifData)
		}
	default:
		decoded, name, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, image.Rectangle{}, err
		}
		img = decoded
		// The declared MIME follows the extension, so a mislabeled file is re-encoded.
		passthrough = name == string(format)
		if format == FormatJPEG {
			orientation = exifOrientation(data)
		}
	}

	if orientation != 1 {
		img = orient(img, orientation)
		passthrough = false
	}
	if scaled, ok := downscale(img, l.Config.MaxDimension); ok {
		img = scaled
		passthrough = false
	}

	if passthrough {
		return data, img.Bounds(), nil
	}

	out, err := encode(img, format, l.quality())
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	return out, img.Bounds(), nil
}

func (l *Loader) quality() int {
	if l.Config.JPEGQuality <= 0 || l.Config.JPEGQuality > 100 {
		return defaultJPEGQuality
	}
	return l.Config.JPEGQuality
}

// encode writes img in the payload encoding for format.
func encode(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch payloadMIME[format] {
	case "image/png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// decodeHEIC decodes with goheif, which bundles libde265.
func decodeHEIC(data []byte) (image.Image, []byte, error) {
	img, err := goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	exifData, err := goheif.ExtractExif(bytes.NewReader(data))
	if err != nil {
		exifData = nil
	}
	return img, exifData, nil
}
