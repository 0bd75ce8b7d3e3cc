// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	// Decoders registered with image.Decode.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultImageQuality is the JPEG quality used when none is configured.
const DefaultImageQuality = 85

// ContentTypeJPEG is the media type of ImageTranscoder output.
const ContentTypeJPEG = "image/jpeg"

// ErrUnsupportedImage is returned for input that no registered decoder accepts.
var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

// ImageTranscoder converts images to JPEG.
type ImageTranscoder struct {
	Quality int
}

// NewImageTranscoder returns a transcoder at quality, or the default when
// quality is out of range.
func NewImageTranscoder(quality int) *ImageTranscoder {
	if quality < 1 || quality > 100 {
		quality = DefaultImageQuality
	}
	return &ImageTranscoder{Quality: quality}
}

// Transcode decodes data and re-encodes it as JPEG.
func (t *ImageTranscoder) Transcode(data []byte) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(src), &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg from %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

type opaquer interface {
	Opaque() bool
}

// flatten composites images with transparency or a palette onto white,
// since JPEG has no alpha channel.
func flatten(src image.Image) image.Image {
	_, paletted := src.(*image.Paletted)
	if o, ok := src.(opaquer); ok && o.Opaque() && !paletted {
		return src
	}

	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)
	return dst
}

// Reduction is the size saving from in to out, as a percentage of in.
func Reduction(in, out int) float64 {
	if in <= 0 {
		return 0
	}
	return float64(in-out) / float64(in) * 100
}
