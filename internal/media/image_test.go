// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package media

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTranscodeTransparentPNGFlattensToWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	// Left half opaque red, right half fully transparent.
	for y := 0; y < 64; y++ {
		for x := 0; x < 32; x++ {
			src.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}

	out, err := NewImageTranscoder(85).Transcode(encodePNG(t, src))
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), decoded.Bounds())

	r, g, b, _ := decoded.At(56, 32).RGBA()
	assert.Greater(t, r>>8, uint32(240), "transparent area becomes white")
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))

	r, g, _, _ = decoded.At(8, 32).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, g>>8, uint32(60))
}

func TestTranscodePalettedGIF(t *testing.T) {
	pal := color.Palette{color.Transparent, color.RGBA{B: 255, A: 255}}
	src := image.NewPaletted(image.Rect(0, 0, 8, 8), pal)
	for i := range src.Pix {
		src.Pix[i] = uint8(i % 2)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, src, nil))

	out, err := NewImageTranscoder(0).Transcode(buf.Bytes())
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestTranscodeOpaqueImagePassesThrough(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	assert.Same(t, image.Image(src), flatten(src))
}

func TestTranscodeRejectsGarbage(t *testing.T) {
	_, err := NewImageTranscoder(85).Transcode([]byte{0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestNewImageTranscoderDefaults(t *testing.T) {
	assert.Equal(t, DefaultImageQuality, NewImageTranscoder(0).Quality)
	assert.Equal(t, DefaultImageQuality, NewImageTranscoder(101).Quality)
	assert.Equal(t, 70, NewImageTranscoder(70).Quality)
}

func TestReduction(t *testing.T) {
	assert.InDelta(t, 75.0, Reduction(400, 100), 0.001)
	assert.InDelta(t, -50.0, Reduction(100, 150), 0.001)
	assert.Zero(t, Reduction(0, 10))
}
