// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package imaging decodes photos sent by the field app and produces the
// downsized JPEG previews served to dashboards.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"

	// Registered decoders for image.Decode.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Preview limits used by the image proxy.
const (
	PreviewMaxWidth  = 800
	PreviewMaxHeight = 600
	PreviewQuality   = 85
)

var ErrEmptyImage = errors.New("empty image data")

// DecodeDataURL returns the raw bytes of a base64 image, accepting both bare
// base64 and "data:image/...;base64," URLs.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:image/") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data url")
		}
		s = payload
	}
	if s == "" {
		return nil, ErrEmptyImage
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients drop padding.
		if b2, err2 := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err2 == nil {
			return b2, nil
		}
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return b, nil
}

// FitSize returns the dimensions of a w×h image scaled down to fit inside
// maxW×maxH with its aspect ratio kept. Smaller images are not enlarged.
func FitSize(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	rw := float64(maxW) / float64(w)
	rh := float64(maxH) / float64(h)
	ratio := min(rw, rh)
	if ratio >= 1 {
		return w, h
	}
	nw, nh := int(float64(w)*ratio), int(float64(h)*ratio)
	return max(nw, 1), max(nh, 1)
}

// ToJPEG decodes data, scales it to fit maxW×maxH and encodes it as JPEG.
func ToJPEG(data []byte, maxW, maxH, quality int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	nw, nh := FitSize(b.Dx(), b.Dy(), maxW, maxH)

	// Flatten onto white so transparent PNGs do not turn black.
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if nw == b.Dx() && nh == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// Preview converts data into a dashboard preview. If the bytes cannot be
// processed the original data is returned unchanged.
func Preview(data []byte) []byte {
	out, err := ToJPEG(data, PreviewMaxWidth, PreviewMaxHeight, PreviewQuality)
	if err != nil {
		return data
	}
	return out
}
