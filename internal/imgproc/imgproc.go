// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

// Package imgproc post-processes raw backend output: format conversion,
// resizing to requested dimensions, and best-effort background removal.
// This package is internal and should not be imported by external
// projects.
package imgproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// jpegQuality is used for all JPEG re-encoding.
const jpegQuality = 90

// Decode parses PNG, JPEG or WebP bytes.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Encode writes img in the given format. WebP encoding is not supported:
// backends that emit webp natively pass their bytes through untouched.
func Encode(img image.Image, format string) ([]byte, error) {
	buf := new(bytes.Buffer)
	switch format {
	case "png":
		if err := png.Encode(buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case "jpeg", "jpg":
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("encoding to %q is not supported", format)
	}
	return buf.Bytes(), nil
}

// Convert transcodes data into the target format, passing through when
// the source already matches.
func Convert(data []byte, target string) ([]byte, error) {
	img, format, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if format == target || (format == "jpeg" && target == "jpg") {
		return data, nil
	}
	return Encode(img, target)
}

// Resize scales img to width x height using bilinear interpolation.
func Resize(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

// Dimensions returns the pixel size of encoded image data.
func Dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// transparencyThreshold is the luminance above which a pixel is treated
// as background. A fixed heuristic with no accuracy guarantee; callers
// use it only as a best-effort fallback when the backend cannot produce
// native transparency.
const transparencyThreshold = 240

// RemoveBackground makes near-white pixels fully transparent.
func RemoveBackground(img image.Image) image.Image {
	bounds := img.Bounds()
	out := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if luminance(c) >= transparencyThreshold {
				c.A = 0
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}

// luminance approximates perceived brightness (ITU-R BT.601 weights).
func luminance(c color.NRGBA) int {
	return (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
}
