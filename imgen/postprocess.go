package imgen

import (
	"fmt"

	"github.com/BaSui01/imageflow/internal/imgproc"
	"github.com/BaSui01/imageflow/types"
)

// PostProcess normalizes raw backend image bytes to the request:
// format conversion, best-effort transparency, and resizing to the
// requested dimensions. nativeFormat is the encoding the backend
// produced; nativeTransparent reports whether the backend already
// rendered a transparent background.
//
// Requests for webp output are honored only when the backend produced
// webp natively; there is no local webp encoder.
func PostProcess(data []byte, req *GenerationRequest, nativeFormat Format, nativeTransparent bool) ([]byte, Format, Dimensions, error) {
	outFormat := req.Format
	if outFormat == "" {
		outFormat = FormatPNG
	}
	// Transparency needs an alpha channel; JPEG cannot carry one.
	if req.Transparent && outFormat == FormatJPEG {
		outFormat = FormatPNG
	}

	needsTransparency := req.Transparent && !nativeTransparent
	needsResize := false
	if req.Dimensions != nil {
		w, h, err := imgproc.Dimensions(data)
		if err != nil {
			return nil, "", Dimensions{}, types.NewError(types.ErrInvalidResponse,
				fmt.Sprintf("unreadable image data: %v", err)).WithCause(err)
		}
		needsResize = w != req.Dimensions.Width || h != req.Dimensions.Height
	}

	if outFormat == FormatWebP {
		if nativeFormat != FormatWebP || needsTransparency || needsResize {
			return nil, "", Dimensions{}, types.NewError(types.ErrFeatureNotAvailable,
				"webp output requires a backend that renders it natively")
		}
		w, h, err := imgproc.Dimensions(data)
		if err != nil {
			return nil, "", Dimensions{}, types.NewError(types.ErrInvalidResponse,
				fmt.Sprintf("unreadable image data: %v", err)).WithCause(err)
		}
		return data, FormatWebP, Dimensions{Width: w, Height: h}, nil
	}

	if !needsTransparency && !needsResize && nativeFormat == outFormat {
		w, h, err := imgproc.Dimensions(data)
		if err != nil {
			return nil, "", Dimensions{}, types.NewError(types.ErrInvalidResponse,
				fmt.Sprintf("unreadable image data: %v", err)).WithCause(err)
		}
		return data, outFormat, Dimensions{Width: w, Height: h}, nil
	}

	img, _, err := imgproc.Decode(data)
	if err != nil {
		return nil, "", Dimensions{}, types.NewError(types.ErrInvalidResponse,
			fmt.Sprintf("undecodable image data: %v", err)).WithCause(err)
	}

	if needsResize {
		img = imgproc.Resize(img, req.Dimensions.Width, req.Dimensions.Height)
	}
	if needsTransparency {
		img = imgproc.RemoveBackground(img)
	}

	out, err := imgproc.Encode(img, string(outFormat))
	if err != nil {
		return nil, "", Dimensions{}, types.NewError(types.ErrGenerationFailed,
			fmt.Sprintf("re-encoding image: %v", err)).WithCause(err)
	}
	bounds := img.Bounds()
	return out, outFormat, Dimensions{Width: bounds.Dx(), Height: bounds.Dy()}, nil
}
