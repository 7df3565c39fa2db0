package ingestion_engine

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/ledongthuc/pdf"
)

var errUnsupportedImage = errors.New("unsupported image encoding")

// maxImagePixels guards against absurd Width/Height entries.
const maxImagePixels = 1 << 26

// rawImage is an uncompressed 8-bit sample buffer as stored in an image XObject.
type rawImage struct {
	width, height int
	components    int
	samples       []byte
}

// encodeXObjectImage decodes an image XObject's samples and re-encodes them as PNG.
func encodeXObjectImage(x pdf.Value) ([]byte, error) {
	filter := x.Key("Filter")
	if filter.Kind() == pdf.Array {
		if filter.Len() != 1 {
			return nil, fmt.Errorf("%w: %d chained filters", errUnsupportedImage, filter.Len())
		}
		filter = filter.Index(0)
	}
	if name := filter.Name(); name != "" && name != "FlateDecode" {
		return nil, fmt.Errorf("%w: filter %s", errUnsupportedImage, name)
	}
	if bpc := x.Key("BitsPerComponent").Int64(); bpc != 8 {
		return nil, fmt.Errorf("%w: %d bits per component", errUnsupportedImage, bpc)
	}
	comps, err := colorComponents(x.Key("ColorSpace"))
	if err != nil {
		return nil, err
	}

	samples, err := readStream(x)
	if err != nil {
		return nil, err
	}
	return encodePNG(rawImage{
		width:      int(x.Key("Width").Int64()),
		height:     int(x.Key("Height").Int64()),
		components: comps,
		samples:    samples,
	})
}

func colorComponents(cs pdf.Value) (int, error) {
	if cs.Kind() == pdf.Array && cs.Len() == 2 && cs.Index(0).Name() == "ICCBased" {
		return int(cs.Index(1).Key("N").Int64()), nil
	}
	switch cs.Name() {
	case "DeviceGray", "CalGray":
		return 1, nil
	case "DeviceRGB", "CalRGB":
		return 3, nil
	case "DeviceCMYK":
		return 4, nil
	}
	return 0, fmt.Errorf("%w: color space %v", errUnsupportedImage, cs)
}

func readStream(v pdf.Value) (data []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", errUnsupportedImage, rec)
		}
	}()
	rc := v.Reader()
	defer rc.Close()
	return io.ReadAll(rc)
}

// encodePNG converts 8-bit Gray, RGB or CMYK samples to a PNG.
func encodePNG(r rawImage) ([]byte, error) {
	if r.width <= 0 || r.height <= 0 || r.width*r.height > maxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d", errUnsupportedImage, r.width, r.height)
	}
	switch r.components {
	case 1, 3, 4:
	default:
		return nil, fmt.Errorf("%w: %d components", errUnsupportedImage, r.components)
	}
	if need := r.width * r.height * r.components; len(r.samples) < need {
		return nil, fmt.Errorf("image data truncated: have %d bytes, need %d", len(r.samples), need)
	}

	var img image.Image
	rect := image.Rect(0, 0, r.width, r.height)
	switch r.components {
	case 1:
		g := image.NewGray(rect)
		copy(g.Pix, r.samples[:r.width*r.height])
		img = g
	case 3:
		rgba := image.NewNRGBA(rect)
		for i, j := 0, 0; i < r.width*r.height; i, j = i+1, j+3 {
			rgba.Pix[i*4+0] = r.samples[j]
			rgba.Pix[i*4+1] = r.samples[j+1]
			rgba.Pix[i*4+2] = r.samples[j+2]
			rgba.Pix[i*4+3] = 0xff
		}
		img = rgba
	case 4:
		rgba := image.NewNRGBA(rect)
		for i, j := 0, 0; i < r.width*r.height; i, j = i+1, j+4 {
			cr, cg, cb := color.CMYKToRGB(r.samples[j], r.samples[j+1], r.samples[j+2], r.samples[j+3])
			rgba.Pix[i*4+0] = cr
			rgba.Pix[i*4+1] = cg
			rgba.Pix[i*4+2] = cb
			rgba.Pix[i*4+3] = 0xff
		}
		img = rgba
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
