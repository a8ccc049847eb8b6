// Package png rasterizes QR symbols into PNG images.
package png

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/go-faster/errors"
	"github.com/skip2/go-qrcode"
)

// Render draws content as a size x size PNG at error-correction level M with
// a quiet zone of at least margin modules. Modules are whole pixels; the
// leftover pixels widen the quiet zone evenly.
func Render(content string, size, margin int) ([]byte, error) {
	if margin < 0 {
		return nil, errors.Errorf("negative margin %d", margin)
	}

	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, errors.Wrap(err, "encode QR symbol")
	}
	q.DisableBorder = true

	bitmap := q.Bitmap()
	modules := len(bitmap)
	total := modules + 2*margin

	scale := size / total
	if scale < 1 {
		scale = 1
		size = total
	}
	offset := (size - modules*scale) / 2

	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}

	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetGray(offset+x*scale+dx, offset+y*scale+dy, color.Gray{Y: 0})
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "encode PNG")
	}
	return buf.Bytes(), nil
}
