package capture

import (
	"bytes"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/MrCodeEU/faceauth/pkg/camera"
)

// preview renders the frame as a PNG scaled to the configured preview size.
// Frames that cannot be decoded are returned as-is.
func (p *Pipeline) preview(frame camera.Frame) []byte {
	raw := append([]byte(nil), frame.Data...)

	img, err := frame.ToImage()
	if err != nil {
		p.log.WithError(err).Debug("Preview decode failed, keeping raw frame")
		return raw
	}

	out, err := encodePreview(img, p.width, p.height)
	if err != nil {
		p.log.WithError(err).Debug("Preview encode failed, keeping raw frame")
		return raw
	}
	return out
}

func encodePreview(img image.Image, width, height int) ([]byte, error) {
	src := img
	if width > 0 && height > 0 {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
