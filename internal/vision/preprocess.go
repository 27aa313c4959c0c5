package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/domain"
)

// Preprocessor turns uploaded image bytes into the float32 tensor the model
// expects, following the layout and pixel scaling the metadata declares.
type Preprocessor struct {
	md *Metadata
}

func NewPreprocessor(md *Metadata) *Preprocessor {
	return &Preprocessor{md: md}
}

// Decode parses the upload and captures its metadata. Only JPEG and PNG pass;
// the format check catches files whose extension lies about their content.
func (p *Preprocessor) Decode(data []byte) (image.Image, domain.ImageMeta, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ImageMeta{}, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	if format != "jpeg" && format != "png" {
		return nil, domain.ImageMeta{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, format)
	}

	bounds := img.Bounds()
	meta := domain.ImageMeta{
		Format:    format,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		SizeBytes: int64(len(data)),
	}
	return img, meta, nil
}

// Tensorize resizes the image to the model's square input size and writes RGB
// values into a single contiguous buffer.
func (p *Preprocessor) Tensorize(img image.Image) []float32 {
	size := p.md.ImageSize
	resized := imaging.Resize(img, size, size, imaging.Lanczos)

	scale := float32(1)
	if p.md.Scale == ScaleUnit {
		scale = 1.0 / 255.0
	}

	tensor := make([]float32, p.md.TensorSize())
	if p.md.Layout == LayoutNCHW {
		plane := size * size
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				r, g, b, _ := resized.At(x, y).RGBA()
				i := y*size + x
				tensor[i] = float32(r>>8) * scale
				tensor[plane+i] = float32(g>>8) * scale
				tensor[2*plane+i] = float32(b>>8) * scale
			}
		}
		return tensor
	}

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			i := (y*size + x) * 3
			tensor[i] = float32(r>>8) * scale
			tensor[i+1] = float32(g>>8) * scale
			tensor[i+2] = float32(b>>8) * scale
		}
	}
	return tensor
}
