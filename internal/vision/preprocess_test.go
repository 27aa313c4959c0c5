package vision

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/domain"
)

func testMetadata(size int, layout, scale string) *Metadata {
	md := &Metadata{
		InputName:   "input",
		OutputName:  "features",
		OutputShape: []int64{1, 8},
		ImageSize:   size,
		Layout:      layout,
		Scale:       scale,
	}
	if layout == LayoutNCHW {
		md.InputShape = []int64{1, 3, int64(size), int64(size)}
	} else {
		md.InputShape = []int64{1, int64(size), int64(size), 3}
	}
	return md
}

func solidImage(w, h int, c color.NRGBA) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestDecodePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(32, 16, color.NRGBA{R: 10, G: 20, B: 30, A: 255})); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	data := buf.Bytes()

	p := NewPreprocessor(testMetadata(4, LayoutNHWC, ScaleRaw))
	img, meta, err := p.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img == nil {
		t.Fatal("Decode returned nil image")
	}
	if meta.Format != "png" {
		t.Errorf("format = %q, want png", meta.Format)
	}
	if meta.Width != 32 || meta.Height != 16 {
		t.Errorf("dimensions = %dx%d, want 32x16", meta.Width, meta.Height)
	}
	if meta.SizeBytes != int64(len(data)) {
		t.Errorf("size = %d, want %d", meta.SizeBytes, len(data))
	}
}

func TestDecodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solidImage(24, 24, color.NRGBA{R: 200, G: 100, B: 50, A: 255}), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}

	p := NewPreprocessor(testMetadata(4, LayoutNHWC, ScaleRaw))
	_, meta, err := p.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if meta.Format != "jpeg" {
		t.Errorf("format = %q, want jpeg", meta.Format)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	p := NewPreprocessor(testMetadata(4, LayoutNHWC, ScaleRaw))
	_, _, err := p.Decode([]byte("not an image at all"))
	if !errors.Is(err, domain.ErrInvalidImage) {
		t.Errorf("err = %v, want ErrInvalidImage", err)
	}
}

func TestDecodeRejectsDisguisedFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, solidImage(8, 8, color.NRGBA{R: 1, G: 2, B: 3, A: 255}), nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}

	p := NewPreprocessor(testMetadata(4, LayoutNHWC, ScaleRaw))
	_, _, err := p.Decode(buf.Bytes())
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestTensorizeNHWCRaw(t *testing.T) {
	size := 4
	p := NewPreprocessor(testMetadata(size, LayoutNHWC, ScaleRaw))

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 100, G: 150, B: 200, A: 255})
		}
	}
	img.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{B: 255, A: 255})

	tensor := p.Tensorize(img)
	if len(tensor) != size*size*3 {
		t.Fatalf("tensor length = %d, want %d", len(tensor), size*size*3)
	}

	// pixel (0,0): interleaved RGB, raw 0-255 values
	if tensor[0] != 100 || tensor[1] != 150 || tensor[2] != 200 {
		t.Errorf("pixel (0,0) = [%v %v %v], want [100 150 200]", tensor[0], tensor[1], tensor[2])
	}
	// pixel (1,0) is pure green
	if tensor[3] != 0 || tensor[4] != 255 || tensor[5] != 0 {
		t.Errorf("pixel (1,0) = [%v %v %v], want [0 255 0]", tensor[3], tensor[4], tensor[5])
	}
	// pixel (0,1) is pure blue, one full row later
	i := size * 3
	if tensor[i] != 0 || tensor[i+1] != 0 || tensor[i+2] != 255 {
		t.Errorf("pixel (0,1) = [%v %v %v], want [0 0 255]", tensor[i], tensor[i+1], tensor[i+2])
	}
}

func TestTensorizeNCHWUnit(t *testing.T) {
	size := 4
	p := NewPreprocessor(testMetadata(size, LayoutNCHW, ScaleUnit))

	tensor := p.Tensorize(solidImage(size, size, color.NRGBA{R: 51, G: 102, B: 255, A: 255}))
	if len(tensor) != 3*size*size {
		t.Fatalf("tensor length = %d, want %d", len(tensor), 3*size*size)
	}

	plane := size * size
	wantR := float64(51) / 255
	wantG := float64(102) / 255
	wantB := float64(255) / 255
	for i := 0; i < plane; i++ {
		if math.Abs(float64(tensor[i])-wantR) > 1e-6 {
			t.Fatalf("red plane value %v, want %v", tensor[i], wantR)
		}
		if math.Abs(float64(tensor[plane+i])-wantG) > 1e-6 {
			t.Fatalf("green plane value %v, want %v", tensor[plane+i], wantG)
		}
		if math.Abs(float64(tensor[2*plane+i])-wantB) > 1e-6 {
			t.Fatalf("blue plane value %v, want %v", tensor[2*plane+i], wantB)
		}
	}
}

func TestTensorizeResizesToModelInput(t *testing.T) {
	size := 4
	p := NewPreprocessor(testMetadata(size, LayoutNHWC, ScaleRaw))

	// 32x16 source must come out as a size*size tensor
	tensor := p.Tensorize(solidImage(32, 16, color.NRGBA{R: 80, G: 80, B: 80, A: 255}))
	if len(tensor) != size*size*3 {
		t.Fatalf("tensor length = %d, want %d", len(tensor), size*size*3)
	}
	for i, v := range tensor {
		if math.Abs(float64(v)-80) > 1.0 {
			t.Fatalf("tensor[%d] = %v, want ~80", i, v)
		}
	}
}
