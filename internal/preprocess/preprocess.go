package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Brownie44l1/imgclass-api/internal/model"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned for bytes that do not decode to a non-empty image.
var ErrDecode = errors.New("cannot decode image")

// ImageNet channel statistics, RGB order.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

const channels = 3

// DefaultMaxPixels matches the decompression-bomb limit used by Pillow.
const DefaultMaxPixels = 89478485

// maxAspect caps the long side at this multiple of the short side before
// resizing, so the resized long edge never exceeds maxAspect*ShortEdge.
const maxAspect = 4

// Preprocessor turns encoded image bytes into a normalized (1,3,H,W) tensor:
// resize the shorter edge, center crop, scale to [0,1], normalize per channel.
type Preprocessor struct {
	ShortEdge int
	CropSize  int
	Mean      [3]float32
	Std       [3]float32
	// MaxPixels rejects images whose declared width*height exceeds it,
	// before any pixel buffer is allocated.
	MaxPixels int
}

func New() *Preprocessor {
	return &Preprocessor{
		ShortEdge: 255,
		CropSize:  224,
		Mean:      ImageNetMean,
		Std:       ImageNetStd,
		MaxPixels: DefaultMaxPixels,
	}
}

// Shape is the tensor shape Transform always produces.
func (p *Preprocessor) Shape() []int64 {
	return []int64{1, channels, int64(p.CropSize), int64(p.CropSize)}
}

func (p *Preprocessor) Transform(data []byte) (model.Tensor, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return model.Tensor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return model.Tensor{}, fmt.Errorf("%w: empty image", ErrDecode)
	}
	if p.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(p.MaxPixels) {
		return model.Tensor{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, p.MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return model.Tensor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return model.Tensor{}, fmt.Errorf("%w: empty image", ErrDecode)
	}

	resized := p.resizeShortEdge(limitAspect(img))
	cropped := imaging.CropCenter(resized, p.CropSize, p.CropSize)

	return model.Tensor{
		Shape: p.Shape(),
		Data:  p.normalize(cropped),
	}, nil
}

// limitAspect center-crops the long side to maxAspect times the short side.
// Images within that ratio are returned unchanged.
func limitAspect(img image.Image) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	switch {
	case w > h*maxAspect:
		return imaging.CropCenter(img, h*maxAspect, h)
	case h > w*maxAspect:
		return imaging.CropCenter(img, w, w*maxAspect)
	}
	return img
}

// resizeShortEdge scales img so that its shorter side equals ShortEdge. The
// longer side is truncated, keeping the aspect ratio.
func (p *Preprocessor) resizeShortEdge(img image.Image) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	short := p.ShortEdge
	if w <= h {
		return resize.Resize(uint(short), uint(short*h/w), img, resize.Bilinear)
	}
	return resize.Resize(uint(short*w/h), uint(short), img, resize.Bilinear)
}

// normalize lays out img as planar CHW float32 values of (v/255 - mean) / std.
// Alpha is dropped.
func (p *Preprocessor) normalize(img *image.NRGBA) []float32 {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	plane := width * height
	out := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+3]
			idx := y*width + x
			for c := 0; c < channels; c++ {
				v := float32(px[c]) / 255
				out[c*plane+idx] = (v - p.Mean[c]) / p.Std[c]
			}
		}
	}
	return out
}
