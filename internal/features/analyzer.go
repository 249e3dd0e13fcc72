package features

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"
)

// FrameSignals are the visual signals of one frame.
type FrameSignals struct {
	Luminance float64
	// Motion is the change from the previous frame, 0 for the first frame.
	Motion float64
	Face   float64
}

// FrameAnalyzer scores a video frame given the frame before it (nil for the
// first frame of an asset).
type FrameAnalyzer interface {
	Analyze(prev, cur image.Image) FrameSignals
}

// HeuristicAnalyzer measures frames on a small fixed grid: mean Rec.601
// luma, mean absolute luma change, and the share of skin-toned pixels as a
// face likelihood.
type HeuristicAnalyzer struct {
	Width  uint
	Height uint
	// SkinSaturation is the skin-pixel share that scores a face likelihood
	// of 1.
	SkinSaturation float64
}

var _ FrameAnalyzer = (*HeuristicAnalyzer)(nil)

// NewHeuristicAnalyzer creates an analyzer working at width x height.
func NewHeuristicAnalyzer(width, height int) *HeuristicAnalyzer {
	if width <= 0 || height <= 0 {
		width, height = 160, 90
	}
	return &HeuristicAnalyzer{
		Width:          uint(width),
		Height:         uint(height),
		SkinSaturation: 0.25,
	}
}

func (h *HeuristicAnalyzer) Fingerprint() string {
	return fmt.Sprintf("heuristic:%dx%d:skin=%g", h.Width, h.Height, h.SkinSaturation)
}

func (h *HeuristicAnalyzer) Analyze(prev, cur image.Image) FrameSignals {
	luma, skin := h.measure(cur)

	var sig FrameSignals
	var sum float64
	for _, l := range luma {
		sum += l
	}
	sig.Luminance = sum / float64(len(luma))
	sig.Face = math.Min(1, skin/h.SkinSaturation)

	if prev != nil {
		before, _ := h.measure(prev)
		var diff float64
		for i := range luma {
			diff += math.Abs(luma[i] - before[i])
		}
		sig.Motion = diff / float64(len(luma))
	}
	return sig
}

// measure returns per-pixel luma in [0,1] on the analysis grid and the share
// of skin-toned pixels.
func (h *HeuristicAnalyzer) measure(img image.Image) ([]float64, float64) {
	small := img
	if b := img.Bounds(); uint(b.Dx()) != h.Width || uint(b.Dy()) != h.Height {
		small = resize.Resize(h.Width, h.Height, img, resize.Bilinear)
	}

	bounds := small.Bounds()
	luma := make([]float64, 0, bounds.Dx()*bounds.Dy())
	var skin int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			r8, g8, b8 := float64(r>>8), float64(g>>8), float64(b>>8)
			luma = append(luma, (0.299*r8+0.587*g8+0.114*b8)/255)
			if isSkin(r8, g8, b8) {
				skin++
			}
		}
	}
	if len(luma) == 0 {
		return []float64{0}, 0
	}
	return luma, float64(skin) / float64(len(luma))
}

// isSkin is the YCbCr skin cluster from Chai and Ngan.
func isSkin(r, g, b float64) bool {
	cb := 128 - 0.168736*r - 0.331264*g + 0.5*b
	cr := 128 + 0.5*r - 0.418688*g - 0.081312*b
	return cb >= 77 && cb <= 127 && cr >= 133 && cr <= 173
}
