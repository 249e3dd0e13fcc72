package features

import (
	"context"
	"image"
	"math"
	"time"

	"github.com/keagan/clipbot/internal/media"
)

// Window is the decoded content of one analysis window.
type Window struct {
	Index  int
	Start  time.Duration
	Length time.Duration
	// Frames are sampled video frames in presentation order.
	Frames []image.Image
	// Samples are mono PCM samples in [-1,1].
	Samples    []float64
	SampleRate int
}

// WindowStream yields consecutive windows. Next returns io.EOF after the
// last window; any other error means the asset could not be read further.
type WindowStream interface {
	Next() (Window, error)
	Close() error
}

// Decoder opens an asset as a stream of fixed-size windows.
type Decoder interface {
	Decode(ctx context.Context, asset media.Asset, window time.Duration) (WindowStream, error)
}

// DefaultWindow is used when the frame rate is unknown.
const DefaultWindow = 500 * time.Millisecond

// WindowFor returns a window of about half a second holding a whole number
// of frames at fps.
func WindowFor(fps float64) time.Duration {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return DefaultWindow
	}
	n := math.Max(1, math.Round(fps/2))
	return time.Duration(n / fps * float64(time.Second))
}

// WindowCount returns the number of windows spanning d.
func WindowCount(d, window time.Duration) int {
	if d <= 0 || window <= 0 {
		return 0
	}
	return int((d + window - 1) / window)
}
