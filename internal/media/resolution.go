package media

import "fmt"

// Resolution is an output size tag.
type Resolution string

const (
	Res480p     Resolution = "480p"
	Res720p     Resolution = "720p"
	Res1080p    Resolution = "1080p"
	ResOriginal Resolution = "original"
)

var resolutions = map[Resolution][2]int{
	Res480p:  {854, 480},
	Res720p:  {1280, 720},
	Res1080p: {1920, 1080},
}

// Resolutions lists the supported tags in ascending size.
func Resolutions() []Resolution {
	return []Resolution{Res480p, Res720p, Res1080p, ResOriginal}
}

// ParseResolution validates a tag.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(s)
	if r == ResOriginal {
		return r, nil
	}
	if _, ok := resolutions[r]; !ok {
		return "", fmt.Errorf("unknown resolution %q", s)
	}
	return r, nil
}

// Dimensions returns width and height; ok is false for "original".
func (r Resolution) Dimensions() (width, height int, ok bool) {
	d, ok := resolutions[r]
	return d[0], d[1], ok
}
