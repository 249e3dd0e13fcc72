package music

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"

	"github.com/keagan/clipbot/internal/media"
)

// Library chooses the background track for each asset.
type Library struct {
	track  string
	tracks []string
}

// NewLibrary uses track for every asset when set; otherwise it offers the
// audio files directly inside dir. A missing dir is an empty library.
func NewLibrary(track, dir string) (*Library, error) {
	if track != "" {
		if _, err := os.Stat(track); err != nil {
			return nil, &media.ConfigurationError{Field: "audio.music_track_path", Reason: err.Error()}
		}
		return &Library{track: track, tracks: []string{track}}, nil
	}

	lib := &Library{}
	if dir == "" {
		return lib, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return lib, nil
		}
		return nil, fmt.Errorf("reading music dir: %w", err)
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if media.HasExtension(path, media.AudioExtensions) && isFile(path) {
			lib.tracks = append(lib.tracks, path)
		}
	}
	sort.Strings(lib.tracks)
	return lib, nil
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// Tracks lists the available tracks in order.
func (l *Library) Tracks() []string {
	return append([]string(nil), l.tracks...)
}

// Pick returns the track for assetID, or "" when there is no music. The
// choice depends only on the asset id and the track list.
func (l *Library) Pick(assetID string) string {
	switch len(l.tracks) {
	case 0:
		return ""
	case 1:
		return l.tracks[0]
	}
	h := fnv.New32a()
	h.Write([]byte(assetID))
	return l.tracks[h.Sum32()%uint32(len(l.tracks))]
}
