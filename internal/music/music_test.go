package music

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/clipbot/internal/media"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestLibraryExplicitTrack(t *testing.T) {
	dir := t.TempDir()
	track := filepath.Join(dir, "bed.mp3")
	touch(t, track)

	lib, err := NewLibrary(track, "")
	require.NoError(t, err)
	assert.Equal(t, track, lib.Pick("anything"))
	assert.Equal(t, []string{track}, lib.Tracks())
}

func TestLibraryMissingTrack(t *testing.T) {
	_, err := NewLibrary(filepath.Join(t.TempDir(), "missing.mp3"), "")
	var cfgErr *media.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "audio.music_track_path", cfgErr.Field)
}

func TestLibraryDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mp3", "a.wav", "notes.txt", "c.M4A"} {
		touch(t, filepath.Join(dir, name))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.mp3"), 0o755))

	lib, err := NewLibrary("", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.wav"),
		filepath.Join(dir, "b.mp3"),
		filepath.Join(dir, "c.M4A"),
	}, lib.Tracks())

	// deterministic per asset
	ids := []string{"one", "two", "three", "four", "five", "six"}
	seen := map[string]bool{}
	for _, id := range ids {
		first := lib.Pick(id)
		assert.Equal(t, first, lib.Pick(id))
		assert.Contains(t, lib.Tracks(), first)
		seen[first] = true
	}
	assert.NotEmpty(t, seen)
}

func TestLibraryEmpty(t *testing.T) {
	lib, err := NewLibrary("", filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Equal(t, "", lib.Pick("asset"))

	lib, err = NewLibrary("", "")
	require.NoError(t, err)
	assert.Empty(t, lib.Tracks())
}

func TestTrackName(t *testing.T) {
	assert.Equal(t, "track_1.mp3", TrackName(0, "https://cdn.example.com/audio/song.mp3"))
	assert.Equal(t, "track_2.wav", TrackName(1, "https://cdn.example.com/a/b.wav?sig=1"))
	assert.Equal(t, "track_3.mp3", TrackName(2, "https://cdn.example.com/stream"))
}

var mp3Payload = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 512)...)

func TestDownload(t *testing.T) {
	hits := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		switch r.URL.Path {
		case "/good.mp3":
			w.Write(mp3Payload)
		case "/page.mp3":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body>not found</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "music")
	d := NewDownloader(zerolog.Nop(), 0)
	urls := []string{srv.URL + "/good.mp3", srv.URL + "/page.mp3", srv.URL + "/gone.mp3"}

	results, err := d.Download(context.Background(), urls, dir)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	data, err := os.ReadFile(filepath.Join(dir, "track_1.mp3"))
	require.NoError(t, err)
	assert.Equal(t, mp3Payload, data)

	assert.Error(t, results[1].Err, "html is rejected")
	assert.NoFileExists(t, filepath.Join(dir, "track_2.mp3"))
	assert.NoFileExists(t, filepath.Join(dir, "track_2.part.mp3"))

	assert.Error(t, results[2].Err, "404 is an error")

	// second run skips the existing track
	results, err = d.Download(context.Background(), urls[:1], dir)
	require.NoError(t, err)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, 1, hits["/good.mp3"])
}

func TestDownloadCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(mp3Payload)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDownloader(zerolog.Nop(), 1).Download(ctx, []string{srv.URL + "/a.mp3"}, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}
