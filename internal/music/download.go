package music

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/keagan/clipbot/internal/media"
	"github.com/keagan/clipbot/pkg/util"
)

// Result is the outcome of one track download.
type Result struct {
	URL     string
	Path    string
	Skipped bool
	Err     error
}

// Downloader fetches background tracks at a bounded request rate.
type Downloader struct {
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
}

// NewDownloader creates a downloader allowing requestsPerSecond requests.
// Zero or less disables pacing.
func NewDownloader(logger zerolog.Logger, requestsPerSecond float64) *Downloader {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Downloader{
		logger:  logger.With().Str("component", "music").Logger(),
		client:  &http.Client{Timeout: 5 * time.Minute},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// TrackName is the file name used for the i-th (0-based) url.
func TrackName(i int, rawURL string) string {
	ext := ".mp3"
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" && media.HasExtension(e, media.AudioExtensions) {
			ext = e
		}
	}
	return fmt.Sprintf("track_%d%s", i+1, ext)
}

// Download fetches urls into dir. Tracks already present are skipped. A
// failed track does not stop the others; the returned error is only set
// for cancellation or an unusable dir.
func (d *Downloader) Download(ctx context.Context, urls []string, dir string) ([]Result, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("creating music dir: %w", err)
	}

	results := make([]Result, 0, len(urls))
	for i, u := range urls {
		res := Result{URL: u, Path: filepath.Join(dir, TrackName(i, u))}
		if util.FileExists(res.Path) {
			d.logger.Info().Str("track", res.Path).Msg("music track already exists, skipping")
			res.Skipped = true
			results = append(results, res)
			continue
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return results, err
		}

		d.logger.Info().Int("track", i+1).Str("url", u).Msg("downloading music track")
		if err := d.fetch(ctx, u, res.Path); err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			d.logger.Error().Err(err).Str("url", u).Msg("failed to download track")
			res.Err = err
		}
		results = append(results, res)
	}
	return results, nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	// sniff before writing anything
	head := make([]byte, 262)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	head = head[:n]
	if !filetype.IsAudio(head) {
		return fmt.Errorf("response is not audio (%s)", resp.Header.Get("Content-Type"))
	}

	part := util.PartPath(dest)
	f, err := os.Create(part)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, io.MultiReader(bytes.NewReader(head), resp.Body))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(part)
		return err
	}
	return util.Promote(part, dest)
}
