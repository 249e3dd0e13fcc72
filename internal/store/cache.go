package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/clipbot/internal/features"
	"github.com/keagan/clipbot/internal/media"
)

// CachedSource serves frames from the store and falls back to src. Only
// complete extractions are written back.
type CachedSource struct {
	logger zerolog.Logger
	src    features.Source
	store  *Store
}

var _ features.Source = (*CachedSource)(nil)

// NewCachedSource wraps src with the frame cache in st.
func NewCachedSource(logger zerolog.Logger, src features.Source, st *Store) *CachedSource {
	return &CachedSource{
		logger: logger.With().Str("component", "cache").Logger(),
		src:    src,
		store:  st,
	}
}

func (c *CachedSource) WindowFor(asset media.Asset) time.Duration {
	return c.src.WindowFor(asset)
}

func (c *CachedSource) Fingerprint() string {
	return c.src.Fingerprint()
}

// Extract serves frames cached under the same window and fingerprint, so a
// settings change re-extracts.
func (c *CachedSource) Extract(ctx context.Context, asset media.Asset) ([]media.FeatureFrame, error) {
	key := FrameKey{Window: c.src.WindowFor(asset), Analysis: c.src.Fingerprint()}

	frames, ok, err := c.store.LoadFrames(asset, key)
	switch {
	case err != nil:
		c.logger.Warn().Err(err).Str("asset", asset.Path).Msg("cache read failed")
	case ok:
		c.logger.Debug().Str("asset", asset.Path).Int("windows", len(frames)).Msg("cache hit")
		return frames, nil
	}

	frames, err = c.src.Extract(ctx, asset)
	if err != nil {
		return frames, err
	}
	if err := c.store.SaveFrames(asset, key, frames); err != nil {
		c.logger.Warn().Err(err).Str("asset", asset.Path).Msg("cache write failed")
	}
	return frames, nil
}
