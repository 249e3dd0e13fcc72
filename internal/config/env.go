package config

import (
	"os"
	"strconv"
	"strings"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		v = strings.ToLower(v)
		return v == "1" || v == "true" || v == "yes"
	}
	return def
}

// applyEnv overlays CLIPBOT_* variables on top of file values.
func applyEnv(c *Config) {
	c.Concurrency = getenvInt("CLIPBOT_CONCURRENCY", c.Concurrency)
	c.TempDir = getenv("CLIPBOT_TEMP_DIR", c.TempDir)

	c.Log.Level = strings.ToLower(getenv("CLIPBOT_LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(getenv("CLIPBOT_LOG_FORMAT", c.Log.Format))
	c.Log.File = getenv("CLIPBOT_LOG_FILE", c.Log.File)

	c.Cache.Enabled = getenvBool("CLIPBOT_CACHE", c.Cache.Enabled)
	c.Cache.Path = getenv("CLIPBOT_CACHE_PATH", c.Cache.Path)

	c.FFmpeg.BinaryPath = getenv("CLIPBOT_FFMPEG", c.FFmpeg.BinaryPath)
	c.FFmpeg.ProbePath = getenv("CLIPBOT_FFPROBE", c.FFmpeg.ProbePath)
	c.FFmpeg.Threads = getenvInt("CLIPBOT_FFMPEG_THREADS", c.FFmpeg.Threads)

	c.Audio.MusicTrackPath = getenv("CLIPBOT_MUSIC", c.Audio.MusicTrackPath)
	c.Audio.TargetLUFS = getenvFloat("CLIPBOT_TARGET_LUFS", c.Audio.TargetLUFS)
	c.Music.Dir = getenv("CLIPBOT_MUSIC_DIR", c.Music.Dir)

	c.Output.Resolution = getenv("CLIPBOT_RESOLUTION", c.Output.Resolution)
}
