package media

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// VideoExtensions are the containers picked up by discovery.
var VideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".wmv", ".m4v", ".webm"}

// AudioExtensions are accepted as music tracks.
var AudioExtensions = []string{".mp3", ".wav", ".m4a", ".aac", ".flac", ".ogg"}

// Prober reads container metadata for a single file.
type Prober interface {
	ProbeAsset(ctx context.Context, path string) (Asset, error)
}

// DiscoverOptions configures asset enumeration
type DiscoverOptions struct {
	Recursive bool
	Prober    Prober
}

// Rejected is a file that looked like media but could not be used.
type Rejected struct {
	Path string
	Err  error
}

// HasExtension reports whether path ends in one of exts (case-insensitive).
func HasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// AssetID derives a stable identifier from the absolute path.
func AssetID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String()
}

// Discover enumerates video assets under root in lexical order.
func Discover(ctx context.Context, root string, opts DiscoverOptions) ([]Asset, []Rejected, error) {
	if opts.Prober == nil {
		return nil, nil, fmt.Errorf("prober is required")
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("input %s is not a directory", root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (!opts.Recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if HasExtension(path, VideoExtensions) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(paths)

	var (
		assets   []Asset
		rejected []Rejected
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return assets, rejected, err
		}

		if err := sniffVideo(path); err != nil {
			rejected = append(rejected, Rejected{Path: path, Err: &DecodeError{Path: path, Err: err}})
			continue
		}

		asset, err := opts.Prober.ProbeAsset(ctx, path)
		if err != nil {
			rejected = append(rejected, Rejected{Path: path, Err: &DecodeError{Path: path, Err: err}})
			continue
		}

		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			rel = "."
		}
		asset.RelDir = rel
		asset.Path = path
		asset.ID = AssetID(path)
		if st, err := os.Stat(path); err == nil {
			asset.ModTime = st.ModTime()
			asset.Size = st.Size()
		}
		assets = append(assets, asset)
	}

	AssignStems(assets)
	return assets, rejected, nil
}

// sniffVideo rejects files whose header identifies a non-video type.
// Unknown headers pass through so the prober has the final word.
func sniffVideo(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	if n == 0 {
		return fmt.Errorf("empty file")
	}
	head = head[:n]

	if filetype.IsVideo(head) {
		return nil
	}
	kind, _ := filetype.Match(head)
	if kind != filetype.Unknown {
		return fmt.Errorf("not a video container (detected %s)", kind.MIME.Value)
	}
	return nil
}
