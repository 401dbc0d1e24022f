package skipdata

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"skipscan/internal/logging"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".avi": {}, ".mov": {}, ".m4v": {}, ".wmv": {},
	".flv": {}, ".webm": {}, ".ts": {}, ".mpg": {}, ".mpeg": {}, ".3gp": {},
	".ogv": {}, ".vob": {}, ".mts": {}, ".m2ts": {}, ".divx": {}, ".asf": {},
}

// IsVideo reports whether the path has a recognized video extension.
func IsVideo(path string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ListVideos returns the video files directly inside dir, sorted by name.
func ListVideos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() && IsVideo(entry.Name()) {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// CollectVideos walks dir recursively and returns every video file,
// sorted. Unreadable subtrees are skipped rather than failing the walk.
func CollectVideos(dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && IsVideo(path) {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out
}

// WarnOnMixedSet logs when the episode set looks like it spans shows or
// seasons. Detection still runs; shared segments across a mixed set are
// just unlikely to exist.
func WarnOnMixedSet(paths []string, log *slog.Logger) {
	if log == nil {
		log = logging.NewNop()
	}
	names := make([]string, len(paths))
	totalLen := 0
	for i, p := range paths {
		names[i] = filepath.Base(p)
		totalLen += len(names[i])
	}
	if len(names) >= 3 {
		prefix := commonPrefix(names)
		avgLen := float64(totalLen) / float64(len(names))
		if len(prefix) < 3 && avgLen > 10 {
			log.Warn("episode files do not share a common name prefix")
		}
	}

	seasons := make(map[int]struct{})
	for _, name := range names {
		if tag, ok := ParseEpisodeTag(name); ok {
			seasons[tag.Season] = struct{}{}
		}
	}
	if len(seasons) > 1 {
		list := make([]int, 0, len(seasons))
		for s := range seasons {
			list = append(list, s)
		}
		sort.Ints(list)
		log.Warn("episode set spans multiple seasons", logging.Any("seasons", list))
	}
}

func commonPrefix(names []string) string {
	if len(names) == 0 {
		return ""
	}
	prefix := names[0]
	for _, name := range names[1:] {
		for !strings.HasPrefix(name, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}
