package skipdata

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// maxKeyLength bounds normalized keys so pathological filenames cannot
// bloat the JSON file.
const maxKeyLength = 120

var (
	separatorRe = regexp.MustCompile("[ \t_.\\-–—:]+")
	invalidRe   = regexp.MustCompile(`[^a-z0-9.]`)
	dotRunRe    = regexp.MustCompile(`\.{2,}`)

	episodeTagRes = []*regexp.Regexp{
		regexp.MustCompile(`[Ss](\d+)[.\s]*[Ee](\d+)`),
		regexp.MustCompile(`(\d+)[Xx](\d+)`),
		regexp.MustCompile(`[Ss](\d+)\s*-\s*[Ee](\d+)`),
	}
)

// Key returns the identifier an episode is stored under in skip data.
// The normalization must stay in lockstep with the playback script that
// reads the file: lowercase stem, separators collapsed to single dots,
// non-alphanumerics stripped, long stems truncated. With useFullPath the
// absolute path is used verbatim so identically named episodes of
// different shows can coexist.
func Key(path string, useFullPath bool) string {
	if useFullPath {
		abs, err := filepath.Abs(path)
		if err != nil {
			return path
		}
		return abs
	}

	stem := filepath.Base(path)
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	stem = strings.ToLower(stem)
	stem = separatorRe.ReplaceAllString(stem, ".")
	stem = invalidRe.ReplaceAllString(stem, "")
	stem = dotRunRe.ReplaceAllString(stem, ".")
	stem = strings.Trim(stem, ".")
	if len(stem) > maxKeyLength {
		stem = stem[:maxKeyLength-3] + "..."
	}
	return stem
}

// EpisodeTag is a parsed season/episode marker such as S01E04 or 1x04.
type EpisodeTag struct {
	Season  int
	Episode int
}

// ParseEpisodeTag extracts the first season/episode marker from a name.
func ParseEpisodeTag(name string) (EpisodeTag, bool) {
	for _, re := range episodeTagRes {
		if m := re.FindStringSubmatch(name); m != nil {
			season, err1 := strconv.Atoi(m[1])
			ep, err2 := strconv.Atoi(m[2])
			if err1 == nil && err2 == nil {
				return EpisodeTag{Season: season, Episode: ep}, true
			}
		}
	}
	return EpisodeTag{}, false
}

// MatchEpisodeKey pairs a video name with the best entry from an imported
// timestamp file. Season/episode tags win; otherwise the longest key whose
// normalized form contains (or is contained by) the video's is taken.
func MatchEpisodeKey(videoName string, keys []string) (string, bool) {
	videoNorm := Key(videoName, false)
	videoTag, hasTag := ParseEpisodeTag(strings.ToLower(videoName))
	if hasTag {
		for _, key := range keys {
			if tag, ok := ParseEpisodeTag(strings.ToLower(key)); ok && tag == videoTag {
				return key, true
			}
		}
	}

	byLength := make([]string, len(keys))
	copy(byLength, keys)
	sort.SliceStable(byLength, func(i, j int) bool { return len(byLength[i]) > len(byLength[j]) })
	for _, key := range byLength {
		if len(key) < 3 {
			continue
		}
		keyNorm := Key(key, false)
		if strings.Contains(videoNorm, keyNorm) || strings.Contains(keyNorm, videoNorm) {
			return key, true
		}
	}

	if hasTag {
		for _, key := range keys {
			if tag, ok := ParseEpisodeTag(key); ok && tag == videoTag {
				return key, true
			}
		}
	}
	return "", false
}
