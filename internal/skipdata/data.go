package skipdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"skipscan/internal/fpcache"
	"skipscan/internal/logging"
)

// Span is a [Start, End) segment in absolute episode seconds.
type Span struct {
	Start float64
	End   float64
}

// Results maps episode paths to their segments by type.
type Results map[string]map[fpcache.SegmentType]Span

type entry struct {
	IntroStart *float64 `json:"intro_start,omitempty"`
	IntroEnd   *float64 `json:"intro_end,omitempty"`
	OutroStart *float64 `json:"outro_start,omitempty"`
	OutroEnd   *float64 `json:"outro_end,omitempty"`
}

// Write merges the detection results into the skip data file at path.
// Existing entries survive; keys written by older versions in raw filename
// form are re-normalized on the way through so duplicates cannot
// accumulate. A corrupted existing file is replaced outright.
func Write(path string, results Results, useFullPath bool, log *slog.Logger) error {
	if log == nil {
		log = logging.NewNop()
	}
	merged := make(map[string]entry)
	if raw, err := os.ReadFile(path); err == nil {
		existing := make(map[string]entry)
		if err := json.Unmarshal(raw, &existing); err != nil {
			log.Warn("existing skip data is corrupted, overwriting",
				logging.String("path", path))
		} else {
			for oldKey, val := range existing {
				key := oldKey
				if !useFullPath {
					key = Key(oldKey, false)
				}
				merged[key] = val
			}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read skip data: %w", err)
	}

	for episodePath, segs := range results {
		var e entry
		if intro, ok := segs[fpcache.SegmentIntro]; ok {
			e.IntroStart = snapPtr(intro.Start)
			e.IntroEnd = snapPtr(intro.End)
		}
		if outro, ok := segs[fpcache.SegmentOutro]; ok {
			e.OutroStart = snapPtr(outro.Start)
			e.OutroEnd = snapPtr(outro.End)
		}
		if e.IntroStart != nil || e.OutroStart != nil {
			merged[Key(episodePath, useFullPath)] = e
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create skip data dir: %w", err)
		}
	}
	blob, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("encode skip data: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("write skip data: %w", err)
	}
	log.Info("skip data written",
		logging.String("path", path),
		logging.Int("entries", len(merged)))
	return nil
}

func snapPtr(v float64) *float64 {
	s := math.Round(v*1000) / 1000
	return &s
}
