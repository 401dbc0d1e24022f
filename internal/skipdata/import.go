package skipdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"skipscan/internal/fpcache"
	"skipscan/internal/logging"
)

// DurationFunc probes an episode's duration in seconds.
type DurationFunc func(ctx context.Context, path string) (float64, error)

type importFile struct {
	IntroStart    *float64                 `json:"intro_start"`
	IntroEnd      *float64                 `json:"intro_end"`
	IntroDuration *float64                 `json:"intro_duration"`
	OutroDuration *float64                 `json:"outro_duration"`
	Episodes      map[string]importEpisode `json:"episodes"`
}

type importEpisode struct {
	IntroStart *float64 `json:"intro_start"`
	IntroEnd   *float64 `json:"intro_end"`
	OutroStart *float64 `json:"outro_start"`
	OutroEnd   *float64 `json:"outro_end"`
}

// Import reads a curated timestamp file and applies it to the videos in
// videoDir, storing the segments in the cache. Two layouts are accepted: a
// global one whose intro/outro timings apply to every episode, and a
// per-episode map matched to files by season/episode tag or name. Imported
// segments carry full confidence and a manual provenance so cache sweeps
// leave them alone.
func Import(ctx context.Context, store *fpcache.Store, tsPath, videoDir string, probe DurationFunc, log *slog.Logger) (Results, error) {
	if log == nil {
		log = logging.NewNop()
	}
	raw, err := os.ReadFile(tsPath)
	if err != nil {
		return nil, fmt.Errorf("read timestamps: %w", err)
	}
	var data importFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse timestamps: %w", err)
	}
	videos, err := ListVideos(videoDir)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}

	if data.IntroEnd != nil || data.IntroDuration != nil {
		return importGlobal(ctx, store, data, videos, probe, log)
	}
	if len(data.Episodes) > 0 {
		return importPerEpisode(ctx, store, data.Episodes, videos, probe, log)
	}
	return Results{}, nil
}

func importGlobal(ctx context.Context, store *fpcache.Store, data importFile, videos []string, probe DurationFunc, log *slog.Logger) (Results, error) {
	introStart := 0.0
	if data.IntroStart != nil {
		introStart = *data.IntroStart
	}
	introEnd := 0.0
	if data.IntroEnd != nil {
		introEnd = *data.IntroEnd
	} else if data.IntroDuration != nil {
		introEnd = *data.IntroDuration
	}
	outroDur := 0.0
	if data.OutroDuration != nil {
		outroDur = *data.OutroDuration
	}

	results := make(Results, len(videos))
	for _, video := range videos {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		segs := make(map[fpcache.SegmentType]Span)
		if introEnd > 0 && spanValid(introStart, introEnd) {
			segs[fpcache.SegmentIntro] = Span{Start: snapTime(introStart), End: snapTime(introEnd)}
			storeImported(ctx, store, video, fpcache.SegmentIntro, introStart, introEnd, fpcache.MethodManual, log)
		}
		if outroDur > 0 {
			dur, err := probe(ctx, video)
			if err == nil && dur > outroDur {
				start := snapTime(dur - outroDur)
				segs[fpcache.SegmentOutro] = Span{Start: start, End: snapTime(dur)}
				storeImported(ctx, store, video, fpcache.SegmentOutro, start, dur, fpcache.MethodManual, log)
			}
		}
		results[video] = segs
	}
	return results, nil
}

func importPerEpisode(ctx context.Context, store *fpcache.Store, episodes map[string]importEpisode, videos []string, probe DurationFunc, log *slog.Logger) (Results, error) {
	keys := make([]string, 0, len(episodes))
	for k := range episodes {
		keys = append(keys, k)
	}

	results := make(Results)
	for _, video := range videos {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		stem := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
		key, ok := MatchEpisodeKey(stem, keys)
		if !ok {
			log.Warn("no timestamp entry matches episode",
				logging.String(logging.FieldEpisode, filepath.Base(video)))
			continue
		}
		ep := episodes[key]
		segs := make(map[fpcache.SegmentType]Span)
		if ep.IntroStart != nil && ep.IntroEnd != nil && spanValid(*ep.IntroStart, *ep.IntroEnd) {
			segs[fpcache.SegmentIntro] = Span{Start: snapTime(*ep.IntroStart), End: snapTime(*ep.IntroEnd)}
			storeImported(ctx, store, video, fpcache.SegmentIntro, *ep.IntroStart, *ep.IntroEnd, fpcache.MethodDatabase, log)
		}
		if ep.OutroStart != nil {
			outroEnd := 0.0
			if ep.OutroEnd != nil {
				outroEnd = *ep.OutroEnd
			} else if dur, err := probe(ctx, video); err == nil {
				outroEnd = dur
			}
			if outroEnd > 0 && spanValid(*ep.OutroStart, outroEnd) {
				segs[fpcache.SegmentOutro] = Span{Start: snapTime(*ep.OutroStart), End: snapTime(outroEnd)}
				storeImported(ctx, store, video, fpcache.SegmentOutro, *ep.OutroStart, outroEnd, fpcache.MethodDatabase, log)
			}
		}
		results[video] = segs
	}
	return results, nil
}

func storeImported(ctx context.Context, store *fpcache.Store, path string, segType fpcache.SegmentType, start, end float64, method string, log *slog.Logger) {
	err := store.StoreSkipSegment(ctx, path, fpcache.Segment{
		Type:       segType,
		Start:      start,
		End:        end,
		Confidence: 1.0,
		Method:     method,
	})
	if err != nil {
		log.Warn("imported segment write failed",
			logging.String(logging.FieldEpisode, filepath.Base(path)),
			logging.Error(err))
	}
}

func spanValid(start, end float64) bool {
	return start >= 0 && end > start
}

func snapTime(v float64) float64 {
	return math.Round(v*1000) / 1000
}
