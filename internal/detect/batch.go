package detect

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"time"

	"skipscan/internal/config"
	"skipscan/internal/fpcache"
	"skipscan/internal/logging"
	"skipscan/internal/media/ffprobe"
)

// runBatched processes an oversized episode set in batches. The episode
// closest to the median duration anchors every batch so all batches share
// a comparison baseline; its segment from the first batch is canonical and
// later batches cannot overwrite it.
func (d *Detector) runBatched(ctx context.Context, log *slog.Logger, paths []string, profile config.Profile, batchSize int, force bool) (*Report, error) {
	if batchSize < 2 {
		batchSize = defaultBatchSize
	}
	if len(paths) <= batchSize {
		return d.run(ctx, log, paths, profile, force)
	}

	timeout := time.Duration(d.cfg.Detection.FFprobeTimeout) * time.Second
	valid := make([]string, 0, len(paths))
	durations := make(map[string]float64, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dur, err := ffprobe.Duration(ctx, d.runner, d.cfg.FFprobeBinary(), path, timeout)
		if err != nil || dur < minEpisodeDuration {
			continue
		}
		valid = append(valid, path)
		durations[path] = dur
	}
	if len(valid) < 2 {
		return d.run(ctx, log, paths, profile, force)
	}

	anchor := anchorEpisode(valid, durations)
	remaining := make([]string, 0, len(valid)-1)
	for _, path := range valid {
		if path != anchor {
			remaining = append(remaining, path)
		}
	}
	perBatch := batchSize - 1
	batches := (len(remaining) + perBatch - 1) / perBatch
	log.Info("splitting episode set into batches",
		logging.Int("episodes", len(valid)),
		logging.Int("batches", batches),
		logging.String("anchor", filepath.Base(anchor)))

	merged := &Report{
		Segments:  make(map[string]map[fpcache.SegmentType]Span, len(valid)),
		Durations: make(map[string]float64, len(valid)),
	}
	anchorDone := false
	for i := 0; i < len(remaining); i += perBatch {
		if err := ctx.Err(); err != nil {
			return merged, err
		}
		end := i + perBatch
		if end > len(remaining) {
			end = len(remaining)
		}
		batch := append([]string{anchor}, remaining[i:end]...)
		report, err := d.run(ctx, log, batch, profile, force)
		if report != nil {
			for path, segs := range report.Segments {
				if path == anchor && anchorDone {
					continue
				}
				merged.Segments[path] = segs
			}
			for path, dur := range report.Durations {
				merged.Durations[path] = dur
			}
			anchorDone = true
		}
		if err != nil {
			return merged, err
		}
	}
	return merged, nil
}

// anchorEpisode picks the episode nearest the median duration.
func anchorEpisode(paths []string, durations map[string]float64) string {
	sorted := make([]float64, 0, len(paths))
	for _, p := range paths {
		sorted = append(sorted, durations[p])
	}
	sort.Float64s(sorted)
	var med float64
	if n := len(sorted); n%2 == 1 {
		med = sorted[n/2]
	} else {
		med = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	best := paths[0]
	bestDist := math.Inf(1)
	for _, p := range paths {
		if dist := math.Abs(durations[p] - med); dist < bestDist {
			bestDist = dist
			best = p
		}
	}
	return best
}
