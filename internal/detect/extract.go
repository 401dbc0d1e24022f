package detect

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"skipscan/internal/config"
	"skipscan/internal/fingerprint"
	"skipscan/internal/fpcache"
	"skipscan/internal/logging"
)

// regionTask describes one audio region to fingerprint.
type regionTask struct {
	path     string
	start    float64
	duration float64
	suffix   string
}

type regionResult struct {
	path string
	fp   *fingerprint.Fingerprint
}

// extractAll fingerprints every task region, fanning out across the
// configured worker count when parallel extraction is enabled. Episodes
// whose audio cannot be extracted or is silent are dropped from the result
// rather than failing the run. Buffered cache writes are flushed before
// returning.
func (d *Detector) extractAll(ctx context.Context, log *slog.Logger, tasks []regionTask, profile config.Profile, label string) (map[string]*fingerprint.Fingerprint, error) {
	fps := make(map[string]*fingerprint.Fingerprint, len(tasks))
	if len(tasks) == 0 {
		return fps, nil
	}

	workers := 1
	if d.cfg.Detection.ParallelExtraction && len(tasks) > 1 {
		workers = d.cfg.Detection.ExtractionWorkers
		if workers > len(tasks) {
			workers = len(tasks)
		}
		if workers < 1 {
			workers = 1
		}
	}
	log.Info("extracting fingerprints",
		logging.String(logging.FieldSegmentType, label),
		logging.Int("regions", len(tasks)),
		logging.Int("workers", workers))

	taskCh := make(chan regionTask)
	resultCh := make(chan regionResult, len(tasks))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				if ctx.Err() != nil {
					return
				}
				fp := d.fingerprintRegion(ctx, log, task, profile)
				resultCh <- regionResult{path: task.path, fp: fp}
			}
		}()
	}

feed:
	for _, task := range tasks {
		select {
		case taskCh <- task:
		case <-ctx.Done():
			break feed
		}
	}
	close(taskCh)
	wg.Wait()
	close(resultCh)

	for res := range resultCh {
		if res.fp != nil {
			fps[res.path] = res.fp
		}
	}
	if err := d.store.Flush(); err != nil {
		log.Warn("cache flush failed", logging.Error(err))
	}
	return fps, ctx.Err()
}

// fingerprintRegion returns the fingerprint for one region, from cache
// when possible. Failures are logged and reported as nil so one bad
// episode does not sink the set.
func (d *Detector) fingerprintRegion(ctx context.Context, log *slog.Logger, task regionTask, profile config.Profile) *fingerprint.Fingerprint {
	configHash := profile.Hash()
	if rec, err := d.store.GetFingerprint(ctx, task.path, task.suffix, configHash); err == nil && rec != nil {
		if fp, ok := fingerprint.Reshape(rec.Data, rec.Bands, rec.Frames); ok {
			return fp
		}
	}

	samples, err := d.extractor.ExtractRegion(ctx, task.path, task.start, task.duration, profile.SampleRate)
	if err != nil {
		log.Error("audio extraction failed",
			logging.String(logging.FieldEpisode, filepath.Base(task.path)),
			logging.Error(err))
		return nil
	}
	if len(samples) == 0 {
		return nil
	}
	if rms := fingerprint.RMS(samples); rms < fingerprint.MinAudioRMS {
		log.Warn("near-silent audio, skipping fingerprint",
			logging.String(logging.FieldEpisode, filepath.Base(task.path)),
			logging.Float64("rms", rms),
			logging.Float64("start", task.start),
			logging.Float64("end", task.start+task.duration))
		return nil
	}

	fp := fingerprint.Compute(samples, fingerprint.Params{
		SampleRate:          profile.SampleRate,
		HopLength:           profile.HopLength,
		Bands:               profile.Bands,
		FrameSizeMultiplier: profile.FrameSizeMultiplier,
	})
	record := fpcache.FingerprintRecord{
		Data:       fp.Values,
		SampleRate: profile.SampleRate,
		Bands:      fp.Bands,
		Frames:     fp.Frames,
		ConfigHash: configHash,
	}
	if err := d.store.StoreFingerprint(ctx, task.path, record, task.duration, task.suffix); err != nil {
		log.Warn("fingerprint cache write failed",
			logging.String(logging.FieldEpisode, filepath.Base(task.path)),
			logging.Error(err))
	}
	return fp
}

// sortedPaths returns map keys in a stable order for deterministic
// iteration.
func sortedPaths(fps map[string]*fingerprint.Fingerprint) []string {
	out := make([]string, 0, len(fps))
	for p := range fps {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
