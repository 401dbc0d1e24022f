package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"skipscan/internal/config"
	"skipscan/internal/fingerprint"
	"skipscan/internal/fpcache"
	"skipscan/internal/logging"
	"skipscan/internal/media/ffprobe"
	"skipscan/internal/media/pcm"
	"skipscan/internal/procrun"
)

// ErrInsufficientEpisodes reports that fewer than two usable episodes were
// available; detection needs at least two to compare anything.
var ErrInsufficientEpisodes = errors.New("need at least two episodes")

const (
	// minEpisodeDuration filters out trailers, samples and stubs.
	minEpisodeDuration = 60.0
	// defaultBatchSize bounds episodes per batch when the set is split.
	defaultBatchSize = 30
	// memoryWarningMB triggers a log line when resident fingerprints grow
	// past it.
	memoryWarningMB = 500.0
)

// Span is a validated [Start, End) segment in absolute episode seconds.
type Span struct {
	Start float64
	End   float64
}

// Report is the outcome of one detection run.
type Report struct {
	// Segments maps episode path to its validated segments by type.
	Segments map[string]map[fpcache.SegmentType]Span
	// Durations maps episode path to probed duration, including episodes
	// that were filtered out or produced no segments.
	Durations map[string]float64
}

// Detector runs the detection pipeline against one episode set.
type Detector struct {
	cfg     *config.Config
	profile config.Profile
	store   *fpcache.Store
	runner  *procrun.Runner
	log     *slog.Logger

	extractor *pcm.Extractor
}

// New builds a Detector. The profile governs the numeric analysis; cfg
// supplies tool paths, timeouts and the memory budget.
func New(cfg *config.Config, profile config.Profile, store *fpcache.Store, runner *procrun.Runner, log *slog.Logger) *Detector {
	if log == nil {
		log = logging.NewNop()
	}
	return &Detector{
		cfg:     cfg,
		profile: profile,
		store:   store,
		runner:  runner,
		log:     log,
		extractor: pcm.NewExtractor(runner, cfg.FFmpegBinary(),
			time.Duration(cfg.Detection.FFmpegTimeout)*time.Second, log),
	}
}

// Run detects intro and outro segments for the given episode paths. Force
// bypasses cached skip segments but still reuses cached fingerprints.
func (d *Detector) Run(ctx context.Context, paths []string, force bool) (*Report, error) {
	if len(paths) < 2 {
		return nil, fmt.Errorf("detect: %w, got %d", ErrInsufficientEpisodes, len(paths))
	}
	runID := uuid.NewString()
	log := d.log.With(logging.String(logging.FieldRunID, runID))
	log.Info("starting detection run",
		logging.Int("episodes", len(paths)),
		logging.String("show_type", d.cfg.Detection.ShowType))
	report, err := d.run(ctx, log, paths, d.profile, force)
	if err != nil {
		return report, err
	}
	log.Info("detection run complete",
		logging.Int("episodes_with_segments", len(report.Segments)))
	return report, nil
}

func (d *Detector) run(ctx context.Context, log *slog.Logger, paths []string, profile config.Profile, force bool) (*Report, error) {
	report := &Report{
		Segments:  make(map[string]map[fpcache.SegmentType]Span),
		Durations: make(map[string]float64),
	}

	episodes, err := d.probeEpisodes(ctx, log, paths, report.Durations)
	if err != nil {
		return report, err
	}
	if len(episodes) < 2 {
		return report, fmt.Errorf("detect: %w after duration filtering", ErrInsufficientEpisodes)
	}

	// Memory budget. Oversized sets lose graph consensus first; if still
	// too large they are split into anchored batches.
	budget := float64(d.cfg.Detection.MaxFingerprintMB)
	if est := estimateFingerprintMB(episodes, profile); budget > 0 && est > budget {
		log.Warn("fingerprint estimate exceeds budget, disabling graph consensus",
			logging.Float64("estimated_mb", math.Round(est)),
			logging.Float64("budget_mb", budget))
		profile = profile.WithGraphConsensus(false)
		perEpisode := est / float64(len(episodes))
		safe := int(budget / perEpisode)
		if safe < 2 {
			safe = 2
		}
		if len(episodes) > safe {
			return d.runBatched(ctx, log, episodePaths(episodes), profile, safe, force)
		}
	}

	if !force {
		if cached, ok := d.cachedReport(ctx, episodes, report.Durations); ok {
			log.Info("all episodes already cached, use force to re-detect")
			return cached, nil
		}
	}

	if err := d.detectIntro(ctx, log, episodes, profile, report); err != nil {
		return report, err
	}
	if err := d.detectOutro(ctx, log, episodes, profile, report); err != nil {
		return report, err
	}

	d.validateReport(log, report)
	return report, nil
}

type episode struct {
	path     string
	duration float64
}

func episodePaths(eps []episode) []string {
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.path
	}
	return out
}

func (d *Detector) probeEpisodes(ctx context.Context, log *slog.Logger, paths []string, durations map[string]float64) ([]episode, error) {
	timeout := time.Duration(d.cfg.Detection.FFprobeTimeout) * time.Second
	episodes := make([]episode, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dur, err := ffprobe.Duration(ctx, d.runner, d.cfg.FFprobeBinary(), path, timeout)
		if err != nil {
			log.Warn("skipping unprobeable episode",
				logging.String(logging.FieldEpisode, filepath.Base(path)),
				logging.Error(err))
			continue
		}
		if dur < minEpisodeDuration {
			log.Warn("skipping short episode",
				logging.String(logging.FieldEpisode, filepath.Base(path)),
				logging.Float64("duration", dur))
			continue
		}
		episodes = append(episodes, episode{path: path, duration: dur})
		durations[path] = dur
	}
	return episodes, nil
}

// cachedReport returns stored segments when every episode already has
// them; a single miss forces a full run.
func (d *Detector) cachedReport(ctx context.Context, episodes []episode, durations map[string]float64) (*Report, bool) {
	report := &Report{
		Segments:  make(map[string]map[fpcache.SegmentType]Span),
		Durations: durations,
	}
	for _, ep := range episodes {
		segs, err := d.store.SkipSegments(ctx, ep.path)
		if err != nil || len(segs) == 0 {
			return nil, false
		}
		spans := make(map[fpcache.SegmentType]Span, len(segs))
		for st, seg := range segs {
			spans[st] = Span{Start: seg.Start, End: seg.End}
		}
		report.Segments[ep.path] = spans
	}
	return report, len(report.Segments) > 0
}

func (d *Detector) detectIntro(ctx context.Context, log *slog.Logger, episodes []episode, profile config.Profile, report *Report) error {
	tasks := make([]regionTask, 0, len(episodes))
	offsets := make(map[string]float64, len(episodes))
	for _, ep := range episodes {
		searchEnd := math.Min(profile.IntroSearchEnd, ep.duration*0.5)
		if profile.IntroSearchStart >= searchEnd {
			continue
		}
		tasks = append(tasks, regionTask{
			path:     ep.path,
			start:    profile.IntroSearchStart,
			duration: searchEnd - profile.IntroSearchStart,
			suffix:   fpcache.RegionSuffix(fpcache.SegmentIntro, profile.IntroSearchStart, searchEnd),
		})
		offsets[ep.path] = profile.IntroSearchStart
	}
	fps, err := d.extractAll(ctx, log, tasks, profile, "intro")
	if err != nil {
		return err
	}
	d.resolveSegments(ctx, log, fpcache.SegmentIntro, episodes, profile, fps, offsets, report)
	return nil
}

func (d *Detector) detectOutro(ctx context.Context, log *slog.Logger, episodes []episode, profile config.Profile, report *Report) error {
	tasks := make([]regionTask, 0, len(episodes))
	offsets := make(map[string]float64, len(episodes))
	for _, ep := range episodes {
		start := math.Max(0, ep.duration-profile.OutroSearchDuration)
		duration := ep.duration - start
		tasks = append(tasks, regionTask{
			path:     ep.path,
			start:    start,
			duration: duration,
			suffix:   fpcache.RegionSuffix(fpcache.SegmentOutro, start, start+duration),
		})
		offsets[ep.path] = start
	}
	fps, err := d.extractAll(ctx, log, tasks, profile, "outro")
	if err != nil {
		return err
	}
	warnMemoryUsage(log, fps)
	d.resolveSegments(ctx, log, fpcache.SegmentOutro, episodes, profile, fps, offsets, report)
	return nil
}

// resolveSegments runs consensus over the extracted fingerprints and, when
// a shared segment is found, refines and stores it per episode.
func (d *Detector) resolveSegments(ctx context.Context, log *slog.Logger, segType fpcache.SegmentType,
	episodes []episode, profile config.Profile,
	fps map[string]*fingerprint.Fingerprint, offsets map[string]float64, report *Report) {

	refPath, refFP, seg, graphRes, ok := d.detectWithFallback(log, fps, episodes, profile, segType)
	if !ok {
		log.Warn("no consensus segment found",
			logging.String(logging.FieldSegmentType, string(segType)))
		return
	}
	d.refineAndStore(ctx, log, segType, seg, refPath, refFP, fps, profile, offsets, graphRes, report)
}

func warnMemoryUsage(log *slog.Logger, fps map[string]*fingerprint.Fingerprint) {
	var bytes int
	for _, fp := range fps {
		if fp != nil {
			bytes += len(fp.Values) * 4
		}
	}
	if mb := float64(bytes) / (1 << 20); mb > memoryWarningMB {
		log.Warn("fingerprints using significant memory", logging.Float64("mb", math.Round(mb)))
	}
}

func (d *Detector) validateReport(log *slog.Logger, report *Report) {
	validated := make(map[string]map[fpcache.SegmentType]Span, len(report.Segments))
	for path, segs := range report.Segments {
		dur, ok := report.Durations[path]
		if !ok {
			if len(segs) > 0 {
				validated[path] = segs
			}
			continue
		}
		if v := validateSegments(log, path, segs, dur); len(v) > 0 {
			validated[path] = v
		}
	}
	report.Segments = validated
}
