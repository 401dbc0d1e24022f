package detect

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"

	"skipscan/internal/config"
	"skipscan/internal/consensus"
	"skipscan/internal/fingerprint"
	"skipscan/internal/fpcache"
	"skipscan/internal/logging"
	"skipscan/internal/similarity"
)

const (
	// graphFallbackDiscount scales the graph candidate's score when it
	// stands in for a failed per-episode refinement.
	graphFallbackDiscount = 0.7
	// copyFallbackDiscount scales the reference score when the reference
	// segment is copied wholesale into an episode.
	copyFallbackDiscount = 0.5
)

// detectWithFallback finds the shared segment. Graph consensus runs first
// when enabled; if it produces nothing, a reference episode is chosen and
// pairwise window agreement takes over.
func (d *Detector) detectWithFallback(log *slog.Logger, fps map[string]*fingerprint.Fingerprint,
	episodes []episode, profile config.Profile, segType fpcache.SegmentType,
) (string, *fingerprint.Fingerprint, consensus.Candidate, map[string]consensus.Candidate, bool) {
	if len(fps) < 2 {
		return "", nil, consensus.Candidate{}, nil, false
	}

	if profile.UseGraphConsensus {
		ordered := make([]consensus.EpisodeFingerprint, 0, len(fps))
		for _, path := range sortedPaths(fps) {
			ordered = append(ordered, consensus.EpisodeFingerprint{Path: path, FP: fps[path]})
		}
		if refPath, seg, graphRes, ok := consensus.Graph(ordered, profile, log, string(segType)); ok {
			return refPath, fps[refPath], seg, graphRes, true
		}
	}

	consensusEps := make([]consensus.Episode, 0, len(episodes))
	for _, ep := range episodes {
		consensusEps = append(consensusEps, consensus.Episode{Path: ep.path, Duration: ep.duration})
	}
	refPath, ok := consensus.SelectReference(consensusEps, fps)
	if !ok {
		return "", nil, consensus.Candidate{}, nil, false
	}
	refFP := fps[refPath]
	sims := make([]consensus.EpisodeSimilarity, 0, len(fps)-1)
	for _, path := range sortedPaths(fps) {
		if path == refPath {
			continue
		}
		sims = append(sims, consensus.EpisodeSimilarity{
			Path: path,
			Sim:  similarity.BlockMatrix(refFP, fps[path], profile.WindowFrames()),
		})
	}
	seg, ok := consensus.FindCommon(sims, profile, log, string(segType))
	if !ok {
		return "", nil, consensus.Candidate{}, nil, false
	}
	return refPath, refFP, seg, nil, true
}

// refineAndStore places the consensus segment into every episode. The
// reference episode takes it verbatim; other episodes get a localized
// match, then the graph candidate at a discount, then a copy of the
// reference placement at a deeper discount. Outro copies are anchored on
// distance from the episode end so length differences do not shift them.
func (d *Detector) refineAndStore(ctx context.Context, log *slog.Logger, segType fpcache.SegmentType,
	seg consensus.Candidate, refPath string, refFP *fingerprint.Fingerprint,
	fps map[string]*fingerprint.Fingerprint, profile config.Profile,
	offsets map[string]float64, graphRes map[string]consensus.Candidate, report *Report) {

	refOffset := offsets[refPath]
	refStart := snap(seg.Start + refOffset)
	refEnd := snap(seg.End + refOffset)
	d.recordSegment(ctx, log, report, refPath, fpcache.Segment{
		Type:       segType,
		Start:      refStart,
		End:        refEnd,
		Confidence: seg.Score,
		Method:     fpcache.MethodFingerprint,
	}, "reference")

	locator := similarity.NewLocator(profile.FramesPerSecond(), profile.Bands,
		profile.WindowFrames(), profile.RefinementSteps,
		profile.SimilarityThreshold, profile.PerEpisodeThresholdFactor)

	for _, path := range sortedPaths(fps) {
		if path == refPath {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		offset, ok := offsets[path]
		if !ok {
			offset = refOffset
		}

		if match, ok := locator.Locate(refFP, fps[path], seg.Start, seg.End); ok {
			d.recordSegment(ctx, log, report, path, fpcache.Segment{
				Type:       segType,
				Start:      snap(match.Start + offset),
				End:        snap(match.End + offset),
				Confidence: match.Correlation,
				Method:     fpcache.MethodFingerprint,
			}, "refined")
			continue
		}
		if gc, ok := graphRes[path]; ok {
			d.recordSegment(ctx, log, report, path, fpcache.Segment{
				Type:       segType,
				Start:      snap(gc.Start + offset),
				End:        snap(gc.End + offset),
				Confidence: gc.Score * graphFallbackDiscount,
				Method:     fpcache.MethodGraphFallback,
			}, "graph fallback")
			continue
		}
		switch segType {
		case fpcache.SegmentIntro:
			d.recordSegment(ctx, log, report, path, fpcache.Segment{
				Type:       segType,
				Start:      refStart,
				End:        refEnd,
				Confidence: seg.Score * copyFallbackDiscount,
				Method:     fpcache.MethodFingerprintFallback,
			}, "copy fallback")
		case fpcache.SegmentOutro:
			epDur, ok1 := report.Durations[path]
			refDur, ok2 := report.Durations[refPath]
			if !ok1 || !ok2 {
				continue
			}
			distFromEnd := refDur - refEnd
			length := refEnd - refStart
			end := snap(epDur - distFromEnd)
			start := snap(end - length)
			if start < 0 || start >= end || end > epDur {
				continue
			}
			d.recordSegment(ctx, log, report, path, fpcache.Segment{
				Type:       segType,
				Start:      start,
				End:        end,
				Confidence: seg.Score * copyFallbackDiscount,
				Method:     fpcache.MethodFingerprintFallback,
			}, "end-anchored fallback")
		}
	}
}

func (d *Detector) recordSegment(ctx context.Context, log *slog.Logger, report *Report, path string, seg fpcache.Segment, how string) {
	if report.Segments[path] == nil {
		report.Segments[path] = make(map[fpcache.SegmentType]Span)
	}
	report.Segments[path][seg.Type] = Span{Start: seg.Start, End: seg.End}
	if err := d.store.StoreSkipSegment(ctx, path, seg); err != nil {
		log.Warn("segment cache write failed",
			logging.String(logging.FieldEpisode, filepath.Base(path)),
			logging.Error(err))
	}
	log.Info("segment placed",
		logging.String(logging.FieldEpisode, filepath.Base(path)),
		logging.String(logging.FieldSegmentType, string(seg.Type)),
		logging.String(logging.FieldMethod, how),
		logging.Float64("start", seg.Start),
		logging.Float64("end", seg.End),
		logging.Float64("confidence", math.Round(seg.Confidence*100)/100))
}

func snap(t float64) float64 {
	return math.Round(t*1000) / 1000
}
