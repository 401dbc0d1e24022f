package detect

import (
	"log/slog"
	"path/filepath"

	"skipscan/internal/config"
	"skipscan/internal/fpcache"
	"skipscan/internal/logging"
)

const (
	// validationTolerance forgives sub-second probe drift at the episode
	// tail before a segment is rejected as out of bounds.
	validationTolerance = 0.5
	// maxIntroFraction is the share of an episode an intro may cover
	// before it looks suspicious. Oversized intros are kept but flagged.
	maxIntroFraction = 0.4
)

// validateSegments clamps segments to the episode and drops the broken
// ones. An outro that starts inside the validated intro is discarded; an
// intro covering most of the episode is kept with a warning.
func validateSegments(log *slog.Logger, path string, segs map[fpcache.SegmentType]Span, duration float64) map[fpcache.SegmentType]Span {
	validated := make(map[fpcache.SegmentType]Span, len(segs))
	name := filepath.Base(path)

	if intro, ok := segs[fpcache.SegmentIntro]; ok {
		start := intro.Start
		if start < 0 {
			start = 0
		}
		end := intro.End
		if end > duration {
			end = duration
		}
		if start < end && end <= duration+validationTolerance {
			if duration > 0 && (end-start)/duration > maxIntroFraction {
				log.Warn("intro covers a large share of the episode",
					logging.String(logging.FieldEpisode, name),
					logging.Float64("fraction", (end-start)/duration))
			}
			validated[fpcache.SegmentIntro] = Span{Start: snap(start), End: snap(end)}
		} else {
			log.Warn("intro out of bounds, discarding",
				logging.String(logging.FieldEpisode, name),
				logging.Float64("start", start),
				logging.Float64("end", end),
				logging.Float64("duration", duration))
		}
	}

	if outro, ok := segs[fpcache.SegmentOutro]; ok {
		start := outro.Start
		if start < 0 {
			start = 0
		}
		end := outro.End
		if end > duration {
			end = duration
		}
		switch {
		case start >= end || end > duration+validationTolerance:
			log.Warn("outro out of bounds, discarding",
				logging.String(logging.FieldEpisode, name),
				logging.Float64("start", start),
				logging.Float64("end", end),
				logging.Float64("duration", duration))
		case overlapsIntro(validated, start):
			log.Warn("outro overlaps intro, discarding",
				logging.String(logging.FieldEpisode, name))
		default:
			validated[fpcache.SegmentOutro] = Span{Start: snap(start), End: snap(end)}
		}
	}

	return validated
}

func overlapsIntro(validated map[fpcache.SegmentType]Span, outroStart float64) bool {
	intro, ok := validated[fpcache.SegmentIntro]
	return ok && outroStart < intro.End
}

// estimateFingerprintMB predicts resident fingerprint memory for the
// episode set under the given profile, both search regions included.
func estimateFingerprintMB(episodes []episode, p config.Profile) float64 {
	fps := p.FramesPerSecond()
	var total float64
	for _, ep := range episodes {
		introDur := minFloat(p.IntroSearchEnd, ep.duration*0.5) - p.IntroSearchStart
		if introDur > 0 {
			frames := int(introDur * fps)
			if frames < 1 {
				frames = 1
			}
			total += float64(frames * p.Bands * 4)
		}
		outroDur := minFloat(p.OutroSearchDuration, ep.duration)
		if outroDur > 0 {
			frames := int(outroDur * fps)
			if frames < 1 {
				frames = 1
			}
			total += float64(frames * p.Bands * 4)
		}
	}
	return total / (1 << 20)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
