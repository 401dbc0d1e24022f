package consensus

import (
	"math"
	"sort"

	"skipscan/internal/fingerprint"
)

// Candidate is a detected segment within a search region. Start and End are
// seconds relative to the region start; Score is the consensus strength.
type Candidate struct {
	Start float64
	End   float64
	Score float64
}

// Duration returns the candidate length in seconds.
func (c Candidate) Duration() float64 { return c.End - c.Start }

// Episode pairs a video path with its probed duration.
type Episode struct {
	Path     string
	Duration float64
}

// EpisodeFingerprint pairs a video path with its region fingerprint.
// Detectors iterate these in slice order so results are deterministic.
type EpisodeFingerprint struct {
	Path string
	FP   *fingerprint.Fingerprint
}

// SelectReference picks the episode to anchor pairwise comparison. Episodes
// near the median duration are preferred, with a smaller bonus for
// fingerprints that carry more variance and therefore more signal.
func SelectReference(episodes []Episode, fps map[string]*fingerprint.Fingerprint) (string, bool) {
	best := ""
	bestScore := math.Inf(-1)
	durations := make([]float64, 0, len(episodes))
	for _, ep := range episodes {
		if _, ok := fps[ep.Path]; ok {
			durations = append(durations, ep.Duration)
		}
	}
	if len(durations) == 0 {
		return "", false
	}
	med := median(durations)
	for _, ep := range episodes {
		fp, ok := fps[ep.Path]
		if !ok {
			continue
		}
		d := 1.0 / (1.0 + math.Abs(ep.Duration-med)/math.Max(med, 1.0))
		q := 0.0
		if fp != nil && len(fp.Values) > 0 {
			_, std := valuesMeanStd(fp.Values)
			q = math.Min(std*2.0, 1.0)
		}
		score := d*0.7 + q*0.3
		if score > bestScore {
			bestScore = score
			best = ep.Path
		}
	}
	return best, best != ""
}

func median(v []float64) float64 {
	s := make([]float64, len(v))
	copy(s, v)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func valuesMeanStd(v []float32) (float64, float64) {
	if len(v) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range v {
		sum += float64(x)
	}
	mean := sum / float64(len(v))
	var sq float64
	for _, x := range v {
		d := float64(x) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(v)))
}
