package similarity

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"

	"skipscan/internal/fingerprint"
)

const (
	// minFFTSegmentLen is the flattened segment length below which the
	// cross-correlation transform costs more than a direct scan.
	minFFTSegmentLen = 64
	// fftCandidateCount bounds how many correlation peaks are re-verified
	// exactly after the approximate FFT pass.
	fftCandidateCount = 250
	// clipSigma bounds z-scored values before the transform so a single
	// loud frame cannot dominate the correlation.
	clipSigma = 5.0
)

// Match is a localized placement of a reference segment inside a target
// fingerprint. Start and End are seconds relative to the target region;
// Correlation is the exact z-normalized similarity at that placement.
type Match struct {
	Start       float64
	End         float64
	Correlation float64
}

// Locator finds where a reference segment recurs inside target episodes.
type Locator struct {
	framesPerSecond float64
	bands           int
	windowFrames    int
	refinementSteps int
	threshold       float64
}

// NewLocator builds a Locator. The acceptance threshold is the product of
// the profile similarity threshold and its per-episode factor.
func NewLocator(framesPerSecond float64, bands, windowFrames, refinementSteps int, threshold, perEpisodeFactor float64) *Locator {
	return &Locator{
		framesPerSecond: framesPerSecond,
		bands:           bands,
		windowFrames:    windowFrames,
		refinementSteps: refinementSteps,
		threshold:       threshold * perEpisodeFactor,
	}
}

// Locate searches target for the best placement of the reference span
// [refStart, refEnd) taken from ref. Both offsets are seconds relative to
// their region start. It returns false when the span is degenerate, the
// target is too short, or the best correlation falls below the acceptance
// threshold.
func (l *Locator) Locate(ref, target *fingerprint.Fingerprint, refStart, refEnd float64) (Match, bool) {
	if ref == nil || target == nil || ref.Bands != l.bands || target.Bands != l.bands {
		return Match{}, false
	}
	startFrame := int(refStart * l.framesPerSecond)
	endFrame := int(refEnd * l.framesPerSecond)
	if startFrame < 0 {
		startFrame = 0
	}
	if endFrame > ref.Frames {
		endFrame = ref.Frames
	}
	segFrames := endFrame - startFrame
	if segFrames < 1 || segFrames > target.Frames {
		return Match{}, false
	}

	segDur := refEnd - refStart
	seg := flatten(ref, startFrame, endFrame)
	segMean, segStd := meanStd(seg)
	if segStd <= fingerprint.Epsilon {
		return Match{}, false
	}
	for i := range seg {
		seg[i] = (seg[i] - segMean) / segStd
	}

	tgt := flatten(target, 0, target.Frames)
	segLen := len(seg)

	var bestFrame int
	var bestCorr float64
	if len(tgt) >= segLen && segLen >= minFFTSegmentLen {
		bestFrame, bestCorr = l.fftSearch(seg, tgt)
	} else {
		bestFrame, bestCorr = l.directSearch(seg, tgt, segFrames, target.Frames)
	}
	if bestFrame < 0 || bestCorr < l.threshold {
		return Match{}, false
	}

	start := snap(float64(bestFrame) / l.framesPerSecond)
	return Match{
		Start:       start,
		End:         snap(start + segDur),
		Correlation: bestCorr,
	}, true
}

func snap(t float64) float64 {
	return math.Round(t*1000) / 1000
}

// fftSearch cross-correlates the z-scored segment against the z-scored
// target in the frequency domain, then re-verifies the strongest peaks
// exactly at frame-aligned offsets. Peak scores from the transform are
// only used for ranking, so the unnormalized inverse is fine.
func (l *Locator) fftSearch(seg, tgt []float64) (int, float64) {
	segLen := len(seg)
	tgtNorm := make([]float64, len(tgt))
	copy(tgtNorm, tgt)
	if mean, std := meanStd(tgtNorm); std > fingerprint.Epsilon {
		for i := range tgtNorm {
			tgtNorm[i] = clip((tgtNorm[i]-mean)/std, -clipSigma, clipSigma)
		}
	}
	n := nextPow2(len(tgt) + segLen - 1)
	fft := fourier.NewFFT(n)
	padTgt := make([]float64, n)
	copy(padTgt, tgtNorm)
	padSeg := make([]float64, n)
	copy(padSeg, seg)

	ct := fft.Coefficients(nil, padTgt)
	cs := fft.Coefficients(nil, padSeg)
	for i := range ct {
		ct[i] *= cmplx.Conj(cs[i])
	}
	corr := fft.Sequence(nil, ct)

	valid := len(tgt) - segLen + 1
	if valid <= 0 {
		return -1, 0
	}
	idx := make([]int, valid)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return corr[idx[a]] > corr[idx[b]] })
	if len(idx) > fftCandidateCount {
		idx = idx[:fftCandidateCount]
	}

	seen := make(map[int]struct{}, len(idx))
	bestFrame := -1
	bestCorr := 0.0
	for _, i := range idx {
		frame := i / l.bands
		if _, ok := seen[frame]; ok {
			continue
		}
		seen[frame] = struct{}{}
		c := correlateAt(seg, tgt, frame*l.bands)
		if c > bestCorr {
			bestCorr = c
			bestFrame = frame
		}
	}
	return bestFrame, bestCorr
}

// directSearch scans frame-aligned offsets with a stride derived from the
// comparison window and the refinement step count.
func (l *Locator) directSearch(seg, tgt []float64, segFrames, targetFrames int) (int, float64) {
	steps := l.refinementSteps
	if steps < 1 {
		steps = 1
	}
	step := l.windowFrames / steps
	if step < 1 {
		step = 1
	}
	bestFrame := -1
	bestCorr := 0.0
	for frame := 0; frame+segFrames <= targetFrames; frame += step {
		c := correlateAt(seg, tgt, frame*l.bands)
		if c > bestCorr {
			bestCorr = c
			bestFrame = frame
		}
	}
	return bestFrame, bestCorr
}

// correlateAt computes the exact clipped similarity between the z-scored
// segment and the target window starting at flat offset off.
func correlateAt(seg, tgt []float64, off int) float64 {
	if off < 0 || off+len(seg) > len(tgt) {
		return 0
	}
	win := tgt[off : off+len(seg)]
	mean, std := meanStd(win)
	if std <= fingerprint.Epsilon {
		return 0
	}
	var dot float64
	for i, v := range seg {
		dot += v * (win[i] - mean) / std
	}
	sim := dot / float64(len(seg))
	if sim < 0 {
		return 0
	}
	return sim
}

func flatten(fp *fingerprint.Fingerprint, startFrame, endFrame int) []float64 {
	out := make([]float64, 0, (endFrame-startFrame)*fp.Bands)
	for f := startFrame; f < endFrame; f++ {
		for _, v := range fp.Row(f) {
			out = append(out, float64(v))
		}
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
