package consensus

import (
	"log/slog"
	"math"

	"skipscan/internal/config"
	"skipscan/internal/fingerprint"
	"skipscan/internal/logging"
)

const (
	// graphTopK is how many strongest cross-episode correlations each chunk
	// contributes when computing its consensus degree.
	graphTopK = 3
	// graphMaxMatrixMB caps the chunk correlation matrix size. Above it the
	// graph detector refuses to run and the caller falls back to pairwise
	// comparison.
	graphMaxMatrixMB = 500
	// graphMinRunScore is the floor a best run must clear to count as a
	// candidate at all.
	graphMinRunScore = 0.05
)

// Graph runs the all-pairs chunk correlation detector over the episode
// fingerprints. It returns the reference episode path (the one with the
// strongest candidate), the consensus candidate, and every per-episode
// candidate. ok is false when fewer than two episodes have fingerprints,
// when the correlation matrix would exceed the memory cap, or when no run
// clears the score floor.
func Graph(eps []EpisodeFingerprint, p config.Profile, log *slog.Logger, segmentType string) (string, Candidate, map[string]Candidate, bool) {
	if log == nil {
		log = logging.NewNop()
	}
	if len(eps) < 2 {
		return "", Candidate{}, nil, false
	}
	chunkSec := p.ComparisonWindow
	hopSec := chunkSec / 2
	fps := p.FramesPerSecond()
	chunkFrames := int(chunkSec * fps)
	if chunkFrames < 1 {
		chunkFrames = 1
	}
	hopFrames := int(hopSec * fps)
	if hopFrames < 1 {
		hopFrames = 1
	}

	type chunkMeta struct {
		episode int
		start   float64
	}
	var meta []chunkMeta
	var vectors [][]float64
	ranges := make([][2]int, len(eps))
	dim := chunkFrames * p.Bands
	for ei, ep := range eps {
		lo := len(meta)
		for _, c := range chunkFingerprint(ep.FP, chunkFrames, hopFrames, fps, dim) {
			meta = append(meta, chunkMeta{episode: ei, start: c.start})
			vectors = append(vectors, c.vec)
		}
		ranges[ei] = [2]int{lo, len(meta)}
	}

	n := len(meta)
	if n < 2 {
		return "", Candidate{}, nil, false
	}
	if estMB := float64(n) * float64(n) * 8 / (1 << 20); estMB > graphMaxMatrixMB {
		log.Warn("graph consensus skipped, correlation matrix too large",
			logging.String(logging.FieldSegmentType, segmentType),
			logging.Int("chunks", n),
			logging.Float64("estimated_mb", math.Round(estMB)))
		return "", Candidate{}, nil, false
	}

	corr := pearsonMatrix(vectors)
	for _, r := range ranges {
		for i := r[0]; i < r[1]; i++ {
			for j := r[0]; j < r[1]; j++ {
				corr[i*n+j] = 0
			}
		}
	}
	for i, v := range corr {
		if v < p.SimilarityThreshold {
			corr[i] = 0
		}
	}

	// Each chunk's degree is the mean of its top-K correlations into every
	// other episode, averaged over the other episodes.
	degree := make([]float64, n)
	topBuf := make([]float64, 0, graphTopK)
	for e := range eps {
		lo, hi := ranges[e][0], ranges[e][1]
		if lo >= hi {
			continue
		}
		k := graphTopK
		if hi-lo < k {
			k = hi - lo
		}
		for i := 0; i < n; i++ {
			if meta[i].episode == e {
				continue
			}
			topBuf = topBuf[:0]
			for j := lo; j < hi; j++ {
				topBuf = insertTopK(topBuf, corr[i*n+j], k)
			}
			var sum float64
			for _, v := range topBuf {
				sum += v
			}
			degree[i] += sum / float64(k)
		}
	}
	div := float64(len(eps) - 1)
	if div < 1 {
		div = 1
	}
	for i := range degree {
		degree[i] /= div
	}

	perEpisode := make(map[string]Candidate)
	for ei, ep := range eps {
		lo, hi := ranges[ei][0], ranges[ei][1]
		nc := hi - lo
		if nc < 1 {
			continue
		}
		minChunks := int(math.Ceil((p.MinSegmentDuration-chunkSec)/hopSec)) + 1
		if minChunks < 1 {
			minChunks = 1
		}
		maxChunks := int(math.Floor((p.MaxSegmentDuration-chunkSec)/hopSec)) + 1
		if maxChunks < minChunks {
			maxChunks = minChunks
		}
		if maxChunks > nc {
			maxChunks = nc
		}
		if minChunks > nc {
			continue
		}

		prefix := make([]float64, nc+1)
		for i := 0; i < nc; i++ {
			prefix[i+1] = prefix[i] + degree[lo+i]
		}
		bestAvg := 0.0
		bestStart, bestLen := 0, minChunks
		for length := minChunks; length <= maxChunks; length++ {
			for s := 0; s+length <= nc; s++ {
				avg := (prefix[s+length] - prefix[s]) / float64(length)
				if avg > bestAvg {
					bestAvg = avg
					bestStart = s
					bestLen = length
				}
			}
		}
		if bestAvg > graphMinRunScore {
			perEpisode[ep.Path] = Candidate{
				Start: meta[lo+bestStart].start,
				End:   meta[lo+bestStart+bestLen-1].start + chunkSec,
				Score: bestAvg,
			}
		}
	}
	if len(perEpisode) == 0 {
		return "", Candidate{}, nil, false
	}

	bestPath := ""
	bestScore := math.Inf(-1)
	for _, ep := range eps {
		if c, ok := perEpisode[ep.Path]; ok && c.Score > bestScore {
			bestScore = c.Score
			bestPath = ep.Path
		}
	}
	best := perEpisode[bestPath]
	log.Info("graph consensus found segment",
		logging.String(logging.FieldSegmentType, segmentType),
		logging.Float64("start", best.Start),
		logging.Float64("end", best.End),
		logging.Float64("score", best.Score),
		logging.Int("episodes_matched", len(perEpisode)),
		logging.Int("episodes_total", len(eps)))
	return bestPath, best, perEpisode, true
}

type chunk struct {
	start float64
	vec   []float64
}

// chunkFingerprint cuts a fingerprint into half-overlapping chunks of
// chunkFrames frames each, flattened to float64. A fingerprint shorter than
// one chunk yields a single zero-padded chunk at offset 0.
func chunkFingerprint(fp *fingerprint.Fingerprint, chunkFrames, hopFrames int, fps float64, dim int) []chunk {
	if fp == nil || fp.Frames < 1 {
		return nil
	}
	flat := func(startFrame, frames int) []float64 {
		vec := make([]float64, dim)
		for f := 0; f < frames; f++ {
			row := fp.Row(startFrame + f)
			for b, v := range row {
				vec[f*fp.Bands+b] = float64(v)
			}
		}
		return vec
	}
	if fp.Frames < chunkFrames {
		return []chunk{{start: 0, vec: flat(0, fp.Frames)}}
	}
	var out []chunk
	for pos := 0; pos+chunkFrames <= fp.Frames; pos += hopFrames {
		out = append(out, chunk{start: float64(pos) / fps, vec: flat(pos, chunkFrames)})
	}
	return out
}

// pearsonMatrix returns the n by n correlation matrix between the mean
// centered, L2 normalized vectors, clipped to [0, 1] with the diagonal and
// any near-constant vector's row and column zeroed.
func pearsonMatrix(vectors [][]float64) []float64 {
	n := len(vectors)
	valid := make([]bool, n)
	normed := make([][]float64, n)
	for i, v := range vectors {
		w := make([]float64, len(v))
		var sum float64
		for _, x := range v {
			sum += x
		}
		mean := sum / float64(len(v))
		var sq float64
		for j, x := range v {
			w[j] = x - mean
			sq += w[j] * w[j]
		}
		norm := math.Sqrt(sq)
		if norm > fingerprint.Epsilon {
			valid[i] = true
			for j := range w {
				w[j] /= norm
			}
		}
		normed[i] = w
	}
	corr := make([]float64, n*n)
	for i := 0; i < n; i++ {
		if !valid[i] {
			continue
		}
		for j := i + 1; j < n; j++ {
			if !valid[j] {
				continue
			}
			var dot float64
			for k, x := range normed[i] {
				dot += x * normed[j][k]
			}
			if dot < 0 {
				dot = 0
			} else if dot > 1 {
				dot = 1
			}
			corr[i*n+j] = dot
			corr[j*n+i] = dot
		}
	}
	return corr
}

// insertTopK keeps the k largest values seen so far in descending order.
func insertTopK(top []float64, v float64, k int) []float64 {
	if len(top) < k {
		top = append(top, v)
	} else if v > top[len(top)-1] {
		top[len(top)-1] = v
	} else {
		return top
	}
	for i := len(top) - 1; i > 0 && top[i] > top[i-1]; i-- {
		top[i], top[i-1] = top[i-1], top[i]
	}
	return top
}
