package consensus

import (
	"log/slog"

	"skipscan/internal/config"
	"skipscan/internal/logging"
	"skipscan/internal/similarity"
)

// EpisodeSimilarity pairs an episode path with its block similarity matrix
// against the reference episode. Rows index reference windows.
type EpisodeSimilarity struct {
	Path string
	Sim  *similarity.Matrix
}

// FindCommon scans the reference episode's comparison windows for stretches
// where enough episodes show a match above the similarity threshold. When
// no window meets the configured agreement count, it retries once with the
// requirement relaxed by one episode. The winning region is the contiguous
// run with the highest product of mean best score and mean agreement whose
// duration fits the profile bounds; its reported score is the mean best
// score alone.
func FindCommon(sims []EpisodeSimilarity, p config.Profile, log *slog.Logger, segmentType string) (Candidate, bool) {
	if log == nil {
		log = logging.NewNop()
	}
	if len(sims) == 0 {
		return Candidate{}, false
	}

	windows := 0
	for _, s := range sims {
		if s.Sim != nil && s.Sim.Rows > windows {
			windows = s.Sim.Rows
		}
	}
	if windows == 0 {
		return Candidate{}, false
	}

	agreement := make([]float64, windows)
	bestScores := make([]float64, windows)
	coverage := make([]float64, windows)
	for _, s := range sims {
		if s.Sim == nil {
			continue
		}
		for i := 0; i < s.Sim.Rows && i < windows; i++ {
			coverage[i]++
			if s.Sim.Cols == 0 {
				continue
			}
			var max float32
			for c := 0; c < s.Sim.Cols; c++ {
				if v := s.Sim.At(i, c); v > max {
					max = v
				}
			}
			if float64(max) >= p.SimilarityThreshold {
				agreement[i]++
				if float64(max) > bestScores[i] {
					bestScores[i] = float64(max)
				}
			}
		}
	}

	normAgreement := make([]float64, windows)
	for i := range normAgreement {
		cov := coverage[i]
		if cov < 1 {
			cov = 1
		}
		normAgreement[i] = agreement[i] / cov
	}

	agreeing := thresholdAgreement(normAgreement, p.MinEpisodesAgree, len(sims))
	if agreeing == nil {
		relaxed := p.MinEpisodesAgree - 1
		if relaxed < 1 {
			relaxed = 1
		}
		log.Warn("no windows met the agreement requirement, relaxing by one",
			logging.String(logging.FieldSegmentType, segmentType),
			logging.Int("min_agree", p.MinEpisodesAgree),
			logging.Int("relaxed", relaxed))
		agreeing = thresholdAgreement(normAgreement, relaxed, len(sims))
		if agreeing == nil {
			return Candidate{}, false
		}
	}

	var best Candidate
	bestRank := 0.0
	found := false
	for _, r := range contiguousRuns(agreeing) {
		start := float64(r[0]) * p.ComparisonWindow
		end := float64(r[1]+1) * p.ComparisonWindow
		if dur := end - start; dur < p.MinSegmentDuration || dur > p.MaxSegmentDuration {
			continue
		}
		var scoreSum, agreeSum float64
		for i := r[0]; i <= r[1]; i++ {
			scoreSum += bestScores[i]
			agreeSum += normAgreement[i]
		}
		count := float64(r[1] - r[0] + 1)
		meanScore := scoreSum / count
		rank := meanScore * (agreeSum / count)
		if rank > bestRank {
			bestRank = rank
			best = Candidate{Start: start, End: end, Score: meanScore}
			found = true
		}
	}
	return best, found
}

// thresholdAgreement marks windows whose agreement fraction reaches
// minAgree out of episodeCount episodes, or nil when none do.
func thresholdAgreement(normAgreement []float64, minAgree, episodeCount int) []bool {
	if episodeCount < 1 {
		episodeCount = 1
	}
	frac := float64(minAgree) / float64(episodeCount)
	out := make([]bool, len(normAgreement))
	any := false
	for i, v := range normAgreement {
		if v >= frac {
			out[i] = true
			any = true
		}
	}
	if !any {
		return nil
	}
	return out
}

// contiguousRuns returns inclusive [start, end] index pairs of true runs.
func contiguousRuns(mask []bool) [][2]int {
	var runs [][2]int
	start := -1
	for i, v := range mask {
		switch {
		case v && start < 0:
			start = i
		case !v && start >= 0:
			runs = append(runs, [2]int{start, i - 1})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, len(mask) - 1})
	}
	return runs
}
