package consensus

import (
	"math"
	"math/rand"
	"testing"

	"skipscan/internal/config"
	"skipscan/internal/fingerprint"
)

func testProfile() config.Profile {
	return config.Profile{
		SampleRate:                1000,
		HopLength:                 100,
		Bands:                     4,
		FrameSizeMultiplier:       4,
		ComparisonWindow:          2,
		IntroSearchStart:          0,
		IntroSearchEnd:            60,
		OutroSearchDuration:       30,
		MinSegmentDuration:        4,
		MaxSegmentDuration:        20,
		SimilarityThreshold:       0.7,
		PerEpisodeThresholdFactor: 0.9,
		MinEpisodesAgree:          2,
		RefinementSteps:           4,
		UseGraphConsensus:         true,
	}
}

func noiseFingerprint(seed int64, frames, bands int) *fingerprint.Fingerprint {
	rng := rand.New(rand.NewSource(seed))
	values := make([]float32, frames*bands)
	for i := range values {
		values[i] = rng.Float32()
	}
	return &fingerprint.Fingerprint{Values: values, Frames: frames, Bands: bands}
}

// sharedAt overlays the shared pattern into fp starting at frame offset.
func sharedAt(fp, pattern *fingerprint.Fingerprint, offset int) {
	for f := 0; f < pattern.Frames; f++ {
		copy(fp.Values[(offset+f)*fp.Bands:], pattern.Row(f))
	}
}

func TestSelectReferencePrefersMedianDuration(t *testing.T) {
	fps := map[string]*fingerprint.Fingerprint{
		"short.mkv":  noiseFingerprint(1, 100, 4),
		"median.mkv": noiseFingerprint(2, 100, 4),
		"long.mkv":   noiseFingerprint(3, 100, 4),
	}
	episodes := []Episode{
		{Path: "short.mkv", Duration: 900},
		{Path: "median.mkv", Duration: 1300},
		{Path: "long.mkv", Duration: 2500},
	}
	ref, ok := SelectReference(episodes, fps)
	if !ok {
		t.Fatal("no reference selected")
	}
	if ref != "median.mkv" {
		t.Fatalf("reference = %q, want median.mkv", ref)
	}
}

func TestSelectReferenceSkipsMissingFingerprints(t *testing.T) {
	fps := map[string]*fingerprint.Fingerprint{
		"b.mkv": noiseFingerprint(4, 100, 4),
	}
	episodes := []Episode{
		{Path: "a.mkv", Duration: 1300},
		{Path: "b.mkv", Duration: 900},
	}
	ref, ok := SelectReference(episodes, fps)
	if !ok || ref != "b.mkv" {
		t.Fatalf("reference = %q ok = %t, want b.mkv", ref, ok)
	}
	if _, ok := SelectReference(episodes, nil); ok {
		t.Fatal("reference selected with no fingerprints")
	}
}

func TestGraphFindsSharedSegment(t *testing.T) {
	p := testProfile()
	// 60 second regions at 10 frames/second. The shared pattern spans
	// seconds 10-20 of every episode.
	pattern := noiseFingerprint(99, 100, p.Bands)
	eps := make([]EpisodeFingerprint, 0, 3)
	for i := int64(0); i < 3; i++ {
		fp := noiseFingerprint(10+i, 600, p.Bands)
		sharedAt(fp, pattern, 100)
		eps = append(eps, EpisodeFingerprint{Path: string(rune('a'+i)) + ".mkv", FP: fp})
	}

	refPath, best, perEpisode, ok := Graph(eps, p, nil, "intro")
	if !ok {
		t.Fatal("graph found no consensus")
	}
	if refPath == "" {
		t.Fatal("no reference path")
	}
	if len(perEpisode) != 3 {
		t.Fatalf("per-episode candidates = %d, want 3", len(perEpisode))
	}
	for path, c := range perEpisode {
		if c.Start < 9 || c.End > 21 {
			t.Errorf("%s candidate [%g, %g] outside planted region [10, 20]", path, c.Start, c.End)
		}
		if c.Start >= 20 || c.End <= 10 {
			t.Errorf("%s candidate [%g, %g] does not overlap planted region", path, c.Start, c.End)
		}
		if c.Duration() < p.MinSegmentDuration || c.Duration() > p.MaxSegmentDuration {
			t.Errorf("%s duration %g outside profile bounds", path, c.Duration())
		}
	}
	if best.Score <= 0 {
		t.Fatalf("best score = %g", best.Score)
	}
}

func TestGraphNeedsTwoEpisodes(t *testing.T) {
	p := testProfile()
	eps := []EpisodeFingerprint{{Path: "a.mkv", FP: noiseFingerprint(1, 600, p.Bands)}}
	if _, _, _, ok := Graph(eps, p, nil, "intro"); ok {
		t.Fatal("graph ran with one episode")
	}
}

func TestGraphPureNoiseFindsNothing(t *testing.T) {
	p := testProfile()
	eps := []EpisodeFingerprint{
		{Path: "a.mkv", FP: noiseFingerprint(50, 600, p.Bands)},
		{Path: "b.mkv", FP: noiseFingerprint(51, 600, p.Bands)},
		{Path: "c.mkv", FP: noiseFingerprint(52, 600, p.Bands)},
	}
	if _, _, _, ok := Graph(eps, p, nil, "intro"); ok {
		t.Fatal("graph hallucinated a segment from noise")
	}
}

func TestInsertTopK(t *testing.T) {
	var top []float64
	for _, v := range []float64{0.2, 0.9, 0.5, 0.1, 0.8} {
		top = insertTopK(top, v, 3)
	}
	want := []float64{0.9, 0.8, 0.5}
	if len(top) != len(want) {
		t.Fatalf("len = %d, want %d", len(top), len(want))
	}
	for i, v := range want {
		if math.Abs(top[i]-v) > 1e-12 {
			t.Fatalf("top[%d] = %g, want %g", i, top[i], v)
		}
	}
}

func TestPearsonMatrixProperties(t *testing.T) {
	vectors := [][]float64{
		{1, 2, 3, 4},
		{2, 4, 6, 8},
		{4, 3, 2, 1},
		{5, 5, 5, 5},
	}
	corr := pearsonMatrix(vectors)
	n := len(vectors)

	if got := corr[0*n+1]; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("scaled copy correlation = %g, want 1", got)
	}
	// Negative correlation clips to zero.
	if got := corr[0*n+2]; got != 0 {
		t.Errorf("anti-correlated pair = %g, want 0", got)
	}
	// Constant vector's row and column stay zero.
	for i := 0; i < n; i++ {
		if corr[3*n+i] != 0 || corr[i*n+3] != 0 {
			t.Fatal("constant vector produced nonzero correlation")
		}
	}
	// Diagonal is zeroed.
	for i := 0; i < n; i++ {
		if corr[i*n+i] != 0 {
			t.Fatal("diagonal not zeroed")
		}
	}
}
