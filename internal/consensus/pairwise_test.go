package consensus

import (
	"math"
	"testing"

	"skipscan/internal/fingerprint"
	"skipscan/internal/similarity"
)

// simMatrix builds a reference-vs-episode block matrix with a low baseline
// similarity everywhere and the given per-row peaks.
func simMatrix(rows int, peaks map[int]float32) *similarity.Matrix {
	cols := 3
	m := &similarity.Matrix{Rows: rows, Cols: cols, Values: make([]float32, rows*cols)}
	for i := range m.Values {
		m.Values[i] = 0.2
	}
	for r, v := range peaks {
		m.Values[r*cols] = v
	}
	return m
}

func TestFindCommonAgreeingRun(t *testing.T) {
	p := testProfile()
	peaks := map[int]float32{2: 0.9, 3: 0.9, 4: 0.9}
	sims := []EpisodeSimilarity{
		{Path: "b.mkv", Sim: simMatrix(10, peaks)},
		{Path: "c.mkv", Sim: simMatrix(10, peaks)},
	}
	c, ok := FindCommon(sims, p, nil, "intro")
	if !ok {
		t.Fatal("no candidate found")
	}
	if c.Start != 4 || c.End != 10 {
		t.Fatalf("candidate = [%g, %g], want [4, 10]", c.Start, c.End)
	}
	if math.Abs(c.Score-0.9) > 1e-6 {
		t.Fatalf("score = %g, want 0.9", c.Score)
	}
}

func TestFindCommonRelaxesAgreementByOne(t *testing.T) {
	p := testProfile()
	sims := []EpisodeSimilarity{
		{Path: "b.mkv", Sim: simMatrix(10, map[int]float32{2: 0.85, 3: 0.85, 4: 0.85})},
		{Path: "c.mkv", Sim: simMatrix(10, nil)},
	}
	c, ok := FindCommon(sims, p, nil, "intro")
	if !ok {
		t.Fatal("relaxed agreement pass found nothing")
	}
	if c.Start != 4 || c.End != 10 {
		t.Fatalf("candidate = [%g, %g], want [4, 10]", c.Start, c.End)
	}
}

func TestFindCommonNoAgreement(t *testing.T) {
	p := testProfile()
	sims := []EpisodeSimilarity{
		{Path: "b.mkv", Sim: simMatrix(10, nil)},
		{Path: "c.mkv", Sim: simMatrix(10, nil)},
	}
	if _, ok := FindCommon(sims, p, nil, "intro"); ok {
		t.Fatal("candidate found in noise")
	}
}

func TestFindCommonRejectsShortRuns(t *testing.T) {
	p := testProfile()
	// One agreeing window is 2 seconds, below the 4 second minimum.
	peaks := map[int]float32{3: 0.9}
	sims := []EpisodeSimilarity{
		{Path: "b.mkv", Sim: simMatrix(10, peaks)},
		{Path: "c.mkv", Sim: simMatrix(10, peaks)},
	}
	if _, ok := FindCommon(sims, p, nil, "intro"); ok {
		t.Fatal("run below the minimum duration accepted")
	}
}

func TestFindCommonEmptyInput(t *testing.T) {
	p := testProfile()
	if _, ok := FindCommon(nil, p, nil, "intro"); ok {
		t.Fatal("candidate from no episodes")
	}
	if _, ok := FindCommon([]EpisodeSimilarity{{Path: "b.mkv"}}, p, nil, "intro"); ok {
		t.Fatal("candidate from nil matrices")
	}
}

func TestContiguousRuns(t *testing.T) {
	runs := contiguousRuns([]bool{false, true, true, false, true})
	want := [][2]int{{1, 2}, {4, 4}}
	if len(runs) != len(want) {
		t.Fatalf("runs = %v, want %v", runs, want)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Fatalf("runs = %v, want %v", runs, want)
		}
	}
	if got := contiguousRuns([]bool{true, true}); len(got) != 1 || got[0] != [2]int{0, 1} {
		t.Fatalf("open-ended run = %v", got)
	}
}

// TestFindCommonOnBlockSimilarities feeds FindCommon real block matrices
// instead of hand-built ones. Three episodes share a 10 second pattern at
// seconds 10-20; the pairwise path must recover it through reference
// selection and window comparison alone.
func TestFindCommonOnBlockSimilarities(t *testing.T) {
	p := testProfile()
	pattern := noiseFingerprint(77, 100, p.Bands)
	paths := []string{"a.mkv", "b.mkv", "c.mkv"}
	fps := make(map[string]*fingerprint.Fingerprint, len(paths))
	episodes := make([]Episode, 0, len(paths))
	for i, path := range paths {
		fp := noiseFingerprint(int64(20+i), 600, p.Bands)
		sharedAt(fp, pattern, 100)
		fps[path] = fp
		episodes = append(episodes, Episode{Path: path, Duration: 1290 + float64(i)*10})
	}

	ref, ok := SelectReference(episodes, fps)
	if !ok {
		t.Fatal("no reference selected")
	}
	sims := make([]EpisodeSimilarity, 0, len(paths)-1)
	for _, path := range paths {
		if path == ref {
			continue
		}
		sims = append(sims, EpisodeSimilarity{
			Path: path,
			Sim:  similarity.BlockMatrix(fps[ref], fps[path], p.WindowFrames()),
		})
	}

	c, ok := FindCommon(sims, p, nil, "intro")
	if !ok {
		t.Fatal("no candidate found")
	}
	if c.Start != 10 || c.End != 20 {
		t.Fatalf("candidate = [%g, %g], want [10, 20]", c.Start, c.End)
	}
	if c.Score < 0.9 {
		t.Fatalf("score = %g, want near-perfect match", c.Score)
	}
}
