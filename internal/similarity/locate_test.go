package similarity

import (
	"math"
	"testing"

	"skipscan/internal/fingerprint"
)

// plantSegment copies frames [srcStart, srcEnd) of src into dst at
// dstStart.
func plantSegment(dst, src *fingerprint.Fingerprint, srcStart, srcEnd, dstStart int) {
	for f := srcStart; f < srcEnd; f++ {
		copy(dst.Row(dstStart+f-srcStart), src.Row(f))
	}
}

func TestLocateFFTPath(t *testing.T) {
	const (
		fps   = 10.0
		bands = 4
	)
	ref := randomFingerprint(10, 100, bands)
	target := randomFingerprint(11, 200, bands)
	// Segment frames 20-40 planted at target frame 50. Flattened length is
	// 80, well into cross-correlation territory.
	plantSegment(target, ref, 20, 40, 50)

	loc := NewLocator(fps, bands, 20, 4, 0.8, 0.9)
	match, ok := loc.Locate(ref, target, 2.0, 4.0)
	if !ok {
		t.Fatal("planted segment not found")
	}
	if math.Abs(match.Start-5.0) > 1e-9 {
		t.Fatalf("start = %g, want 5.0", match.Start)
	}
	if math.Abs(match.End-7.0) > 1e-9 {
		t.Fatalf("end = %g, want 7.0", match.End)
	}
	if match.Correlation < 0.99 {
		t.Fatalf("correlation = %g, want about 1", match.Correlation)
	}
}

func TestLocateDirectPath(t *testing.T) {
	const (
		fps   = 10.0
		bands = 4
	)
	ref := randomFingerprint(20, 100, bands)
	target := randomFingerprint(21, 200, bands)
	// Ten frames flatten to 40 values, below the transform cutoff, so the
	// strided scan runs. Stride is windowFrames/steps = 5; the planted
	// offset sits on the stride grid.
	plantSegment(target, ref, 20, 30, 50)

	loc := NewLocator(fps, bands, 20, 4, 0.8, 0.9)
	match, ok := loc.Locate(ref, target, 2.0, 3.0)
	if !ok {
		t.Fatal("planted segment not found")
	}
	if math.Abs(match.Start-5.0) > 1e-9 {
		t.Fatalf("start = %g, want 5.0", match.Start)
	}
	if match.Correlation < 0.99 {
		t.Fatalf("correlation = %g, want about 1", match.Correlation)
	}
}

func TestLocateRejectsBelowThreshold(t *testing.T) {
	const (
		fps   = 10.0
		bands = 4
	)
	// Unrelated noise on both sides; nothing should clear the threshold.
	ref := randomFingerprint(30, 100, bands)
	target := randomFingerprint(31, 200, bands)

	loc := NewLocator(fps, bands, 20, 4, 0.8, 0.9)
	if _, ok := loc.Locate(ref, target, 2.0, 4.0); ok {
		t.Fatal("random noise produced a match above threshold")
	}
}

func TestLocateDegenerateInputs(t *testing.T) {
	const (
		fps   = 10.0
		bands = 4
	)
	ref := randomFingerprint(40, 100, bands)
	short := randomFingerprint(41, 5, bands)
	flat := constantFingerprint(100, bands, 0.5)
	loc := NewLocator(fps, bands, 20, 4, 0.8, 0.9)

	if _, ok := loc.Locate(nil, ref, 2, 4); ok {
		t.Fatal("nil reference accepted")
	}
	if _, ok := loc.Locate(ref, short, 2, 4); ok {
		t.Fatal("segment longer than target accepted")
	}
	if _, ok := loc.Locate(ref, ref, 4, 2); ok {
		t.Fatal("inverted span accepted")
	}
	// A constant segment has no variance to correlate.
	if _, ok := loc.Locate(flat, ref, 2, 4); ok {
		t.Fatal("zero-variance segment accepted")
	}
}
