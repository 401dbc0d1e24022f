package config

import (
	"strings"
	"testing"
)

func TestProfileForKnownTypes(t *testing.T) {
	for _, name := range ShowTypes() {
		p, err := ProfileFor(name, Overrides{})
		if err != nil {
			t.Fatalf("ProfileFor(%q): %v", name, err)
		}
		if err := p.Validate(); err != nil {
			t.Fatalf("preset %q fails validation: %v", name, err)
		}
	}
}

func TestProfileForDefaultsToStandard(t *testing.T) {
	standard, err := ProfileFor("standard", Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	blank, err := ProfileFor("  ", Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if blank != standard {
		t.Fatal("blank show type should resolve to the standard profile")
	}
}

func TestProfileForUnknownType(t *testing.T) {
	_, err := ProfileFor("soap-opera", Overrides{})
	if err == nil {
		t.Fatal("expected error for unknown show type")
	}
	if !strings.Contains(err.Error(), "soap-opera") {
		t.Fatalf("error %q does not name the bad type", err)
	}
}

func TestProfileOverrides(t *testing.T) {
	threshold := 0.55
	agree := 3
	graph := false
	p, err := ProfileFor("anime", Overrides{
		SimilarityThreshold: &threshold,
		MinEpisodesAgree:    &agree,
		UseGraphConsensus:   &graph,
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.SimilarityThreshold != threshold {
		t.Errorf("threshold = %g, want %g", p.SimilarityThreshold, threshold)
	}
	if p.MinEpisodesAgree != agree {
		t.Errorf("min agree = %d, want %d", p.MinEpisodesAgree, agree)
	}
	if p.UseGraphConsensus {
		t.Error("graph consensus should be disabled")
	}
}

func TestProfileOverrideValidation(t *testing.T) {
	bad := -1.0
	if _, err := ProfileFor("standard", Overrides{SimilarityThreshold: &bad}); err == nil {
		t.Fatal("expected validation error for negative threshold")
	}
	minDur := 500.0
	if _, err := ProfileFor("standard", Overrides{MinSegmentDuration: &minDur}); err == nil {
		t.Fatal("expected validation error for min above max segment duration")
	}
}

func TestProfileHashStability(t *testing.T) {
	a, _ := ProfileFor("standard", Overrides{})
	b, _ := ProfileFor("standard", Overrides{})
	if a.Hash() != b.Hash() {
		t.Fatal("identical profiles hash differently")
	}
	if len(a.Hash()) != 16 {
		t.Fatalf("hash length = %d, want 16", len(a.Hash()))
	}
}

func TestProfileHashSensitivity(t *testing.T) {
	base, _ := ProfileFor("standard", Overrides{})
	end := base.IntroSearchEnd + 30
	changed, _ := ProfileFor("standard", Overrides{IntroSearchEnd: &end})
	if base.Hash() == changed.Hash() {
		t.Fatal("search window change did not change the hash")
	}

	// Comparison-time parameters do not shape fingerprint content, so they
	// must not invalidate cached fingerprints.
	threshold := 0.5
	sameData, _ := ProfileFor("standard", Overrides{SimilarityThreshold: &threshold})
	if base.Hash() != sameData.Hash() {
		t.Fatal("threshold change invalidated the fingerprint hash")
	}
}

func TestProfileDerivedValues(t *testing.T) {
	p, _ := ProfileFor("standard", Overrides{})
	if got := p.FrameSize(); got != p.HopLength*p.FrameSizeMultiplier {
		t.Errorf("frame size = %d", got)
	}
	fps := p.FramesPerSecond()
	if fps <= 0 {
		t.Fatalf("frames per second = %g", fps)
	}
	if got := p.WindowFrames(); got != int(p.ComparisonWindow*fps) {
		t.Errorf("window frames = %d", got)
	}
}

func TestWithGraphConsensusReturnsCopy(t *testing.T) {
	p, _ := ProfileFor("standard", Overrides{})
	off := p.WithGraphConsensus(false)
	if !p.UseGraphConsensus {
		t.Fatal("original profile mutated")
	}
	if off.UseGraphConsensus {
		t.Fatal("copy did not disable graph consensus")
	}
}
