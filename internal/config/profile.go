package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Profile bundles the numeric detection parameters for one show type.
// Values are fixed at construction; runtime narrowing (disabling graph
// consensus under memory pressure) goes through WithGraphConsensus which
// returns a copy.
type Profile struct {
	SampleRate          int
	HopLength           int
	Bands               int
	FrameSizeMultiplier int

	// ComparisonWindow is the similarity window length in seconds.
	ComparisonWindow float64

	IntroSearchStart    float64
	IntroSearchEnd      float64
	OutroSearchDuration float64
	MinSegmentDuration  float64
	MaxSegmentDuration  float64

	SimilarityThreshold       float64
	PerEpisodeThresholdFactor float64
	MinEpisodesAgree          int
	RefinementSteps           int
	UseGraphConsensus         bool
}

// Overrides carries optional field-by-field profile adjustments; nil
// pointers leave the preset value untouched.
type Overrides struct {
	IntroSearchStart    *float64
	IntroSearchEnd      *float64
	OutroSearchDuration *float64
	MinSegmentDuration  *float64
	MaxSegmentDuration  *float64
	SimilarityThreshold *float64
	MinEpisodesAgree    *int
	UseGraphConsensus   *bool
}

var commonProfile = Profile{
	SampleRate:                22050,
	HopLength:                 512,
	Bands:                     8,
	FrameSizeMultiplier:       4,
	ComparisonWindow:          10,
	PerEpisodeThresholdFactor: 0.9,
	MinEpisodesAgree:          2,
	RefinementSteps:           4,
	UseGraphConsensus:         true,
}

func preset(mutate func(*Profile)) Profile {
	p := commonProfile
	mutate(&p)
	return p
}

var showProfiles = map[string]Profile{
	"standard": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 0, 420
		p.OutroSearchDuration = 150
		p.MinSegmentDuration, p.MaxSegmentDuration = 15, 120
		p.SimilarityThreshold = 0.80
	}),
	"anime": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 0, 210
		p.OutroSearchDuration = 150
		p.MinSegmentDuration, p.MaxSegmentDuration = 60, 105
		p.SimilarityThreshold = 0.73
	}),
	"sitcom": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 0, 180
		p.OutroSearchDuration = 90
		p.MinSegmentDuration, p.MaxSegmentDuration = 10, 70
		p.ComparisonWindow = 8
		p.SimilarityThreshold = 0.80
	}),
	"comedy": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 0, 240
		p.OutroSearchDuration = 120
		p.MinSegmentDuration, p.MaxSegmentDuration = 15, 90
		p.SimilarityThreshold = 0.78
	}),
	"drama": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 0, 480
		p.OutroSearchDuration = 150
		p.MinSegmentDuration, p.MaxSegmentDuration = 30, 150
		p.SimilarityThreshold = 0.78
	}),
	"scifi": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 0, 420
		p.OutroSearchDuration = 150
		p.MinSegmentDuration, p.MaxSegmentDuration = 30, 120
		p.SimilarityThreshold = 0.78
	}),
	"horror": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 0, 420
		p.OutroSearchDuration = 120
		p.MinSegmentDuration, p.MaxSegmentDuration = 20, 120
		p.SimilarityThreshold = 0.75
		p.PerEpisodeThresholdFactor = 0.85
	}),
	"reality": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 0, 180
		p.OutroSearchDuration = 90
		p.MinSegmentDuration, p.MaxSegmentDuration = 10, 70
		p.ComparisonWindow = 8
		p.SimilarityThreshold = 0.80
	}),
	"animated": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 0, 180
		p.OutroSearchDuration = 120
		p.MinSegmentDuration, p.MaxSegmentDuration = 15, 75
		p.ComparisonWindow = 8
		p.SimilarityThreshold = 0.78
	}),
	"cold_open": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 0, 1200
		p.OutroSearchDuration = 120
		p.MinSegmentDuration, p.MaxSegmentDuration = 15, 120
		p.SimilarityThreshold = 0.75
		p.PerEpisodeThresholdFactor = 0.85
	}),
	"late_intro": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 300, 1200
		p.OutroSearchDuration = 120
		p.MinSegmentDuration, p.MaxSegmentDuration = 15, 120
		p.SimilarityThreshold = 0.78
	}),
	"documentary": preset(func(p *Profile) {
		p.IntroSearchStart, p.IntroSearchEnd = 0, 300
		p.OutroSearchDuration = 120
		p.MinSegmentDuration, p.MaxSegmentDuration = 5, 180
		p.SimilarityThreshold = 0.72
		p.PerEpisodeThresholdFactor = 0.85
	}),
}

// ShowTypes lists the registered profile names in sorted order.
func ShowTypes() []string {
	names := make([]string, 0, len(showProfiles))
	for name := range showProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProfileFor returns the named show-type profile with overrides applied.
func ProfileFor(showType string, overrides Overrides) (Profile, error) {
	name := strings.ToLower(strings.TrimSpace(showType))
	if name == "" {
		name = "standard"
	}
	p, ok := showProfiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown show type %q (known: %s)", showType, strings.Join(ShowTypes(), ", "))
	}

	if overrides.IntroSearchStart != nil {
		p.IntroSearchStart = *overrides.IntroSearchStart
	}
	if overrides.IntroSearchEnd != nil {
		p.IntroSearchEnd = *overrides.IntroSearchEnd
	}
	if overrides.OutroSearchDuration != nil {
		p.OutroSearchDuration = *overrides.OutroSearchDuration
	}
	if overrides.MinSegmentDuration != nil {
		p.MinSegmentDuration = *overrides.MinSegmentDuration
	}
	if overrides.MaxSegmentDuration != nil {
		p.MaxSegmentDuration = *overrides.MaxSegmentDuration
	}
	if overrides.SimilarityThreshold != nil {
		p.SimilarityThreshold = *overrides.SimilarityThreshold
	}
	if overrides.MinEpisodesAgree != nil {
		p.MinEpisodesAgree = *overrides.MinEpisodesAgree
	}
	if overrides.UseGraphConsensus != nil {
		p.UseGraphConsensus = *overrides.UseGraphConsensus
	}

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate rejects profiles whose parameter relationships cannot produce a run.
func (p Profile) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("profile: sample_rate must be positive, got %d", p.SampleRate)
	}
	if p.HopLength <= 0 {
		return fmt.Errorf("profile: hop_length must be positive, got %d", p.HopLength)
	}
	if p.Bands <= 0 {
		return fmt.Errorf("profile: n_bands must be positive, got %d", p.Bands)
	}
	if p.FrameSizeMultiplier <= 0 {
		return fmt.Errorf("profile: frame_size_multiplier must be positive, got %d", p.FrameSizeMultiplier)
	}
	if p.ComparisonWindow <= 0 {
		return fmt.Errorf("profile: comparison_window must be positive, got %g", p.ComparisonWindow)
	}
	if p.MinSegmentDuration >= p.MaxSegmentDuration {
		return fmt.Errorf("profile: min_segment_duration %g must be below max_segment_duration %g",
			p.MinSegmentDuration, p.MaxSegmentDuration)
	}
	if p.IntroSearchStart >= p.IntroSearchEnd {
		return fmt.Errorf("profile: intro_search_start %g must be below intro_search_end %g",
			p.IntroSearchStart, p.IntroSearchEnd)
	}
	if p.OutroSearchDuration <= 0 {
		return fmt.Errorf("profile: outro_search_duration must be positive, got %g", p.OutroSearchDuration)
	}
	if p.SimilarityThreshold <= 0 || p.SimilarityThreshold > 1 {
		return fmt.Errorf("profile: similarity_threshold must be in (0,1], got %g", p.SimilarityThreshold)
	}
	if p.MinEpisodesAgree < 1 {
		return fmt.Errorf("profile: min_episodes_agree must be at least 1, got %d", p.MinEpisodesAgree)
	}
	if p.RefinementSteps < 1 {
		return fmt.Errorf("profile: refinement_steps must be at least 1, got %d", p.RefinementSteps)
	}
	return nil
}

// WithGraphConsensus returns a copy with graph consensus toggled.
func (p Profile) WithGraphConsensus(enabled bool) Profile {
	p.UseGraphConsensus = enabled
	return p
}

// FrameSize returns the analysis frame length in samples.
func (p Profile) FrameSize() int {
	return p.HopLength * p.FrameSizeMultiplier
}

// FramesPerSecond returns the fingerprint frame rate.
func (p Profile) FramesPerSecond() float64 {
	return float64(p.SampleRate) / float64(p.HopLength)
}

// WindowFrames returns the comparison window length in fingerprint frames,
// minimum 1.
func (p Profile) WindowFrames() int {
	frames := int(p.ComparisonWindow * p.FramesPerSecond())
	if frames < 1 {
		return 1
	}
	return frames
}

// Hash derives the short cache-invalidation hash over the fields that shape
// fingerprint content. Changing any of them makes stored fingerprints
// incomparable with new ones, so the hash participates in cache keys.
func (p Profile) Hash() string {
	fields := []struct {
		key   string
		value string
	}{
		{"frame_size_multiplier", strconv.Itoa(p.FrameSizeMultiplier)},
		{"hop_length", strconv.Itoa(p.HopLength)},
		{"intro_search_end", formatParam(p.IntroSearchEnd)},
		{"intro_search_start", formatParam(p.IntroSearchStart)},
		{"n_bands", strconv.Itoa(p.Bands)},
		{"outro_search_duration", formatParam(p.OutroSearchDuration)},
		{"sample_rate", strconv.Itoa(p.SampleRate)},
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.key+"="+f.value)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
