// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"skipscan/internal/config"
	"skipscan/internal/fpcache"
)

// Option customizes the test configuration.
type Option func(*config.Config)

// WithShowType selects a detection profile.
func WithShowType(name string) Option {
	return func(cfg *config.Config) {
		cfg.Detection.ShowType = name
	}
}

// WithWorkers sets the extraction worker count.
func WithWorkers(n int) Option {
	return func(cfg *config.Config) {
		cfg.Detection.ExtractionWorkers = n
	}
}

// NewConfig returns a config rooted in a temp directory. Extraction runs
// single-worker by default so test ordering stays deterministic.
func NewConfig(t *testing.T, opts ...Option) *config.Config {
	t.Helper()
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Detection.ParallelExtraction = false
	cfg.Detection.ExtractionWorkers = 1
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// NewStore opens a fingerprint cache in a temp directory and closes it
// when the test finishes.
func NewStore(t *testing.T) *fpcache.Store {
	t.Helper()
	store, err := fpcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close cache: %v", err)
		}
	})
	return store
}

// Tone synthesizes a sine wave. Amplitude is fixed well above the silence
// gate so fingerprints of tones always carry signal.
func Tone(freqHz float64, seconds float64, sampleRate int) []float32 {
	n := int(seconds * float64(sampleRate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate)))
	}
	return out
}

// Noise synthesizes seeded uniform noise in [-0.5, 0.5].
func Noise(seed int64, seconds float64, sampleRate int) []float32 {
	rng := rand.New(rand.NewSource(seed))
	n := int(seconds * float64(sampleRate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.Float64() - 0.5)
	}
	return out
}

// Concat joins sample slices into one clip.
func Concat(parts ...[]float32) []float32 {
	var total int
	for _, p := range parts {
		total += len(p)
	}
	out := make([]float32, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Silence returns a zero clip.
func Silence(seconds float64, sampleRate int) []float32 {
	return make([]float32, int(seconds*float64(sampleRate)))
}
