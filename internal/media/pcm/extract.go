package pcm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"skipscan/internal/logging"
	"skipscan/internal/procrun"
)

const (
	// maxRawAudioBytes caps how much decoded audio one region may load.
	maxRawAudioBytes = 500 * 1024 * 1024
	// minDurationRatio is the fraction of the requested duration below
	// which an extraction is logged as suspiciously short.
	minDurationRatio = 0.8
)

// Extractor pulls mono PCM regions out of media containers via ffmpeg.
type Extractor struct {
	runner  *procrun.Runner
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExtractor constructs an Extractor bound to an ffmpeg binary.
func NewExtractor(runner *procrun.Runner, binary string, timeout time.Duration, logger *slog.Logger) *Extractor {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Extractor{
		runner:  runner,
		binary:  binary,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "pcm-extractor"),
	}
}

// ExtractRegion decodes [start, start+duration) of path as mono float32
// samples at sampleRate. Failures of the underlying process are returned as
// errors; the caller decides whether they are fatal to the run.
func (e *Extractor) ExtractRegion(ctx context.Context, path string, start, duration float64, sampleRate int) ([]float32, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("pcm extract: non-positive duration %g", duration)
	}
	tmpDir, err := os.MkdirTemp("", "skipscan-")
	if err != nil {
		return nil, fmt.Errorf("pcm extract: scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	rawPath := filepath.Join(tmpDir, "audio.raw")
	args := []string{
		"-v", "error",
		"-ss", formatSeconds(start),
		"-i", path,
		"-t", formatSeconds(duration),
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		rawPath,
		"-y",
	}

	res, err := e.runner.Run(ctx, e.binary, args, e.timeout)
	if err != nil {
		return nil, fmt.Errorf("pcm extract %s: %w", filepath.Base(path), err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("pcm extract %s: ffmpeg exit %d: %s",
			filepath.Base(path), res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	samples, err := loadRawAudio(rawPath)
	if err != nil {
		return nil, fmt.Errorf("pcm extract %s: %w", filepath.Base(path), err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("pcm extract %s: empty output", filepath.Base(path))
	}

	extracted := float64(len(samples)) / float64(sampleRate)
	if extracted < duration*minDurationRatio && e.logger != nil {
		e.logger.Warn("short extraction",
			logging.String(logging.FieldEpisode, filepath.Base(path)),
			logging.Float64("extracted_seconds", extracted),
			logging.Float64("requested_seconds", duration))
	}
	return samples, nil
}

func loadRawAudio(path string) ([]float32, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxRawAudioBytes {
		return nil, errors.New("raw audio exceeds size limit")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		v := math.Float32frombits(bits)
		// Decoder glitches can emit NaN/Inf; neutralize them so they
		// cannot poison downstream statistics.
		switch {
		case math.IsNaN(float64(v)):
			v = 0
		case math.IsInf(float64(v), 1):
			v = 1
		case math.IsInf(float64(v), -1):
			v = -1
		}
		samples[i] = v
	}
	return samples, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
