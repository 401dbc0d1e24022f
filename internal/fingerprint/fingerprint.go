package fingerprint

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// Epsilon is the variance floor below which a signal is treated as
	// constant. Dividing by anything smaller produces correlation noise.
	Epsilon = 1e-8
	// MinAudioRMS rejects near-silent regions before fingerprinting;
	// silence correlates spuriously with everything.
	MinAudioRMS = 1e-5
)

// Fingerprint is a frames-by-bands energy matrix stored row-major.
// Instances are immutable after construction and safe for concurrent reads.
type Fingerprint struct {
	Values []float32
	Frames int
	Bands  int
}

// Row returns one frame's band vector. The slice aliases the fingerprint;
// callers must not mutate it.
func (f *Fingerprint) Row(frame int) []float32 {
	return f.Values[frame*f.Bands : (frame+1)*f.Bands]
}

// Params carries the extraction settings for one fingerprint computation.
type Params struct {
	SampleRate          int
	HopLength           int
	Bands               int
	FrameSizeMultiplier int
}

// RMS returns the root-mean-square level of the sample buffer.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Compute builds the band-energy fingerprint for a sample buffer.
//
// Frame count follows the sliding-window formula floor((N-frame)/hop)+1
// with a minimum of one frame; short input is zero-padded on the right.
func Compute(samples []float32, p Params) *Fingerprint {
	bands := p.Bands
	if bands <= 0 {
		bands = 8
	}
	if len(samples) == 0 {
		return &Fingerprint{Values: make([]float32, bands), Frames: 1, Bands: bands}
	}

	frameSize := p.HopLength * p.FrameSizeMultiplier
	hop := p.HopLength
	frames := (len(samples) - frameSize) / hop
	frames++
	if frames < 1 {
		frames = 1
	}

	required := (frames-1)*hop + frameSize
	if required > len(samples) {
		padded := make([]float32, required)
		copy(padded, samples)
		samples = padded
	}

	window := hannWindow(frameSize)
	fft := fourier.NewFFT(frameSize)
	frameBuf := make([]float64, frameSize)
	coeffs := make([]complex128, frameSize/2+1)
	totalBins := len(coeffs)

	fp := &Fingerprint{
		Values: make([]float32, frames*bands),
		Frames: frames,
		Bands:  bands,
	}

	bandEnergy := make([]float64, bands)
	for frame := 0; frame < frames; frame++ {
		offset := frame * hop
		for i := 0; i < frameSize; i++ {
			frameBuf[i] = float64(samples[offset+i]) * window[i]
		}
		fft.Coefficients(coeffs, frameBuf)

		for b := 0; b < bands; b++ {
			lo := b * totalBins / bands
			hi := (b + 1) * totalBins / bands
			if hi <= lo {
				bandEnergy[b] = 0
				continue
			}
			var sum float64
			for bin := lo; bin < hi; bin++ {
				mag := cmplx.Abs(coeffs[bin])
				sum += mag * mag
			}
			bandEnergy[b] = math.Sqrt(sum / float64(hi-lo))
		}
		row := fp.Row(frame)
		for b := 0; b < bands; b++ {
			row[b] = float32(bandEnergy[b])
		}
	}

	normalize(fp)
	return fp
}

// normalize scales the whole fingerprint by its global maximum when the
// maximum is meaningfully above zero.
func normalize(fp *Fingerprint) {
	var max float32
	for _, v := range fp.Values {
		if v > max {
			max = v
		}
	}
	if float64(max) <= Epsilon {
		return
	}
	inv := 1 / max
	for i := range fp.Values {
		fp.Values[i] *= inv
	}
}

// Reshape rebuilds a Fingerprint from a flat cached buffer. Buffers
// within 10% of the expected length are padded or truncated; anything
// shorter is rejected as corrupt.
func Reshape(data []float32, bands, frames int) (*Fingerprint, bool) {
	if bands <= 0 || frames <= 0 || len(data) == 0 {
		return nil, false
	}
	expected := bands * frames
	switch {
	case len(data) == expected:
	case len(data) > expected:
		data = data[:expected]
	case float64(len(data)) >= float64(expected)*0.9:
		padded := make([]float32, expected)
		copy(padded, data)
		data = padded
	default:
		return nil, false
	}
	return &Fingerprint{Values: data, Frames: frames, Bands: bands}, true
}

func hannWindow(n int) []float64 {
	window := make([]float64, n)
	if n == 1 {
		window[0] = 1
		return window
	}
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return window
}
