package similarity

import (
	"math"

	"skipscan/internal/fingerprint"
)

// Matrix holds pairwise window similarities in row-major order. Rows index
// windows of the first fingerprint, columns windows of the second.
type Matrix struct {
	Rows   int
	Cols   int
	Values []float32
}

// At returns the similarity between window r of the first fingerprint and
// window c of the second.
func (m *Matrix) At(r, c int) float32 {
	return m.Values[r*m.Cols+c]
}

// Max returns the largest value in the matrix, or 0 for an empty one.
func (m *Matrix) Max() float32 {
	var best float32
	for _, v := range m.Values {
		if v > best {
			best = v
		}
	}
	return best
}

func zeroMatrix(rows, cols int) *Matrix {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	return &Matrix{Rows: rows, Cols: cols, Values: make([]float32, rows*cols)}
}

// BlockMatrix compares two fingerprints window by window. Each fingerprint
// is cut into non-overlapping windows of windowFrames frames; every window
// is z-score normalized and correlated against every window of the other
// fingerprint, with the result clipped to [0, 1]. Windows whose standard
// deviation is below fingerprint.Epsilon carry no signal and force their
// entire row or column to zero.
func BlockMatrix(a, b *fingerprint.Fingerprint, windowFrames int) *Matrix {
	if a == nil || b == nil || a.Bands != b.Bands || a.Bands < 1 {
		return zeroMatrix(1, 1)
	}
	if windowFrames > a.Frames {
		windowFrames = a.Frames
	}
	if windowFrames > b.Frames {
		windowFrames = b.Frames
	}
	if windowFrames < 1 {
		return zeroMatrix(1, 1)
	}

	rows := a.Frames / windowFrames
	cols := b.Frames / windowFrames
	if rows < 1 || cols < 1 {
		return zeroMatrix(rows, cols)
	}

	dim := windowFrames * a.Bands
	wa, validA := normalizedWindows(a, windowFrames, rows)
	wb, validB := normalizedWindows(b, windowFrames, cols)

	m := &Matrix{Rows: rows, Cols: cols, Values: make([]float32, rows*cols)}
	inv := 1.0 / float64(dim)
	for r := 0; r < rows; r++ {
		if !validA[r] {
			continue
		}
		ra := wa[r*dim : (r+1)*dim]
		for c := 0; c < cols; c++ {
			if !validB[c] {
				continue
			}
			rb := wb[c*dim : (c+1)*dim]
			var dot float64
			for i, v := range ra {
				dot += v * rb[i]
			}
			sim := dot * inv
			if sim < 0 {
				sim = 0
			} else if sim > 1 {
				sim = 1
			}
			m.Values[r*cols+c] = float32(sim)
		}
	}
	return m
}

// normalizedWindows flattens count windows of windowFrames frames each into
// z-scored vectors. A window with near-zero variance is marked invalid and
// left as zeros.
func normalizedWindows(fp *fingerprint.Fingerprint, windowFrames, count int) ([]float64, []bool) {
	dim := windowFrames * fp.Bands
	out := make([]float64, count*dim)
	valid := make([]bool, count)
	for w := 0; w < count; w++ {
		vec := out[w*dim : (w+1)*dim]
		for f := 0; f < windowFrames; f++ {
			row := fp.Row(w*windowFrames + f)
			for b, v := range row {
				vec[f*fp.Bands+b] = float64(v)
			}
		}
		mean, std := meanStd(vec)
		if std <= fingerprint.Epsilon {
			for i := range vec {
				vec[i] = 0
			}
			continue
		}
		valid[w] = true
		for i := range vec {
			vec[i] = (vec[i] - mean) / std
		}
	}
	return out, valid
}

func meanStd(v []float64) (float64, float64) {
	if len(v) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	mean := sum / float64(len(v))
	var sq float64
	for _, x := range v {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(v)))
}
