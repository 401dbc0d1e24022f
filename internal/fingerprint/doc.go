// Package fingerprint turns raw mono PCM into band-energy time series.
//
// Each analysis frame is Hann-windowed, transformed with a real-input FFT,
// and its magnitude spectrum collapsed into a small number of equal-width
// frequency bands by RMS. The whole region is normalized by its global
// maximum so comparisons are loudness-invariant between episodes.
package fingerprint
