// Package similarity scores fingerprint regions against each other.
//
// Two operations are provided: a block matrix that correlates every
// fixed-length window of one fingerprint against every window of another,
// and a localized search that finds where a known reference segment best
// matches inside a target fingerprint, FFT-accelerated when the target is
// long enough to make the transform worthwhile.
package similarity
