// Package pcm extracts mono float32 audio regions through ffmpeg.
//
// Decoding stays out of process: ffmpeg writes raw f32le samples to a
// scratch file which is then loaded, bounds-checked, and scrubbed of
// non-finite values before fingerprinting sees it.
package pcm
