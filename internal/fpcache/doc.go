// Package fpcache persists fingerprints and detected segments in SQLite.
//
// Fingerprint rows are content-addressed: the key hashes the file's
// identity (basename, size, mtime, head and tail bytes) together with the
// active profile hash and a region suffix, so a re-encoded file, a changed
// profile, or a different extraction window each miss cleanly. Fingerprint
// inserts are batched; segment writes commit immediately so they survive an
// interrupted run.
package fpcache
