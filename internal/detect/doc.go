// Package detect orchestrates skip-segment detection across an episode
// set. It probes durations, extracts region fingerprints through a worker
// pool with cache short-circuiting, runs graph or pairwise consensus,
// refines the consensus segment into each episode, and validates the
// results against episode durations. Large episode sets that would blow
// the fingerprint memory budget are processed in anchored batches.
package detect
