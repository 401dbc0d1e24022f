// Package consensus merges per-episode similarity evidence into a single
// shared segment. The graph detector correlates fingerprint chunks across
// every episode pair at once; the pairwise detector compares each episode
// against a chosen reference and looks for windows where enough episodes
// agree.
package consensus
