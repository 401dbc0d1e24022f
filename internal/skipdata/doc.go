// Package skipdata handles the player-facing side of detection results:
// normalized episode keys, the merged skip_data.json file that playback
// scripts read, and importing externally curated timestamp files into the
// cache.
package skipdata
