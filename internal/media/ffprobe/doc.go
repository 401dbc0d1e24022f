// Package ffprobe wraps container probing for episode eligibility checks.
package ffprobe
