package fpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

const edgeSampleBytes = 64 * 1024

// FileKey derives the content-addressed cache key for one extracted region
// of one file. The hash covers cheap identity signals (basename, size,
// mtime) plus the first and last 64 KiB of content, so a renamed copy hits
// while a re-encode misses without reading gigabytes. The suffix encodes
// the extraction region and the config hash ties the key to the profile.
func FileKey(path, suffix, configHash string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	h := sha256.New()
	h.Write([]byte(filepath.Base(path)))
	h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
	h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
	if configHash != "" {
		h.Write([]byte(configHash))
	}

	head := make([]byte, edgeSampleBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	h.Write(head[:n])

	if info.Size() > edgeSampleBytes {
		if _, err := f.Seek(-edgeSampleBytes, io.SeekEnd); err != nil {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
		tail := make([]byte, edgeSampleBytes)
		n, err := io.ReadFull(f, tail)
		if err != nil && err != io.ErrUnexpectedEOF {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
		h.Write(tail[:n])
	}

	return hex.EncodeToString(h.Sum(nil)) + suffix, nil
}

// RegionSuffix builds the cache-key suffix identifying a typed extraction window.
func RegionSuffix(segmentType SegmentType, start, end float64) string {
	return fmt.Sprintf(":%s:%d-%d", segmentType, int(start), int(end))
}
