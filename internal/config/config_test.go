package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, _, exists, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("reported a missing file as existing")
	}
	if cfg.Detection.ShowType != "standard" {
		t.Errorf("show type = %q, want standard", cfg.Detection.ShowType)
	}
	if cfg.Detection.ExtractionWorkers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Detection.ExtractionWorkers)
	}
	if cfg.Detection.MaxFingerprintMB != 512 {
		t.Errorf("fingerprint budget = %d, want 512", cfg.Detection.MaxFingerprintMB)
	}
}

func TestLoadAppliesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"

[detection]
show_type = "Anime"
extraction_workers = 2
parallel_extraction = false

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved = %q exists = %t", resolved, exists)
	}
	if cfg.Detection.ShowType != "anime" {
		t.Errorf("show type = %q, want anime (normalized)", cfg.Detection.ShowType)
	}
	if cfg.Detection.ExtractionWorkers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Detection.ExtractionWorkers)
	}
	if cfg.Detection.ParallelExtraction {
		t.Error("parallel extraction should be disabled")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Paths.DataDir != filepath.Join(dir, "data") {
		t.Errorf("data dir = %q", cfg.Paths.DataDir)
	}
	if cfg.CachePath() != filepath.Join(dir, "data", "cache.db") {
		t.Errorf("cache path = %q", cfg.CachePath())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[detection]\nextraction_workers = -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected validation error for negative worker count")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, exists, err := Load(path); err != nil || !exists {
		t.Fatalf("sample config does not load: exists=%t err=%v", exists, err)
	}
}

func TestToolFallbacks(t *testing.T) {
	cfg := Default()
	if cfg.FFmpegBinary() != "ffmpeg" {
		t.Errorf("ffmpeg fallback = %q", cfg.FFmpegBinary())
	}
	cfg.Tools.FFmpeg = "/opt/ffmpeg/bin/ffmpeg"
	if cfg.FFmpegBinary() != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("ffmpeg override = %q", cfg.FFmpegBinary())
	}
	if cfg.FFprobeBinary() != "ffprobe" {
		t.Errorf("ffprobe fallback = %q", cfg.FFprobeBinary())
	}
}
