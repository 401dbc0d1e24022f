package skipdata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"skipscan/internal/fpcache"
	"skipscan/internal/logging"
)

func readEntries(t *testing.T, path string) map[string]entry {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read skip data: %v", err)
	}
	entries := make(map[string]entry)
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("parse skip data: %v", err)
	}
	return entries
}

func TestWriteCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skip", "skip_data.json")
	results := Results{
		"/tv/Show.S01E01.mkv": {
			fpcache.SegmentIntro: {Start: 10.123456, End: 95.5},
			fpcache.SegmentOutro: {Start: 1250, End: 1330},
		},
	}
	if err := Write(path, results, false, logging.NewNop()); err != nil {
		t.Fatal(err)
	}

	entries := readEntries(t, path)
	e, ok := entries["show.s01e01"]
	if !ok {
		t.Fatalf("normalized key missing, have %v", entries)
	}
	if e.IntroStart == nil || *e.IntroStart != 10.123 {
		t.Errorf("intro_start = %v, want 10.123", e.IntroStart)
	}
	if e.IntroEnd == nil || *e.IntroEnd != 95.5 {
		t.Errorf("intro_end = %v, want 95.5", e.IntroEnd)
	}
	if e.OutroStart == nil || *e.OutroStart != 1250 {
		t.Errorf("outro_start = %v, want 1250", e.OutroStart)
	}
}

func TestWriteMergesExistingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skip_data.json")
	first := Results{
		"/tv/Show.S01E01.mkv": {fpcache.SegmentIntro: {Start: 10, End: 90}},
	}
	if err := Write(path, first, false, nil); err != nil {
		t.Fatal(err)
	}
	second := Results{
		"/tv/Show.S01E02.mkv": {fpcache.SegmentIntro: {Start: 12, End: 92}},
	}
	if err := Write(path, second, false, nil); err != nil {
		t.Fatal(err)
	}

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if _, ok := entries["show.s01e01"]; !ok {
		t.Error("first episode lost on merge")
	}
	if _, ok := entries["show.s01e02"]; !ok {
		t.Error("second episode missing")
	}
}

func TestWriteMigratesLegacyKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skip_data.json")
	legacy := `{"Show.S01E01.mkv": {"intro_start": 5, "intro_end": 80}}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, Results{}, false, nil); err != nil {
		t.Fatal(err)
	}

	entries := readEntries(t, path)
	if _, ok := entries["Show.S01E01.mkv"]; ok {
		t.Error("legacy raw-filename key survived")
	}
	e, ok := entries["show.s01e01"]
	if !ok {
		t.Fatalf("migrated key missing, have %v", entries)
	}
	if e.IntroStart == nil || *e.IntroStart != 5 {
		t.Errorf("intro_start = %v, want 5", e.IntroStart)
	}
}

func TestWriteReplacesCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skip_data.json")
	if err := os.WriteFile(path, []byte("not json{"), 0o644); err != nil {
		t.Fatal(err)
	}
	results := Results{
		"/tv/Show.S01E01.mkv": {fpcache.SegmentIntro: {Start: 10, End: 90}},
	}
	if err := Write(path, results, false, nil); err != nil {
		t.Fatal(err)
	}
	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}

func TestWriteFullPathKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skip_data.json")
	video := "/tv/Show.S01E01.mkv"
	results := Results{
		video: {fpcache.SegmentIntro: {Start: 10, End: 90}},
	}
	if err := Write(path, results, true, nil); err != nil {
		t.Fatal(err)
	}
	entries := readEntries(t, path)
	if _, ok := entries[video]; !ok {
		t.Fatalf("absolute-path key missing, have %v", entries)
	}
}

func TestWriteSkipsEmptySegmentMaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skip_data.json")
	results := Results{
		"/tv/Show.S01E01.mkv": {},
	}
	if err := Write(path, results, false, nil); err != nil {
		t.Fatal(err)
	}
	if entries := readEntries(t, path); len(entries) != 0 {
		t.Fatalf("entries = %v, want none", entries)
	}
}
