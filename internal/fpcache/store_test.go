package fpcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return store
}

func writeTestVideo(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	blob := make([]byte, size)
	for i := range blob {
		blob[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFingerprintRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	video := writeTestVideo(t, "ep1.mkv", 2048)
	suffix := RegionSuffix(SegmentIntro, 0, 420)

	record := FingerprintRecord{
		Data:       []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8},
		SampleRate: 22050,
		Bands:      4,
		Frames:     2,
		ConfigHash: "abcd1234abcd1234",
	}
	if err := store.StoreFingerprint(ctx, video, record, 420, suffix); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got, err := store.GetFingerprint(ctx, video, suffix, record.ConfigHash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("cache miss after store")
	}
	if got.Bands != 4 || got.Frames != 2 || got.SampleRate != 22050 {
		t.Fatalf("shape = bands %d frames %d sr %d", got.Bands, got.Frames, got.SampleRate)
	}
	if len(got.Data) != len(record.Data) {
		t.Fatalf("data length = %d, want %d", len(got.Data), len(record.Data))
	}
	for i, v := range record.Data {
		if got.Data[i] != v {
			t.Fatalf("data[%d] = %g, want %g", i, got.Data[i], v)
		}
	}
}

func TestFingerprintConfigHashMismatchMisses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	video := writeTestVideo(t, "ep1.mkv", 2048)
	suffix := RegionSuffix(SegmentIntro, 0, 420)

	record := FingerprintRecord{Data: []float32{1}, SampleRate: 22050, Bands: 1, Frames: 1, ConfigHash: "hash-a"}
	if err := store.StoreFingerprint(ctx, video, record, 420, suffix); err != nil {
		t.Fatal(err)
	}
	if err := store.Flush(); err != nil {
		t.Fatal(err)
	}

	// The config hash participates in the file key, so a different hash is
	// a different key entirely.
	got, err := store.GetFingerprint(ctx, video, suffix, "hash-b")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected miss for different config hash")
	}
}

func TestRegionSuffixSeparatesRegions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	video := writeTestVideo(t, "ep1.mkv", 2048)

	intro := FingerprintRecord{Data: []float32{1}, SampleRate: 22050, Bands: 1, Frames: 1, ConfigHash: "h"}
	outro := FingerprintRecord{Data: []float32{2}, SampleRate: 22050, Bands: 1, Frames: 1, ConfigHash: "h"}
	if err := store.StoreFingerprint(ctx, video, intro, 420, RegionSuffix(SegmentIntro, 0, 420)); err != nil {
		t.Fatal(err)
	}
	if err := store.StoreFingerprint(ctx, video, outro, 150, RegionSuffix(SegmentOutro, 1200, 1350)); err != nil {
		t.Fatal(err)
	}
	if err := store.Flush(); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetFingerprint(ctx, video, RegionSuffix(SegmentOutro, 1200, 1350), "h")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Data[0] != 2 {
		t.Fatal("outro region returned wrong fingerprint")
	}
}

func TestSkipSegmentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	video := writeTestVideo(t, "ep1.mkv", 2048)

	seg := Segment{Type: SegmentIntro, Start: 12.3456, End: 98.7654, Confidence: 0.91, Method: MethodFingerprint}
	if err := store.StoreSkipSegment(ctx, video, seg); err != nil {
		t.Fatalf("store segment: %v", err)
	}

	segs, err := store.SkipSegments(ctx, video)
	if err != nil {
		t.Fatalf("get segments: %v", err)
	}
	got, ok := segs[SegmentIntro]
	if !ok {
		t.Fatal("intro segment missing")
	}
	// Timestamps snap to milliseconds on write.
	if got.Start != 12.346 || got.End != 98.765 {
		t.Fatalf("span = %g-%g, want 12.346-98.765", got.Start, got.End)
	}
	if got.Method != MethodFingerprint {
		t.Fatalf("method = %q", got.Method)
	}

	has, err := store.HasSegments(ctx, video)
	if err != nil || !has {
		t.Fatalf("HasSegments = %t, %v", has, err)
	}
}

func TestClearPreservesManualSegments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	video := writeTestVideo(t, "ep1.mkv", 2048)

	auto := Segment{Type: SegmentIntro, Start: 10, End: 90, Confidence: 0.9, Method: MethodFingerprint}
	manual := Segment{Type: SegmentOutro, Start: 1200, End: 1290, Confidence: 1.0, Method: MethodManual}
	if err := store.StoreSkipSegment(ctx, video, auto); err != nil {
		t.Fatal(err)
	}
	if err := store.StoreSkipSegment(ctx, video, manual); err != nil {
		t.Fatal(err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	segs, err := store.SkipSegments(ctx, video)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := segs[SegmentIntro]; ok {
		t.Fatal("auto-derived segment survived clear")
	}
	if _, ok := segs[SegmentOutro]; !ok {
		t.Fatal("manual segment removed by clear")
	}
}

func TestCollectStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	video := writeTestVideo(t, "ep1.mkv", 2048)

	record := FingerprintRecord{Data: []float32{1, 2}, SampleRate: 22050, Bands: 2, Frames: 1, ConfigHash: "h"}
	if err := store.StoreFingerprint(ctx, video, record, 420, RegionSuffix(SegmentIntro, 0, 420)); err != nil {
		t.Fatal(err)
	}
	if err := store.Flush(); err != nil {
		t.Fatal(err)
	}
	seg := Segment{Type: SegmentIntro, Start: 10, End: 90, Confidence: 1, Method: MethodManual}
	if err := store.StoreSkipSegment(ctx, video, seg); err != nil {
		t.Fatal(err)
	}

	stats, err := store.CollectStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Fingerprints != 1 || stats.Segments != 1 || stats.ManualRows != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.SizeBytes <= 0 {
		t.Fatal("database size not reported")
	}
}

func TestOpenRefusesSecondWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	first, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("second open on the same database should fail while locked")
	}
}

func TestFileKeyChangesWithContent(t *testing.T) {
	a := writeTestVideo(t, "ep1.mkv", 2048)
	keyA, err := FileKey(a, ":intro:0-420", "h")
	if err != nil {
		t.Fatal(err)
	}
	keyB, err := FileKey(a, ":outro:1200-1350", "h")
	if err != nil {
		t.Fatal(err)
	}
	if keyA == keyB {
		t.Fatal("different regions share a key")
	}
	if _, err := FileKey(filepath.Join(t.TempDir(), "missing.mkv"), "", "h"); err == nil {
		t.Fatal("expected error for unreadable file")
	}
}

func TestReopenAppliesMigrationsIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	video := writeTestVideo(t, "ep1.mkv", 2048)

	first, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	seg := Segment{Type: SegmentIntro, Start: 10, End: 90, Confidence: 0.9, Method: MethodFingerprint}
	if err := first.StoreSkipSegment(ctx, video, seg); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen after clean close: %v", err)
	}
	defer second.Close()

	segs, err := second.SkipSegments(ctx, video)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := segs[SegmentIntro]; !ok || got.End != 90 {
		t.Fatalf("segment lost across reopen: %v", segs)
	}
}
