package fpcache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// flushThreshold is how many buffered fingerprint inserts trigger a commit.
const flushThreshold = 10

// Store manages fingerprint and segment persistence backed by SQLite.
//
// All mutating operations are serialized through one mutex; WAL mode keeps
// concurrent readers unblocked while a write transaction is open.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock

	mu      sync.Mutex
	tx      *sql.Tx
	pending int
}

// Open initializes or connects to the cache database, acquires the writer
// lock for its directory, and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure cache directory: %w", err)
		}
	}

	fileLock := flock.New(path + ".lock")
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("cache %s is locked by another skipscan process", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = fileLock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 60000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = fileLock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, lock: fileLock}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		_ = fileLock.Unlock()
		return nil, err
	}

	return store, nil
}

// Close flushes buffered writes, releases the writer lock, and closes the
// database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	flushErr := s.Flush()
	closeErr := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// GetFingerprint looks up a cached fingerprint for the given file region.
// A stored row whose config hash conflicts with the requested one is
// reported as a miss; rows with no recorded hash predate hashing and stay
// valid.
func (s *Store) GetFingerprint(ctx context.Context, path, suffix, configHash string) (*FingerprintRecord, error) {
	key, err := FileKey(path, suffix, configHash)
	if err != nil {
		return nil, nil //nolint:nilerr // unreadable file means cache miss, not failure
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, sample_rate, n_bands, n_frames, config_hash
         FROM fingerprints WHERE file_hash = ?`, key)

	var (
		blob       []byte
		sampleRate sql.NullInt64
		bands      sql.NullInt64
		frames     sql.NullInt64
		storedHash sql.NullString
	)
	if err := row.Scan(&blob, &sampleRate, &bands, &frames, &storedHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fingerprint: %w", err)
	}
	if len(blob) == 0 {
		return nil, nil
	}
	if configHash != "" && storedHash.String != "" && storedHash.String != configHash {
		return nil, nil
	}

	record := &FingerprintRecord{
		Data:       decodeFloats(blob),
		SampleRate: int(sampleRate.Int64),
		Bands:      int(bands.Int64),
		ConfigHash: storedHash.String,
	}
	if record.Bands == 0 {
		record.Bands = 8
	}
	record.Frames = int(frames.Int64)
	if record.Frames == 0 && record.Bands > 0 {
		record.Frames = len(record.Data) / record.Bands
	}
	return record, nil
}

// StoreFingerprint buffers a fingerprint insert. Buffered rows are
// committed every flushThreshold inserts or on Flush/Close; losing the tail
// of the batch on a crash only costs re-extraction.
func (s *Store) StoreFingerprint(ctx context.Context, path string, record FingerprintRecord, duration float64, suffix string) error {
	key, err := FileKey(path, suffix, record.ConfigHash)
	if err != nil {
		return fmt.Errorf("store fingerprint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.writeTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO fingerprints
         (file_hash, file_path, file_name, duration, fingerprint, sample_rate, n_bands, n_frames, config_hash)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key, path, filepath.Base(path), duration,
		encodeFloats(record.Data), record.SampleRate, record.Bands, record.Frames, record.ConfigHash,
	)
	if err != nil {
		return fmt.Errorf("store fingerprint: %w", err)
	}

	s.pending++
	if s.pending >= flushThreshold {
		return s.flushLocked()
	}
	return nil
}

// Flush commits any buffered fingerprint writes. Call at phase boundaries.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) writeTx(ctx context.Context) (*sql.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin write batch: %w", err)
	}
	s.tx = tx
	return tx, nil
}

func (s *Store) flushLocked() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	s.pending = 0
	if err != nil {
		return fmt.Errorf("flush fingerprint batch: %w", err)
	}
	return nil
}

// SkipSegments returns the stored segments for an episode keyed by type.
func (s *Store) SkipSegments(ctx context.Context, path string) (map[SegmentType]Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_type, start_time, end_time, confidence, method
         FROM skip_segments WHERE file_path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("query skip segments: %w", err)
	}
	defer rows.Close()

	segments := make(map[SegmentType]Segment)
	for rows.Next() {
		var (
			segType    string
			start, end float64
			confidence sql.NullFloat64
			method     sql.NullString
		)
		if err := rows.Scan(&segType, &start, &end, &confidence, &method); err != nil {
			return nil, fmt.Errorf("scan skip segment: %w", err)
		}
		segments[SegmentType(segType)] = Segment{
			Type:       SegmentType(segType),
			Start:      start,
			End:        end,
			Confidence: confidence.Float64,
			Method:     method.String,
		}
	}
	return segments, rows.Err()
}

// HasSegments reports whether any segment is stored for the episode.
func (s *Store) HasSegments(ctx context.Context, path string) (bool, error) {
	segments, err := s.SkipSegments(ctx, path)
	if err != nil {
		return false, err
	}
	return len(segments) > 0, nil
}

// StoreSkipSegment persists a segment and commits immediately. Segment
// rows are small and must survive a mid-run interruption, so they never
// ride the fingerprint batch.
func (s *Store) StoreSkipSegment(ctx context.Context, path string, segment Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO skip_segments
         (file_path, segment_type, start_time, end_time, confidence, method)
         VALUES (?, ?, ?, ?, ?, ?)`,
		path, string(segment.Type),
		snapTimestamp(segment.Start), snapTimestamp(segment.End),
		segment.Confidence, segment.Method,
	)
	if err != nil {
		return fmt.Errorf("store skip segment: %w", err)
	}
	return nil
}

// Clear removes all fingerprints and every automatically derived segment.
// Manual imports survive.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints`); err != nil {
		return fmt.Errorf("clear fingerprints: %w", err)
	}
	query := `DELETE FROM skip_segments WHERE method IN (` + methodPlaceholders() + `)`
	if _, err := s.db.ExecContext(ctx, query, autoMethodArgs()...); err != nil {
		return fmt.Errorf("clear segments: %w", err)
	}
	return nil
}

// ClearOlderThan removes fingerprints older than the given number of days,
// then sweeps auto-derived segments whose episode no longer has any
// fingerprint, so the cache never reports a stale derived segment as
// authoritative.
func (s *Store) ClearOlderThan(ctx context.Context, days int) error {
	if days <= 0 {
		return s.Clear(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM fingerprints WHERE created_at < datetime('now', ?)`,
		fmt.Sprintf("-%d days", days),
	); err != nil {
		return fmt.Errorf("clear stale fingerprints: %w", err)
	}

	query := `DELETE FROM skip_segments
              WHERE method IN (` + methodPlaceholders() + `)
              AND file_path NOT IN (SELECT DISTINCT file_path FROM fingerprints)`
	if _, err := s.db.ExecContext(ctx, query, autoMethodArgs()...); err != nil {
		return fmt.Errorf("sweep derived segments: %w", err)
	}
	return nil
}

// Stats summarizes cache contents for diagnostics.
type Stats struct {
	Fingerprints int
	Segments     int
	ManualRows   int
	SizeBytes    int64
}

// CollectStats counts cache rows and reports the database size on disk.
func (s *Store) CollectStats(ctx context.Context) (Stats, error) {
	var stats Stats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM fingerprints`)
	if err := row.Scan(&stats.Fingerprints); err != nil {
		return Stats{}, fmt.Errorf("count fingerprints: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM skip_segments`)
	if err := row.Scan(&stats.Segments); err != nil {
		return Stats{}, fmt.Errorf("count segments: %w", err)
	}
	query := `SELECT COUNT(1) FROM skip_segments WHERE method NOT IN (` + methodPlaceholders() + `)`
	row = s.db.QueryRowContext(ctx, query, autoMethodArgs()...)
	if err := row.Scan(&stats.ManualRows); err != nil {
		return Stats{}, fmt.Errorf("count manual segments: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

func methodPlaceholders() string {
	return strings.TrimSuffix(strings.Repeat("?,", len(autoMethods)), ",")
}

func autoMethodArgs() []any {
	args := make([]any, len(autoMethods))
	for i, m := range autoMethods {
		args[i] = m
	}
	return args
}

func encodeFloats(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func decodeFloats(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

func snapTimestamp(v float64) float64 {
	return math.Round(v*1000) / 1000
}
