package fpcache

// SegmentType distinguishes the two detectable segment kinds.
type SegmentType string

const (
	SegmentIntro SegmentType = "intro"
	SegmentOutro SegmentType = "outro"
)

// Segment provenance methods. Auto methods are derived by detection and
// may be invalidated when their fingerprints expire; manual methods are
// user-supplied and never swept.
const (
	MethodFingerprint         = "fingerprint"
	MethodGraphFallback       = "graph-fallback"
	MethodFingerprintFallback = "fingerprint-fallback"
	MethodManual              = "manual"
	MethodDatabase            = "database"
)

var autoMethods = []string{MethodFingerprint, MethodGraphFallback, MethodFingerprintFallback}

// Segment is a stored skip segment for one episode.
type Segment struct {
	Type       SegmentType
	Start      float64
	End        float64
	Confidence float64
	Method     string
}

// FingerprintRecord is a stored fingerprint with its shape metadata.
type FingerprintRecord struct {
	Data       []float32
	SampleRate int
	Bands      int
	Frames     int
	ConfigHash string
}
