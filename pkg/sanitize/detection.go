// Package sanitize implements the fast, deterministic, synchronous
// redaction pass that runs inside the hook before any write: irreversible
// substitution of text matching a curated taxonomy of sensitive-data
// categories, in bounded time.
package sanitize

// DetectorVersion is the monotonically increasing version tag recorded on
// every Detection this package produces. Bump it whenever the pattern set
// changes in a way that affects output.
const DetectorVersion = 1

// Detection describes one redacted span in already-sanitized output text.
// It never carries the original value.
type Detection struct {
	Category    string  `json:"category"`
	Placeholder string  `json:"placeholder"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Confidence  float64 `json:"confidence,omitempty"`
	Detector    string  `json:"detector"`
	DetectorVersion int `json:"detector_version"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

// Result is the output of one Sanitize call.
type Result struct {
	Out        string
	Detections []Detection
	DurationNs int64
}
