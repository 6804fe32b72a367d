package sanitize

import (
	"math"
	"regexp"
	"strings"
)

// entropyContextKeywords are the trigger words that must appear within the
// residue scan's window for a high-entropy token to be considered
// suspicious; a random-looking token with no such context is very likely a
// hash, a build id, or other non-sensitive data, and is left alone.
var entropyContextKeywords = []string{
	"secret", "token", "key", "bearer", "auth", "x-amz-", "x-goog-", "authorization", "cookie",
}

const entropyWindow = 50

var highEntropyCandidate = regexp.MustCompile(`[A-Za-z0-9+/_-]{20,}`)

// scanHighEntropyResidue is stage 4: within a window around a context
// keyword, flag long random-looking tokens by Shannon entropy and redact
// them. It runs after the fixed-pattern passes, so it only ever catches
// what those specific patterns missed.
func scanHighEntropyResidue(text string, detector string) (string, []Detection) {
	lower := strings.ToLower(text)
	candidates := highEntropyCandidate.FindAllStringIndex(text, -1)
	if len(candidates) == 0 {
		return text, nil
	}

	var detections []Detection
	out := text
	for i := len(candidates) - 1; i >= 0; i-- {
		start, end := candidates[i][0], candidates[i][1]
		token := text[start:end]

		if !hasContextKeywordNearby(lower, start, end) {
			continue
		}
		if shannonEntropy(token) < 4.5 {
			continue
		}

		out = out[:start] + "[REDACTED_SECRET]" + out[end:]
		detections = append(detections, Detection{
			Category:        "HIGH_ENTROPY_SECRET",
			Placeholder:      "[REDACTED_SECRET]",
			Start:            start,
			End:              end,
			Detector:         detector,
			DetectorVersion:  DetectorVersion,
		})
	}
	return out, detections
}

func hasContextKeywordNearby(lower string, start, end int) bool {
	windowStart := start - entropyWindow
	if windowStart < 0 {
		windowStart = 0
	}
	windowEnd := end + entropyWindow
	if windowEnd > len(lower) {
		windowEnd = len(lower)
	}
	window := lower[windowStart:windowEnd]
	for _, kw := range entropyContextKeywords {
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	entropy := 0.0
	n := float64(len(s))
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
