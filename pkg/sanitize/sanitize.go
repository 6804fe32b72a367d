package sanitize

import (
	"fmt"
	"log/slog"
	"time"
)

// ErrorPlaceholder is substituted for the entire message on any runtime
// failure inside Sanitize — fail-closed, since a panic or an escaped
// pattern is exactly the condition sanitization exists to guard against.
const ErrorPlaceholder = "[ERROR: message blocked for safety]"

// Soft and hard pipeline time budgets per SPEC_FULL.md §4.2. Exceeding the
// soft budget only logs; exceeding the hard budget aborts the remaining
// stages and returns what has been redacted so far.
const (
	perPatternSoftCap  = 10 * time.Millisecond
	pipelineSoftBudget = 50 * time.Millisecond
	pipelineHardBudget = 80 * time.Millisecond
)

// Sanitizer runs the deterministic, synchronous redaction pipeline. It
// holds no mutable state and is safe for concurrent use by many hook
// invocations.
type Sanitizer struct {
	detectorName string
}

// New returns a ready-to-use Sanitizer.
func New() *Sanitizer {
	return &Sanitizer{detectorName: "fast_sanitizer"}
}

// Sanitize redacts text and returns the result together with every
// detection made. It never returns an error: any internal failure is
// converted into the fail-closed ErrorPlaceholder output plus a single
// synthetic detection, matching the Hook Entry Point's "always succeeds"
// contract.
func (s *Sanitizer) Sanitize(text string) (result Result) {
	start := time.Now()
	defer func() {
		result.DurationNs = time.Since(start).Nanoseconds()
		if r := recover(); r != nil {
			slog.Error("sanitizer panicked, failing closed", "panic", fmt.Sprint(r))
			result = Result{
				Out: ErrorPlaceholder,
				Detections: []Detection{{
					Category:        "SANITIZER_FAILURE",
					Placeholder:     ErrorPlaceholder,
					Detector:        s.detectorName,
					DetectorVersion: DetectorVersion,
				}},
				DurationNs: time.Since(start).Nanoseconds(),
			}
		}
	}()

	out := normalize(text)
	var detections []Detection

	out, patternDets := s.applyPatterns(out, start)
	detections = append(detections, patternDets...)

	if time.Since(start) < pipelineHardBudget {
		var structuredDets []Detection
		out, structuredDets = scanStructured(out, s.detectorName)
		detections = append(detections, structuredDets...)
	}

	if time.Since(start) < pipelineHardBudget {
		var entropyDets []Detection
		out, entropyDets = scanHighEntropyResidue(out, s.detectorName)
		detections = append(detections, entropyDets...)
	}

	if elapsed := time.Since(start); elapsed > pipelineSoftBudget {
		slog.Warn("sanitizer exceeded soft pipeline budget",
			"elapsed_ms", elapsed.Milliseconds(), "hard_budget_ms", pipelineHardBudget.Milliseconds())
	}

	return Result{Out: out, Detections: detections}
}

// applyPatterns runs the fixed-priority pattern table against text,
// replacing matches left to right so that earlier Detection offsets remain
// valid relative to the final output for detections made by this pass
// (detections from later stages are computed against the already-rewritten
// text, so their offsets remain correct too).
func (s *Sanitizer) applyPatterns(text string, pipelineStart time.Time) (string, []Detection) {
	patterns := patternTable
	out := text
	var detections []Detection

	for i, p := range patterns {
		if time.Since(pipelineStart) > pipelineHardBudget {
			slog.Warn("sanitizer pattern pass aborted at hard budget",
				"patterns_applied", i, "patterns_total", len(patterns))
			break
		}

		patternStart := time.Now()
		newOut, dets := applyOnePattern(out, p, s.detectorName)
		if time.Since(patternStart) > perPatternSoftCap {
			slog.Warn("sanitizer pattern exceeded soft cap, disabling for this call",
				"category", p.Category, "cap_ms", perPatternSoftCap.Milliseconds())
			if i >= minimalSafeSubsetSize {
				continue
			}
		}
		out = newOut
		detections = append(detections, dets...)
	}
	return out, detections
}

func applyOnePattern(text string, p patternSpec, detector string) (string, []Detection) {
	locs := p.Regex.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, nil
	}

	var detections []Detection
	out := text
	// Replace right to left so earlier offsets in `locs` remain valid.
	for i := len(locs) - 1; i >= 0; i-- {
		start, end := locs[i][0], locs[i][1]
		match := out[start:end]
		if p.validate != nil && !p.validate(match) {
			continue
		}
		out = out[:start] + p.Replacement + out[end:]
		detections = append(detections, Detection{
			Category:        p.Category,
			Placeholder:     p.Replacement,
			Start:           start,
			End:             start + len(p.Replacement),
			Detector:        detector,
			DetectorVersion: DetectorVersion,
		})
	}
	return out, detections
}
