package sanitize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// sensitiveKeys is the fixed, lowercased set of key names whose values are
// redacted outright in stage 3, regardless of whether they matched any
// earlier pattern.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"client_secret": true,
	"private_key":   true,
	"access_token":  true,
	"refresh_token": true,
	"auth":          true,
	"authorization": true,
}

// scanStructured redacts the value of any key in text whose lowercased
// name is in sensitiveKeys, when that value is at least 8 characters. It
// first tries to parse text as JSON (an object or array of objects); on
// failure it falls back to a best-effort key: value / key=value regex
// sweep, since most hook payloads are plain conversational text with
// embedded snippets rather than well-formed JSON documents.
func scanStructured(text string, detector string) (string, []Detection) {
	if out, dets, ok := scanJSONObjects(text, detector); ok {
		return out, dets
	}
	return scanKeyValuePairs(text, detector)
}

var jsonLikeSpan = regexp.MustCompile(`\{` + strings.Repeat(`[\s\S]{0,1000}?`, 20) + `\}`)

const sensitiveFieldPlaceholder = "[REDACTED_SENSITIVE_FIELD]"

func scanJSONObjects(text string, detector string) (string, []Detection, bool) {
	matches := jsonLikeSpan.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, nil, false
	}

	var detections []Detection
	out := text
	// Walk matches in reverse so earlier offsets stay valid as we rewrite.
	for i := len(matches) - 1; i >= 0; i-- {
		start, end := matches[i][0], matches[i][1]
		span := out[start:end]

		var obj map[string]any
		if err := json.Unmarshal([]byte(span), &obj); err != nil {
			continue
		}
		redacted, found := redactJSONValue(obj)
		if !found {
			continue
		}
		redactedJSON, err := json.Marshal(redacted)
		if err != nil {
			continue
		}
		redactedStr := string(redactedJSON)
		out = out[:start] + redactedStr + out[end:]
		detections = append(detections, locateSensitiveFieldDetections(redactedStr, start, detector)...)
	}
	if detections == nil {
		return text, nil, false
	}
	return out, detections, true
}

// redactJSONValue walks v, replacing the value of any sensitiveKeys-matched
// string field (length >= 8) with the fixed placeholder, and reports
// whether anything was redacted. Positions are resolved afterward by
// locateSensitiveFieldDetections against the final marshaled string, since
// a value's byte offset in re-serialized JSON isn't meaningful until then.
func redactJSONValue(v any) (any, bool) {
	switch val := v.(type) {
	case map[string]any:
		redactedAny := false
		for k, inner := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				if s, ok := inner.(string); ok && len(s) >= 8 {
					val[k] = sensitiveFieldPlaceholder
					redactedAny = true
					continue
				}
			}
			redactedInner, innerRedacted := redactJSONValue(inner)
			val[k] = redactedInner
			redactedAny = redactedAny || innerRedacted
		}
		return val, redactedAny
	case []any:
		redactedAny := false
		for i, inner := range val {
			redactedInner, innerRedacted := redactJSONValue(inner)
			val[i] = redactedInner
			redactedAny = redactedAny || innerRedacted
		}
		return val, redactedAny
	default:
		return v, false
	}
}

// locateSensitiveFieldDetections scans span for every occurrence of the
// sensitive-field placeholder and returns a Detection per occurrence, with
// Start/End expressed relative to the full output text (base is span's
// offset within it).
func locateSensitiveFieldDetections(span string, base int, detector string) []Detection {
	var detections []Detection
	offset := 0
	for {
		idx := strings.Index(span[offset:], sensitiveFieldPlaceholder)
		if idx < 0 {
			break
		}
		start := base + offset + idx
		end := start + len(sensitiveFieldPlaceholder)
		detections = append(detections, Detection{
			Category:        "SENSITIVE_FIELD",
			Placeholder:     sensitiveFieldPlaceholder,
			Start:           start,
			End:             end,
			Detector:        detector,
			DetectorVersion: DetectorVersion,
		})
		offset = end - base
	}
	return detections
}

var keyValuePair = regexp.MustCompile(`(?i)\b([A-Za-z_][A-Za-z0-9_]{0,40})\s*[:=]\s*['"]?([^\s'",}]{8,300})['"]?`)

func scanKeyValuePairs(text string, detector string) (string, []Detection) {
	matches := keyValuePair.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var detections []Detection
	out := text
	// Walk matches in reverse so earlier offsets stay valid as we rewrite.
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		matchStart, matchEnd := m[0], m[1]
		keyStart, keyEnd := m[2], m[3]
		key := strings.ToLower(text[keyStart:keyEnd])
		if !sensitiveKeys[key] {
			continue
		}

		keyText := text[keyStart:keyEnd]
		replacement := fmt.Sprintf("%s: %s", keyText, sensitiveFieldPlaceholder)
		out = out[:matchStart] + replacement + out[matchEnd:]

		placeholderStart := matchStart + len(keyText) + len(": ")
		detections = append(detections, Detection{
			Category:        "SENSITIVE_FIELD",
			Placeholder:     sensitiveFieldPlaceholder,
			Start:           placeholderStart,
			End:             placeholderStart + len(sensitiveFieldPlaceholder),
			Detector:        detector,
			DetectorVersion: DetectorVersion,
		})
	}
	return out, detections
}
