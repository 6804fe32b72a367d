package sanitize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRun = regexp.MustCompile(`[ \t\f\v]{2,}`)

// zeroWidthChars are stripped entirely; they carry no information and are a
// common obfuscation technique for slipping characters past a naive scan.
var zeroWidthChars = []rune{
	'​', // zero width space
	'‌', // zero width non-joiner
	'‍', // zero width joiner
	'\uFEFF', // byte order mark / zero width no-break space
}

// htmlEntities is the fixed, small set of entities normalize decodes. This
// is intentionally not a general HTML parser — the hook accepts plain
// conversational text, not markup.
var htmlEntities = map[string]string{
	"&amp;":  "&",
	"&lt;":   "<",
	"&gt;":   ">",
	"&quot;": `"`,
	"&#39;":  "'",
	"&apos;": "'",
}

// normalize runs stage 0 of the pipeline: Unicode composition, zero-width
// stripping, whitespace collapse, HTML entity decode, and best-effort
// percent-decode. It never fails; any decode error leaves the input
// untouched for that step.
func normalize(text string) string {
	out := norm.NFKC.String(text)
	out = stripZeroWidth(out)
	out = decodeHTMLEntities(out)
	out = bestEffortPercentDecode(out)
	out = collapseWhitespace(out)
	return out
}

func stripZeroWidth(s string) string {
	return strings.Map(func(r rune) rune {
		for _, zw := range zeroWidthChars {
			if r == zw {
				return -1
			}
		}
		return r
	}, s)
}

func decodeHTMLEntities(s string) string {
	for entity, literal := range htmlEntities {
		s = strings.ReplaceAll(s, entity, literal)
	}
	return s
}

// bestEffortPercentDecode decodes percent-escapes only when the whole
// string is valid, since a partial decode could reassemble a redactable
// token across what looked like separate tokens pre-decode, or could
// corrupt unrelated text containing a literal '%'.
func bestEffortPercentDecode(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

func collapseWhitespace(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := false
	for _, r := range s {
		isSpace := unicode.IsSpace(r) && r != '\n'
		if isSpace {
			if lastWasSpace {
				continue
			}
			b.WriteRune(' ')
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
