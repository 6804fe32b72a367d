package telemetry

// ContentPlaceholder is shown in place of already-sanitized content by any
// CLI surface, unless the operator explicitly opted into seeing it.
const ContentPlaceholder = "[content hidden — pass --include-content to reveal]"

// RedactForDisplay implements the CLI access policy from SPEC_FULL.md
// §4.8: tools that surface stored content to a human default to showing
// placeholders only. includeContent is the --include-content flag;
// confirmed is the result of the accompanying interactive confirmation
// prompt. Raw (pre-sanitization) content is unavailable by construction —
// this only ever gates access to already-sanitized content.
func RedactForDisplay(sanitizedContent string, includeContent, confirmed bool) string {
	if includeContent && confirmed {
		return sanitizedContent
	}
	return ContentPlaceholder
}
