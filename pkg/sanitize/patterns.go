package sanitize

import (
	"regexp"
	"strconv"
	"strings"
)

// patternSpec is one compiled entry in the fixed-priority pattern table,
// modeled on the teacher's masking.CompiledPattern but extended with a
// validator hook (used by the credit-card category's Luhn check) and the
// soft per-pattern time budget from SPEC_FULL.md §4.2.
type patternSpec struct {
	Category    string
	Regex       *regexp.Regexp
	Replacement string
	// validate, if set, is called with the raw match; a false return skips
	// the replacement for that specific match (used for Luhn validation).
	validate func(match string) bool
}

// minimalSafeSubset is the fallback pattern list used when the whole
// pipeline's hard time budget is at risk: the first four, highest-risk
// categories only.
const minimalSafeSubsetSize = 4

// patternTable is applied in order; earlier entries are higher risk and
// run first, per SPEC_FULL.md §4.2 stage 2. Quantifiers are bounded
// ({0,200}-class) and avoid nested unbounded repetition, to keep each
// pattern clear of catastrophic backtracking.
var patternTable = buildPatternTable()

func buildPatternTable() []patternSpec {
	return []patternSpec{
		// --- tier 0: private keys, credential blobs ---
		{
			Category:    "PRIVATE_KEY",
			Regex:       regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA |PGP )?PRIVATE KEY-----[\s\S]{0,1000}?[\s\S]{0,1000}?[\s\S]{0,1000}?[\s\S]{0,1000}?-----END (?:RSA |EC |OPENSSH |DSA |PGP )?PRIVATE KEY-----`),
			Replacement: "[REDACTED_PRIVATE_KEY]",
		},
		{
			Category:    "SSH_PUTTY_PRIVATE_KEY",
			Regex:       regexp.MustCompile(`PuTTY-User-Key-File-\d:[\s\S]{0,1000}?[\s\S]{0,1000}?[\s\S]{0,1000}?[\s\S]{0,1000}?Private-MAC:\s*[A-Fa-f0-9]{1,100}`),
			Replacement: "[REDACTED_PRIVATE_KEY]",
		},
		{
			Category:    "CREDENTIAL_BLOB",
			Regex:       regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*[:=]\s*['"]?[^\s'"]{6,200}['"]?`),
			Replacement: "[REDACTED_CREDENTIAL_BLOB]",
		},
		{
			Category:    "PASSPHRASE",
			Regex:       regexp.MustCompile(`(?i)\bpassphrase\s*[:=]\s*['"]?[^\s'"]{6,200}['"]?`),
			Replacement: "[REDACTED_PASSPHRASE]",
		},
		{
			Category:    "DATABASE_CONNECTION_STRING",
			Regex:       regexp.MustCompile(`(?i)\b(?:postgres|postgresql|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s:/@]{1,100}:[^\s@/]{1,200}@[^\s]{1,255}`),
			Replacement: "[REDACTED_DB_CONNECTION_STRING]",
		},

		// --- tier 1: JWTs, cloud provider keys, dev-platform tokens ---
		{
			Category:    "JWT",
			Regex:       regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,500}\.[A-Za-z0-9_-]{10,500}\.[A-Za-z0-9_-]{10,500}\b`),
			Replacement: "[REDACTED_JWT]",
		},
		{
			Category:    "AWS_ACCESS_KEY",
			Regex:       regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
			Replacement: "[REDACTED_AWS_ACCESS_KEY]",
		},
		{
			Category:    "AWS_SECRET_KEY",
			Regex:       regexp.MustCompile(`(?i)\baws_secret_access_key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`),
			Replacement: "[REDACTED_AWS_SECRET_KEY]",
		},
		{
			Category:    "AWS_SESSION_TOKEN",
			Regex:       regexp.MustCompile(`(?i)\baws_session_token\s*[:=]\s*['"]?[A-Za-z0-9/+=]{100,800}['"]?`),
			Replacement: "[REDACTED_AWS_SESSION_TOKEN]",
		},
		{
			Category:    "GCP_API_KEY",
			Regex:       regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}\b`),
			Replacement: "[REDACTED_GCP_API_KEY]",
		},
		{
			Category:    "GOOGLE_OAUTH_CLIENT_SECRET",
			Regex:       regexp.MustCompile(`\bGOCSPX-[A-Za-z0-9_-]{20,40}\b`),
			Replacement: "[REDACTED_OAUTH_CLIENT_SECRET]",
		},
		{
			Category:    "AZURE_CLIENT_SECRET",
			Regex:       regexp.MustCompile(`(?i)\bazure_client_secret\s*[:=]\s*['"]?[A-Za-z0-9._~-]{30,100}['"]?`),
			Replacement: "[REDACTED_AZURE_CLIENT_SECRET]",
		},
		{
			Category:    "AZURE_STORAGE_KEY",
			Regex:       regexp.MustCompile(`\bAccountKey=[A-Za-z0-9+/]{80,100}={0,2}`),
			Replacement: "[REDACTED_AZURE_STORAGE_KEY]",
		},
		{
			Category:    "GITHUB_TOKEN",
			Regex:       regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,255}\b`),
			Replacement: "[REDACTED_GITHUB_TOKEN]",
		},
		{
			Category:    "GITLAB_TOKEN",
			Regex:       regexp.MustCompile(`\bglpat-[A-Za-z0-9_-]{20,40}\b`),
			Replacement: "[REDACTED_GITLAB_TOKEN]",
		},
		{
			Category:    "BITBUCKET_APP_PASSWORD",
			Regex:       regexp.MustCompile(`(?i)\bbitbucket_app_password\s*[:=]\s*['"]?[A-Za-z0-9]{20,32}['"]?`),
			Replacement: "[REDACTED_BITBUCKET_APP_PASSWORD]",
		},
		{
			Category:    "SLACK_TOKEN",
			Regex:       regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,200}\b`),
			Replacement: "[REDACTED_SLACK_TOKEN]",
		},
		{
			Category:    "SLACK_WEBHOOK_URL",
			Regex:       regexp.MustCompile(`https://hooks\.slack\.com/services/[A-Za-z0-9/]{20,60}`),
			Replacement: "[REDACTED_SLACK_WEBHOOK]",
		},
		{
			Category:    "DISCORD_BOT_TOKEN",
			Regex:       regexp.MustCompile(`\b[MNO][A-Za-z0-9_-]{23,25}\.[A-Za-z0-9_-]{6}\.[A-Za-z0-9_-]{27,40}\b`),
			Replacement: "[REDACTED_DISCORD_BOT_TOKEN]",
		},
		{
			Category:    "DISCORD_WEBHOOK_URL",
			Regex:       regexp.MustCompile(`https://discord(?:app)?\.com/api/webhooks/\d{5,25}/[A-Za-z0-9_-]{20,100}`),
			Replacement: "[REDACTED_DISCORD_WEBHOOK]",
		},
		{
			Category:    "TELEGRAM_BOT_TOKEN",
			Regex:       regexp.MustCompile(`\b\d{8,10}:[A-Za-z0-9_-]{35}\b`),
			Replacement: "[REDACTED_TELEGRAM_BOT_TOKEN]",
		},
		{
			Category:    "OPENAI_API_KEY",
			Regex:       regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,200}\b`),
			Replacement: "[REDACTED_API_KEY]",
		},
		{
			Category:    "ANTHROPIC_API_KEY",
			Regex:       regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_-]{20,200}\b`),
			Replacement: "[REDACTED_API_KEY]",
		},
		{
			Category:    "HUGGINGFACE_TOKEN",
			Regex:       regexp.MustCompile(`\bhf_[A-Za-z0-9]{30,40}\b`),
			Replacement: "[REDACTED_HUGGINGFACE_TOKEN]",
		},
		{
			Category:    "STRIPE_LIVE_KEY",
			Regex:       regexp.MustCompile(`\b(?:sk|rk|pk)_live_[A-Za-z0-9]{20,100}\b`),
			Replacement: "[REDACTED_STRIPE_KEY]",
		},
		{
			Category:    "STRIPE_TEST_KEY",
			Regex:       regexp.MustCompile(`\b(?:sk|rk|pk)_test_[A-Za-z0-9]{20,100}\b`),
			Replacement: "[REDACTED_STRIPE_KEY]",
		},
		{
			Category:    "SQUARE_ACCESS_TOKEN",
			Regex:       regexp.MustCompile(`\bsq0(?:atp|csp)-[A-Za-z0-9_-]{22,50}\b`),
			Replacement: "[REDACTED_SQUARE_TOKEN]",
		},
		{
			Category:    "TWILIO_API_KEY",
			Regex:       regexp.MustCompile(`\bSK[0-9a-fA-F]{32}\b`),
			Replacement: "[REDACTED_TWILIO_KEY]",
		},
		{
			Category:    "TWILIO_ACCOUNT_SID",
			Regex:       regexp.MustCompile(`\bAC[0-9a-fA-F]{32}\b`),
			Replacement: "[REDACTED_TWILIO_SID]",
		},
		{
			Category:    "SENDGRID_API_KEY",
			Regex:       regexp.MustCompile(`\bSG\.[A-Za-z0-9_-]{20,30}\.[A-Za-z0-9_-]{20,50}\b`),
			Replacement: "[REDACTED_SENDGRID_KEY]",
		},
		{
			Category:    "MAILGUN_API_KEY",
			Regex:       regexp.MustCompile(`\bkey-[0-9a-f]{32}\b`),
			Replacement: "[REDACTED_MAILGUN_KEY]",
		},
		{
			Category:    "MAILCHIMP_API_KEY",
			Regex:       regexp.MustCompile(`\b[0-9a-f]{32}-us\d{1,2}\b`),
			Replacement: "[REDACTED_MAILCHIMP_KEY]",
		},
		{
			Category:    "NPM_ACCESS_TOKEN",
			Regex:       regexp.MustCompile(`\bnpm_[A-Za-z0-9]{30,40}\b`),
			Replacement: "[REDACTED_NPM_TOKEN]",
		},
		{
			Category:    "PYPI_UPLOAD_TOKEN",
			Regex:       regexp.MustCompile(`\bpypi-[A-Za-z0-9_-]{50,300}\b`),
			Replacement: "[REDACTED_PYPI_TOKEN]",
		},
		{
			Category:    "DOCKERHUB_PAT",
			Regex:       regexp.MustCompile(`\bdckr_pat_[A-Za-z0-9_-]{20,40}\b`),
			Replacement: "[REDACTED_DOCKERHUB_TOKEN]",
		},
		{
			Category:    "SHOPIFY_ACCESS_TOKEN",
			Regex:       regexp.MustCompile(`\bshp(?:at|ca|pa)_[A-Za-z0-9]{32}\b`),
			Replacement: "[REDACTED_SHOPIFY_TOKEN]",
		},
		{
			Category:    "DIGITALOCEAN_TOKEN",
			Regex:       regexp.MustCompile(`\bdop_v1_[a-f0-9]{64}\b`),
			Replacement: "[REDACTED_DIGITALOCEAN_TOKEN]",
		},
		{
			Category:    "HASHICORP_VAULT_TOKEN",
			Regex:       regexp.MustCompile(`\bhvs\.[A-Za-z0-9_-]{24,100}\b`),
			Replacement: "[REDACTED_VAULT_TOKEN]",
		},
		{
			Category:    "SENTRY_DSN",
			Regex:       regexp.MustCompile(`https://[a-f0-9]{32}@[A-Za-z0-9.-]{1,100}/\d{1,10}`),
			Replacement: "[REDACTED_SENTRY_DSN]",
		},
		{
			Category:    "HEROKU_API_KEY",
			Regex:       regexp.MustCompile(`(?i)\bheroku_api_key\s*[:=]\s*['"]?[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}['"]?`),
			Replacement: "[REDACTED_HEROKU_KEY]",
		},
		{
			Category:    "DATADOG_API_KEY",
			Regex:       regexp.MustCompile(`(?i)\bdd_api_key\s*[:=]\s*['"]?[a-f0-9]{32}['"]?`),
			Replacement: "[REDACTED_DATADOG_KEY]",
		},
		{
			Category:    "NEW_RELIC_LICENSE_KEY",
			Regex:       regexp.MustCompile(`\b[A-Fa-f0-9]{40}NRAL\b`),
			Replacement: "[REDACTED_NEW_RELIC_KEY]",
		},
		{
			Category:    "CIRCLECI_TOKEN",
			Regex:       regexp.MustCompile(`(?i)\bcircle_token\s*[:=]\s*['"]?[a-f0-9]{40}['"]?`),
			Replacement: "[REDACTED_CIRCLECI_TOKEN]",
		},
		{
			Category:    "PAGERDUTY_API_KEY",
			Regex:       regexp.MustCompile(`(?i)\bpagerduty_api_key\s*[:=]\s*['"]?[A-Za-z0-9+_-]{20,32}['"]?`),
			Replacement: "[REDACTED_PAGERDUTY_KEY]",
		},
		{
			Category:    "GENERIC_BEARER_TOKEN",
			Regex:       regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]{20,500}\b`),
			Replacement: "[REDACTED_BEARER_TOKEN]",
		},
		{
			Category:    "BASIC_AUTH_HEADER",
			Regex:       regexp.MustCompile(`(?i)\bBasic\s+[A-Za-z0-9+/=]{16,500}\b`),
			Replacement: "[REDACTED_BASIC_AUTH]",
		},

		// --- tier 2: high-confidence financial/national IDs ---
		{
			Category:    "CREDIT_CARD",
			Regex:       regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
			Replacement: "[REDACTED_CREDIT_CARD]",
			validate:    isLuhnValid,
		},
		{
			Category:    "US_ITIN",
			Regex:       regexp.MustCompile(`\b9\d{2}-\d{2}-\d{4}\b`),
			Replacement: "[REDACTED_ITIN]",
		},
		{
			Category:    "US_SSN",
			Regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Replacement: "[REDACTED_SSN]",
		},
		{
			Category:    "US_EIN",
			Regex:       regexp.MustCompile(`\b\d{2}-\d{7}\b`),
			Replacement: "[REDACTED_EIN]",
		},
		{
			Category:    "US_MEDICARE_NUMBER",
			Regex:       regexp.MustCompile(`\b[0-9][A-Z0-9]{4}-[A-Z0-9]{3}-[A-Z0-9]{2}\b`),
			Replacement: "[REDACTED_MEDICARE_NUMBER]",
		},
		{
			Category:    "CANADA_SIN",
			Regex:       regexp.MustCompile(`\b\d{3}[- ]\d{3}[- ]\d{3}\b`),
			Replacement: "[REDACTED_SIN]",
		},
		{
			Category:    "UK_NINO",
			Regex:       regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z][A-CEGHJ-NPR-TW-Z]\d{6}[A-D]\b`),
			Replacement: "[REDACTED_NINO]",
		},
		{
			Category:    "INDIA_AADHAAR",
			Regex:       regexp.MustCompile(`\b\d{4}\s\d{4}\s\d{4}\b`),
			Replacement: "[REDACTED_AADHAAR]",
		},
		{
			Category:    "SPAIN_DNI",
			Regex:       regexp.MustCompile(`\b\d{8}[A-Za-z]\b`),
			Replacement: "[REDACTED_DNI]",
		},
		{
			Category:    "PASSPORT_NUMBER_GENERIC",
			Regex:       regexp.MustCompile(`(?i)\bpassport\s*(?:number|no\.?|#)?\s*[:=]?\s*[A-Z]{1,2}\d{6,9}\b`),
			Replacement: "[REDACTED_PASSPORT_NUMBER]",
		},

		// --- tier 3: contact identifiers ---
		{
			Category:    "EMAIL",
			Regex:       regexp.MustCompile(`\b[A-Za-z0-9._%+-]{1,64}@[A-Za-z0-9.-]{1,255}\.[A-Za-z]{2,24}\b`),
			Replacement: "[REDACTED_EMAIL]",
		},
		{
			Category:    "PHONE_NUMBER",
			Regex:       regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`),
			Replacement: "[REDACTED_PHONE]",
		},
		{
			Category:    "INTERNATIONAL_PHONE_NUMBER",
			Regex:       regexp.MustCompile(`\+[1-9]\d{6,14}\b`),
			Replacement: "[REDACTED_PHONE]",
		},

		// --- tier 4: network identifiers ---
		{
			Category:    "IPV4_ADDRESS",
			Regex:       regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`),
			Replacement: "[REDACTED_IP]",
			validate:    isPublicIPv4,
		},
		{
			Category:    "IPV6_ADDRESS",
			Regex:       regexp.MustCompile(`\b(?:[A-Fa-f0-9]{1,4}:){7}[A-Fa-f0-9]{1,4}\b`),
			Replacement: "[REDACTED_IP]",
		},
		{
			Category:    "MAC_ADDRESS",
			Regex:       regexp.MustCompile(`\b(?:[0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}\b`),
			Replacement: "[REDACTED_MAC]",
		},

		// --- tier 5: user-specific file paths ---
		{
			Category:    "UNIX_HOME_PATH",
			Regex:       regexp.MustCompile(`/(?:Users|home)/[A-Za-z0-9_./-]{1,200}`),
			Replacement: "[REDACTED_PATH]",
		},
		{
			Category:    "WINDOWS_USER_PATH",
			Regex:       regexp.MustCompile(`[A-Za-z]:\\Users\\[A-Za-z0-9_.\\ -]{1,200}`),
			Replacement: "[REDACTED_PATH]",
		},
		{
			Category:    "ANDROID_STORAGE_PATH",
			Regex:       regexp.MustCompile(`/storage/emulated/\d{1,2}/[A-Za-z0-9_./ -]{1,200}`),
			Replacement: "[REDACTED_PATH]",
		},
		{
			Category:    "IOS_CONTAINER_PATH",
			Regex:       regexp.MustCompile(`/var/mobile/Containers/Data/Application/[A-Fa-f0-9-]{36}/[A-Za-z0-9_./ -]{1,200}`),
			Replacement: "[REDACTED_PATH]",
		},

		// --- tier 6: URL-embedded tokens ---
		{
			Category:    "URL_EMBEDDED_CREDENTIAL",
			Regex:       regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]{1,20}://[^\s/:@]{1,100}:[^\s/@]{1,200}@[^\s]{1,255}`),
			Replacement: "[REDACTED_URL_CREDENTIAL]",
		},
		{
			Category:    "PRESIGNED_S3_URL",
			Regex:       regexp.MustCompile(`https://[A-Za-z0-9.-]{1,100}amazonaws\.com/[^\s]{0,500}?X-Amz-Signature=[A-Za-z0-9%]{20,200}`),
			Replacement: "[REDACTED_PRESIGNED_URL]",
		},
		{
			Category:    "GOOGLE_SIGNED_URL",
			Regex:       regexp.MustCompile(`https://storage\.googleapis\.com/[^\s]{0,500}?Signature=[A-Za-z0-9%]{20,300}`),
			Replacement: "[REDACTED_PRESIGNED_URL]",
		},
		{
			Category:    "URL_QUERY_TOKEN",
			Regex:       regexp.MustCompile(`(?i)[?&](?:token|access_token|api_key|auth|secret)=[^&\s]{8,300}`),
			Replacement: "[REDACTED_URL_TOKEN]",
		},

		// --- tier 7: contextual personal identifiers ---
		{
			Category:    "PERSON_NAME_CONTEXTUAL",
			Regex:       regexp.MustCompile(`(?:(?i:my name is|i am|this is|i'm|call me))\s+[A-Z][a-z]{1,20}(?:\s[A-Z][a-z]{1,20}){0,2}`),
			Replacement: "[REDACTED_PERSON_NAME]",
		},
	}
}

// isPublicIPv4 reports whether match is outside the reserved private,
// loopback, link-local, and carrier-grade-NAT ranges. Per SPEC_FULL.md's
// "Public IP" category, only internet-routable addresses are redacted;
// private-range addresses (e.g. 192.168.1.1) are left in place since they
// identify no one outside the reader's own network.
func isPublicIPv4(match string) bool {
	parts := strings.Split(match, ".")
	if len(parts) != 4 {
		return false
	}
	octets := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
		octets[i] = n
	}
	switch {
	case octets[0] == 10: // 10.0.0.0/8
		return false
	case octets[0] == 127: // 127.0.0.0/8 loopback
		return false
	case octets[0] == 172 && octets[1] >= 16 && octets[1] <= 31: // 172.16.0.0/12
		return false
	case octets[0] == 192 && octets[1] == 168: // 192.168.0.0/16
		return false
	case octets[0] == 169 && octets[1] == 254: // 169.254.0.0/16 link-local
		return false
	case octets[0] == 100 && octets[1] >= 64 && octets[1] <= 127: // 100.64.0.0/10 CGNAT
		return false
	case octets[0] == 0: // 0.0.0.0/8
		return false
	}
	return true
}

// isLuhnValid reports whether match passes the Luhn checksum, used to keep
// the credit-card pattern's false-positive rate within its tolerance. Only
// digits in match are considered; separators are stripped first.
func isLuhnValid(match string) bool {
	digits := make([]byte, 0, len(match))
	for i := 0; i < len(match); i++ {
		c := match[i]
		if c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}
