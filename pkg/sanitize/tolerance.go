package sanitize

// ToleranceGroup is one of the accuracy-tolerance families SPEC_FULL.md
// §4.2's quantified table is stated against. Concrete pattern categories
// (e.g. every individual cloud-provider key format) map onto exactly one
// group, since the table's targets are per family, not per exact pattern.
type ToleranceGroup string

const (
	ToleranceGroupCredential ToleranceGroup = "credential_key_token"
	ToleranceGroupCreditCard ToleranceGroup = "credit_card"
	ToleranceGroupNationalID ToleranceGroup = "national_id"
	ToleranceGroupEmail      ToleranceGroup = "email"
	ToleranceGroupPublicIP   ToleranceGroup = "public_ip"
	ToleranceGroupPersonName ToleranceGroup = "personal_name"
	ToleranceGroupFilePath   ToleranceGroup = "file_path"
)

// Tolerance is one row of the §4.2 table: the maximum acceptable
// false-negative rate and false-positive rate for everything in a
// ToleranceGroup. Exported so test code can assert an observed rate
// against the spec's own numbers instead of a hand-picked threshold.
type Tolerance struct {
	FNTarget    float64
	FPTolerance float64
}

// Tolerances holds the §4.2 table verbatim.
var Tolerances = map[ToleranceGroup]Tolerance{
	ToleranceGroupCredential: {FNTarget: 0.001, FPTolerance: 0.10},
	ToleranceGroupCreditCard: {FNTarget: 0.0, FPTolerance: 0.01},
	ToleranceGroupNationalID: {FNTarget: 0.005, FPTolerance: 0.02},
	ToleranceGroupEmail:      {FNTarget: 0.01, FPTolerance: 0.02},
	ToleranceGroupPublicIP:   {FNTarget: 0.02, FPTolerance: 0.05},
	ToleranceGroupPersonName: {FNTarget: 0.02, FPTolerance: 0.05},
	ToleranceGroupFilePath:   {FNTarget: 0.01, FPTolerance: 0.03},
}

// categoryGroup classifies every Detection category this package can
// produce into its §4.2 tolerance group.
var categoryGroup = map[string]ToleranceGroup{
	"PRIVATE_KEY":                 ToleranceGroupCredential,
	"SSH_PUTTY_PRIVATE_KEY":       ToleranceGroupCredential,
	"CREDENTIAL_BLOB":             ToleranceGroupCredential,
	"PASSPHRASE":                  ToleranceGroupCredential,
	"DATABASE_CONNECTION_STRING":  ToleranceGroupCredential,
	"JWT":                         ToleranceGroupCredential,
	"AWS_ACCESS_KEY":              ToleranceGroupCredential,
	"AWS_SECRET_KEY":              ToleranceGroupCredential,
	"AWS_SESSION_TOKEN":           ToleranceGroupCredential,
	"GCP_API_KEY":                 ToleranceGroupCredential,
	"GOOGLE_OAUTH_CLIENT_SECRET":  ToleranceGroupCredential,
	"AZURE_CLIENT_SECRET":         ToleranceGroupCredential,
	"AZURE_STORAGE_KEY":           ToleranceGroupCredential,
	"GITHUB_TOKEN":                ToleranceGroupCredential,
	"GITLAB_TOKEN":                ToleranceGroupCredential,
	"BITBUCKET_APP_PASSWORD":      ToleranceGroupCredential,
	"SLACK_TOKEN":                 ToleranceGroupCredential,
	"SLACK_WEBHOOK_URL":           ToleranceGroupCredential,
	"DISCORD_BOT_TOKEN":           ToleranceGroupCredential,
	"DISCORD_WEBHOOK_URL":         ToleranceGroupCredential,
	"TELEGRAM_BOT_TOKEN":          ToleranceGroupCredential,
	"OPENAI_API_KEY":              ToleranceGroupCredential,
	"ANTHROPIC_API_KEY":           ToleranceGroupCredential,
	"HUGGINGFACE_TOKEN":           ToleranceGroupCredential,
	"STRIPE_LIVE_KEY":             ToleranceGroupCredential,
	"STRIPE_TEST_KEY":             ToleranceGroupCredential,
	"SQUARE_ACCESS_TOKEN":         ToleranceGroupCredential,
	"TWILIO_API_KEY":              ToleranceGroupCredential,
	"TWILIO_ACCOUNT_SID":          ToleranceGroupCredential,
	"SENDGRID_API_KEY":            ToleranceGroupCredential,
	"MAILGUN_API_KEY":             ToleranceGroupCredential,
	"MAILCHIMP_API_KEY":           ToleranceGroupCredential,
	"NPM_ACCESS_TOKEN":            ToleranceGroupCredential,
	"PYPI_UPLOAD_TOKEN":           ToleranceGroupCredential,
	"DOCKERHUB_PAT":               ToleranceGroupCredential,
	"SHOPIFY_ACCESS_TOKEN":        ToleranceGroupCredential,
	"DIGITALOCEAN_TOKEN":          ToleranceGroupCredential,
	"HASHICORP_VAULT_TOKEN":       ToleranceGroupCredential,
	"SENTRY_DSN":                  ToleranceGroupCredential,
	"HEROKU_API_KEY":              ToleranceGroupCredential,
	"DATADOG_API_KEY":             ToleranceGroupCredential,
	"NEW_RELIC_LICENSE_KEY":       ToleranceGroupCredential,
	"CIRCLECI_TOKEN":              ToleranceGroupCredential,
	"PAGERDUTY_API_KEY":           ToleranceGroupCredential,
	"GENERIC_BEARER_TOKEN":        ToleranceGroupCredential,
	"BASIC_AUTH_HEADER":           ToleranceGroupCredential,
	"URL_EMBEDDED_CREDENTIAL":     ToleranceGroupCredential,
	"PRESIGNED_S3_URL":            ToleranceGroupCredential,
	"GOOGLE_SIGNED_URL":           ToleranceGroupCredential,
	"URL_QUERY_TOKEN":             ToleranceGroupCredential,
	"HIGH_ENTROPY_SECRET":         ToleranceGroupCredential,
	"SENSITIVE_FIELD":             ToleranceGroupCredential,

	"CREDIT_CARD": ToleranceGroupCreditCard,

	"US_ITIN":             ToleranceGroupNationalID,
	"US_SSN":               ToleranceGroupNationalID,
	"US_EIN":               ToleranceGroupNationalID,
	"US_MEDICARE_NUMBER":   ToleranceGroupNationalID,
	"CANADA_SIN":           ToleranceGroupNationalID,
	"UK_NINO":              ToleranceGroupNationalID,
	"INDIA_AADHAAR":        ToleranceGroupNationalID,
	"SPAIN_DNI":            ToleranceGroupNationalID,
	"PASSPORT_NUMBER_GENERIC": ToleranceGroupNationalID,

	"EMAIL": ToleranceGroupEmail,

	"PHONE_NUMBER":               ToleranceGroupPublicIP,
	"INTERNATIONAL_PHONE_NUMBER": ToleranceGroupPublicIP,
	"IPV4_ADDRESS":                ToleranceGroupPublicIP,
	"IPV6_ADDRESS":                ToleranceGroupPublicIP,
	"MAC_ADDRESS":                 ToleranceGroupPublicIP,

	"PERSON_NAME_CONTEXTUAL": ToleranceGroupPersonName,

	"UNIX_HOME_PATH":       ToleranceGroupFilePath,
	"WINDOWS_USER_PATH":    ToleranceGroupFilePath,
	"ANDROID_STORAGE_PATH": ToleranceGroupFilePath,
	"IOS_CONTAINER_PATH":   ToleranceGroupFilePath,
}

// ToleranceFor returns the accuracy tolerance for category, defaulting to
// the credential/key/token target (the strictest FN bar) for any category
// not explicitly classified, so an unclassified pattern is held to a
// stricter bar rather than silently exempted from measurement.
func ToleranceFor(category string) Tolerance {
	if group, ok := categoryGroup[category]; ok {
		return Tolerances[group]
	}
	return Tolerances[ToleranceGroupCredential]
}
