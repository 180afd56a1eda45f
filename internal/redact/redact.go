// Package redact implements the redaction and capture-policy pipeline.
//
// Everything here is a pure function over header maps or nested JSON-like
// values. Redaction runs BEFORE data reaches cassette serialization; the
// invariant across the codebase is that nothing unredacted ever crosses
// the cassette I/O boundary.
package redact

import "strings"

// RedactedValue replaces redacted content in masked headers and body values.
const RedactedValue = "[REDACTED]"

// HeaderMode selects what happens to a sensitive header.
type HeaderMode string

const (
	// HeaderDrop removes the header entirely.
	HeaderDrop HeaderMode = "drop"
	// HeaderMask keeps the key and replaces the value with RedactedValue.
	HeaderMask HeaderMode = "mask"
)

// sensitiveHeaders are always removed or masked, case-insensitively.
var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"x-api-key":           {},
	"x-auth-token":        {},
	"x-access-token":      {},
	"x-refresh-token":     {},
	"x-session-token":     {},
	"x-csrf-token":        {},
	"x-xsrf-token":        {},
	"cookie":              {},
	"set-cookie":          {},
	"proxy-authorization": {},
	"www-authenticate":    {},
	"api-key":             {},
	"apikey":              {},
	"x-client-secret":     {},
	"x-secret-key":        {},
}

// AllowedHeaders is the default allow-list used for outbound dependency-call
// headers. Allow-listing is strictly safer than deny-listing for data that
// is persisted verbatim and hashed for matching.
var AllowedHeaders = map[string]struct{}{
	"content-type":     {},
	"content-length":   {},
	"accept":           {},
	"user-agent":       {},
	"x-request-id":     {},
	"x-correlation-id": {},
}

// sensitiveBodyKeys match body keys by exact or case-insensitive substring,
// so "user_password" is caught by "password".
var sensitiveBodyKeys = []string{
	// Authentication and credentials
	"password", "passwd", "pwd", "secret", "auth_token", "auth_key",
	// Tokens and keys
	"token", "api_key", "apikey", "api-key", "access_token", "refresh_token",
	"id_token", "session_token", "session_id", "sessionid", "bearer", "jwt",
	"oauth", "private_key", "privatekey", "public_key", "signing_key",
	"encryption_key", "secret_key", "secretkey", "client_secret", "client_id",
	// Security tokens
	"csrf", "xsrf", "nonce", "otp", "totp", "hotp", "mfa", "2fa", "pin",
	"verification_code", "reset_token", "magic_link",
	// PII
	"ssn", "social_security", "national_id", "passport", "driver_license",
	"drivers_license", "tax_id", "taxpayer",
	"phone", "mobile", "telephone", "fax", "email", "email_address",
	"date_of_birth", "dob", "birth_date", "birthdate", "age", "gender", "sex",
	"race", "ethnicity", "religion", "nationality",
	"address", "street", "zip_code", "zipcode", "postal_code", "postcode",
	// Financial (PCI-DSS)
	"credit_card", "creditcard", "card_number", "cardnumber", "cc_number",
	"debit_card", "cvv", "cvc", "cvv2", "cvc2", "security_code", "expiry",
	"expiration", "exp_date", "exp_month", "exp_year", "cardholder",
	"bank_account", "account_number", "routing_number", "iban", "swift",
	"bic", "sort_code",
	// Healthcare (HIPAA)
	"medical_record", "patient_id", "health_id", "diagnosis", "prescription",
	"treatment", "insurance_id", "member_id", "policy_number", "claim_number",
	"provider_id", "npi",
	// Other
	"signature", "biometric", "fingerprint", "face_id", "voice_print",
	"ip_address", "mac_address", "device_id", "imei", "serial_number",
}

// Headers applies the deny-list strategy to a header map.
//
// Sensitive headers are dropped (or masked when mode is HeaderMask);
// everything else passes through untouched. additionalSensitive extends
// the built-in set for this call only.
func Headers(headers map[string]string, mode HeaderMode, additionalSensitive []string) map[string]string {
	extra := make(map[string]struct{}, len(additionalSensitive))
	for _, h := range additionalSensitive {
		extra[strings.ToLower(h)] = struct{}{}
	}

	result := make(map[string]string, len(headers))
	for key, value := range headers {
		lower := strings.ToLower(key)
		_, builtin := sensitiveHeaders[lower]
		_, added := extra[lower]
		if builtin || added {
			if mode == HeaderMask {
				result[key] = RedactedValue
			}
			continue
		}
		result[key] = value
	}
	return result
}

// HeadersAllowlist keeps only explicitly allowed headers (lowercase names).
// A nil allow-list uses AllowedHeaders.
func HeadersAllowlist(headers map[string]string, allowed map[string]struct{}) map[string]string {
	if allowed == nil {
		allowed = AllowedHeaders
	}
	result := make(map[string]string, len(headers))
	for key, value := range headers {
		if _, ok := allowed[strings.ToLower(key)]; ok {
			result[key] = value
		}
	}
	return result
}

// Body redacts sensitive keys in a nested JSON-like value.
//
// Mappings and sequences are processed recursively. Values of sensitive
// keys are replaced with RedactedValue; every other string passes through
// token/PII masking. The input is never mutated.
func Body(body any, additionalSensitiveKeys []string) any {
	if body == nil {
		return nil
	}
	keys := sensitiveBodyKeys
	if len(additionalSensitiveKeys) > 0 {
		keys = make([]string, 0, len(sensitiveBodyKeys)+len(additionalSensitiveKeys))
		keys = append(keys, sensitiveBodyKeys...)
		for _, k := range additionalSensitiveKeys {
			keys = append(keys, strings.ToLower(k))
		}
	}
	return redactRecursive(body, keys)
}

func redactRecursive(obj any, sensitiveKeys []string) any {
	switch v := obj.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			if isSensitiveKey(key, sensitiveKeys) {
				result[key] = RedactedValue
			} else {
				result[key] = redactRecursive(value, sensitiveKeys)
			}
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = redactRecursive(item, sensitiveKeys)
		}
		return result
	case string:
		return MaskTokenLike(v)
	default:
		return obj
	}
}

func isSensitiveKey(key string, sensitiveKeys []string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}
