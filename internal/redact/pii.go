package redact

import (
	"regexp"
	"strings"
)

// PII detection is heuristic by design: the thresholds and character-class
// checks below are tuned to catch real secrets at the cost of occasional
// false positives, which is the correct trade-off for data being persisted.

var (
	emailPattern      = regexp.MustCompile(`(?i)[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern      = regexp.MustCompile(`(?:\+\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	ssnPattern        = regexp.MustCompile(`^\d{3}\d{2}\d{4}$`)
	creditCardPattern = regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)
	ipv4Pattern       = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`)
	ipv6Pattern       = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`)

	apiKeyCharset = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	hasLower      = regexp.MustCompile(`[a-z]`)
	hasUpperOrSep = regexp.MustCompile(`[A-Z0-9_-]`)
)

// luhnCheck validates a digit string with the Luhn algorithm. Distinguishes
// actual card numbers from random 16-digit strings.
func luhnCheck(number string) bool {
	var digits []int
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	checksum := 0
	for i := 0; i < len(digits); i++ {
		digit := digits[len(digits)-1-i]
		if i%2 == 1 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		checksum += digit
	}
	return checksum%10 == 0
}

// DetectPII reports the kind of PII found in value ("email", "ssn",
// "credit_card", "phone", "ipv4", "ipv6"), or "" if none is detected.
func DetectPII(value string) string {
	if len(value) < 5 {
		return ""
	}

	if emailPattern.MatchString(value) {
		return "email"
	}

	stripped := strings.NewReplacer("-", "", " ", "").Replace(value)
	if ssnPattern.MatchString(stripped) {
		return "ssn"
	}

	if match := creditCardPattern.FindString(value); match != "" {
		if luhnCheck(match) {
			return "credit_card"
		}
	}

	if phonePattern.MatchString(value) {
		digitCount := 0
		for _, r := range value {
			if r >= '0' && r <= '9' {
				digitCount++
			}
		}
		if digitCount >= 10 && digitCount <= 15 {
			return "phone"
		}
	}

	if ipv4Pattern.MatchString(value) {
		return "ipv4"
	}
	if ipv6Pattern.MatchString(value) {
		return "ipv6"
	}

	return ""
}

// MaskTokenLike masks token-shaped strings and detected PII in a value.
//
// Catches JWTs, Bearer-prefixed tokens, long random-looking alphanumeric
// strings, and the DetectPII patterns. Already-redacted markers pass
// through unchanged, which keeps the whole pipeline idempotent.
func MaskTokenLike(value string) string {
	// JWT: three dot-separated base64url segments starting with eyJ.
	if strings.HasPrefix(value, "eyJ") && strings.Count(value, ".") == 2 {
		return RedactedValue
	}

	if strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return "Bearer " + RedactedValue
	}

	// Long alphanumeric strings that look random are likely API keys.
	if len(value) > 32 && apiKeyCharset.MatchString(value) {
		if hasLower.MatchString(value) && hasUpperOrSep.MatchString(value) {
			return RedactedValue
		}
	}

	if kind := DetectPII(value); kind != "" {
		return "[REDACTED:" + strings.ToUpper(kind) + "]"
	}

	return value
}

// MaskPIIInText replaces every detected PII pattern inside free-form text.
// Useful for unstructured fields like comments or descriptions.
func MaskPIIInText(text string) string {
	result := emailPattern.ReplaceAllString(text, "[REDACTED:EMAIL]")

	result = creditCardPattern.ReplaceAllStringFunc(result, func(match string) string {
		if luhnCheck(match) {
			return "[REDACTED:CREDIT_CARD]"
		}
		return match
	})

	result = phonePattern.ReplaceAllStringFunc(result, func(match string) string {
		digitCount := 0
		for _, r := range match {
			if r >= '0' && r <= '9' {
				digitCount++
			}
		}
		if digitCount >= 10 && digitCount <= 15 {
			return "[REDACTED:PHONE]"
		}
		return match
	})

	result = ipv4Pattern.ReplaceAllString(result, "[REDACTED:IP]")
	result = ipv6Pattern.ReplaceAllString(result, "[REDACTED:IP]")
	return result
}
