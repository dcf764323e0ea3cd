// Package target validates monitor targets before any probe is allowed to touch them.
package target

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Error codes surfaced to callers; the classifier and runner switch on these.
const (
	ErrMissingTarget      = "MISSING_TARGET"
	ErrProtocolMismatch   = "PROTOCOL_MISMATCH"
	ErrMalformedStructure = "MALFORMED_STRUCTURE"
	ErrInvalidURL         = "INVALID_URL"
	ErrInvalidInput       = "INVALID_INPUT"
)

// Result is the outcome of validating a monitor's target against its protocol.
type Result struct {
	OK        bool
	ErrorType string
	Message   string
	// Normalized is the target after scheme auto-prefixing, set only when OK.
	Normalized string
	// Hostname is the parsed host (the bare target for non-URL protocols),
	// set only when OK.
	Hostname string
}

func fail(errType, message string) Result {
	return Result{OK: false, ErrorType: errType, Message: message}
}

var forbiddenHostChars = []rune{'<', '>', '[', ']', '|', '{', '}', '^', '`'}

var localPolicySuffixes = []string{".local", ".internal", ".localhost"}

// Validate applies the ordered rule set for a monitor's target and protocol.
// The first failing rule wins; callers should short-circuit on !Result.OK.
func Validate(rawTarget, protocol string) Result {
	trimmed := strings.TrimSpace(rawTarget)
	if trimmed == "" {
		return fail(ErrMissingTarget, "target is empty or whitespace")
	}

	protocol = strings.ToUpper(protocol)

	if protocol == "DNS" {
		if isIPOrIPPortLiteral(trimmed) {
			return fail(ErrInvalidInput, "DNS monitors cannot target an IP literal")
		}
	}

	if !isURLProtocol(protocol) {
		// TCP/UDP/DNS/SMTP/PING targets are bare hostnames; still subject to
		// hostname shape and local-network policy checks below.
		return validateHostname(trimmed, trimmed)
	}

	scheme, hasScheme := explicitScheme(trimmed)
	if hasScheme && scheme != "http" && scheme != "https" {
		return fail(ErrProtocolMismatch, fmt.Sprintf("scheme %q is not allowed for HTTP/HTTPS monitors", scheme))
	}

	candidate := trimmed
	if !hasScheme {
		candidate = "http://" + trimmed
	}

	if strings.Contains(candidate, "://///") || hasTripleSlash(candidate) {
		return fail(ErrMalformedStructure, "triple-slash targets are not well formed")
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return fail(ErrInvalidURL, fmt.Sprintf("failed to parse target: %v", err))
	}
	if parsed.Hostname() == "" {
		return fail(ErrInvalidURL, "target has no hostname")
	}

	result := validateHostname(candidate, parsed.Hostname())
	if !result.OK {
		return result
	}
	result.Normalized = candidate
	return result
}

func validateHostname(normalized, hostname string) Result {
	if hostname == "" {
		return fail(ErrInvalidURL, "hostname is empty")
	}
	for _, r := range forbiddenHostChars {
		if strings.ContainsRune(hostname, r) {
			return fail(ErrInvalidURL, fmt.Sprintf("hostname contains forbidden character %q", r))
		}
	}
	if strings.ContainsAny(hostname, " \t\n\r") {
		return fail(ErrInvalidURL, "hostname contains whitespace")
	}

	lower := strings.ToLower(hostname)
	if lower == "localhost" {
		return fail(ErrInvalidURL, "localhost targets are rejected by operational policy")
	}
	for _, suffix := range localPolicySuffixes {
		if strings.HasSuffix(lower, suffix) {
			return fail(ErrInvalidURL, fmt.Sprintf("hostnames ending in %q are rejected by operational policy", suffix))
		}
	}

	return Result{OK: true, Normalized: normalized, Hostname: hostname}
}

// explicitScheme reports the scheme of target if one is present before "://" or ":".
func explicitScheme(target string) (string, bool) {
	idx := strings.Index(target, "://")
	if idx > 0 {
		return strings.ToLower(target[:idx]), true
	}
	// Catch non-slashed schemes like "mailto:" which would otherwise parse as a path.
	if idx2 := strings.Index(target, ":"); idx2 > 0 && !strings.Contains(target[:idx2], "/") {
		rest := target[idx2+1:]
		if !strings.HasPrefix(rest, "//") {
			return strings.ToLower(target[:idx2]), true
		}
	}
	return "", false
}

func hasTripleSlash(target string) bool {
	idx := strings.Index(target, "://")
	if idx < 0 {
		return false
	}
	rest := target[idx+3:]
	return strings.HasPrefix(rest, "/")
}

func isURLProtocol(protocol string) bool {
	return protocol == "HTTP" || protocol == "HTTPS"
}

// isIPOrIPPortLiteral reports whether target is an IP address, optionally with
// a trailing ":port", which DNS monitors are forbidden from targeting.
func isIPOrIPPortLiteral(target string) bool {
	if net.ParseIP(target) != nil {
		return true
	}
	host, _, err := net.SplitHostPort(target)
	if err != nil {
		return false
	}
	host = strings.Trim(host, "[]")
	return net.ParseIP(host) != nil
}
