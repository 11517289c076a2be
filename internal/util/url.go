package util

import (
	"fmt"
	"net/url"
	"strings"
)

// NormaliseDomain removes http/https prefix and www. from domain
func NormaliseDomain(domain string) string {
	// Remove http:// or https:// prefix if present
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "https://")

	// Remove www. prefix if present
	domain = strings.TrimPrefix(domain, "www.")

	// Remove any path component
	if idx := strings.Index(domain, "/"); idx != -1 {
		domain = domain[:idx]
	}

	return domain
}

// DomainOf extracts the normalised domain from a full URL.
// Returns an empty string when the URL cannot be parsed.
func DomainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if parsed.Host == "" {
		return NormaliseDomain(rawURL)
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// ValidateURL checks that a URL is an absolute http(s) URL with a hostname.
// Returns an error describing why the URL is invalid, or nil if valid.
func ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("url is missing a hostname")
	}

	// Must contain at least one dot (for TLD), unless it is an IP literal
	if !strings.Contains(host, ".") && !strings.Contains(host, ":") {
		return fmt.Errorf("hostname must contain a TLD (e.g. .com, .co.uk)")
	}

	// Block localhost and common internal hostnames
	lowerHost := strings.ToLower(host)
	blockedHosts := []string{"localhost", "localhost.localdomain", "local", "internal"}
	for _, blocked := range blockedHosts {
		if lowerHost == blocked || strings.HasSuffix(lowerHost, "."+blocked) {
			return fmt.Errorf("hostname %q is not allowed", host)
		}
	}

	return nil
}

// SameOrSubDomain reports whether hostname is the target domain or one of its subdomains.
func SameOrSubDomain(hostname, targetDomain string) bool {
	if hostname == targetDomain {
		return true
	}
	return strings.HasSuffix(hostname, "."+targetDomain)
}
