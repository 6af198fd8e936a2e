// Package origin implements the browser Origin allow-list enforced at
// connection time, before any room logic runs.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates a browser Origin header and returns it in canonical
// scheme://host[:port] form (lowercased, default ports stripped).
//
// The special Origin value "null" is returned as-is; whether it is allowed is
// up to the configured allow-list.
func Normalize(originHeader string) (string, bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", false
	}
	if trimmed == "null" {
		return "null", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	// An Origin is just scheme://host[:port]; anything else means the header
	// was forged or mangled.
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	rawHostname, rawPort, ok := splitHostPort(u.Host)
	if !ok {
		return "", false
	}

	hostname := strings.ToLower(rawHostname)
	if hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}

	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host = host + ":" + strconv.FormatUint(port, 10)
	}
	return scheme + "://" + host, true
}

// Allowed reports whether a normalized origin is in the allow-list. Entries
// must be "*" or normalized origins as produced by Normalize.
func Allowed(normalizedOrigin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == normalizedOrigin {
			return true
		}
	}
	return false
}

// NormalizeList canonicalizes a configured allow-list so entries compare
// equal to Normalize output regardless of how the operator wrote them.
func NormalizeList(origins []string) ([]string, bool) {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			out = append(out, "*")
			continue
		}
		normalized, ok := Normalize(o)
		if !ok {
			return nil, false
		}
		out = append(out, normalized)
	}
	return out, true
}

// splitHostPort splits an authority host[:port] string. The hostname is
// returned without brackets for IPv6 literals.
func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	switch strings.Count(rawHost, ":") {
	case 0:
		return rawHost, "", true
	case 1:
		parts := strings.SplitN(rawHost, ":", 2)
		if parts[0] == "" || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	default:
		// Unbracketed IPv6 literals are not valid in the authority component.
		return "", "", false
	}
}
